package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/corplearn/lms-api/internal/models"
	appErrors "github.com/corplearn/lms-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Approve(ctx context.Context, id string, ts time.Time) error
	CreateActivity(ctx context.Context, entry *models.UserActivity) error
}

// UserService provides admin-facing user management.
type UserService struct {
	repo   userRepository
	logger *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(repo userRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, logger: logger}
}

// List returns users matching the filter with pagination info.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, total, nil
}

// Get returns a single user.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Approve marks a user approved. Approving an already-approved user is a
// no-op success; the flag never moves back to unapproved.
func (s *UserService) Approve(ctx context.Context, id, approvedBy string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if user.Approved {
		return user, nil
	}

	now := time.Now().UTC()
	if err := s.repo.Approve(ctx, id, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve user")
	}
	user.Approved = true
	user.UpdatedAt = now

	if err := s.repo.CreateActivity(ctx, &models.UserActivity{
		UserID:     &approvedBy,
		Action:     models.ActivityUserApproved,
		Resource:   "users",
		ResourceID: &user.ID,
	}); err != nil {
		s.logger.Warn("failed to record approval activity", zap.Error(err))
	}

	s.logger.Info("user approved", zap.String("user_id", user.ID), zap.String("approved_by", approvedBy))
	return user, nil
}
