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

type membershipInterestRepository interface {
	List(ctx context.Context) ([]models.Interest, error)
	FindByID(ctx context.Context, id string) (*models.Interest, error)
	Create(ctx context.Context, interest *models.Interest) error
	FindGrant(ctx context.Context, userID, interestID string) (*models.UserInterest, error)
	CreateGrant(ctx context.Context, grant *models.UserInterest) error
	Reactivate(ctx context.Context, id, grantedBy string, grantedAt time.Time) error
	Revoke(ctx context.Context, id, revokedBy string, revokedAt time.Time) error
	ListByUser(ctx context.Context, userID string) ([]models.MembershipDetail, error)
}

type membershipUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	CreateActivity(ctx context.Context, entry *models.UserActivity) error
}

// MembershipService manages interests and the grant ledger. Grants are a
// two-state machine: at most one row per (user, interest), flipping between
// ACTIVE and REVOKED. Rows are never deleted, so provenance survives
// revocation.
type MembershipService struct {
	interests membershipInterestRepository
	users     membershipUserRepository
	logger    *zap.Logger
}

// NewMembershipService constructs a MembershipService.
func NewMembershipService(interests membershipInterestRepository, users membershipUserRepository, logger *zap.Logger) *MembershipService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MembershipService{interests: interests, users: users, logger: logger}
}

// ListInterests returns all interests.
func (s *MembershipService) ListInterests(ctx context.Context) ([]models.Interest, error) {
	interests, err := s.interests.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list interests")
	}
	return interests, nil
}

// CreateInterest registers a new interest.
func (s *MembershipService) CreateInterest(ctx context.Context, name, description string) (*models.Interest, error) {
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "interest name is required")
	}
	interest := &models.Interest{Name: name, Description: description}
	if err := s.interests.Create(ctx, interest); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create interest")
	}
	return interest, nil
}

// Grant gives a user active membership in an interest. Granting over an
// existing active grant fails with DUPLICATE_GRANT; granting over a revoked
// one reactivates the same row with fresh grantor fields.
func (s *MembershipService) Grant(ctx context.Context, userID, interestID, grantedBy string) (*models.UserInterest, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if _, err := s.interests.FindByID(ctx, interestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "interest not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load interest")
	}

	now := time.Now().UTC()
	existing, err := s.interests.FindGrant(ctx, userID, interestID)
	switch {
	case err == nil && existing.Status == models.GrantStatusActive:
		return nil, appErrors.Clone(appErrors.ErrDuplicateGrant, "user already holds an active grant for this interest")
	case err == nil:
		if err := s.interests.Reactivate(ctx, existing.ID, grantedBy, now); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reactivate grant")
		}
		existing.Status = models.GrantStatusActive
		existing.GrantedBy = grantedBy
		existing.GrantedAt = now
		existing.RevokedBy = nil
		existing.RevokedAt = nil
		s.recordGrantActivity(ctx, models.ActivityGrantCreated, grantedBy, existing.ID)
		return existing, nil
	case errors.Is(err, sql.ErrNoRows):
		grant := &models.UserInterest{
			UserID:     userID,
			InterestID: interestID,
			Status:     models.GrantStatusActive,
			GrantedBy:  grantedBy,
			GrantedAt:  now,
		}
		if err := s.interests.CreateGrant(ctx, grant); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grant")
		}
		s.recordGrantActivity(ctx, models.ActivityGrantCreated, grantedBy, grant.ID)
		return grant, nil
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up grant")
	}
}

// Revoke marks a user's grant revoked. Revoking an already-revoked grant is
// a no-op success; revoking a grant that never existed is not found.
func (s *MembershipService) Revoke(ctx context.Context, userID, interestID, revokedBy string) (*models.UserInterest, error) {
	existing, err := s.interests.FindGrant(ctx, userID, interestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grant not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up grant")
	}

	if existing.Status == models.GrantStatusRevoked {
		return existing, nil
	}

	now := time.Now().UTC()
	if err := s.interests.Revoke(ctx, existing.ID, revokedBy, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke grant")
	}
	existing.Status = models.GrantStatusRevoked
	existing.RevokedBy = &revokedBy
	existing.RevokedAt = &now
	s.recordGrantActivity(ctx, models.ActivityGrantRevoked, revokedBy, existing.ID)
	return existing, nil
}

// ListForUser returns all of a user's grants, active and revoked.
func (s *MembershipService) ListForUser(ctx context.Context, userID string) ([]models.MembershipDetail, error) {
	memberships, err := s.interests.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list memberships")
	}
	return memberships, nil
}

func (s *MembershipService) recordGrantActivity(ctx context.Context, action, actor, grantID string) {
	if err := s.users.CreateActivity(ctx, &models.UserActivity{
		UserID:     &actor,
		Action:     action,
		Resource:   "memberships",
		ResourceID: &grantID,
	}); err != nil {
		s.logger.Warn("failed to record grant activity", zap.Error(err))
	}
}
