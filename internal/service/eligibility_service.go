package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/corplearn/lms-api/internal/models"
	appErrors "github.com/corplearn/lms-api/pkg/errors"
)

type eligibilityUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type eligibilityCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	CountInterestLinks(ctx context.Context, courseID string) (int, error)
}

type eligibilityGrantRepository interface {
	HasActiveGrantForCourse(ctx context.Context, userID, courseID string) (bool, error)
}

// EligibilityService decides whether a user may access a course. Decisions
// are computed from current store state on every call and are never cached:
// a revoked grant or an approval flip takes effect on the next request.
type EligibilityService struct {
	users   eligibilityUserRepository
	courses eligibilityCourseRepository
	grants  eligibilityGrantRepository
	metrics *MetricsService
	logger  *zap.Logger
}

// NewEligibilityService constructs an EligibilityService.
func NewEligibilityService(users eligibilityUserRepository, courses eligibilityCourseRepository, grants eligibilityGrantRepository, logger *zap.Logger) *EligibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EligibilityService{users: users, courses: courses, grants: grants, logger: logger}
}

// AttachMetrics wires the decision counter. Safe to skip; recording on a nil
// service is a no-op.
func (s *EligibilityService) AttachMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// Decide runs the gate chain over already-loaded facts. Gates short-circuit
// in a fixed order, so the reported reason is always the first failing gate:
// admin bypass, approval, level, domain restriction, team access.
func Decide(user *models.User, course *models.Course, linkedInterests int, hasActiveGrant bool) models.EligibilityDecision {
	if user.IsAdmin() {
		return models.Allow()
	}
	if !user.Approved {
		return models.Deny(models.DenialNotApproved)
	}
	if user.AccessLevel < course.RequiredLevel {
		return models.Deny(models.DenialInsufficientLevel)
	}
	if course.RestrictedDomain != nil && *course.RestrictedDomain != user.EmailDomain {
		return models.Deny(models.DenialDomainRestricted)
	}
	// A course with no interest links is open to everyone who passed the
	// earlier gates.
	if linkedInterests > 0 && !hasActiveGrant {
		return models.Deny(models.DenialNoTeamAccess)
	}
	return models.Allow()
}

// Resolve loads the user and course and computes the access decision.
func (s *EligibilityService) Resolve(ctx context.Context, userID, courseID string) (models.EligibilityDecision, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.EligibilityDecision{}, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return models.EligibilityDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.EligibilityDecision{}, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return models.EligibilityDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	return s.decideFor(ctx, user, course)
}

// ResolveForCourse computes the decision for an already-loaded user and
// course pair. List endpoints use it to annotate each catalog entry without
// re-reading the user per course.
func (s *EligibilityService) ResolveForCourse(ctx context.Context, user *models.User, course *models.Course) (models.EligibilityDecision, error) {
	return s.decideFor(ctx, user, course)
}

func (s *EligibilityService) decideFor(ctx context.Context, user *models.User, course *models.Course) (models.EligibilityDecision, error) {
	// Admins never need the grant lookup.
	if user.IsAdmin() {
		decision := models.Allow()
		s.metrics.RecordDecision(decision)
		return decision, nil
	}

	linked, err := s.courses.CountInterestLinks(ctx, course.ID)
	if err != nil {
		return models.EligibilityDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count course interest links")
	}

	hasGrant := false
	if linked > 0 {
		hasGrant, err = s.grants.HasActiveGrantForCourse(ctx, user.ID, course.ID)
		if err != nil {
			return models.EligibilityDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course grants")
		}
	}

	decision := Decide(user, course, linked, hasGrant)
	s.metrics.RecordDecision(decision)
	return decision, nil
}

// DenialError maps a denial reason to the API error returned when a denied
// user attempts a gated operation.
func DenialError(reason models.DenialReason) *appErrors.Error {
	switch reason {
	case models.DenialNotApproved:
		return appErrors.ErrNotApproved
	case models.DenialInsufficientLevel:
		return appErrors.ErrInsufficientLevel
	case models.DenialDomainRestricted:
		return appErrors.ErrDomainRestricted
	case models.DenialNoTeamAccess:
		return appErrors.ErrNoTeamAccess
	default:
		return appErrors.ErrForbidden
	}
}
