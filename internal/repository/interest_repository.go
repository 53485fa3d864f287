package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/corplearn/lms-api/internal/models"
)

// InterestRepository persists interests and the membership grant ledger.
type InterestRepository struct {
	db *sqlx.DB
}

// NewInterestRepository constructs the repository.
func NewInterestRepository(db *sqlx.DB) *InterestRepository {
	return &InterestRepository{db: db}
}

// List returns all interests ordered by name.
func (r *InterestRepository) List(ctx context.Context) ([]models.Interest, error) {
	const query = `SELECT id, name, description, created_at FROM interests ORDER BY name ASC`
	var interests []models.Interest
	if err := r.db.SelectContext(ctx, &interests, query); err != nil {
		return nil, fmt.Errorf("list interests: %w", err)
	}
	return interests, nil
}

// FindByID returns an interest by identifier.
func (r *InterestRepository) FindByID(ctx context.Context, id string) (*models.Interest, error) {
	const query = `SELECT id, name, description, created_at FROM interests WHERE id = $1 LIMIT 1`
	var interest models.Interest
	if err := r.db.GetContext(ctx, &interest, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find interest by id: %w", err)
	}
	return &interest, nil
}

// Create inserts a new interest.
func (r *InterestRepository) Create(ctx context.Context, interest *models.Interest) error {
	if interest.ID == "" {
		interest.ID = uuid.NewString()
	}
	if interest.CreatedAt.IsZero() {
		interest.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO interests (id, name, description, created_at) VALUES (:id, :name, :description, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, interest); err != nil {
		return fmt.Errorf("create interest: %w", err)
	}
	return nil
}

const grantColumns = `id, user_id, interest_id, status, granted_by, granted_at, revoked_by, revoked_at`

// FindGrant returns the grant row for a (user, interest) pair regardless of
// status. At most one such row exists.
func (r *InterestRepository) FindGrant(ctx context.Context, userID, interestID string) (*models.UserInterest, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_interests WHERE user_id = $1 AND interest_id = $2 LIMIT 1`, grantColumns)
	var grant models.UserInterest
	if err := r.db.GetContext(ctx, &grant, query, userID, interestID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find grant: %w", err)
	}
	return &grant, nil
}

// FindGrantByID returns a grant row by identifier.
func (r *InterestRepository) FindGrantByID(ctx context.Context, id string) (*models.UserInterest, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_interests WHERE id = $1 LIMIT 1`, grantColumns)
	var grant models.UserInterest
	if err := r.db.GetContext(ctx, &grant, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find grant by id: %w", err)
	}
	return &grant, nil
}

// CreateGrant inserts a new active grant.
func (r *InterestRepository) CreateGrant(ctx context.Context, grant *models.UserInterest) error {
	if grant.ID == "" {
		grant.ID = uuid.NewString()
	}
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = time.Now().UTC()
	}
	if grant.Status == "" {
		grant.Status = models.GrantStatusActive
	}
	const query = `INSERT INTO user_interests (id, user_id, interest_id, status, granted_by, granted_at)
        VALUES (:id, :user_id, :interest_id, :status, :granted_by, :granted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grant); err != nil {
		return fmt.Errorf("create grant: %w", err)
	}
	return nil
}

// Reactivate flips a revoked grant back to active, refreshing the grantor
// audit fields and clearing the revocation ones.
func (r *InterestRepository) Reactivate(ctx context.Context, id, grantedBy string, grantedAt time.Time) error {
	const query = `UPDATE user_interests SET status = $2, granted_by = $3, granted_at = $4, revoked_by = NULL, revoked_at = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.GrantStatusActive, grantedBy, grantedAt); err != nil {
		return fmt.Errorf("reactivate grant: %w", err)
	}
	return nil
}

// Revoke marks a grant revoked, preserving the row for provenance.
func (r *InterestRepository) Revoke(ctx context.Context, id, revokedBy string, revokedAt time.Time) error {
	const query = `UPDATE user_interests SET status = $2, revoked_by = $3, revoked_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.GrantStatusRevoked, revokedBy, revokedAt); err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	return nil
}

// ListByUser returns all grants for a user with interest context.
func (r *InterestRepository) ListByUser(ctx context.Context, userID string) ([]models.MembershipDetail, error) {
	const query = `SELECT ui.id, ui.user_id, ui.interest_id, ui.status, ui.granted_by, ui.granted_at, ui.revoked_by, ui.revoked_at,
        i.name AS interest_name, COALESCE(u.full_name, '') AS granted_by_name
        FROM user_interests ui
        JOIN interests i ON i.id = ui.interest_id
        LEFT JOIN users u ON u.id = ui.granted_by
        WHERE ui.user_id = $1
        ORDER BY ui.granted_at DESC`
	var memberships []models.MembershipDetail
	if err := r.db.SelectContext(ctx, &memberships, query, userID); err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return memberships, nil
}

// HasActiveGrant reports whether the user holds an active grant for the
// given interest.
func (r *InterestRepository) HasActiveGrant(ctx context.Context, userID, interestID string) (bool, error) {
	const query = `SELECT 1 FROM user_interests WHERE user_id = $1 AND interest_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, userID, interestID, models.GrantStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active grant: %w", err)
	}
	return true, nil
}

// HasActiveGrantForCourse reports whether the user holds an active grant for
// at least one interest linked to the course.
func (r *InterestRepository) HasActiveGrantForCourse(ctx context.Context, userID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM course_interests ci
        JOIN user_interests ui ON ui.interest_id = ci.interest_id
        WHERE ci.course_id = $1 AND ui.user_id = $2 AND ui.status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, courseID, userID, models.GrantStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check course grant: %w", err)
	}
	return true, nil
}
