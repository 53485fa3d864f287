package models

import "time"

// Interest is an organizational team used to gate course visibility.
// Reference data, created by admins.
type Interest struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// GrantStatus is the lifecycle of a membership grant. Grants are never
// deleted; revocation flips the status and keeps the audit trail.
type GrantStatus string

const (
	GrantStatusActive  GrantStatus = "ACTIVE"
	GrantStatusRevoked GrantStatus = "REVOKED"
)

// UserInterest records a membership grant for a (user, interest) pair.
// At most one row exists per pair; re-granting reactivates the row.
type UserInterest struct {
	ID         string      `db:"id" json:"id"`
	UserID     string      `db:"user_id" json:"user_id"`
	InterestID string      `db:"interest_id" json:"interest_id"`
	Status     GrantStatus `db:"status" json:"status"`
	GrantedBy  string      `db:"granted_by" json:"granted_by"`
	GrantedAt  time.Time   `db:"granted_at" json:"granted_at"`
	RevokedBy  *string     `db:"revoked_by" json:"revoked_by,omitempty"`
	RevokedAt  *time.Time  `db:"revoked_at" json:"revoked_at,omitempty"`
}

// MembershipDetail enriches a grant with interest and grantor info.
type MembershipDetail struct {
	UserInterest
	InterestName  string `db:"interest_name" json:"interest_name"`
	GrantedByName string `db:"granted_by_name" json:"granted_by_name"`
}
