package models

import "time"

// Activity action constants.
const (
	ActivityLogin           = "LOGIN"
	ActivityUserApproved    = "USER_APPROVED"
	ActivityGrantCreated    = "GRANT_CREATED"
	ActivityGrantRevoked    = "GRANT_REVOKED"
	ActivityCourseCreated   = "COURSE_CREATED"
	ActivityCourseDeleted   = "COURSE_DELETED"
	ActivityLessonStarted   = "LESSON_STARTED"
	ActivityLessonCompleted = "LESSON_COMPLETED"
	ActivityTopicCreated    = "TOPIC_CREATED"
	ActivityReportRequested = "REPORT_REQUESTED"
)

// UserActivity is an append-only audit record of a user-facing action.
type UserActivity struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Detail     []byte    `db:"detail" json:"detail,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
