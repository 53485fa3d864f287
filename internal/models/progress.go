package models

import "time"

// ProgressStatus is the per-lesson state machine. Transitions only move
// forward; completed records never regress.
type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not_started"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
)

// UserLessonProgress tracks a user's state for one lesson. CompletedAt is
// set only on completion and is never earlier than StartedAt.
type UserLessonProgress struct {
	ID          string         `db:"id" json:"id"`
	UserID      string         `db:"user_id" json:"user_id"`
	LessonID    string         `db:"lesson_id" json:"lesson_id"`
	Status      ProgressStatus `db:"status" json:"status"`
	StartedAt   *time.Time     `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

// CourseProgress summarises a user's completion for one course. Percent is
// derived on demand and never stored.
type CourseProgress struct {
	CourseID         string               `json:"course_id"`
	TotalLessons     int                  `json:"total_lessons"`
	CompletedLessons int                  `json:"completed_lessons"`
	Percent          float64              `json:"percent"`
	Lessons          []UserLessonProgress `json:"lessons,omitempty"`
}

// OutstandingCourse is a mandatory course a user has not finished yet.
type OutstandingCourse struct {
	Course
	InterestID       string  `db:"interest_id" json:"interest_id"`
	InterestName     string  `db:"interest_name" json:"interest_name"`
	TotalLessons     int     `db:"total_lessons" json:"total_lessons"`
	CompletedLessons int     `db:"completed_lessons" json:"completed_lessons"`
	Percent          float64 `json:"percent"`
}
