package models

import "time"

// Course is a gated unit of learning content. RestrictedDomain, when set,
// limits eligibility to users whose email domain matches it exactly.
type Course struct {
	ID               string    `db:"id" json:"id"`
	Title            string    `db:"title" json:"title"`
	Description      string    `db:"description" json:"description"`
	RequiredLevel    int       `db:"required_level" json:"required_level"`
	RestrictedDomain *string   `db:"restricted_domain" json:"restricted_domain,omitempty"`
	CreatedBy        string    `db:"created_by" json:"created_by"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// LessonContentType enumerates lesson content kinds.
type LessonContentType string

const (
	LessonContentText  LessonContentType = "text"
	LessonContentVideo LessonContentType = "video"
	LessonContentMixed LessonContentType = "mixed"
)

// RequiresVideo reports whether lessons of this type must carry a video URL.
func (t LessonContentType) RequiresVideo() bool {
	return t == LessonContentVideo || t == LessonContentMixed
}

// Lesson belongs to exactly one course. Order is unique within the course
// and defines the sequence.
type Lesson struct {
	ID          string            `db:"id" json:"id"`
	CourseID    string            `db:"course_id" json:"course_id"`
	Title       string            `db:"title" json:"title"`
	Content     string            `db:"content" json:"content"`
	ContentType LessonContentType `db:"content_type" json:"content_type"`
	VideoURL    *string           `db:"video_url" json:"video_url,omitempty"`
	Order       int               `db:"lesson_order" json:"order"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
}

// CourseInterest links a course to an interest. A course with links is only
// eligible to users holding an active grant for at least one of them.
type CourseInterest struct {
	ID         string    `db:"id" json:"id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	InterestID string    `db:"interest_id" json:"interest_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// MandatoryCourse marks a course as required for members of an interest.
type MandatoryCourse struct {
	ID         string    `db:"id" json:"id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	InterestID string    `db:"interest_id" json:"interest_id"`
	CreatedBy  string    `db:"created_by" json:"created_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// CourseDetail aggregates a course with its lessons and team links.
type CourseDetail struct {
	Course
	Lessons   []Lesson   `json:"lessons"`
	Interests []Interest `json:"interests"`
}

// CourseListing annotates a course with the caller's eligibility decision.
type CourseListing struct {
	Course
	LessonCount int                  `db:"lesson_count" json:"lesson_count"`
	Eligibility *EligibilityDecision `json:"eligibility,omitempty"`
}

// CreateCourseRequest is the admin payload for creating a course.
type CreateCourseRequest struct {
	Title            string   `json:"title" validate:"required,min=3"`
	Description      string   `json:"description"`
	RequiredLevel    int      `json:"required_level" validate:"required,min=1,max=10"`
	RestrictedDomain *string  `json:"restricted_domain,omitempty" validate:"omitempty,fqdn"`
	InterestIDs      []string `json:"interest_ids,omitempty"`
}

// CreateLessonRequest is the admin payload for adding a lesson.
type CreateLessonRequest struct {
	Title       string            `json:"title" validate:"required,min=3"`
	Content     string            `json:"content"`
	ContentType LessonContentType `json:"content_type" validate:"required,oneof=text video mixed"`
	VideoURL    *string           `json:"video_url,omitempty" validate:"omitempty,url"`
	Order       int               `json:"order" validate:"required,min=1"`
}

// CourseFilter captures listing criteria for the catalog.
type CourseFilter struct {
	Search     string
	InterestID string
	MaxLevel   *int
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
