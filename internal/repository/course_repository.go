package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/corplearn/lms-api/internal/models"
)

// CourseRepository persists courses, lessons, and team links.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, title, description, required_level, restricted_domain, created_by, created_at, updated_at`

// FindByID returns a course by identifier.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1 LIMIT 1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course by id: %w", err)
	}
	return &course, nil
}

// FindByTitle returns a course by its unique title.
func (r *CourseRepository) FindByTitle(ctx context.Context, title string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE title = $1 LIMIT 1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, title); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course by title: %w", err)
	}
	return &course, nil
}

// List returns courses matching the filter with lesson counts and total.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseListing, int, error) {
	base := `FROM courses c`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.title) LIKE $%d OR LOWER(c.description) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.InterestID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM course_interests ci WHERE ci.course_id = c.id AND ci.interest_id = $%d)", len(args)+1))
		args = append(args, filter.InterestID)
	}
	if filter.MaxLevel != nil {
		conditions = append(conditions, fmt.Sprintf("c.required_level <= $%d", len(args)+1))
		args = append(args, *filter.MaxLevel)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"title":          "c.title",
		"created_at":     "c.created_at",
		"required_level": "c.required_level",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT c.id, c.title, c.description, c.required_level, c.restricted_domain, c.created_by, c.created_at, c.updated_at,
        (SELECT COUNT(*) FROM lessons l WHERE l.course_id = c.id) AS lesson_count
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var courses []models.CourseListing
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// Create inserts a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, title, description, required_level, restricted_domain, created_by, created_at, updated_at)
        VALUES (:id, :title, :description, :required_level, :restricted_domain, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Delete removes a course together with its owned lessons, links, progress,
// and discussion in one transaction.
func (r *CourseRepository) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin course delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	statements := []string{
		`DELETE FROM user_lesson_progress WHERE lesson_id IN (SELECT id FROM lessons WHERE course_id = $1)`,
		`DELETE FROM lessons WHERE course_id = $1`,
		`DELETE FROM course_interests WHERE course_id = $1`,
		`DELETE FROM mandatory_courses WHERE course_id = $1`,
		`DELETE FROM forum_replies WHERE topic_id IN (SELECT id FROM forum_topics WHERE course_id = $1)`,
		`DELETE FROM forum_topics WHERE course_id = $1`,
		`DELETE FROM courses WHERE id = $1`,
	}
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete course: %w", err)
		}
	}
	return tx.Commit()
}

// CreateLesson inserts a lesson for a course.
func (r *CourseRepository) CreateLesson(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO lessons (id, course_id, title, content, content_type, video_url, lesson_order, created_at)
        VALUES (:id, :course_id, :title, :content, :content_type, :video_url, :lesson_order, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

// FindLessonByID returns a lesson by identifier.
func (r *CourseRepository) FindLessonByID(ctx context.Context, id string) (*models.Lesson, error) {
	const query = `SELECT id, course_id, title, content, content_type, video_url, lesson_order, created_at FROM lessons WHERE id = $1 LIMIT 1`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find lesson by id: %w", err)
	}
	return &lesson, nil
}

// ListLessons returns a course's lessons in sequence order.
func (r *CourseRepository) ListLessons(ctx context.Context, courseID string) ([]models.Lesson, error) {
	const query = `SELECT id, course_id, title, content, content_type, video_url, lesson_order, created_at FROM lessons WHERE course_id = $1 ORDER BY lesson_order ASC`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, courseID); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// LessonOrderExists checks whether a course already uses a sequence slot.
func (r *CourseRepository) LessonOrderExists(ctx context.Context, courseID string, order int) (bool, error) {
	const query = `SELECT 1 FROM lessons WHERE course_id = $1 AND lesson_order = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, courseID, order); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check lesson order: %w", err)
	}
	return true, nil
}

// LinkInterest attaches an interest gate to a course. Duplicate links are
// ignored.
func (r *CourseRepository) LinkInterest(ctx context.Context, courseID, interestID string) error {
	const query = `INSERT INTO course_interests (id, course_id, interest_id, created_at) VALUES ($1, $2, $3, $4)
        ON CONFLICT (course_id, interest_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), courseID, interestID, time.Now().UTC()); err != nil {
		return fmt.Errorf("link course interest: %w", err)
	}
	return nil
}

// ListLinkedInterests returns the interests gating a course.
func (r *CourseRepository) ListLinkedInterests(ctx context.Context, courseID string) ([]models.Interest, error) {
	const query = `SELECT i.id, i.name, i.description, i.created_at FROM course_interests ci
        JOIN interests i ON i.id = ci.interest_id
        WHERE ci.course_id = $1 ORDER BY i.name ASC`
	var interests []models.Interest
	if err := r.db.SelectContext(ctx, &interests, query, courseID); err != nil {
		return nil, fmt.Errorf("list linked interests: %w", err)
	}
	return interests, nil
}

// CountInterestLinks returns the number of interest gates on a course.
func (r *CourseRepository) CountInterestLinks(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM course_interests WHERE course_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, courseID); err != nil {
		return 0, fmt.Errorf("count interest links: %w", err)
	}
	return count, nil
}

// CreateMandatory marks a course mandatory for an interest.
func (r *CourseRepository) CreateMandatory(ctx context.Context, m *models.MandatoryCourse) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO mandatory_courses (id, course_id, interest_id, created_by, created_at)
        VALUES (:id, :course_id, :interest_id, :created_by, :created_at)
        ON CONFLICT (course_id, interest_id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("create mandatory course: %w", err)
	}
	return nil
}

// ListOutstanding returns mandatory courses for the user's active interests
// that the user has not fully completed.
func (r *CourseRepository) ListOutstanding(ctx context.Context, userID string) ([]models.OutstandingCourse, error) {
	const query = `SELECT c.id, c.title, c.description, c.required_level, c.restricted_domain, c.created_by, c.created_at, c.updated_at,
        mc.interest_id, i.name AS interest_name,
        (SELECT COUNT(*) FROM lessons l WHERE l.course_id = c.id) AS total_lessons,
        (SELECT COUNT(*) FROM user_lesson_progress p
            JOIN lessons l ON l.id = p.lesson_id
            WHERE l.course_id = c.id AND p.user_id = $1 AND p.status = 'completed') AS completed_lessons
        FROM mandatory_courses mc
        JOIN courses c ON c.id = mc.course_id
        JOIN interests i ON i.id = mc.interest_id
        JOIN user_interests ui ON ui.interest_id = mc.interest_id AND ui.user_id = $1 AND ui.status = 'ACTIVE'
        ORDER BY c.title ASC`
	var outstanding []models.OutstandingCourse
	if err := r.db.SelectContext(ctx, &outstanding, query, userID); err != nil {
		return nil, fmt.Errorf("list outstanding courses: %w", err)
	}
	return outstanding, nil
}
