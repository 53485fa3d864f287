package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/corplearn/lms-api/internal/models"
)

// ErrWriteNotEligible indicates the write-time eligibility guard rejected a
// progress insert. The caller resolves the precise denial reason separately.
var ErrWriteNotEligible = errors.New("user not eligible for lesson's course at write time")

// ErrCompletionBeforeStart indicates a completion timestamp earlier than the
// recorded start, which would move the state machine backwards.
var ErrCompletionBeforeStart = errors.New("completion timestamp precedes start")

// ProgressRepository persists per-lesson progress records.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

const progressColumns = `id, user_id, lesson_id, status, started_at, completed_at`

// eligibleForLesson gates progress inserts in the same statement snapshot as
// the write, so a concurrent revocation cannot slip a row in. Mirrors the
// resolver's rule order: admin bypass, approval, level, domain, team.
const eligibleForLesson = `EXISTS (
    SELECT 1 FROM lessons l
    JOIN courses c ON c.id = l.course_id
    JOIN users u ON u.id = $1
    WHERE l.id = $2 AND (
        u.role = 'ADMIN' OR (
            u.approved
            AND u.access_level >= c.required_level
            AND (c.restricted_domain IS NULL OR c.restricted_domain = u.email_domain)
            AND (
                NOT EXISTS (SELECT 1 FROM course_interests ci WHERE ci.course_id = c.id)
                OR EXISTS (
                    SELECT 1 FROM course_interests ci
                    JOIN user_interests ui ON ui.interest_id = ci.interest_id
                    WHERE ci.course_id = c.id AND ui.user_id = u.id AND ui.status = 'ACTIVE'
                )
            )
        )
    )
)`

// Get returns the progress record for a (user, lesson) pair.
func (r *ProgressRepository) Get(ctx context.Context, userID, lessonID string) (*models.UserLessonProgress, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_lesson_progress WHERE user_id = $1 AND lesson_id = $2 LIMIT 1`, progressColumns)
	var progress models.UserLessonProgress
	if err := r.db.GetContext(ctx, &progress, query, userID, lessonID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return &progress, nil
}

// Start records the in_progress state for a (user, lesson) pair. Existing
// records are left untouched, so a started or completed lesson never
// regresses and repeated starts are no-ops. The insert is guarded by the
// eligibility predicate evaluated in the same statement.
func (r *ProgressRepository) Start(ctx context.Context, userID, lessonID string, now time.Time) (*models.UserLessonProgress, error) {
	query := fmt.Sprintf(`INSERT INTO user_lesson_progress (id, user_id, lesson_id, status, started_at)
        SELECT $3, $1, $2, $4, $5 WHERE %s
        ON CONFLICT (user_id, lesson_id) DO NOTHING`, eligibleForLesson)
	if _, err := r.db.ExecContext(ctx, query, userID, lessonID, uuid.NewString(), models.ProgressInProgress, now.UTC()); err != nil {
		return nil, fmt.Errorf("start lesson: %w", err)
	}

	progress, err := r.Get(ctx, userID, lessonID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrWriteNotEligible
		}
		return nil, err
	}
	return progress, nil
}

// Complete promotes a (user, lesson) pair to completed inside a single
// transaction. A missing record is created directly in the completed state
// (auto-promotion through in_progress), an in-flight record is locked FOR
// UPDATE before the update, and a completed record is returned unchanged.
func (r *ProgressRepository) Complete(ctx context.Context, userID, lessonID string, now time.Time) (progress *models.UserLessonProgress, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin complete transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now = now.UTC()
	var current models.UserLessonProgress
	lockQuery := fmt.Sprintf(`SELECT %s FROM user_lesson_progress WHERE user_id = $1 AND lesson_id = $2 FOR UPDATE`, progressColumns)
	err = tx.GetContext(ctx, &current, lockQuery, userID, lessonID)
	switch {
	case err == sql.ErrNoRows:
		insertQuery := fmt.Sprintf(`INSERT INTO user_lesson_progress (id, user_id, lesson_id, status, started_at, completed_at)
            SELECT $3, $1, $2, $4, $5, $5 WHERE %s
            ON CONFLICT (user_id, lesson_id) DO NOTHING`, eligibleForLesson)
		if _, err = tx.ExecContext(ctx, insertQuery, userID, lessonID, uuid.NewString(), models.ProgressCompleted, now); err != nil {
			return nil, fmt.Errorf("insert completed progress: %w", err)
		}
		err = tx.GetContext(ctx, &current, lockQuery, userID, lessonID)
		if err == sql.ErrNoRows {
			return nil, ErrWriteNotEligible
		}
		if err != nil {
			return nil, fmt.Errorf("reload completed progress: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("lock progress: %w", err)
	case current.Status == models.ProgressCompleted:
		// Idempotent re-completion: return the existing record unchanged.
	default:
		if current.StartedAt != nil && now.Before(*current.StartedAt) {
			return nil, ErrCompletionBeforeStart
		}
		startedAt := current.StartedAt
		if startedAt == nil {
			startedAt = &now
		}
		// The promotion carries the same guard as the insert paths, so a
		// revocation between start and complete blocks the transition too.
		updateQuery := fmt.Sprintf(`UPDATE user_lesson_progress SET status = $3, started_at = $4, completed_at = $5
            WHERE user_id = $1 AND lesson_id = $2 AND %s`, eligibleForLesson)
		var res sql.Result
		if res, err = tx.ExecContext(ctx, updateQuery, userID, lessonID, models.ProgressCompleted, startedAt, now); err != nil {
			return nil, fmt.Errorf("complete progress: %w", err)
		}
		var affected int64
		if affected, err = res.RowsAffected(); err != nil {
			return nil, fmt.Errorf("complete progress result: %w", err)
		}
		if affected == 0 {
			return nil, ErrWriteNotEligible
		}
		current.Status = models.ProgressCompleted
		current.StartedAt = startedAt
		current.CompletedAt = &now
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit complete transaction: %w", err)
	}
	return &current, nil
}

// CourseCounts returns total and completed lesson counts for a user's course.
func (r *ProgressRepository) CourseCounts(ctx context.Context, userID, courseID string) (total, completed int, err error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM lessons WHERE course_id = $2) AS total,
        (SELECT COUNT(*) FROM user_lesson_progress p
            JOIN lessons l ON l.id = p.lesson_id
            WHERE p.user_id = $1 AND l.course_id = $2 AND p.status = $3) AS completed`
	var counts struct {
		Total     int `db:"total"`
		Completed int `db:"completed"`
	}
	if err := r.db.GetContext(ctx, &counts, query, userID, courseID, models.ProgressCompleted); err != nil {
		return 0, 0, fmt.Errorf("course progress counts: %w", err)
	}
	return counts.Total, counts.Completed, nil
}

// ListByCourse returns the user's progress records for a course in lesson
// order.
func (r *ProgressRepository) ListByCourse(ctx context.Context, userID, courseID string) ([]models.UserLessonProgress, error) {
	const query = `SELECT p.id, p.user_id, p.lesson_id, p.status, p.started_at, p.completed_at
        FROM user_lesson_progress p
        JOIN lessons l ON l.id = p.lesson_id
        WHERE p.user_id = $1 AND l.course_id = $2
        ORDER BY l.lesson_order ASC`
	var records []models.UserLessonProgress
	if err := r.db.SelectContext(ctx, &records, query, userID, courseID); err != nil {
		return nil, fmt.Errorf("list course progress: %w", err)
	}
	return records, nil
}

// CourseReportRow is one line of a per-course progress report.
type CourseReportRow struct {
	UserID           string `db:"user_id"`
	Email            string `db:"email"`
	FullName         string `db:"full_name"`
	CompletedLessons int    `db:"completed_lessons"`
	TotalLessons     int    `db:"total_lessons"`
}

// CourseReport returns per-user completion counts for a course, covering
// every user who has recorded progress in it.
func (r *ProgressRepository) CourseReport(ctx context.Context, courseID string) ([]CourseReportRow, error) {
	const query = `SELECT u.id AS user_id, u.email, u.full_name,
        COUNT(*) FILTER (WHERE p.status = 'completed') AS completed_lessons,
        (SELECT COUNT(*) FROM lessons WHERE course_id = $1) AS total_lessons
        FROM user_lesson_progress p
        JOIN lessons l ON l.id = p.lesson_id AND l.course_id = $1
        JOIN users u ON u.id = p.user_id
        GROUP BY u.id, u.email, u.full_name
        ORDER BY u.full_name ASC`
	var rows []CourseReportRow
	if err := r.db.SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, fmt.Errorf("course report: %w", err)
	}
	return rows, nil
}

// ComplianceReportRow is one line of a team compliance report.
type ComplianceReportRow struct {
	UserID           string `db:"user_id"`
	Email            string `db:"email"`
	FullName         string `db:"full_name"`
	CourseTitle      string `db:"course_title"`
	CompletedLessons int    `db:"completed_lessons"`
	TotalLessons     int    `db:"total_lessons"`
}

// ComplianceReport returns, for every active member of an interest and every
// course mandatory for that interest, the member's completion counts.
func (r *ProgressRepository) ComplianceReport(ctx context.Context, interestID string) ([]ComplianceReportRow, error) {
	const query = `SELECT u.id AS user_id, u.email, u.full_name, c.title AS course_title,
        (SELECT COUNT(*) FROM user_lesson_progress p
            JOIN lessons l ON l.id = p.lesson_id
            WHERE p.user_id = u.id AND l.course_id = c.id AND p.status = 'completed') AS completed_lessons,
        (SELECT COUNT(*) FROM lessons WHERE course_id = c.id) AS total_lessons
        FROM user_interests ui
        JOIN users u ON u.id = ui.user_id
        JOIN mandatory_courses mc ON mc.interest_id = ui.interest_id
        JOIN courses c ON c.id = mc.course_id
        WHERE ui.interest_id = $1 AND ui.status = 'ACTIVE'
        ORDER BY u.full_name ASC, c.title ASC`
	var rows []ComplianceReportRow
	if err := r.db.SelectContext(ctx, &rows, query, interestID); err != nil {
		return nil, fmt.Errorf("compliance report: %w", err)
	}
	return rows, nil
}
