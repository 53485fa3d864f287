package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/corplearn/lms-api/internal/models"
	"github.com/corplearn/lms-api/internal/repository"
	appErrors "github.com/corplearn/lms-api/pkg/errors"
)

type progressRepository interface {
	Get(ctx context.Context, userID, lessonID string) (*models.UserLessonProgress, error)
	Start(ctx context.Context, userID, lessonID string, now time.Time) (*models.UserLessonProgress, error)
	Complete(ctx context.Context, userID, lessonID string, now time.Time) (*models.UserLessonProgress, error)
	CourseCounts(ctx context.Context, userID, courseID string) (total, completed int, err error)
	ListByCourse(ctx context.Context, userID, courseID string) ([]models.UserLessonProgress, error)
}

type progressLessonRepository interface {
	FindLessonByID(ctx context.Context, id string) (*models.Lesson, error)
}

type progressActivityRepository interface {
	CreateActivity(ctx context.Context, entry *models.UserActivity) error
}

// ProgressService tracks per-lesson progress. State only moves forward:
// starting an already-started lesson and completing a completed one are
// no-op successes, and completion auto-promotes a lesson that was never
// explicitly started. Writes are blocked for users who lost eligibility,
// but history written while eligible stays readable.
type ProgressService struct {
	progress    progressRepository
	lessons     progressLessonRepository
	activity    progressActivityRepository
	eligibility courseEligibilityResolver
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewProgressService constructs a ProgressService.
func NewProgressService(progress progressRepository, lessons progressLessonRepository, activity progressActivityRepository, eligibility courseEligibilityResolver, logger *zap.Logger) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{progress: progress, lessons: lessons, activity: activity, eligibility: eligibility, logger: logger}
}

// AttachMetrics wires the progress event counter.
func (s *ProgressService) AttachMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// StartLesson records that the user began a lesson.
func (s *ProgressService) StartLesson(ctx context.Context, userID, lessonID string) (*models.UserLessonProgress, error) {
	lesson, err := s.findLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	record, err := s.progress.Start(ctx, userID, lessonID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrWriteNotEligible) {
			return nil, s.denialFor(ctx, userID, lesson.CourseID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start lesson")
	}

	s.metrics.RecordLessonEvent("started")
	s.recordProgressActivity(ctx, models.ActivityLessonStarted, userID, lessonID)
	return record, nil
}

// CompleteLesson records that the user finished a lesson.
func (s *ProgressService) CompleteLesson(ctx context.Context, userID, lessonID string) (*models.UserLessonProgress, error) {
	lesson, err := s.findLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	record, err := s.progress.Complete(ctx, userID, lessonID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrWriteNotEligible) {
			return nil, s.denialFor(ctx, userID, lesson.CourseID)
		}
		if errors.Is(err, repository.ErrCompletionBeforeStart) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "completion cannot precede start")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete lesson")
	}

	s.metrics.RecordLessonEvent("completed")
	s.recordProgressActivity(ctx, models.ActivityLessonCompleted, userID, lessonID)
	return record, nil
}

// GetLessonProgress returns the state for one (user, lesson) pair. A lesson
// with no record reads as not_started.
func (s *ProgressService) GetLessonProgress(ctx context.Context, userID, lessonID string) (*models.UserLessonProgress, error) {
	if _, err := s.findLesson(ctx, lessonID); err != nil {
		return nil, err
	}

	record, err := s.progress.Get(ctx, userID, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.UserLessonProgress{UserID: userID, LessonID: lessonID, Status: models.ProgressNotStarted}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress")
	}
	return record, nil
}

// CourseProgress summarises the user's completion for a course. A course
// with no lessons reports zero percent, never a division error.
func (s *ProgressService) CourseProgress(ctx context.Context, userID, courseID string) (*models.CourseProgress, error) {
	total, completed, err := s.progress.CourseCounts(ctx, userID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute course progress")
	}

	records, err := s.progress.ListByCourse(ctx, userID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course progress")
	}

	summary := &models.CourseProgress{
		CourseID:         courseID,
		TotalLessons:     total,
		CompletedLessons: completed,
		Lessons:          records,
	}
	if total > 0 {
		summary.Percent = float64(completed) / float64(total) * 100
	}
	return summary, nil
}

func (s *ProgressService) findLesson(ctx context.Context, lessonID string) (*models.Lesson, error) {
	lesson, err := s.lessons.FindLessonByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	return lesson, nil
}

// denialFor translates a write-guard rejection into the resolver's reason
// code for the lesson's course.
func (s *ProgressService) denialFor(ctx context.Context, userID, courseID string) error {
	decision, err := s.eligibility.Resolve(ctx, userID, courseID)
	if err != nil {
		return err
	}
	if decision.Allowed {
		// The guard and the resolver disagree only when state changed
		// between the two reads; surface a generic denial.
		return appErrors.Clone(appErrors.ErrForbidden, "course access denied")
	}
	return DenialError(decision.Reason)
}

func (s *ProgressService) recordProgressActivity(ctx context.Context, action, userID, lessonID string) {
	if err := s.activity.CreateActivity(ctx, &models.UserActivity{
		UserID:     &userID,
		Action:     action,
		Resource:   "lessons",
		ResourceID: &lessonID,
	}); err != nil {
		s.logger.Warn("failed to record progress activity", zap.Error(err))
	}
}
