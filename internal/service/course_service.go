package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/corplearn/lms-api/internal/models"
	appErrors "github.com/corplearn/lms-api/pkg/errors"
)

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByTitle(ctx context.Context, title string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseListing, int, error)
	Create(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	CreateLesson(ctx context.Context, lesson *models.Lesson) error
	FindLessonByID(ctx context.Context, id string) (*models.Lesson, error)
	ListLessons(ctx context.Context, courseID string) ([]models.Lesson, error)
	LessonOrderExists(ctx context.Context, courseID string, order int) (bool, error)
	LinkInterest(ctx context.Context, courseID, interestID string) error
	ListLinkedInterests(ctx context.Context, courseID string) ([]models.Interest, error)
	CreateMandatory(ctx context.Context, m *models.MandatoryCourse) error
	ListOutstanding(ctx context.Context, userID string) ([]models.OutstandingCourse, error)
}

type courseCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type courseEligibilityResolver interface {
	ResolveForCourse(ctx context.Context, user *models.User, course *models.Course) (models.EligibilityDecision, error)
	Resolve(ctx context.Context, userID, courseID string) (models.EligibilityDecision, error)
}

type courseUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	CreateActivity(ctx context.Context, entry *models.UserActivity) error
}

type courseInterestRepository interface {
	FindByID(ctx context.Context, id string) (*models.Interest, error)
}

// CourseCacheConfig controls catalog response caching. Only the raw catalog
// rows are cached; eligibility annotations are always recomputed per caller.
type CourseCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// CourseService manages the course catalog, lessons, interest links and
// mandatory-course assignments.
type CourseService struct {
	courses     courseRepository
	users       courseUserRepository
	interests   courseInterestRepository
	eligibility courseEligibilityResolver
	cache       courseCache
	cacheCfg    CourseCacheConfig
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// AttachMetrics wires the catalog cache hit/miss counters.
func (s *CourseService) AttachMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// NewCourseService constructs a CourseService.
func NewCourseService(courses courseRepository, users courseUserRepository, interests courseInterestRepository, eligibility courseEligibilityResolver, cache courseCache, cacheCfg CourseCacheConfig, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CourseService{
		courses:     courses,
		users:       users,
		interests:   interests,
		eligibility: eligibility,
		cache:       cache,
		cacheCfg:    cacheCfg,
		validator:   validate,
		logger:      logger,
	}
}

const catalogCachePrefix = "catalog:courses"

// Create registers a new course. Titles are unique across the catalog.
func (s *CourseService) Create(ctx context.Context, req models.CreateCourseRequest, createdBy string) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	if _, err := s.courses.FindByTitle(ctx, req.Title); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course title already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course title")
	}

	for _, interestID := range req.InterestIDs {
		if _, err := s.interests.FindByID(ctx, interestID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown interest %s", interestID))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load interest")
		}
	}

	course := &models.Course{
		Title:            req.Title,
		Description:      req.Description,
		RequiredLevel:    req.RequiredLevel,
		RestrictedDomain: req.RestrictedDomain,
		CreatedBy:        createdBy,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	for _, interestID := range req.InterestIDs {
		if err := s.courses.LinkInterest(ctx, course.ID, interestID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link interest")
		}
	}

	s.invalidateCatalogCache(ctx)
	s.recordCourseActivity(ctx, models.ActivityCourseCreated, createdBy, course.ID)
	return course, nil
}

// Delete removes a course and its dependent rows.
func (s *CourseService) Delete(ctx context.Context, id, deletedBy string) error {
	if _, err := s.courses.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.courses.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.invalidateCatalogCache(ctx)
	s.recordCourseActivity(ctx, models.ActivityCourseDeleted, deletedBy, id)
	return nil
}

// List returns the catalog annotated with the caller's eligibility for each
// course. The raw listing may be cached; decisions never are.
func (s *CourseService) List(ctx context.Context, callerID string, filter models.CourseFilter) ([]models.CourseListing, int, error) {
	caller, err := s.users.FindByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	listings, total, err := s.listCatalog(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	for i := range listings {
		decision, err := s.eligibility.ResolveForCourse(ctx, caller, &listings[i].Course)
		if err != nil {
			return nil, 0, err
		}
		d := decision
		listings[i].Eligibility = &d
	}
	return listings, total, nil
}

// Get returns a course with lessons and interest links, provided the caller
// is eligible for it. Denied callers get the gate's reason code.
func (s *CourseService) Get(ctx context.Context, callerID, courseID string) (*models.CourseDetail, error) {
	decision, err := s.eligibility.Resolve(ctx, callerID, courseID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, DenialError(decision.Reason)
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	lessons, err := s.courses.ListLessons(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	interests, err := s.courses.ListLinkedInterests(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course interests")
	}

	return &models.CourseDetail{Course: *course, Lessons: lessons, Interests: interests}, nil
}

// Eligibility returns the caller's access decision for a course without
// loading the course content. Denials are data here, not errors.
func (s *CourseService) Eligibility(ctx context.Context, callerID, courseID string) (models.EligibilityDecision, error) {
	return s.eligibility.Resolve(ctx, callerID, courseID)
}

// AddLesson appends a lesson to a course. Lesson order must be unique
// within the course, and video and mixed lessons require a video URL.
func (s *CourseService) AddLesson(ctx context.Context, courseID string, req models.CreateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}

	if req.ContentType.RequiresVideo() && (req.VideoURL == nil || *req.VideoURL == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "video and mixed lessons require a video URL")
	}

	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	taken, err := s.courses.LessonOrderExists(ctx, courseID, req.Order)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check lesson order")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("lesson order %d already used in this course", req.Order))
	}

	lesson := &models.Lesson{
		CourseID:    courseID,
		Title:       req.Title,
		Content:     req.Content,
		ContentType: req.ContentType,
		VideoURL:    req.VideoURL,
		Order:       req.Order,
	}
	if err := s.courses.CreateLesson(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}

	s.invalidateCatalogCache(ctx)
	return lesson, nil
}

// LinkInterest attaches an interest to a course, turning on the team gate
// for it.
func (s *CourseService) LinkInterest(ctx context.Context, courseID, interestID string) error {
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if _, err := s.interests.FindByID(ctx, interestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "interest not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load interest")
	}
	if err := s.courses.LinkInterest(ctx, courseID, interestID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link interest")
	}
	s.invalidateCatalogCache(ctx)
	return nil
}

// MarkMandatory flags a course as mandatory for an interest's members.
func (s *CourseService) MarkMandatory(ctx context.Context, courseID, interestID, createdBy string) error {
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if _, err := s.interests.FindByID(ctx, interestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "interest not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load interest")
	}
	m := &models.MandatoryCourse{CourseID: courseID, InterestID: interestID, CreatedBy: createdBy}
	if err := s.courses.CreateMandatory(ctx, m); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark course mandatory")
	}
	return nil
}

// ListOutstanding returns the caller's unfinished mandatory courses. Each
// course still has to pass the eligibility gates, so a membership alone does
// not surface a course the user could not actually open.
func (s *CourseService) ListOutstanding(ctx context.Context, userID string) ([]models.OutstandingCourse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	outstanding, err := s.courses.ListOutstanding(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list outstanding courses")
	}
	pending := make([]models.OutstandingCourse, 0, len(outstanding))
	for _, c := range outstanding {
		if c.TotalLessons > 0 && c.CompletedLessons >= c.TotalLessons {
			continue
		}
		decision, err := s.eligibility.ResolveForCourse(ctx, user, &c.Course)
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			continue
		}
		if c.TotalLessons > 0 {
			c.Percent = float64(c.CompletedLessons) / float64(c.TotalLessons) * 100
		}
		pending = append(pending, c)
	}
	return pending, nil
}

func (s *CourseService) listCatalog(ctx context.Context, filter models.CourseFilter) ([]models.CourseListing, int, error) {
	type cachedCatalog struct {
		Listings []models.CourseListing `json:"listings"`
		Total    int                    `json:"total"`
	}

	cacheKey := fmt.Sprintf("%s:%s:%s:%v:%d:%d:%s:%s", catalogCachePrefix, filter.Search, filter.InterestID, filter.MaxLevel, filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
	if s.cacheCfg.Enabled && s.cache != nil {
		var cached cachedCatalog
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return cached.Listings, cached.Total, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("catalog cache read failed", zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
	}

	listings, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	if s.cacheCfg.Enabled && s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, cachedCatalog{Listings: listings, Total: total}, s.cacheCfg.TTL); err != nil {
			s.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return listings, total, nil
}

func (s *CourseService) invalidateCatalogCache(ctx context.Context) {
	if !s.cacheCfg.Enabled || s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, catalogCachePrefix+":*"); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

func (s *CourseService) recordCourseActivity(ctx context.Context, action, actor, courseID string) {
	if err := s.users.CreateActivity(ctx, &models.UserActivity{
		UserID:     &actor,
		Action:     action,
		Resource:   "courses",
		ResourceID: &courseID,
	}); err != nil {
		s.logger.Warn("failed to record course activity", zap.Error(err))
	}
}
