package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corplearn/lms-api/internal/models"
	appErrors "github.com/corplearn/lms-api/pkg/errors"
)

type fakeCourseRepo struct {
	courses     map[string]*models.Course
	lessons     map[string]*models.Lesson
	links       map[string][]string // courseID -> interestIDs
	mandatory   []*models.MandatoryCourse
	outstanding []models.OutstandingCourse
	deleted     []string
}

func newFakeCourseRepo() *fakeCourseRepo {
	return &fakeCourseRepo{
		courses: map[string]*models.Course{},
		lessons: map[string]*models.Lesson{},
		links:   map[string][]string{},
	}
}

func (f *fakeCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := f.courses[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourseRepo) FindByTitle(ctx context.Context, title string) (*models.Course, error) {
	for _, c := range f.courses {
		if c.Title == title {
			cp := *c
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseListing, int, error) {
	var out []models.CourseListing
	for _, c := range f.courses {
		out = append(out, models.CourseListing{Course: *c})
	}
	return out, len(out), nil
}

func (f *fakeCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	cp := *course
	f.courses[course.ID] = &cp
	return nil
}

func (f *fakeCourseRepo) Delete(ctx context.Context, id string) error {
	delete(f.courses, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCourseRepo) CreateLesson(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	cp := *lesson
	f.lessons[lesson.ID] = &cp
	return nil
}

func (f *fakeCourseRepo) FindLessonByID(ctx context.Context, id string) (*models.Lesson, error) {
	if l, ok := f.lessons[id]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourseRepo) ListLessons(ctx context.Context, courseID string) ([]models.Lesson, error) {
	var out []models.Lesson
	for _, l := range f.lessons {
		if l.CourseID == courseID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeCourseRepo) LessonOrderExists(ctx context.Context, courseID string, order int) (bool, error) {
	for _, l := range f.lessons {
		if l.CourseID == courseID && l.Order == order {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCourseRepo) LinkInterest(ctx context.Context, courseID, interestID string) error {
	f.links[courseID] = append(f.links[courseID], interestID)
	return nil
}

func (f *fakeCourseRepo) ListLinkedInterests(ctx context.Context, courseID string) ([]models.Interest, error) {
	var out []models.Interest
	for _, id := range f.links[courseID] {
		out = append(out, models.Interest{ID: id})
	}
	return out, nil
}

func (f *fakeCourseRepo) CreateMandatory(ctx context.Context, m *models.MandatoryCourse) error {
	f.mandatory = append(f.mandatory, m)
	return nil
}

func (f *fakeCourseRepo) ListOutstanding(ctx context.Context, userID string) ([]models.OutstandingCourse, error) {
	return f.outstanding, nil
}

type fakeCourseUsers struct {
	users      map[string]*models.User
	activities []*models.UserActivity
}

func (f *fakeCourseUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourseUsers) CreateActivity(ctx context.Context, entry *models.UserActivity) error {
	f.activities = append(f.activities, entry)
	return nil
}

type fakeInterestLookup struct {
	interests map[string]*models.Interest
}

func (f *fakeInterestLookup) FindByID(ctx context.Context, id string) (*models.Interest, error) {
	if i, ok := f.interests[id]; ok {
		cp := *i
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type noopCache struct{}

func (noopCache) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}
func (noopCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}
func (noopCache) DeleteByPattern(ctx context.Context, pattern string) error { return nil }

func newCourseFixture(decision models.EligibilityDecision) (*fakeCourseRepo, *CourseService) {
	repo := newFakeCourseRepo()
	users := &fakeCourseUsers{users: map[string]*models.User{
		"admin": {ID: "admin", Role: models.RoleAdmin},
		"dev":   {ID: "dev", Role: models.RoleLearner, Approved: true, AccessLevel: 2, EmailDomain: "thbs.com"},
	}}
	interests := &fakeInterestLookup{interests: map[string]*models.Interest{
		"platform": {ID: "platform", Name: "Platform"},
	}}
	svc := NewCourseService(repo, users, interests, fixedResolver{decision}, noopCache{}, CourseCacheConfig{}, nil, nil)
	return repo, svc
}

func TestCreateCourseRejectsDuplicateTitle(t *testing.T) {
	_, svc := newCourseFixture(models.Allow())

	req := models.CreateCourseRequest{Title: "Go Basics", RequiredLevel: 1}
	_, err := svc.Create(context.Background(), req, "admin")
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), req, "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateCourseLinksInterests(t *testing.T) {
	repo, svc := newCourseFixture(models.Allow())

	req := models.CreateCourseRequest{Title: "Platform Onboarding", RequiredLevel: 1, InterestIDs: []string{"platform"}}
	course, err := svc.Create(context.Background(), req, "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"platform"}, repo.links[course.ID])
}

func TestCreateCourseUnknownInterestFails(t *testing.T) {
	_, svc := newCourseFixture(models.Allow())

	req := models.CreateCourseRequest{Title: "Ghost", RequiredLevel: 1, InterestIDs: []string{"nope"}}
	_, err := svc.Create(context.Background(), req, "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAddLessonRejectsDuplicateOrder(t *testing.T) {
	_, svc := newCourseFixture(models.Allow())

	course, err := svc.Create(context.Background(), models.CreateCourseRequest{Title: "Go Basics", RequiredLevel: 1}, "admin")
	require.NoError(t, err)

	req := models.CreateLessonRequest{Title: "Intro", ContentType: models.LessonContentText, Order: 1}
	_, err = svc.AddLesson(context.Background(), course.ID, req)
	require.NoError(t, err)

	req.Title = "Intro Again"
	_, err = svc.AddLesson(context.Background(), course.ID, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAddLessonVideoRequiresURL(t *testing.T) {
	_, svc := newCourseFixture(models.Allow())

	course, err := svc.Create(context.Background(), models.CreateCourseRequest{Title: "Go Basics", RequiredLevel: 1}, "admin")
	require.NoError(t, err)

	req := models.CreateLessonRequest{Title: "Watch Me", ContentType: models.LessonContentVideo, Order: 1}
	_, err = svc.AddLesson(context.Background(), course.ID, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestListAnnotatesEligibility(t *testing.T) {
	_, svc := newCourseFixture(models.Deny(models.DenialInsufficientLevel))

	_, err := svc.Create(context.Background(), models.CreateCourseRequest{Title: "Advanced", RequiredLevel: 5}, "admin")
	require.NoError(t, err)

	listings, total, err := svc.List(context.Background(), "dev", models.CourseFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, listings, 1)
	require.NotNil(t, listings[0].Eligibility)
	assert.False(t, listings[0].Eligibility.Allowed)
	assert.Equal(t, models.DenialInsufficientLevel, listings[0].Eligibility.Reason)
}

func TestGetDeniedCourseReturnsReason(t *testing.T) {
	_, svc := newCourseFixture(models.Deny(models.DenialDomainRestricted))

	_, err := svc.Create(context.Background(), models.CreateCourseRequest{Title: "Internal", RequiredLevel: 1}, "admin")
	require.NoError(t, err)

	courses, _, lerr := svc.List(context.Background(), "admin", models.CourseFilter{})
	require.NoError(t, lerr)
	_, err = svc.Get(context.Background(), "dev", courses[0].ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDomainRestricted.Code, appErrors.FromError(err).Code)
}

func TestListOutstandingFiltersCompleted(t *testing.T) {
	repo, svc := newCourseFixture(models.Allow())
	repo.outstanding = []models.OutstandingCourse{
		{Course: models.Course{ID: "c1", Title: "Done"}, TotalLessons: 2, CompletedLessons: 2},
		{Course: models.Course{ID: "c2", Title: "Half"}, TotalLessons: 4, CompletedLessons: 2},
		{Course: models.Course{ID: "c3", Title: "Empty"}, TotalLessons: 0, CompletedLessons: 0},
	}

	pending, err := svc.ListOutstanding(context.Background(), "dev")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "Half", pending[0].Title)
	assert.InDelta(t, 50.0, pending[0].Percent, 0.001)
	assert.Equal(t, "Empty", pending[1].Title)
}

func TestListOutstandingHidesIneligibleCourses(t *testing.T) {
	repo, svc := newCourseFixture(models.Deny(models.DenialInsufficientLevel))
	repo.outstanding = []models.OutstandingCourse{
		{Course: models.Course{ID: "c1", Title: "Advanced"}, TotalLessons: 4, CompletedLessons: 1},
	}

	// A mandatory-course membership alone does not surface a course the
	// user fails the eligibility gates for.
	pending, err := svc.ListOutstanding(context.Background(), "dev")
	require.NoError(t, err)
	assert.Empty(t, pending)
}
