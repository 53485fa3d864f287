package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corplearn/lms-api/internal/models"
)

func TestFindCourseByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	domain := "thbs.com"
	rows := sqlmock.NewRows([]string{"id", "title", "description", "required_level", "restricted_domain", "created_by", "created_at", "updated_at"}).
		AddRow("c1", "Kubernetes Fundamentals", "Intro", 2, domain, "admin1", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, description, required_level, restricted_domain, created_by, created_at, updated_at FROM courses WHERE id = $1 LIMIT 1")).
		WithArgs("c1").
		WillReturnRows(rows)

	course, err := repo.FindByID(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, course.RestrictedDomain)
	assert.Equal(t, "thbs.com", *course.RestrictedDomain)
	assert.Equal(t, 2, course.RequiredLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCourseCascades(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM user_lesson_progress").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM lessons").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM course_interests").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM mandatory_courses").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM forum_replies").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM forum_topics").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM courses").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "c1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonOrderExists(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery("SELECT 1 FROM lessons").
		WithArgs("c1", 3).
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.LessonOrderExists(context.Background(), "c1", 3)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListLessonsOrdered(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "course_id", "title", "content", "content_type", "video_url", "lesson_order", "created_at"}).
		AddRow("l1", "c1", "Pods", "body", string(models.LessonContentText), nil, 1, now).
		AddRow("l2", "c1", "Services", "body", string(models.LessonContentVideo), "https://videos/2", 2, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, course_id, title, content, content_type, video_url, lesson_order, created_at FROM lessons WHERE course_id = $1 ORDER BY lesson_order ASC")).
		WithArgs("c1").
		WillReturnRows(rows)

	lessons, err := repo.ListLessons(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, lessons, 2)
	assert.Equal(t, 1, lessons[0].Order)
	assert.Equal(t, 2, lessons[1].Order)
	assert.NoError(t, mock.ExpectationsWereMet())
}
