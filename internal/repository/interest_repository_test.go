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

func TestFindGrantReturnsRevokedRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterestRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "interest_id", "status", "granted_by", "granted_at", "revoked_by", "revoked_at"}).
		AddRow("g1", "u1", "i1", string(models.GrantStatusRevoked), "admin1", now, "admin2", now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, interest_id, status, granted_by, granted_at, revoked_by, revoked_at FROM user_interests WHERE user_id = $1 AND interest_id = $2 LIMIT 1")).
		WithArgs("u1", "i1").
		WillReturnRows(rows)

	grant, err := repo.FindGrant(context.Background(), "u1", "i1")
	require.NoError(t, err)
	assert.Equal(t, models.GrantStatusRevoked, grant.Status)
	assert.NotNil(t, grant.RevokedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReactivateClearsRevocationFields(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterestRepository(db)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_interests SET status = $2, granted_by = $3, granted_at = $4, revoked_by = NULL, revoked_at = NULL WHERE id = $1")).
		WithArgs("g1", string(models.GrantStatusActive), "admin1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Reactivate(context.Background(), "g1", "admin1", now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokePreservesRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterestRepository(db)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_interests SET status = $2, revoked_by = $3, revoked_at = $4 WHERE id = $1")).
		WithArgs("g1", string(models.GrantStatusRevoked), "admin1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Revoke(context.Background(), "g1", "admin1", now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasActiveGrantForCourse(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterestRepository(db)

	mock.ExpectQuery("SELECT 1 FROM course_interests ci").
		WithArgs("c1", "u1", string(models.GrantStatusActive)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	ok, err := repo.HasActiveGrantForCourse(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasActiveGrantMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterestRepository(db)

	mock.ExpectQuery("SELECT 1 FROM user_interests").
		WithArgs("u1", "i1", string(models.GrantStatusActive)).
		WillReturnError(sql.ErrNoRows)

	ok, err := repo.HasActiveGrant(context.Background(), "u1", "i1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
