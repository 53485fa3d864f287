package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corplearn/lms-api/internal/models"
	appErrors "github.com/corplearn/lms-api/pkg/errors"
)

type fakeUserRepo struct {
	users      map[string]*models.User
	approvals  int
	activities []*models.UserActivity
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range f.users {
		if filter.Approved != nil && u.Approved != *filter.Approved {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (f *fakeUserRepo) Approve(ctx context.Context, id string, ts time.Time) error {
	f.approvals++
	f.users[id].Approved = true
	return nil
}

func (f *fakeUserRepo) CreateActivity(ctx context.Context, entry *models.UserActivity) error {
	f.activities = append(f.activities, entry)
	return nil
}

func TestApproveIsOneWayAndIdempotent(t *testing.T) {
	repo := &fakeUserRepo{users: map[string]*models.User{
		"new": {ID: "new", Email: "new@thbs.com", Approved: false},
	}}
	svc := NewUserService(repo, nil)

	user, err := svc.Approve(context.Background(), "new", "admin")
	require.NoError(t, err)
	assert.True(t, user.Approved)
	assert.Equal(t, 1, repo.approvals)
	require.Len(t, repo.activities, 1)
	assert.Equal(t, models.ActivityUserApproved, repo.activities[0].Action)

	// Second approval changes nothing and writes no new audit entry.
	user, err = svc.Approve(context.Background(), "new", "admin")
	require.NoError(t, err)
	assert.True(t, user.Approved)
	assert.Equal(t, 1, repo.approvals)
	assert.Len(t, repo.activities, 1)
}

func TestApproveUnknownUser(t *testing.T) {
	svc := NewUserService(&fakeUserRepo{users: map[string]*models.User{}}, nil)

	_, err := svc.Approve(context.Background(), "ghost", "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestListPendingUsers(t *testing.T) {
	repo := &fakeUserRepo{users: map[string]*models.User{
		"a": {ID: "a", Approved: true},
		"b": {ID: "b", Approved: false},
	}}
	svc := NewUserService(repo, nil)

	pending := false
	users, total, err := svc.List(context.Background(), models.UserFilter{Approved: &pending})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, "b", users[0].ID)
}
