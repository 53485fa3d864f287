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

type fakeMembershipRepo struct {
	interests map[string]*models.Interest
	grants    map[string]*models.UserInterest // key userID|interestID
}

func (f *fakeMembershipRepo) List(ctx context.Context) ([]models.Interest, error) {
	var out []models.Interest
	for _, i := range f.interests {
		out = append(out, *i)
	}
	return out, nil
}

func (f *fakeMembershipRepo) FindByID(ctx context.Context, id string) (*models.Interest, error) {
	if i, ok := f.interests[id]; ok {
		cp := *i
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeMembershipRepo) Create(ctx context.Context, interest *models.Interest) error {
	if interest.ID == "" {
		interest.ID = uuid.NewString()
	}
	cp := *interest
	f.interests[interest.ID] = &cp
	return nil
}

func (f *fakeMembershipRepo) FindGrant(ctx context.Context, userID, interestID string) (*models.UserInterest, error) {
	if g, ok := f.grants[userID+"|"+interestID]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeMembershipRepo) CreateGrant(ctx context.Context, grant *models.UserInterest) error {
	if grant.ID == "" {
		grant.ID = uuid.NewString()
	}
	cp := *grant
	f.grants[grant.UserID+"|"+grant.InterestID] = &cp
	return nil
}

func (f *fakeMembershipRepo) findGrantByID(id string) *models.UserInterest {
	for _, g := range f.grants {
		if g.ID == id {
			return g
		}
	}
	return nil
}

func (f *fakeMembershipRepo) Reactivate(ctx context.Context, id, grantedBy string, grantedAt time.Time) error {
	g := f.findGrantByID(id)
	g.Status = models.GrantStatusActive
	g.GrantedBy = grantedBy
	g.GrantedAt = grantedAt
	g.RevokedBy = nil
	g.RevokedAt = nil
	return nil
}

func (f *fakeMembershipRepo) Revoke(ctx context.Context, id, revokedBy string, revokedAt time.Time) error {
	g := f.findGrantByID(id)
	g.Status = models.GrantStatusRevoked
	g.RevokedBy = &revokedBy
	g.RevokedAt = &revokedAt
	return nil
}

func (f *fakeMembershipRepo) ListByUser(ctx context.Context, userID string) ([]models.MembershipDetail, error) {
	var out []models.MembershipDetail
	for _, g := range f.grants {
		if g.UserID == userID {
			out = append(out, models.MembershipDetail{UserInterest: *g})
		}
	}
	return out, nil
}

type fakeMembershipUsers struct {
	users      map[string]*models.User
	activities []*models.UserActivity
}

func (f *fakeMembershipUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeMembershipUsers) CreateActivity(ctx context.Context, entry *models.UserActivity) error {
	f.activities = append(f.activities, entry)
	return nil
}

func newMembershipFixture() (*fakeMembershipRepo, *fakeMembershipUsers, *MembershipService) {
	repo := &fakeMembershipRepo{
		interests: map[string]*models.Interest{
			"platform": {ID: "platform", Name: "Platform"},
		},
		grants: map[string]*models.UserInterest{},
	}
	users := &fakeMembershipUsers{users: map[string]*models.User{
		"dev":   {ID: "dev", Role: models.RoleLearner, Approved: true},
		"admin": {ID: "admin", Role: models.RoleAdmin},
	}}
	return repo, users, NewMembershipService(repo, users, nil)
}

func TestGrantCreatesActiveRow(t *testing.T) {
	repo, users, svc := newMembershipFixture()

	grant, err := svc.Grant(context.Background(), "dev", "platform", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.GrantStatusActive, grant.Status)
	assert.Equal(t, "admin", grant.GrantedBy)
	assert.Len(t, repo.grants, 1)
	require.Len(t, users.activities, 1)
	assert.Equal(t, models.ActivityGrantCreated, users.activities[0].Action)
}

func TestGrantOverActiveGrantConflicts(t *testing.T) {
	_, _, svc := newMembershipFixture()

	_, err := svc.Grant(context.Background(), "dev", "platform", "admin")
	require.NoError(t, err)

	_, err = svc.Grant(context.Background(), "dev", "platform", "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateGrant.Code, appErrors.FromError(err).Code)
}

func TestGrantAfterRevocationReusesRow(t *testing.T) {
	repo, _, svc := newMembershipFixture()

	first, err := svc.Grant(context.Background(), "dev", "platform", "admin")
	require.NoError(t, err)
	_, err = svc.Revoke(context.Background(), "dev", "platform", "admin")
	require.NoError(t, err)

	second, err := svc.Grant(context.Background(), "dev", "platform", "admin")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.GrantStatusActive, second.Status)
	assert.Nil(t, second.RevokedBy)
	assert.Nil(t, second.RevokedAt)
	assert.Len(t, repo.grants, 1)
}

func TestRevokeIsIdempotent(t *testing.T) {
	_, _, svc := newMembershipFixture()

	_, err := svc.Grant(context.Background(), "dev", "platform", "admin")
	require.NoError(t, err)

	first, err := svc.Revoke(context.Background(), "dev", "platform", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.GrantStatusRevoked, first.Status)

	second, err := svc.Revoke(context.Background(), "dev", "platform", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.GrantStatusRevoked, second.Status)
}

func TestRevokeMissingGrantNotFound(t *testing.T) {
	_, _, svc := newMembershipFixture()

	_, err := svc.Revoke(context.Background(), "dev", "platform", "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGrantUnknownInterestNotFound(t *testing.T) {
	_, _, svc := newMembershipFixture()

	_, err := svc.Grant(context.Background(), "dev", "ghost", "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
