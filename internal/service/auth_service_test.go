package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/corplearn/lms-api/internal/models"
	appErrors "github.com/corplearn/lms-api/pkg/errors"
)

type fakeAuthRepo struct {
	users      map[string]*models.User
	tokens     map[string]*models.RefreshToken
	activities []*models.UserActivity
}

func newFakeAuthRepo() *fakeAuthRepo {
	return &fakeAuthRepo{users: map[string]*models.User{}, tokens: map[string]*models.RefreshToken{}}
}

func (f *fakeAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAuthRepo) Create(ctx context.Context, user *models.User) error {
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (f *fakeAuthRepo) UpdatePassword(ctx context.Context, id, hash string, ts time.Time) error {
	if u, ok := f.users[id]; ok {
		u.PasswordHash = hash
	}
	return nil
}

func (f *fakeAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	for _, t := range f.tokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (f *fakeAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	cp := *token
	f.tokens[token.Token] = &cp
	return nil
}

func (f *fakeAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := f.tokens[token]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAuthRepo) RevokeRefreshToken(ctx context.Context, id string, ts time.Time) error {
	for _, t := range f.tokens {
		if t.ID == id {
			t.Revoked = true
		}
	}
	return nil
}

func (f *fakeAuthRepo) CreateActivity(ctx context.Context, entry *models.UserActivity) error {
	f.activities = append(f.activities, entry)
	return nil
}

func newAuthFixture(t *testing.T) (*fakeAuthRepo, *AuthService) {
	t.Helper()
	repo := newFakeAuthRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-password"), bcrypt.MinCost)
	require.NoError(t, err)
	repo.users["dev"] = &models.User{
		ID: "dev", Email: "dev@thbs.com", EmailDomain: "thbs.com",
		PasswordHash: string(hash), FullName: "Dev",
		Role: models.RoleLearner, Approved: false, AccessLevel: 1, Active: true,
	}
	svc := NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "lms-api",
	})
	return repo, svc
}

func TestRegisterCreatesUnapprovedLearner(t *testing.T) {
	repo, svc := newAuthFixture(t)

	info, err := svc.Register(context.Background(), models.RegisterRequest{
		Email: "new@bt.com", FullName: "Newcomer", Password: "long-enough-pass",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleLearner, info.Role)
	assert.False(t, info.Approved)
	assert.Equal(t, 1, info.AccessLevel)
	created := repo.users[info.ID]
	require.NotNil(t, created)
	assert.Equal(t, "bt.com", created.EmailDomain)
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	_, svc := newAuthFixture(t)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email: "dev@thbs.com", FullName: "Dup", Password: "long-enough-pass",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestLoginUnapprovedUserSucceeds(t *testing.T) {
	_, svc := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "dev@thbs.com", Password: "secret-password"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.False(t, resp.User.Approved)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "dev", claims.UserID)
	assert.Equal(t, models.RoleLearner, claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	_, svc := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "dev@thbs.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	repo, svc := newAuthFixture(t)
	repo.users["dev"].Active = false

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "dev@thbs.com", Password: "secret-password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestRefreshRotatesToken(t *testing.T) {
	repo, svc := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "dev@thbs.com", Password: "secret-password"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.True(t, repo.tokens[login.RefreshToken].Revoked)

	// The consumed token cannot be replayed.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	repo, svc := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "dev@thbs.com", Password: "secret-password"})
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), "dev", models.ChangePasswordRequest{
		OldPassword: "secret-password", NewPassword: "brand-new-password",
	})
	require.NoError(t, err)
	assert.True(t, repo.tokens[login.RefreshToken].Revoked)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "dev@thbs.com", Password: "brand-new-password"})
	require.NoError(t, err)
}
