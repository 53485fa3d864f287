package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corplearn/lms-api/internal/middleware"
	"github.com/corplearn/lms-api/internal/models"
	"github.com/corplearn/lms-api/internal/service"
	"github.com/corplearn/lms-api/pkg/response"
)

type userRepoMock struct {
	users      map[string]*models.User
	approved   []string
	activities int
}

func (m *userRepoMock) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *userRepoMock) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *userRepoMock) Approve(ctx context.Context, id string, ts time.Time) error {
	m.approved = append(m.approved, id)
	if user, ok := m.users[id]; ok {
		user.Approved = true
		user.UpdatedAt = ts
	}
	return nil
}

func (m *userRepoMock) CreateActivity(ctx context.Context, entry *models.UserActivity) error {
	m.activities++
	return nil
}

func newUserHandlerFixture(repo *userRepoMock) *UserHandler {
	return NewUserHandler(service.NewUserService(repo, nil))
}

func TestUserHandlerApprove(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &userRepoMock{users: map[string]*models.User{
		"user-1": {ID: "user-1", Email: "dev@thbs.com", Approved: false},
	}}
	handler := newUserHandlerFixture(repo)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/users/user-1/approve", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "user-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"user-1"}, repo.approved)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	user := envelope.Data.(map[string]interface{})
	assert.Equal(t, true, user["approved"])
}

func TestUserHandlerGetMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newUserHandlerFixture(&userRepoMock{users: map[string]*models.User{}})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/users/missing", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
