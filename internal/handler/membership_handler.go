package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corplearn/lms-api/internal/service"
	appErrors "github.com/corplearn/lms-api/pkg/errors"
	"github.com/corplearn/lms-api/pkg/response"
)

// MembershipHandler exposes interest and membership grant endpoints.
type MembershipHandler struct {
	service *service.MembershipService
}

// NewMembershipHandler creates a new membership handler.
func NewMembershipHandler(svc *service.MembershipService) *MembershipHandler {
	return &MembershipHandler{service: svc}
}

// ListInterests godoc
// @Summary List interests
// @Description List all organizational interests
// @Tags Memberships
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /interests [get]
func (h *MembershipHandler) ListInterests(c *gin.Context) {
	interests, err := h.service.ListInterests(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, interests, nil)
}

// CreateInterest godoc
// @Summary Create interest
// @Description Create a new organizational interest
// @Tags Memberships
// @Accept json
// @Produce json
// @Param payload body object true "Interest payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /interests [post]
func (h *MembershipHandler) CreateInterest(c *gin.Context) {
	var payload struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid interest payload"))
		return
	}

	interest, err := h.service.CreateInterest(c.Request.Context(), payload.Name, payload.Description)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, interest)
}

// Grant godoc
// @Summary Grant membership
// @Description Grant a user membership in an interest; regranting a revoked membership reactivates it
// @Tags Memberships
// @Produce json
// @Param id path string true "User ID"
// @Param interestId path string true "Interest ID"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users/{id}/interests/{interestId} [post]
func (h *MembershipHandler) Grant(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	grant, err := h.service.Grant(c.Request.Context(), c.Param("id"), c.Param("interestId"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, grant)
}

// Revoke godoc
// @Summary Revoke membership
// @Description Revoke a user's membership grant; revoking twice is a no-op
// @Tags Memberships
// @Produce json
// @Param id path string true "User ID"
// @Param interestId path string true "Interest ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id}/interests/{interestId} [delete]
func (h *MembershipHandler) Revoke(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	grant, err := h.service.Revoke(c.Request.Context(), c.Param("id"), c.Param("interestId"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, grant, nil)
}

// ListForUser godoc
// @Summary List user memberships
// @Description List all membership grants for a user, including revoked ones
// @Tags Memberships
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/interests [get]
func (h *MembershipHandler) ListForUser(c *gin.Context) {
	memberships, err := h.service.ListForUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, memberships, nil)
}
