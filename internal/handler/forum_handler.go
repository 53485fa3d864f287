package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corplearn/lms-api/internal/service"
	appErrors "github.com/corplearn/lms-api/pkg/errors"
	"github.com/corplearn/lms-api/pkg/response"
)

// ForumHandler exposes course discussion endpoints.
type ForumHandler struct {
	service *service.ForumService
}

// NewForumHandler creates a new forum handler.
func NewForumHandler(svc *service.ForumService) *ForumHandler {
	return &ForumHandler{service: svc}
}

// CreateTopic godoc
// @Summary Create topic
// @Description Create a discussion topic on a course the caller can access
// @Tags Forum
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.CreateTopicRequest true "Topic payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /courses/{id}/topics [post]
func (h *ForumHandler) CreateTopic(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid topic payload"))
		return
	}

	topic, err := h.service.CreateTopic(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, topic)
}

// ListTopics godoc
// @Summary List topics
// @Description List discussion topics for a course the caller can access
// @Tags Forum
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /courses/{id}/topics [get]
func (h *ForumHandler) ListTopics(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	topics, err := h.service.ListTopics(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, topics, nil)
}

// GetTopic godoc
// @Summary Get topic
// @Description Get a topic and its replies
// @Tags Forum
// @Produce json
// @Param id path string true "Topic ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /topics/{id} [get]
func (h *ForumHandler) GetTopic(c *gin.Context) {
	topic, replies, err := h.service.GetTopic(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"topic": topic, "replies": replies}, nil)
}

// CreateReply godoc
// @Summary Reply to topic
// @Description Add a reply to an existing topic
// @Tags Forum
// @Accept json
// @Produce json
// @Param id path string true "Topic ID"
// @Param payload body service.CreateReplyRequest true "Reply payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /topics/{id}/replies [post]
func (h *ForumHandler) CreateReply(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reply payload"))
		return
	}

	reply, err := h.service.CreateReply(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, reply)
}
