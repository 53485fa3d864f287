package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corplearn/lms-api/internal/service"
	appErrors "github.com/corplearn/lms-api/pkg/errors"
	"github.com/corplearn/lms-api/pkg/response"
)

// ProgressHandler exposes lesson progress endpoints.
type ProgressHandler struct {
	service *service.ProgressService
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(svc *service.ProgressService) *ProgressHandler {
	return &ProgressHandler{service: svc}
}

// Start godoc
// @Summary Start lesson
// @Description Mark a lesson as started for the current user
// @Tags Progress
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id}/start [post]
func (h *ProgressHandler) Start(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	progress, err := h.service.StartLesson(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, progress, nil)
}

// Complete godoc
// @Summary Complete lesson
// @Description Mark a lesson as completed; completing twice keeps the first completion
// @Tags Progress
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id}/complete [post]
func (h *ProgressHandler) Complete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	progress, err := h.service.CompleteLesson(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, progress, nil)
}

// GetLesson godoc
// @Summary Get lesson progress
// @Description Get the current user's progress on a lesson
// @Tags Progress
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id}/progress [get]
func (h *ProgressHandler) GetLesson(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	progress, err := h.service.GetLessonProgress(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, progress, nil)
}

// CourseSummary godoc
// @Summary Course progress summary
// @Description Per-lesson states and completion percentage for a course
// @Tags Progress
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/progress [get]
func (h *ProgressHandler) CourseSummary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	summary, err := h.service.CourseProgress(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, summary, nil)
}
