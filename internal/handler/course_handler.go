package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/corplearn/lms-api/internal/models"
	"github.com/corplearn/lms-api/internal/service"
	appErrors "github.com/corplearn/lms-api/pkg/errors"
	"github.com/corplearn/lms-api/pkg/response"
)

// CourseHandler exposes the course catalog endpoints.
type CourseHandler struct {
	service *service.CourseService
}

// NewCourseHandler creates a new course handler.
func NewCourseHandler(svc *service.CourseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// List godoc
// @Summary List courses
// @Description List the catalog; each course carries the caller's eligibility decision
// @Tags Courses
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param search query string false "Search term"
// @Param interest_id query string false "Interest filter"
// @Param max_level query int false "Maximum required level"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.CourseFilter
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}
	if maxLevel := c.Query("max_level"); maxLevel != "" {
		if val, err := strconv.Atoi(maxLevel); err == nil {
			filter.MaxLevel = &val
		}
	}

	filter.Search = c.Query("search")
	filter.InterestID = c.Query("interest_id")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	courses, total, err := h.service.List(c.Request.Context(), claims.UserID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// Get godoc
// @Summary Get course
// @Description Get course detail with lessons; denied callers receive the denial reason
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	detail, err := h.service.Get(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// Eligibility godoc
// @Summary Check course eligibility
// @Description Return the caller's access decision for a course; denials are reported as data, not errors
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/eligibility [get]
func (h *CourseHandler) Eligibility(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	decision, err := h.service.Eligibility(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, decision, nil)
}

// Create godoc
// @Summary Create course
// @Description Create a course, optionally linked to interests
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body models.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}

	course, err := h.service.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, course)
}

// Delete godoc
// @Summary Delete course
// @Description Delete a course and its lessons, links and progress records
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// AddLesson godoc
// @Summary Add lesson
// @Description Append a lesson to a course; order must be unique within the course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body models.CreateLessonRequest true "Lesson payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/lessons [post]
func (h *CourseHandler) AddLesson(c *gin.Context) {
	var req models.CreateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid lesson payload"))
		return
	}

	lesson, err := h.service.AddLesson(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, lesson)
}

// LinkInterest godoc
// @Summary Link interest
// @Description Restrict a course to members of an interest
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Param interestId path string true "Interest ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/interests/{interestId} [post]
func (h *CourseHandler) LinkInterest(c *gin.Context) {
	if err := h.service.LinkInterest(c.Request.Context(), c.Param("id"), c.Param("interestId")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// MarkMandatory godoc
// @Summary Mark course mandatory
// @Description Mark a course mandatory for members of an interest
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Param interestId path string true "Interest ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/mandatory/{interestId} [post]
func (h *CourseHandler) MarkMandatory(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.MarkMandatory(c.Request.Context(), c.Param("id"), c.Param("interestId"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// ListOutstanding godoc
// @Summary List outstanding mandatory courses
// @Description List mandatory courses the current user has not completed
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses/outstanding [get]
func (h *CourseHandler) ListOutstanding(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	courses, err := h.service.ListOutstanding(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, courses, nil)
}
