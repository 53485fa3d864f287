package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corplearn/lms-api/internal/models"
	"github.com/corplearn/lms-api/internal/service"
	appErrors "github.com/corplearn/lms-api/pkg/errors"
	"github.com/corplearn/lms-api/pkg/response"
)

// ReportHandler exposes asynchronous report export endpoints.
type ReportHandler struct {
	service *service.ReportService
}

// NewReportHandler creates a new report handler.
func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// Request godoc
// @Summary Request report
// @Description Queue an asynchronous report export job; admins only
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body service.ReportRequest true "Report request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /reports [post]
func (h *ReportHandler) Request(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid report request"))
		return
	}

	job, err := h.service.Request(c.Request.Context(), claims.UserID, req, claims.Role == models.RoleAdmin)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, job, nil)
}

// Get godoc
// @Summary Get report job
// @Description Get a report job's status; owners and admins only
// @Tags Reports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	job, err := h.service.Get(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role == models.RoleAdmin)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, job, nil)
}

// List godoc
// @Summary List report jobs
// @Description List the current user's report jobs
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	jobs, err := h.service.ListForUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, jobs, nil)
}

// Download godoc
// @Summary Download report
// @Description Download a finished report using a signed token
// @Tags Reports
// @Produce application/octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/download/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	file, job, err := h.service.OpenDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read report file"))
		return
	}

	contentType := "text/csv"
	filename := fmt.Sprintf("%s.csv", job.ID)
	if job.Params.Format == models.ReportFormatPDF {
		contentType = "application/pdf"
		filename = fmt.Sprintf("%s.pdf", job.ID)
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
