package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corplearn/lms-api/internal/models"
	appErrors "github.com/corplearn/lms-api/pkg/errors"
	"github.com/corplearn/lms-api/pkg/jobs"
)

type reportRepository interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkFinished(ctx context.Context, id, resultURL string, finishedAt time.Time) error
	MarkFailed(ctx context.Context, id, message string, finishedAt time.Time) error
	ListByUser(ctx context.Context, userID string) ([]models.ReportJob, error)
}

type reportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type reportSigner interface {
	Generate(jobID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error)
}

type reportBuilder interface {
	Build(ctx context.Context, job *models.ReportJob) ([]byte, string, error)
}

type reportQueue interface {
	Enqueue(job jobs.Job) error
}

// ReportRequest is the payload for requesting an asynchronous report.
type ReportRequest struct {
	Type       models.ReportType   `json:"type" validate:"required,oneof=course_progress team_compliance"`
	Format     models.ReportFormat `json:"format" validate:"omitempty,oneof=csv pdf"`
	CourseID   string              `json:"course_id,omitempty"`
	InterestID string              `json:"interest_id,omitempty"`
}

// ReportService runs the report job lifecycle: request, background build,
// and signed-URL download.
type ReportService struct {
	reports  reportRepository
	activity progressActivityRepository
	builder  reportBuilder
	storage  reportStorage
	signer   reportSigner
	queue    reportQueue
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewReportService constructs a ReportService. The queue is attached after
// construction because the queue handler closes over the service.
func NewReportService(reports reportRepository, activity progressActivityRepository, builder reportBuilder, storage reportStorage, signer reportSigner, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		reports:  reports,
		activity: activity,
		builder:  builder,
		storage:  storage,
		signer:   signer,
		logger:   logger,
	}
}

// AttachQueue wires the background queue used to dispatch jobs.
func (s *ReportService) AttachQueue(queue reportQueue) {
	s.queue = queue
}

// AttachMetrics wires the terminal job status counter.
func (s *ReportService) AttachMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// Request validates and enqueues a report job. Reports cover all users'
// progress, so only admins may request them.
func (s *ReportService) Request(ctx context.Context, userID string, req ReportRequest, callerIsAdmin bool) (*models.ReportJob, error) {
	if !callerIsAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can request reports")
	}
	switch req.Type {
	case models.ReportTypeCourseProgress:
		if req.CourseID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course_id is required for course progress reports")
		}
	case models.ReportTypeTeamCompliance:
		if req.InterestID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "interest_id is required for team compliance reports")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown report type %s", req.Type))
	}

	format := req.Format
	if format == "" {
		format = models.ReportFormatCSV
	}
	if format != models.ReportFormatCSV && format != models.ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown report format %s", format))
	}

	job := &models.ReportJob{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Params:    models.ReportJobParams{CourseID: req.CourseID, InterestID: req.InterestID, Format: format},
		Status:    models.ReportStatusQueued,
		CreatedBy: userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.reports.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}

	if s.queue != nil {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type), Payload: job.ID}); err != nil {
			now := time.Now().UTC()
			if markErr := s.reports.MarkFailed(ctx, job.ID, "queue full", now); markErr != nil {
				s.logger.Error("failed to mark report job failed", zap.Error(markErr))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
		}
	}

	if err := s.activity.CreateActivity(ctx, &models.UserActivity{
		UserID:     &userID,
		Action:     models.ActivityReportRequested,
		Resource:   "reports",
		ResourceID: &job.ID,
	}); err != nil {
		s.logger.Warn("failed to record report activity", zap.Error(err))
	}

	return job, nil
}

// Process builds, stores and finalises one queued job. It is the queue
// handler and returns an error only for retryable failures.
func (s *ReportService) Process(ctx context.Context, job jobs.Job) error {
	record, err := s.reports.FindByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", job.ID, err)
	}
	if record.Status == models.ReportStatusFinished {
		return nil
	}

	if err := s.reports.MarkProcessing(ctx, record.ID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	data, filename, err := s.builder.Build(ctx, record)
	if err != nil {
		now := time.Now().UTC()
		if markErr := s.reports.MarkFailed(ctx, record.ID, err.Error(), now); markErr != nil {
			s.logger.Error("failed to mark report job failed", zap.Error(markErr))
		}
		s.logger.Error("report build failed", zap.String("job_id", record.ID), zap.Error(err))
		s.metrics.RecordReportJob(models.ReportStatusFailed)
		// Build failures are terminal, not retryable.
		return nil
	}

	relPath := path.Join("reports", filename)
	if _, err := s.storage.Save(relPath, data); err != nil {
		return fmt.Errorf("store report artifact: %w", err)
	}

	token, _, err := s.signer.Generate(record.ID, relPath)
	if err != nil {
		return fmt.Errorf("sign report url: %w", err)
	}
	resultURL := "/api/v1/reports/download/" + token

	if err := s.reports.MarkFinished(ctx, record.ID, resultURL, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark finished: %w", err)
	}

	s.metrics.RecordReportJob(models.ReportStatusFinished)
	s.logger.Info("report job finished", zap.String("job_id", record.ID), zap.String("type", string(record.Type)))
	return nil
}

// Get returns a report job. Non-admin callers only see their own jobs.
func (s *ReportService) Get(ctx context.Context, jobID, callerID string, callerIsAdmin bool) (*models.ReportJob, error) {
	job, err := s.reports.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if !callerIsAdmin && job.CreatedBy != callerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report belongs to another user")
	}
	return job, nil
}

// ListForUser returns the caller's report jobs.
func (s *ReportService) ListForUser(ctx context.Context, userID string) ([]models.ReportJob, error) {
	list, err := s.reports.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list report jobs")
	}
	return list, nil
}

// OpenDownload verifies a signed token and opens the referenced artifact.
func (s *ReportService) OpenDownload(ctx context.Context, token string) (*os.File, *models.ReportJob, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download token")
	}

	job, err := s.reports.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "report is not ready")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "report artifact missing")
	}
	return file, job, nil
}
