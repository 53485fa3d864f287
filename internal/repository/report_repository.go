package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/corplearn/lms-api/internal/models"
)

// ReportRepository persists asynchronous report job metadata.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = `id, type, params, status, result_url, created_by, created_at, finished_at, error_message`

// Create inserts a queued job.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	const query = `INSERT INTO report_jobs (id, type, params, status, created_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, job.ID, job.Type, job.Params, job.Status, job.CreatedBy, job.CreatedAt); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindByID returns a job by identifier.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM report_jobs WHERE id = $1`, reportColumns)
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find report job: %w", err)
	}
	return &job, nil
}

// MarkProcessing transitions a queued job to PROCESSING.
func (r *ReportRepository) MarkProcessing(ctx context.Context, id string) error {
	const query = `UPDATE report_jobs SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusProcessing); err != nil {
		return fmt.Errorf("mark report processing: %w", err)
	}
	return nil
}

// MarkFinished records a successful run with the artifact URL.
func (r *ReportRepository) MarkFinished(ctx context.Context, id, resultURL string, finishedAt time.Time) error {
	const query = `UPDATE report_jobs SET status = $2, result_url = $3, finished_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusFinished, resultURL, finishedAt.UTC()); err != nil {
		return fmt.Errorf("mark report finished: %w", err)
	}
	return nil
}

// MarkFailed records a terminal failure with the error message.
func (r *ReportRepository) MarkFailed(ctx context.Context, id, message string, finishedAt time.Time) error {
	const query = `UPDATE report_jobs SET status = $2, error_message = $3, finished_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusFailed, message, finishedAt.UTC()); err != nil {
		return fmt.Errorf("mark report failed: %w", err)
	}
	return nil
}

// ListByUser returns a user's jobs, newest first.
func (r *ReportRepository) ListByUser(ctx context.Context, userID string) ([]models.ReportJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM report_jobs WHERE created_by = $1 ORDER BY created_at DESC`, reportColumns)
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, userID); err != nil {
		return nil, fmt.Errorf("list report jobs: %w", err)
	}
	return jobs, nil
}
