package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/corplearn/lms-api/internal/models"
	"github.com/corplearn/lms-api/internal/repository"
	appErrors "github.com/corplearn/lms-api/pkg/errors"
	"github.com/corplearn/lms-api/pkg/export"
)

type exportProgressRepository interface {
	CourseReport(ctx context.Context, courseID string) ([]repository.CourseReportRow, error)
	ComplianceReport(ctx context.Context, interestID string) ([]repository.ComplianceReportRow, error)
}

type exportCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type exportInterestRepository interface {
	FindByID(ctx context.Context, id string) (*models.Interest, error)
}

// ExportService turns report parameters into rendered artifacts.
type ExportService struct {
	progress  exportProgressRepository
	courses   exportCourseRepository
	interests exportInterestRepository
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	logger    *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(progress exportProgressRepository, courses exportCourseRepository, interests exportInterestRepository, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		progress:  progress,
		courses:   courses,
		interests: interests,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		logger:    logger,
	}
}

// Build assembles the report content for a job and renders it in the
// requested format. It returns the rendered bytes and a filename.
func (s *ExportService) Build(ctx context.Context, job *models.ReportJob) ([]byte, string, error) {
	var (
		report export.Report
		err    error
	)

	switch job.Type {
	case models.ReportTypeCourseProgress:
		report, err = s.buildCourseProgress(ctx, job.Params.CourseID)
	case models.ReportTypeTeamCompliance:
		report, err = s.buildTeamCompliance(ctx, job.Params.InterestID)
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown report type %s", job.Type))
	}
	if err != nil {
		return nil, "", err
	}

	switch job.Params.Format {
	case models.ReportFormatPDF:
		data, err := s.pdf.Render(report)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render PDF report")
		}
		return data, fmt.Sprintf("%s.pdf", job.ID), nil
	case models.ReportFormatCSV, "":
		data, err := s.csv.Render(report)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render CSV report")
		}
		return data, fmt.Sprintf("%s.csv", job.ID), nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown report format %s", job.Params.Format))
	}
}

func (s *ExportService) buildCourseProgress(ctx context.Context, courseID string) (export.Report, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return export.Report{}, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return export.Report{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	rows, err := s.progress.CourseReport(ctx, courseID)
	if err != nil {
		return export.Report{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build course report")
	}

	report := export.Report{
		Title:    fmt.Sprintf("Course Progress: %s", course.Title),
		Progress: make([]export.ProgressRow, 0, len(rows)),
	}
	for _, row := range rows {
		report.Progress = append(report.Progress, export.ProgressRow{
			Email:            row.Email,
			FullName:         row.FullName,
			CompletedLessons: row.CompletedLessons,
			TotalLessons:     row.TotalLessons,
		})
	}
	return report, nil
}

func (s *ExportService) buildTeamCompliance(ctx context.Context, interestID string) (export.Report, error) {
	interest, err := s.interests.FindByID(ctx, interestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return export.Report{}, appErrors.Clone(appErrors.ErrNotFound, "interest not found")
		}
		return export.Report{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load interest")
	}

	rows, err := s.progress.ComplianceReport(ctx, interestID)
	if err != nil {
		return export.Report{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build compliance report")
	}

	report := export.Report{
		Title:      fmt.Sprintf("Team Compliance: %s", interest.Name),
		Compliance: make([]export.ComplianceRow, 0, len(rows)),
	}
	for _, row := range rows {
		report.Compliance = append(report.Compliance, export.ComplianceRow{
			Email:            row.Email,
			FullName:         row.FullName,
			CourseTitle:      row.CourseTitle,
			CompletedLessons: row.CompletedLessons,
			TotalLessons:     row.TotalLessons,
		})
	}
	return report, nil
}
