package service

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corplearn/lms-api/internal/models"
	appErrors "github.com/corplearn/lms-api/pkg/errors"
	"github.com/corplearn/lms-api/pkg/jobs"
)

type fakeReportRepo struct {
	jobs map[string]*models.ReportJob
}

func (f *fakeReportRepo) Create(ctx context.Context, job *models.ReportJob) error {
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeReportRepo) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	if j, ok := f.jobs[id]; ok {
		cp := *j
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeReportRepo) MarkProcessing(ctx context.Context, id string) error {
	f.jobs[id].Status = models.ReportStatusProcessing
	return nil
}

func (f *fakeReportRepo) MarkFinished(ctx context.Context, id, resultURL string, ts time.Time) error {
	j := f.jobs[id]
	j.Status = models.ReportStatusFinished
	j.ResultURL = &resultURL
	j.FinishedAt = &ts
	return nil
}

func (f *fakeReportRepo) MarkFailed(ctx context.Context, id, message string, ts time.Time) error {
	j := f.jobs[id]
	j.Status = models.ReportStatusFailed
	j.ErrorMessage = &message
	j.FinishedAt = &ts
	return nil
}

func (f *fakeReportRepo) ListByUser(ctx context.Context, userID string) ([]models.ReportJob, error) {
	var out []models.ReportJob
	for _, j := range f.jobs {
		if j.CreatedBy == userID {
			out = append(out, *j)
		}
	}
	return out, nil
}

type fakeReportStorage struct {
	saved map[string][]byte
}

func (f *fakeReportStorage) Save(filename string, data []byte) (string, error) {
	f.saved[filename] = data
	return filename, nil
}

func (f *fakeReportStorage) Open(filename string) (*os.File, error) {
	if _, ok := f.saved[filename]; !ok {
		return nil, os.ErrNotExist
	}
	return os.Open(os.DevNull)
}

type fakeSigner struct{}

func (fakeSigner) Generate(jobID, relPath string) (string, time.Time, error) {
	return jobID + "." + strings.ReplaceAll(relPath, "/", "_"), time.Now().Add(time.Hour), nil
}

func (fakeSigner) Parse(token string, allowExpired bool) (string, string, time.Time, error) {
	parts := strings.SplitN(token, ".", 2)
	return parts[0], strings.ReplaceAll(parts[1], "_", "/"), time.Now().Add(time.Hour), nil
}

type fakeBuilder struct {
	fail bool
}

func (f fakeBuilder) Build(ctx context.Context, job *models.ReportJob) ([]byte, string, error) {
	if f.fail {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return []byte("email,name\n"), job.ID + ".csv", nil
}

type captureQueue struct {
	enqueued []jobs.Job
}

func (c *captureQueue) Enqueue(job jobs.Job) error {
	c.enqueued = append(c.enqueued, job)
	return nil
}

func newReportFixture(buildFails bool) (*fakeReportRepo, *fakeReportStorage, *captureQueue, *ReportService) {
	repo := &fakeReportRepo{jobs: map[string]*models.ReportJob{}}
	storage := &fakeReportStorage{saved: map[string][]byte{}}
	queue := &captureQueue{}
	svc := NewReportService(repo, &fakeActivityRepo{}, fakeBuilder{fail: buildFails}, storage, fakeSigner{}, nil)
	svc.AttachQueue(queue)
	return repo, storage, queue, svc
}

func TestRequestReportEnqueuesJob(t *testing.T) {
	repo, _, queue, svc := newReportFixture(false)

	job, err := svc.Request(context.Background(), "admin", ReportRequest{
		Type: models.ReportTypeCourseProgress, CourseID: "c1",
	}, true)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, job.Status)
	assert.Equal(t, models.ReportFormatCSV, job.Params.Format)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, job.ID, queue.enqueued[0].ID)
	assert.Contains(t, repo.jobs, job.ID)
}

func TestRequestReportValidatesParams(t *testing.T) {
	_, _, _, svc := newReportFixture(false)

	_, err := svc.Request(context.Background(), "admin", ReportRequest{Type: models.ReportTypeCourseProgress}, true)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Request(context.Background(), "admin", ReportRequest{Type: models.ReportTypeTeamCompliance}, true)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRequestReportRequiresAdmin(t *testing.T) {
	repo, _, queue, svc := newReportFixture(false)

	_, err := svc.Request(context.Background(), "dev", ReportRequest{
		Type: models.ReportTypeCourseProgress, CourseID: "c1",
	}, false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.jobs)
	assert.Empty(t, queue.enqueued)
}

func TestProcessFinishesJob(t *testing.T) {
	repo, storage, _, svc := newReportFixture(false)

	job, err := svc.Request(context.Background(), "admin", ReportRequest{
		Type: models.ReportTypeCourseProgress, CourseID: "c1",
	}, true)
	require.NoError(t, err)

	require.NoError(t, svc.Process(context.Background(), jobs.Job{ID: job.ID}))

	stored := repo.jobs[job.ID]
	assert.Equal(t, models.ReportStatusFinished, stored.Status)
	require.NotNil(t, stored.ResultURL)
	assert.Contains(t, *stored.ResultURL, "/api/v1/reports/download/")
	assert.Len(t, storage.saved, 1)
}

func TestProcessBuildFailureIsTerminal(t *testing.T) {
	repo, _, _, svc := newReportFixture(true)

	job, err := svc.Request(context.Background(), "admin", ReportRequest{
		Type: models.ReportTypeCourseProgress, CourseID: "ghost",
	}, true)
	require.NoError(t, err)

	// Build failures finalise the job instead of requeueing it.
	require.NoError(t, svc.Process(context.Background(), jobs.Job{ID: job.ID}))
	stored := repo.jobs[job.ID]
	assert.Equal(t, models.ReportStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
}

func TestGetEnforcesOwnership(t *testing.T) {
	_, _, _, svc := newReportFixture(false)

	job, err := svc.Request(context.Background(), "admin", ReportRequest{
		Type: models.ReportTypeTeamCompliance, InterestID: "platform",
	}, true)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), job.ID, "dev", false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	got, err := svc.Get(context.Background(), job.ID, "dev", true)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
}

func TestDownloadRequiresFinishedJob(t *testing.T) {
	_, _, _, svc := newReportFixture(false)

	job, err := svc.Request(context.Background(), "admin", ReportRequest{
		Type: models.ReportTypeCourseProgress, CourseID: "c1",
	}, true)
	require.NoError(t, err)

	_, _, err = svc.OpenDownload(context.Background(), job.ID+".reports_"+job.ID+".csv")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Process(context.Background(), jobs.Job{ID: job.ID}))
	file, stored, err := svc.OpenDownload(context.Background(), job.ID+".reports_"+job.ID+".csv")
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, models.ReportStatusFinished, stored.Status)
}
