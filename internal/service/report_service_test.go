package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skilltrack/competency-api/internal/dto"
	"github.com/skilltrack/competency-api/internal/models"
	appErrors "github.com/skilltrack/competency-api/pkg/errors"
	"github.com/skilltrack/competency-api/pkg/jobs"
)

type mockReportJobStore struct {
	jobs map[string]models.ReportJob
}

func (m *mockReportJobStore) Create(ctx context.Context, job *models.ReportJob) error {
	if m.jobs == nil {
		m.jobs = make(map[string]models.ReportJob)
	}
	job.ID = fmt.Sprintf("job-%d", len(m.jobs)+1)
	job.CreatedAt = time.Now().UTC()
	m.jobs[job.ID] = *job
	return nil
}

func (m *mockReportJobStore) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	if j, ok := m.jobs[id]; ok {
		return &j, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockReportJobStore) MarkRunning(ctx context.Context, id string) error {
	j := m.jobs[id]
	j.Status = models.ReportStatusRunning
	m.jobs[id] = j
	return nil
}

func (m *mockReportJobStore) MarkCompleted(ctx context.Context, id, filePath string) error {
	j := m.jobs[id]
	j.Status = models.ReportStatusCompleted
	j.FilePath = &filePath
	m.jobs[id] = j
	return nil
}

func (m *mockReportJobStore) MarkFailed(ctx context.Context, id, message string) error {
	j := m.jobs[id]
	j.Status = models.ReportStatusFailed
	j.ErrorMessage = &message
	m.jobs[id] = j
	return nil
}

func (m *mockReportJobStore) ListByUser(ctx context.Context, userID string, limit int) ([]models.ReportJob, error) {
	var out []models.ReportJob
	for _, j := range m.jobs {
		if j.CreatedBy == userID {
			out = append(out, j)
		}
	}
	return out, nil
}

type mockTrainingWaitlist struct {
	rows []models.TrainingRequestDetail
}

func (m *mockTrainingWaitlist) ListWaiting(ctx context.Context) ([]models.TrainingRequestDetail, error) {
	return m.rows, nil
}

type mockAssignmentWaitlist struct {
	rows []models.ProjectAssignmentRequest
}

func (m *mockAssignmentWaitlist) ListWaiting(ctx context.Context) ([]models.ProjectAssignmentRequest, error) {
	return m.rows, nil
}

type mockAuditTrail struct{}

func (m *mockAuditTrail) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	return nil, 0, nil
}

type mockExportQueue struct {
	jobs []jobs.Job
	err  error
}

func (m *mockExportQueue) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

type mockFileStore struct {
	saved map[string][]byte
}

func (m *mockFileStore) Save(filename string, data []byte) (string, error) {
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.saved[filename] = data
	return "exports/" + filename, nil
}

func (m *mockFileStore) CleanupOlderThan(time.Duration) ([]string, error) {
	return nil, nil
}

type mockURLSigner struct{}

func (m *mockURLSigner) Generate(jobID, relPath string) (string, time.Time, error) {
	return jobID + "|" + relPath, time.Now().UTC().Add(15 * time.Minute), nil
}

func (m *mockURLSigner) Parse(token string) (string, string, time.Time, error) {
	for i := 0; i < len(token); i++ {
		if token[i] == '|' {
			return token[:i], token[i+1:], time.Now().UTC().Add(15 * time.Minute), nil
		}
	}
	return "", "", time.Time{}, fmt.Errorf("malformed token")
}

func waitingTraining(code string, requested time.Time) models.TrainingRequestDetail {
	return models.TrainingRequestDetail{
		TrainingRequest: models.TrainingRequest{
			ID:            code,
			TRCode:        code,
			LearnerUserID: "learner-1",
			RequestedDate: requested,
			Status:        models.TrainingLookingForTrainer,
		},
		LearnerName:    "Ardi Learner",
		CompetencyName: "Go Backend",
		LevelName:      models.LevelBasic,
	}
}

func newReportService(reports *mockReportJobStore, training *mockTrainingWaitlist, assignments *mockAssignmentWaitlist, queue *mockExportQueue, storage *mockFileStore) *ReportService {
	svc := NewReportService(reports, training, assignments, &mockAuditTrail{}, storage, &mockURLSigner{}, validator.New(), zap.NewNop())
	if queue != nil {
		svc.SetQueue(queue)
	}
	return svc
}

func TestReportServiceOverdueSummary(t *testing.T) {
	now := time.Now().UTC()
	training := &mockTrainingWaitlist{rows: []models.TrainingRequestDetail{
		waitingTraining("TR01", now.Add(-48*time.Hour)),
		waitingTraining("TR02", now.Add(-2*time.Hour)),
	}}
	assignments := &mockAssignmentWaitlist{rows: []models.ProjectAssignmentRequest{
		{ID: "par-1", PARCode: "PAR01", LearnerUserID: "learner-2", RequestedDate: now.Add(-72 * time.Hour), Status: models.PARNew},
	}}
	svc := newReportService(&mockReportJobStore{}, training, assignments, nil, &mockFileStore{})

	summary, err := svc.OverdueSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TrainingPending)
	assert.Equal(t, 1, summary.TrainingOverdue)
	assert.Equal(t, 2, summary.TrainingDueIn3d)
	assert.Equal(t, 1, summary.AssignmentPending)
	assert.Equal(t, 1, summary.AssignmentOverdue)
}

func TestReportServiceQueueExport(t *testing.T) {
	reports := &mockReportJobStore{}
	queue := &mockExportQueue{}
	svc := newReportService(reports, &mockTrainingWaitlist{}, &mockAssignmentWaitlist{}, queue, &mockFileStore{})

	job, err := svc.QueueExport(context.Background(), dto.ExportRequest{Type: "training_waitlist", Format: "csv"}, staffClaims("staff-1"))
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, job.Status)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, job.ID, queue.jobs[0].ID)
}

func TestReportServiceQueueExportFullQueue(t *testing.T) {
	reports := &mockReportJobStore{}
	queue := &mockExportQueue{err: fmt.Errorf("queue is full")}
	svc := newReportService(reports, &mockTrainingWaitlist{}, &mockAssignmentWaitlist{}, queue, &mockFileStore{})

	_, err := svc.QueueExport(context.Background(), dto.ExportRequest{Type: "training_waitlist", Format: "csv"}, staffClaims("staff-1"))
	require.Error(t, err)
	require.Len(t, reports.jobs, 1)
	for _, job := range reports.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
	}
}

func TestReportServiceProcessExport(t *testing.T) {
	now := time.Now().UTC()
	reports := &mockReportJobStore{}
	training := &mockTrainingWaitlist{rows: []models.TrainingRequestDetail{
		waitingTraining("TR01", now.Add(-48*time.Hour)),
	}}
	storage := &mockFileStore{}
	queue := &mockExportQueue{}
	svc := newReportService(reports, training, &mockAssignmentWaitlist{}, queue, storage)

	job, err := svc.QueueExport(context.Background(), dto.ExportRequest{Type: "training_waitlist", Format: "csv"}, staffClaims("staff-1"))
	require.NoError(t, err)

	require.NoError(t, svc.ProcessExport(context.Background(), jobs.Job{ID: job.ID, Type: string(job.Type)}))

	stored := reports.jobs[job.ID]
	assert.Equal(t, models.ReportStatusCompleted, stored.Status)
	require.NotNil(t, stored.FilePath)
	require.Len(t, storage.saved, 1)
	for _, payload := range storage.saved {
		assert.Contains(t, string(payload), "TR01")
		assert.Contains(t, string(payload), "Ardi Learner")
	}
}

func TestReportServiceDownload(t *testing.T) {
	path := "exports/report.csv"
	reports := &mockReportJobStore{jobs: map[string]models.ReportJob{
		"job-1": {ID: "job-1", Status: models.ReportStatusCompleted, FilePath: &path, CreatedBy: "staff-1"},
		"job-2": {ID: "job-2", Status: models.ReportStatusRunning, CreatedBy: "staff-1"},
	}}
	svc := newReportService(reports, &mockTrainingWaitlist{}, &mockAssignmentWaitlist{}, nil, &mockFileStore{})

	// owner gets a token that resolves back to the stored path
	download, err := svc.Download(context.Background(), "job-1", staffClaims("staff-1"))
	require.NoError(t, err)
	resolved, err := svc.ResolveDownloadToken(context.Background(), download.Token)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)

	// other users are rejected, admins are not
	_, err = svc.Download(context.Background(), "job-1", staffClaims("staff-2"))
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = svc.Download(context.Background(), "job-1", &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)

	// unfinished jobs have nothing to download
	_, err = svc.Download(context.Background(), "job-2", staffClaims("staff-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}
