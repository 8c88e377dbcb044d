package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/skilltrack/competency-api/internal/dto"
	"github.com/skilltrack/competency-api/internal/models"
	appErrors "github.com/skilltrack/competency-api/pkg/errors"
	"github.com/skilltrack/competency-api/pkg/export"
	"github.com/skilltrack/competency-api/pkg/jobs"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	MarkRunning(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, filePath string) error
	MarkFailed(ctx context.Context, id, message string) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.ReportJob, error)
}

type trainingWaitlist interface {
	ListWaiting(ctx context.Context) ([]models.TrainingRequestDetail, error)
}

type assignmentWaitlist interface {
	ListWaiting(ctx context.Context) ([]models.ProjectAssignmentRequest, error)
}

type auditTrail interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

type exportEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type fileStore interface {
	Save(filename string, data []byte) (string, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type urlSigner interface {
	Generate(jobID, relPath string) (string, time.Time, error)
	Parse(token string) (jobID, relPath string, expiresAt time.Time, err error)
}

type exportMetricsRecorder interface {
	RecordExportJob(state string, duration time.Duration)
}

// ReportService serves the read-only waitlist aggregations and drives the
// asynchronous export pipeline.
type ReportService struct {
	reports     reportJobStore
	training    trainingWaitlist
	assignments assignmentWaitlist
	audit       auditTrail
	queue       exportEnqueuer
	storage     fileStore
	signer      urlSigner
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	metrics     exportMetricsRecorder
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewReportService constructs the service.
func NewReportService(reports reportJobStore, training trainingWaitlist, assignments assignmentWaitlist, audit auditTrail, storage fileStore, signer urlSigner, validate *validator.Validate, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ReportService{
		reports:     reports,
		training:    training,
		assignments: assignments,
		audit:       audit,
		storage:     storage,
		signer:      signer,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		validator:   validate,
		logger:      logger,
		now:         timeNow,
	}
}

// SetQueue attaches the export queue. The queue handler needs the service,
// so wiring happens after construction.
func (s *ReportService) SetQueue(queue exportEnqueuer) {
	s.queue = queue
}

// SetMetrics attaches an optional export job recorder.
func (s *ReportService) SetMetrics(metrics exportMetricsRecorder) {
	s.metrics = metrics
}

func (s *ReportService) recordJob(state string, started time.Time) {
	if s.metrics != nil {
		s.metrics.RecordExportJob(state, time.Since(started))
	}
}

// StartCleanup boots a goroutine that purges expired export files periodically.
func (s *ReportService) StartCleanup(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.storage.CleanupOlderThan(ttl)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(deleted) > 0 {
					s.logger.Info("expired export files removed", zap.Int("count", len(deleted)))
				}
			}
		}
	}()
}

// TrainingWaitlist returns unanswered training requests with their due
// classification, oldest first.
func (s *ReportService) TrainingWaitlist(ctx context.Context) ([]models.TrainingRequestRow, error) {
	waiting, err := s.training.ListWaiting(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load training waitlist")
	}
	now := s.now()
	rows := make([]models.TrainingRequestRow, 0, len(waiting))
	for _, detail := range waiting {
		rows = append(rows, models.TrainingRequestRow{
			TrainingRequestDetail: detail,
			StatusLabel:           detail.Status.Label(),
			Due:                   detail.DueStateAt(now),
			NoFollowUpDate:        detail.NoFollowUpDate(),
		})
	}
	return rows, nil
}

// AssignmentWaitlist returns unanswered assignment requests with their due
// classification.
func (s *ReportService) AssignmentWaitlist(ctx context.Context) ([]models.PARRow, error) {
	waiting, err := s.assignments.ListWaiting(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment waitlist")
	}
	now := s.now()
	rows := make([]models.PARRow, 0, len(waiting))
	for _, par := range waiting {
		rows = append(rows, models.PARRow{
			ProjectAssignmentRequest: par,
			StatusLabel:              par.Status.Label(),
			Due:                      par.DueStateAt(now),
			NoFollowUpDate:           par.NoFollowUpDate(),
		})
	}
	return rows, nil
}

// OverdueSummary aggregates both waitlists by due classification.
func (s *ReportService) OverdueSummary(ctx context.Context) (*models.OverdueSummary, error) {
	trainingRows, err := s.TrainingWaitlist(ctx)
	if err != nil {
		return nil, err
	}
	assignmentRows, err := s.AssignmentWaitlist(ctx)
	if err != nil {
		return nil, err
	}

	summary := &models.OverdueSummary{GeneratedAt: s.now()}
	summary.TrainingPending = len(trainingRows)
	for _, row := range trainingRows {
		if row.Due.Overdue {
			summary.TrainingOverdue++
		}
		if row.Due.DueIn3Days {
			summary.TrainingDueIn3d++
		}
	}
	summary.AssignmentPending = len(assignmentRows)
	for _, row := range assignmentRows {
		if row.Due.Overdue {
			summary.AssignmentOverdue++
		}
	}
	return summary, nil
}

// ActivityLog lists audit rows matching the filter.
func (s *ReportService) ActivityLog(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, *models.Pagination, error) {
	logs, total, err := s.audit.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activity log")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return logs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// QueueExport persists a queued job and hands it to the worker pool.
func (s *ReportService) QueueExport(ctx context.Context, req dto.ExportRequest, actor *models.JWTClaims) (*models.ReportJob, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "report exports are disabled")
	}

	job := &models.ReportJob{
		Type:      models.ReportType(req.Type),
		Format:    models.ReportFormat(req.Format),
		Status:    models.ReportStatusQueued,
		CreatedBy: actor.UserID,
	}
	if err := s.reports.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		if markErr := s.reports.MarkFailed(ctx, job.ID, "queue is full"); markErr != nil {
			s.logger.Warn("failed to mark export job failed", zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return job, nil
}

// ProcessExport is the queue handler: it renders the dataset and stores the
// file, stamping the job's lifecycle along the way.
func (s *ReportService) ProcessExport(ctx context.Context, queued jobs.Job) error {
	job, err := s.reports.FindByID(ctx, queued.ID)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", queued.ID, err)
	}
	started := time.Now()
	if err := s.reports.MarkRunning(ctx, job.ID); err != nil {
		s.logger.Warn("failed to mark export job running", zap.Error(err))
	}

	data, title, err := s.dataset(ctx, job.Type)
	if err != nil {
		if markErr := s.reports.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			s.logger.Warn("failed to mark export job failed", zap.Error(markErr))
		}
		s.recordJob("failed", started)
		return err
	}

	var payload []byte
	var filename string
	switch job.Format {
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(data, title)
		filename = fmt.Sprintf("%s-%s.pdf", job.Type, job.ID)
	default:
		payload, err = s.csv.Render(data)
		filename = fmt.Sprintf("%s-%s.csv", job.Type, job.ID)
	}
	if err != nil {
		if markErr := s.reports.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			s.logger.Warn("failed to mark export job failed", zap.Error(markErr))
		}
		s.recordJob("failed", started)
		return err
	}

	path, err := s.storage.Save(filename, payload)
	if err != nil {
		if markErr := s.reports.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			s.logger.Warn("failed to mark export job failed", zap.Error(markErr))
		}
		s.recordJob("failed", started)
		return err
	}
	if err := s.reports.MarkCompleted(ctx, job.ID, path); err != nil {
		return fmt.Errorf("mark export job completed: %w", err)
	}
	s.recordJob("completed", started)
	s.logger.Info("export job completed", zap.String("job_id", job.ID), zap.String("file", path))
	return nil
}

// Download resolves a finished job into a signed download token.
func (s *ReportService) Download(ctx context.Context, jobID string, actor *models.JWTClaims) (*dto.ExportDownloadResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	job, err := s.reports.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if actor.Role != models.RoleAdmin && job.CreatedBy != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if job.Status != models.ReportStatusCompleted || job.FilePath == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "export job has not completed")
	}

	token, expiresAt, err := s.signer.Generate(job.ID, *job.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return &dto.ExportDownloadResponse{Token: token, ExpiresAt: expiresAt}, nil
}

// ResolveDownloadToken verifies a signed token and returns the stored file
// path for streaming.
func (s *ReportService) ResolveDownloadToken(ctx context.Context, token string) (string, error) {
	jobID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	job, err := s.reports.FindByID(ctx, jobID)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	if job.FilePath == nil || *job.FilePath != relPath {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "download token does not match the job")
	}
	return relPath, nil
}

// ListJobs returns the caller's export jobs.
func (s *ReportService) ListJobs(ctx context.Context, actor *models.JWTClaims, limit int) ([]models.ReportJob, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	jobsList, err := s.reports.ListByUser(ctx, actor.UserID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list export jobs")
	}
	return jobsList, nil
}

func (s *ReportService) dataset(ctx context.Context, reportType models.ReportType) (export.Dataset, string, error) {
	switch reportType {
	case models.ReportTypeTrainingWaitlist:
		rows, err := s.TrainingWaitlist(ctx)
		if err != nil {
			return export.Dataset{}, "", err
		}
		data := export.Dataset{Headers: []string{"Code", "Learner", "Competency", "Level", "Status", "Requested", "Due", "Overdue"}}
		for _, row := range rows {
			data.Rows = append(data.Rows, map[string]string{
				"Code":       row.TRCode,
				"Learner":    row.LearnerName,
				"Competency": row.CompetencyName,
				"Level":      string(row.LevelName),
				"Status":     row.StatusLabel,
				"Requested":  row.RequestedDate.Format("2006-01-02"),
				"Due":        row.DueDate().Format("2006-01-02 15:04"),
				"Overdue":    strconv.FormatBool(row.Due.Overdue),
			})
		}
		return data, "Training Waitlist", nil
	case models.ReportTypeAssignmentWaitlist:
		rows, err := s.AssignmentWaitlist(ctx)
		if err != nil {
			return export.Dataset{}, "", err
		}
		data := export.Dataset{Headers: []string{"Code", "Learner", "Status", "Requested", "Due", "Overdue"}}
		for _, row := range rows {
			data.Rows = append(data.Rows, map[string]string{
				"Code":      row.PARCode,
				"Learner":   row.LearnerUserID,
				"Status":    row.StatusLabel,
				"Requested": row.RequestedDate.Format("2006-01-02"),
				"Due":       row.DueDate().Format("2006-01-02 15:04"),
				"Overdue":   strconv.FormatBool(row.Due.Overdue),
			})
		}
		return data, "Assignment Waitlist", nil
	}
	return export.Dataset{}, "", fmt.Errorf("unknown report type %q", reportType)
}
