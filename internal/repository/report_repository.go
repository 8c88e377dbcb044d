package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skilltrack/competency-api/internal/models"
)

// ReportRepository handles persistence of export jobs.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a queued export job.
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
	const query = `INSERT INTO report_jobs (id, type, format, status, file_path, error_message, created_by, created_at, finished_at)
        VALUES (:id, :type, :format, :status, :file_path, :error_message, :created_by, :created_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindByID returns an export job.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	const query = `SELECT id, type, format, status, file_path, error_message, created_by, created_at, finished_at
        FROM report_jobs WHERE id = $1`
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkRunning moves a job into the running state.
func (r *ReportRepository) MarkRunning(ctx context.Context, id string) error {
	const query = `UPDATE report_jobs SET status = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, models.ReportStatusRunning, id); err != nil {
		return fmt.Errorf("mark report job running: %w", err)
	}
	return nil
}

// MarkCompleted records the rendered file path and finish time.
func (r *ReportRepository) MarkCompleted(ctx context.Context, id, filePath string) error {
	const query = `UPDATE report_jobs SET status = $1, file_path = $2, finished_at = NOW() WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, models.ReportStatusCompleted, filePath, id); err != nil {
		return fmt.Errorf("mark report job completed: %w", err)
	}
	return nil
}

// MarkFailed records the failure reason and finish time.
func (r *ReportRepository) MarkFailed(ctx context.Context, id, message string) error {
	const query = `UPDATE report_jobs SET status = $1, error_message = $2, finished_at = NOW() WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, models.ReportStatusFailed, message, id); err != nil {
		return fmt.Errorf("mark report job failed: %w", err)
	}
	return nil
}

// ListByUser returns a user's export jobs, newest first.
func (r *ReportRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.ReportJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT id, type, format, status, file_path, error_message, created_by, created_at, finished_at
        FROM report_jobs WHERE created_by = $1 ORDER BY created_at DESC LIMIT %d`, limit)
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, userID); err != nil {
		return nil, fmt.Errorf("list report jobs: %w", err)
	}
	return jobs, nil
}
