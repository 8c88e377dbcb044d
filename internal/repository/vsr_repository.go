package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skilltrack/competency-api/internal/models"
)

const vsrColumns = `id, vsr_code, vpa_id, learner_user_id, competency_level_id, status,
    scheduled_date, ops_validator_id, trainer_validator_id, outcome_note, created_at, updated_at`

// VSRRepository handles persistence of validation schedule requests.
type VSRRepository struct {
	db *sqlx.DB
}

// NewVSRRepository constructs the repository.
func NewVSRRepository(db *sqlx.DB) *VSRRepository {
	return &VSRRepository{db: db}
}

// Create inserts a schedule request, spawned when a project is approved.
func (r *VSRRepository) Create(ctx context.Context, vsr *models.ValidationScheduleRequest) error {
	if vsr.ID == "" {
		vsr.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	vsr.CreatedAt = now
	vsr.UpdatedAt = now

	const query = `INSERT INTO validation_schedule_requests (id, vsr_code, vpa_id, learner_user_id, competency_level_id,
        status, scheduled_date, ops_validator_id, trainer_validator_id, outcome_note, created_at, updated_at)
        VALUES (:id, :vsr_code, :vpa_id, :learner_user_id, :competency_level_id,
        :status, :scheduled_date, :ops_validator_id, :trainer_validator_id, :outcome_note, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, vsr); err != nil {
		return fmt.Errorf("create validation schedule request: %w", err)
	}
	return nil
}

// FindByID returns a schedule request.
func (r *VSRRepository) FindByID(ctx context.Context, id string) (*models.ValidationScheduleRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM validation_schedule_requests WHERE id = $1`, vsrColumns)
	var vsr models.ValidationScheduleRequest
	if err := r.db.GetContext(ctx, &vsr, query, id); err != nil {
		return nil, err
	}
	return &vsr, nil
}

// FindByVPAID returns the schedule request tied to a project approval.
func (r *VSRRepository) FindByVPAID(ctx context.Context, vpaID string) (*models.ValidationScheduleRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM validation_schedule_requests WHERE vpa_id = $1`, vsrColumns)
	var vsr models.ValidationScheduleRequest
	if err := r.db.GetContext(ctx, &vsr, query, vpaID); err != nil {
		return nil, err
	}
	return &vsr, nil
}

// List returns schedule requests matching the filter with a total count.
func (r *VSRRepository) List(ctx context.Context, filter models.ValidationFilter) ([]models.ValidationScheduleRequest, int, error) {
	base := "FROM validation_schedule_requests WHERE 1=1"
	var args []interface{}

	if filter.LearnerUserID != "" {
		args = append(args, filter.LearnerUserID)
		base += fmt.Sprintf(" AND learner_user_id = $%d", len(args))
	}
	if filter.CompetencyLevelID != "" {
		args = append(args, filter.CompetencyLevelID)
		base += fmt.Sprintf(" AND competency_level_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		base += fmt.Sprintf(" AND status = $%d", len(args))
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, vsrColumns, base, size, offset)

	var requests []models.ValidationScheduleRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list validation schedule requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count validation schedule requests: %w", err)
	}
	return requests, total, nil
}

// Update persists scheduling and outcome fields.
func (r *VSRRepository) Update(ctx context.Context, vsr *models.ValidationScheduleRequest) error {
	vsr.UpdatedAt = time.Now().UTC()
	const query = `UPDATE validation_schedule_requests SET
        status = :status,
        scheduled_date = :scheduled_date,
        ops_validator_id = :ops_validator_id,
        trainer_validator_id = :trainer_validator_id,
        outcome_note = :outcome_note,
        updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, vsr); err != nil {
		return fmt.Errorf("update validation schedule request: %w", err)
	}
	return nil
}

// AppendLog records a scheduling or outcome event.
func (r *VSRRepository) AppendLog(ctx context.Context, log *models.VSRLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO vsr_logs (id, vsr_id, action, snapshot, actor_user_id, created_at)
        VALUES (:id, :vsr_id, :action, :snapshot, :actor_user_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("append vsr log: %w", err)
	}
	return nil
}

// ListLogs returns the history of a schedule request, newest first.
func (r *VSRRepository) ListLogs(ctx context.Context, vsrID string) ([]models.VSRLog, error) {
	const query = `SELECT id, vsr_id, action, snapshot, actor_user_id, created_at
        FROM vsr_logs WHERE vsr_id = $1 ORDER BY created_at DESC`
	var logs []models.VSRLog
	if err := r.db.SelectContext(ctx, &logs, query, vsrID); err != nil {
		return nil, fmt.Errorf("list vsr logs: %w", err)
	}
	return logs, nil
}
