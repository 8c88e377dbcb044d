package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skilltrack/competency-api/internal/models"
)

const vpaColumns = `id, vpa_code, tr_code, learner_user_id, competency_level_id, project_url, project_summary,
    status, submitted_date, response_date, reviewed_by, review_note, created_at, updated_at`

// VPARepository handles persistence of validation project approvals.
type VPARepository struct {
	db *sqlx.DB
}

// NewVPARepository constructs the repository.
func NewVPARepository(db *sqlx.DB) *VPARepository {
	return &VPARepository{db: db}
}

// Create inserts the first submission for a (learner, level) pair.
func (r *VPARepository) Create(ctx context.Context, vpa *models.ValidationProjectApproval) error {
	if vpa.ID == "" {
		vpa.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	vpa.CreatedAt = now
	vpa.UpdatedAt = now

	const query = `INSERT INTO validation_project_approvals (id, vpa_code, tr_code, learner_user_id, competency_level_id,
        project_url, project_summary, status, submitted_date, response_date, reviewed_by, review_note, created_at, updated_at)
        VALUES (:id, :vpa_code, :tr_code, :learner_user_id, :competency_level_id,
        :project_url, :project_summary, :status, :submitted_date, :response_date, :reviewed_by, :review_note, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, vpa); err != nil {
		return fmt.Errorf("create validation project approval: %w", err)
	}
	return nil
}

// FindByID returns a project approval.
func (r *VPARepository) FindByID(ctx context.Context, id string) (*models.ValidationProjectApproval, error) {
	query := fmt.Sprintf(`SELECT %s FROM validation_project_approvals WHERE id = $1`, vpaColumns)
	var vpa models.ValidationProjectApproval
	if err := r.db.GetContext(ctx, &vpa, query, id); err != nil {
		return nil, err
	}
	return &vpa, nil
}

// FindByLearnerLevel returns the single approval for the pair, if any.
func (r *VPARepository) FindByLearnerLevel(ctx context.Context, learnerUserID, competencyLevelID string) (*models.ValidationProjectApproval, error) {
	query := fmt.Sprintf(`SELECT %s FROM validation_project_approvals WHERE learner_user_id = $1 AND competency_level_id = $2`, vpaColumns)
	var vpa models.ValidationProjectApproval
	if err := r.db.GetContext(ctx, &vpa, query, learnerUserID, competencyLevelID); err != nil {
		return nil, err
	}
	return &vpa, nil
}

// List returns approvals matching the filter with a total count.
func (r *VPARepository) List(ctx context.Context, filter models.ValidationFilter) ([]models.ValidationProjectApproval, int, error) {
	base := "FROM validation_project_approvals WHERE 1=1"
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

	query := fmt.Sprintf(`SELECT %s %s ORDER BY submitted_date DESC LIMIT %d OFFSET %d`, vpaColumns, base, size, offset)

	var approvals []models.ValidationProjectApproval
	if err := r.db.SelectContext(ctx, &approvals, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list validation project approvals: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count validation project approvals: %w", err)
	}
	return approvals, total, nil
}

// Update persists the submission and review fields.
func (r *VPARepository) Update(ctx context.Context, vpa *models.ValidationProjectApproval) error {
	vpa.UpdatedAt = time.Now().UTC()
	const query = `UPDATE validation_project_approvals SET
        project_url = :project_url,
        project_summary = :project_summary,
        status = :status,
        submitted_date = :submitted_date,
        response_date = :response_date,
        reviewed_by = :reviewed_by,
        review_note = :review_note,
        updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, vpa); err != nil {
		return fmt.Errorf("update validation project approval: %w", err)
	}
	return nil
}

// AppendLog records a submission or review event. The snapshot carries the
// serialized approval at that moment.
func (r *VPARepository) AppendLog(ctx context.Context, log *models.VPALog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO vpa_logs (id, vpa_id, action, snapshot, actor_user_id, created_at)
        VALUES (:id, :vpa_id, :action, :snapshot, :actor_user_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("append vpa log: %w", err)
	}
	return nil
}

// ListLogs returns the history of an approval, newest first.
func (r *VPARepository) ListLogs(ctx context.Context, vpaID string) ([]models.VPALog, error) {
	const query = `SELECT id, vpa_id, action, snapshot, actor_user_id, created_at
        FROM vpa_logs WHERE vpa_id = $1 ORDER BY created_at DESC`
	var logs []models.VPALog
	if err := r.db.SelectContext(ctx, &logs, query, vpaID); err != nil {
		return nil, fmt.Errorf("list vpa logs: %w", err)
	}
	return logs, nil
}
