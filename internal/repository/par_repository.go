package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skilltrack/competency-api/internal/models"
)

const parColumns = `id, par_code, learner_user_id, competency_level_id, requested_date, status,
    response_due, response_date, definite_answer, follow_up_date, assigned_to, notes, created_at, updated_at`

// PARRepository handles persistence of project assignment requests.
type PARRepository struct {
	db *sqlx.DB
}

// NewPARRepository constructs the repository.
func NewPARRepository(db *sqlx.DB) *PARRepository {
	return &PARRepository{db: db}
}

// Create inserts an assignment request.
func (r *PARRepository) Create(ctx context.Context, par *models.ProjectAssignmentRequest) error {
	if par.ID == "" {
		par.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	par.CreatedAt = now
	par.UpdatedAt = now

	const query = `INSERT INTO project_assignment_requests (id, par_code, learner_user_id, competency_level_id,
        requested_date, status, response_due, response_date, definite_answer, follow_up_date, assigned_to, notes, created_at, updated_at)
        VALUES (:id, :par_code, :learner_user_id, :competency_level_id,
        :requested_date, :status, :response_due, :response_date, :definite_answer, :follow_up_date, :assigned_to, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, par); err != nil {
		return fmt.Errorf("create project assignment request: %w", err)
	}
	return nil
}

// FindByID returns an assignment request.
func (r *PARRepository) FindByID(ctx context.Context, id string) (*models.ProjectAssignmentRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM project_assignment_requests WHERE id = $1`, parColumns)
	var par models.ProjectAssignmentRequest
	if err := r.db.GetContext(ctx, &par, query, id); err != nil {
		return nil, err
	}
	return &par, nil
}

// List returns assignment requests matching the filter with a total count.
func (r *PARRepository) List(ctx context.Context, filter models.PARFilter) ([]models.ProjectAssignmentRequest, int, error) {
	base := "FROM project_assignment_requests WHERE 1=1"
	var args []interface{}

	if filter.LearnerUserID != "" {
		args = append(args, filter.LearnerUserID)
		base += fmt.Sprintf(" AND learner_user_id = $%d", len(args))
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		base += fmt.Sprintf(" AND assigned_to = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, int(*filter.Status))
		base += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.PendingOnly {
		args = append(args, int(models.PARDeclined), int(models.PARClosed))
		base += fmt.Sprintf(" AND response_date IS NULL AND status NOT IN ($%d, $%d)", len(args)-1, len(args))
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

	query := fmt.Sprintf(`SELECT %s %s ORDER BY requested_date DESC LIMIT %d OFFSET %d`, parColumns, base, size, offset)

	var requests []models.ProjectAssignmentRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list project assignment requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count project assignment requests: %w", err)
	}
	return requests, total, nil
}

// Update persists the mutable fields of an assignment request.
func (r *PARRepository) Update(ctx context.Context, par *models.ProjectAssignmentRequest) error {
	par.UpdatedAt = time.Now().UTC()
	const query = `UPDATE project_assignment_requests SET
        requested_date = :requested_date,
        status = :status,
        response_due = :response_due,
        response_date = :response_date,
        definite_answer = :definite_answer,
        follow_up_date = :follow_up_date,
        assigned_to = :assigned_to,
        notes = :notes,
        updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, par); err != nil {
		return fmt.Errorf("update project assignment request: %w", err)
	}
	return nil
}

// ListWaiting returns unanswered assignment requests for the waitlist
// report, oldest first.
func (r *PARRepository) ListWaiting(ctx context.Context) ([]models.ProjectAssignmentRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM project_assignment_requests
        WHERE response_date IS NULL AND status NOT IN ($1, $2)
        ORDER BY requested_date ASC`, parColumns)

	var requests []models.ProjectAssignmentRequest
	if err := r.db.SelectContext(ctx, &requests, query, int(models.PARDeclined), int(models.PARClosed)); err != nil {
		return nil, fmt.Errorf("list waiting project assignment requests: %w", err)
	}
	return requests, nil
}
