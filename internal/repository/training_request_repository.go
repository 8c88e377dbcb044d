package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/skilltrack/competency-api/internal/models"
	appErrors "github.com/skilltrack/competency-api/pkg/errors"
)

const pqUniqueViolation = "23505"

const trainingRequestColumns = `id, tr_code, learner_user_id, competency_level_id, requested_date, status,
    response_due, response_date, is_blocked, blocked_reason, expected_unblocked_date,
    on_hold_by, on_hold_reason, drop_off_reason, definite_answer, follow_up_date, assigned_to,
    created_at, updated_at`

// TrainingRequestRepository handles persistence of training requests.
type TrainingRequestRepository struct {
	db *sqlx.DB
}

// NewTrainingRequestRepository constructs the repository.
func NewTrainingRequestRepository(db *sqlx.DB) *TrainingRequestRepository {
	return &TrainingRequestRepository{db: db}
}

// Create inserts a request. The (learner_user_id, competency_level_id) unique
// index is the authority on duplicates; a violation surfaces as
// ErrDuplicateRequest even when a racing insert slipped past the service check.
func (r *TrainingRequestRepository) Create(ctx context.Context, request *models.TrainingRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	request.CreatedAt = now
	request.UpdatedAt = now

	const query = `INSERT INTO training_requests (id, tr_code, learner_user_id, competency_level_id, requested_date, status,
        response_due, response_date, is_blocked, blocked_reason, expected_unblocked_date,
        on_hold_by, on_hold_reason, drop_off_reason, definite_answer, follow_up_date, assigned_to,
        created_at, updated_at)
        VALUES (:id, :tr_code, :learner_user_id, :competency_level_id, :requested_date, :status,
        :response_due, :response_date, :is_blocked, :blocked_reason, :expected_unblocked_date,
        :on_hold_by, :on_hold_reason, :drop_off_reason, :definite_answer, :follow_up_date, :assigned_to,
        :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return appErrors.ErrDuplicateRequest
		}
		return fmt.Errorf("create training request: %w", err)
	}
	return nil
}

// FindByID returns a training request.
func (r *TrainingRequestRepository) FindByID(ctx context.Context, id string) (*models.TrainingRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM training_requests WHERE id = $1`, trainingRequestColumns)
	var request models.TrainingRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// FindDetailByID returns a request joined with learner and catalog context.
func (r *TrainingRequestRepository) FindDetailByID(ctx context.Context, id string) (*models.TrainingRequestDetail, error) {
	query := fmt.Sprintf(`SELECT %s, u.full_name AS learner_name, c.id AS competency_id, c.name AS competency_name, l.name AS level_name
        FROM training_requests tr
        JOIN users u ON u.id = tr.learner_user_id
        JOIN competency_levels l ON l.id = tr.competency_level_id
        JOIN competencies c ON c.id = l.competency_id
        WHERE tr.id = $1`, prefixColumns("tr", trainingRequestColumns))
	var detail models.TrainingRequestDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByLearnerLevel returns the single request for the pair, if any.
func (r *TrainingRequestRepository) FindByLearnerLevel(ctx context.Context, learnerUserID, competencyLevelID string) (*models.TrainingRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM training_requests WHERE learner_user_id = $1 AND competency_level_id = $2`, trainingRequestColumns)
	var request models.TrainingRequest
	if err := r.db.GetContext(ctx, &request, query, learnerUserID, competencyLevelID); err != nil {
		return nil, err
	}
	return &request, nil
}

// ExistsForLearnerLevel reports whether the learner already applied for the level.
func (r *TrainingRequestRepository) ExistsForLearnerLevel(ctx context.Context, learnerUserID, competencyLevelID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM training_requests WHERE learner_user_id = $1 AND competency_level_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, learnerUserID, competencyLevelID); err != nil {
		return false, fmt.Errorf("check training request exists: %w", err)
	}
	return exists, nil
}

// List returns request detail rows matching the filter with a total count.
func (r *TrainingRequestRepository) List(ctx context.Context, filter models.TrainingRequestFilter) ([]models.TrainingRequestDetail, int, error) {
	base := `FROM training_requests tr
        JOIN users u ON u.id = tr.learner_user_id
        JOIN competency_levels l ON l.id = tr.competency_level_id
        JOIN competencies c ON c.id = l.competency_id
        WHERE 1=1`
	var args []interface{}

	if filter.LearnerUserID != "" {
		args = append(args, filter.LearnerUserID)
		base += fmt.Sprintf(" AND tr.learner_user_id = $%d", len(args))
	}
	if filter.CompetencyLevelID != "" {
		args = append(args, filter.CompetencyLevelID)
		base += fmt.Sprintf(" AND tr.competency_level_id = $%d", len(args))
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		base += fmt.Sprintf(" AND tr.assigned_to = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		base += fmt.Sprintf(" AND tr.status = $%d", len(args))
	}
	if filter.PendingOnly {
		args = append(args,
			int(models.TrainingOnHold),
			int(models.TrainingDropOff),
			int(models.TrainingCompleted))
		base += fmt.Sprintf(" AND tr.response_date IS NULL AND tr.status NOT IN ($%d, $%d, $%d)", len(args)-2, len(args)-1, len(args))
	}

	allowedSorts := map[string]string{
		"requested_date": "tr.requested_date",
		"status":         "tr.status",
		"learner_name":   "u.full_name",
		"created_at":     "tr.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "tr.requested_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT %s, u.full_name AS learner_name, c.id AS competency_id, c.name AS competency_name, l.name AS level_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, prefixColumns("tr", trainingRequestColumns), base, orderBy, order, size, offset)

	var requests []models.TrainingRequestDetail
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list training requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count training requests: %w", err)
	}
	return requests, total, nil
}

// Update persists the mutable workflow fields of a request.
func (r *TrainingRequestRepository) Update(ctx context.Context, request *models.TrainingRequest) error {
	request.UpdatedAt = time.Now().UTC()
	const query = `UPDATE training_requests SET
        requested_date = :requested_date,
        status = :status,
        response_due = :response_due,
        response_date = :response_date,
        is_blocked = :is_blocked,
        blocked_reason = :blocked_reason,
        expected_unblocked_date = :expected_unblocked_date,
        on_hold_by = :on_hold_by,
        on_hold_reason = :on_hold_reason,
        drop_off_reason = :drop_off_reason,
        definite_answer = :definite_answer,
        follow_up_date = :follow_up_date,
        assigned_to = :assigned_to,
        updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("update training request: %w", err)
	}
	return nil
}

// ListCompletedLevelIDs returns the level IDs the learner has completed
// training for, narrowed to the given candidate set.
func (r *TrainingRequestRepository) ListCompletedLevelIDs(ctx context.Context, learnerUserID string, levelIDs []string) ([]string, error) {
	if len(levelIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT competency_level_id FROM training_requests
        WHERE learner_user_id = ? AND status = ? AND competency_level_id IN (?)`,
		learnerUserID, int(models.TrainingCompleted), levelIDs)
	if err != nil {
		return nil, fmt.Errorf("build completed levels query: %w", err)
	}
	query = r.db.Rebind(query)

	var completed []string
	if err := r.db.SelectContext(ctx, &completed, query, args...); err != nil {
		return nil, fmt.Errorf("list completed levels: %w", err)
	}
	return completed, nil
}

// ListWaiting returns unanswered requests for the waitlist report,
// oldest first.
func (r *TrainingRequestRepository) ListWaiting(ctx context.Context) ([]models.TrainingRequestDetail, error) {
	query := fmt.Sprintf(`SELECT %s, u.full_name AS learner_name, c.id AS competency_id, c.name AS competency_name, l.name AS level_name
        FROM training_requests tr
        JOIN users u ON u.id = tr.learner_user_id
        JOIN competency_levels l ON l.id = tr.competency_level_id
        JOIN competencies c ON c.id = l.competency_id
        WHERE tr.response_date IS NULL AND tr.status NOT IN ($1, $2, $3)
        ORDER BY tr.requested_date ASC`, prefixColumns("tr", trainingRequestColumns))

	var requests []models.TrainingRequestDetail
	err := r.db.SelectContext(ctx, &requests, query,
		int(models.TrainingOnHold), int(models.TrainingDropOff), int(models.TrainingCompleted))
	if err != nil {
		return nil, fmt.Errorf("list waiting training requests: %w", err)
	}
	return requests, nil
}

// prefixColumns qualifies each column in a comma separated list with a table
// alias so that joined selects stay unambiguous.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
