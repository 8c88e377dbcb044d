package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skilltrack/competency-api/internal/models"
)

// CompetencyRepository handles persistence of the competency catalog.
type CompetencyRepository struct {
	db *sqlx.DB
}

// NewCompetencyRepository constructs the repository.
func NewCompetencyRepository(db *sqlx.DB) *CompetencyRepository {
	return &CompetencyRepository{db: db}
}

// List returns competencies matching the filter with a total count.
func (r *CompetencyRepository) List(ctx context.Context, filter models.CompetencyFilter) ([]models.Competency, int, error) {
	base := "FROM competencies WHERE 1=1"
	var args []interface{}

	if !filter.IncludeDeleted {
		base += " AND is_deleted = FALSE"
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		base += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		base += fmt.Sprintf(" AND LOWER(name) LIKE $%d", len(args))
	}

	allowedSorts := map[string]string{
		"name":       "name",
		"created_at": "created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT id, name, status, is_deleted, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, orderBy, order, size, offset)

	var competencies []models.Competency
	if err := r.db.SelectContext(ctx, &competencies, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list competencies: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count competencies: %w", err)
	}
	return competencies, total, nil
}

// FindByID returns a competency by its ID.
func (r *CompetencyRepository) FindByID(ctx context.Context, id string) (*models.Competency, error) {
	const query = `SELECT id, name, status, is_deleted, created_at, updated_at FROM competencies WHERE id = $1`
	var competency models.Competency
	if err := r.db.GetContext(ctx, &competency, query, id); err != nil {
		return nil, err
	}
	return &competency, nil
}

// FindDetailByID returns a competency with its levels and requirement edges.
func (r *CompetencyRepository) FindDetailByID(ctx context.Context, id string) (*models.CompetencyDetail, error) {
	competency, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	levels, err := r.ListLevels(ctx, id)
	if err != nil {
		return nil, err
	}
	requirements, err := r.ListRequirements(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.CompetencyDetail{Competency: *competency, Levels: levels, Requirements: requirements}, nil
}

// Create persists a competency and its levels inside one transaction.
func (r *CompetencyRepository) Create(ctx context.Context, competency *models.Competency, levels []models.CompetencyLevel) error {
	if competency.ID == "" {
		competency.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	competency.CreatedAt = now
	competency.UpdatedAt = now
	if competency.Status == "" {
		competency.Status = models.CompetencyStatusDraft
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create competency: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertCompetency = `INSERT INTO competencies (id, name, status, is_deleted, created_at, updated_at)
        VALUES (:id, :name, :status, :is_deleted, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertCompetency, competency); err != nil {
		return fmt.Errorf("create competency: %w", err)
	}

	const insertLevel = `INSERT INTO competency_levels (id, competency_id, name, overview, objectives, project_brief, trainer_id, created_at, updated_at)
        VALUES (:id, :competency_id, :name, :overview, :objectives, :project_brief, :trainer_id, :created_at, :updated_at)`
	for i := range levels {
		if levels[i].ID == "" {
			levels[i].ID = uuid.NewString()
		}
		levels[i].CompetencyID = competency.ID
		levels[i].CreatedAt = now
		levels[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, insertLevel, levels[i]); err != nil {
			return fmt.Errorf("create competency level %s: %w", levels[i].Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create competency: %w", err)
	}
	return nil
}

// Update persists competency attributes.
func (r *CompetencyRepository) Update(ctx context.Context, competency *models.Competency) error {
	competency.UpdatedAt = time.Now().UTC()
	const query = `UPDATE competencies SET name = :name, status = :status, updated_at = :updated_at WHERE id = :id AND is_deleted = FALSE`
	if _, err := r.db.NamedExecContext(ctx, query, competency); err != nil {
		return fmt.Errorf("update competency: %w", err)
	}
	return nil
}

// SoftDelete flags a competency as deleted; rows are never removed.
func (r *CompetencyRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE competencies SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete competency: %w", err)
	}
	return nil
}

// ListLevels returns the levels of a competency in progression order.
func (r *CompetencyRepository) ListLevels(ctx context.Context, competencyID string) ([]models.CompetencyLevel, error) {
	const query = `SELECT id, competency_id, name, overview, objectives, project_brief, trainer_id, created_at, updated_at
        FROM competency_levels WHERE competency_id = $1
        ORDER BY CASE name WHEN 'Basic' THEN 1 WHEN 'Competent' THEN 2 ELSE 3 END`
	var levels []models.CompetencyLevel
	if err := r.db.SelectContext(ctx, &levels, query, competencyID); err != nil {
		return nil, fmt.Errorf("list competency levels: %w", err)
	}
	return levels, nil
}

// FindLevelByID returns a level joined with its parent competency.
func (r *CompetencyRepository) FindLevelByID(ctx context.Context, id string) (*models.CompetencyLevelDetail, error) {
	const query = `SELECT l.id, l.competency_id, l.name, l.overview, l.objectives, l.project_brief, l.trainer_id, l.created_at, l.updated_at,
        c.name AS competency_name, c.status AS competency_status
        FROM competency_levels l
        JOIN competencies c ON c.id = l.competency_id
        WHERE l.id = $1 AND c.is_deleted = FALSE`
	var level models.CompetencyLevelDetail
	if err := r.db.GetContext(ctx, &level, query, id); err != nil {
		return nil, err
	}
	return &level, nil
}

// FindLevelByName returns the sibling level of a competency by name.
func (r *CompetencyRepository) FindLevelByName(ctx context.Context, competencyID string, name models.LevelName) (*models.CompetencyLevel, error) {
	const query = `SELECT id, competency_id, name, overview, objectives, project_brief, trainer_id, created_at, updated_at
        FROM competency_levels WHERE competency_id = $1 AND name = $2`
	var level models.CompetencyLevel
	if err := r.db.GetContext(ctx, &level, query, competencyID, name); err != nil {
		return nil, err
	}
	return &level, nil
}

// UpdateLevel persists level content and trainer assignment.
func (r *CompetencyRepository) UpdateLevel(ctx context.Context, level *models.CompetencyLevel) error {
	level.UpdatedAt = time.Now().UTC()
	const query = `UPDATE competency_levels SET overview = :overview, objectives = :objectives, project_brief = :project_brief, trainer_id = :trainer_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, level); err != nil {
		return fmt.Errorf("update competency level: %w", err)
	}
	return nil
}

// AddRequirement declares a manual cross-competency prerequisite edge.
// Unique on (competency_id, required_level_id).
func (r *CompetencyRepository) AddRequirement(ctx context.Context, req *models.CompetencyRequirement) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO competency_requirements (id, competency_id, required_level_id, created_at)
        VALUES (:id, :competency_id, :required_level_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("add competency requirement: %w", err)
	}
	return nil
}

// DeleteRequirement removes a manual prerequisite edge.
func (r *CompetencyRepository) DeleteRequirement(ctx context.Context, id string) error {
	const query = `DELETE FROM competency_requirements WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete competency requirement: %w", err)
	}
	return nil
}

// ListRequirements returns the manual requirement edges of a competency.
func (r *CompetencyRepository) ListRequirements(ctx context.Context, competencyID string) ([]models.CompetencyRequirement, error) {
	const query = `SELECT id, competency_id, required_level_id, created_at FROM competency_requirements WHERE competency_id = $1`
	var requirements []models.CompetencyRequirement
	if err := r.db.SelectContext(ctx, &requirements, query, competencyID); err != nil {
		return nil, fmt.Errorf("list competency requirements: %w", err)
	}
	return requirements, nil
}
