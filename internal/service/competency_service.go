package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/skilltrack/competency-api/internal/dto"
	"github.com/skilltrack/competency-api/internal/models"
	appErrors "github.com/skilltrack/competency-api/pkg/errors"
)

type competencyStore interface {
	List(ctx context.Context, filter models.CompetencyFilter) ([]models.Competency, int, error)
	FindByID(ctx context.Context, id string) (*models.Competency, error)
	FindDetailByID(ctx context.Context, id string) (*models.CompetencyDetail, error)
	Create(ctx context.Context, competency *models.Competency, levels []models.CompetencyLevel) error
	Update(ctx context.Context, competency *models.Competency) error
	SoftDelete(ctx context.Context, id string) error
	ListLevels(ctx context.Context, competencyID string) ([]models.CompetencyLevel, error)
	FindLevelByID(ctx context.Context, id string) (*models.CompetencyLevelDetail, error)
	FindLevelByName(ctx context.Context, competencyID string, name models.LevelName) (*models.CompetencyLevel, error)
	UpdateLevel(ctx context.Context, level *models.CompetencyLevel) error
	AddRequirement(ctx context.Context, req *models.CompetencyRequirement) error
	DeleteRequirement(ctx context.Context, id string) error
	ListRequirements(ctx context.Context, competencyID string) ([]models.CompetencyRequirement, error)
}

type completedLevelLister interface {
	ListCompletedLevelIDs(ctx context.Context, learnerUserID string, levelIDs []string) ([]string, error)
}

// CompetencyService manages the competency catalog and the prerequisite gate
// that decides whether a learner may apply for a level.
type CompetencyService struct {
	repo      competencyStore
	completed completedLevelLister
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCompetencyService constructs the service.
func NewCompetencyService(repo competencyStore, completed completedLevelLister, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *CompetencyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CompetencyService{repo: repo, completed: completed, audit: audit, validator: validate, logger: logger}
}

// List returns competencies; learners see only published entries.
func (s *CompetencyService) List(ctx context.Context, filter models.CompetencyFilter, actor *models.JWTClaims) ([]models.Competency, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleLearner {
		published := models.CompetencyStatusPublished
		filter.Status = &published
		filter.IncludeDeleted = false
	}
	competencies, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list competencies")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return competencies, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a competency with levels and requirement edges.
func (s *CompetencyService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.CompetencyDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "competency not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load competency")
	}
	if actor != nil && actor.Role == models.RoleLearner {
		if detail.IsDeleted || detail.Status != models.CompetencyStatusPublished {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "competency not found")
		}
	}
	return detail, nil
}

// Create stores a competency with exactly one entry per level name.
func (s *CompetencyService) Create(ctx context.Context, req dto.CreateCompetencyRequest, actorID string) (*models.CompetencyDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid competency payload")
	}
	levels, err := buildLevels(req.Levels)
	if err != nil {
		return nil, err
	}

	competency := &models.Competency{Name: req.Name, Status: models.CompetencyStatusDraft}
	if err := s.repo.Create(ctx, competency, levels); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create competency")
	}

	payload, _ := json.Marshal(map[string]interface{}{"id": competency.ID, "name": competency.Name})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionCompetencyCreate,
		Resource:   "competencies",
		ResourceID: &competency.ID,
		NewValues:  payload,
	})

	return s.repo.FindDetailByID(ctx, competency.ID)
}

// Update mutates competency attributes and level content.
func (s *CompetencyService) Update(ctx context.Context, id string, req dto.UpdateCompetencyRequest, actorID string) (*models.CompetencyDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid competency payload")
	}

	competency, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "competency not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load competency")
	}
	if competency.IsDeleted {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "competency not found")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"name": competency.Name, "status": competency.Status})

	if req.Name != nil {
		competency.Name = *req.Name
	}
	if req.Status != nil {
		competency.Status = models.CompetencyStatus(*req.Status)
	}
	if err := s.repo.Update(ctx, competency); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update competency")
	}

	for _, content := range req.Levels {
		level, err := s.repo.FindLevelByName(ctx, id, models.LevelName(content.Name))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "competency level not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load competency level")
		}
		level.Overview = content.Overview
		level.Objectives = content.Objectives
		level.ProjectBrief = content.ProjectBrief
		level.TrainerID = content.TrainerID
		if err := s.repo.UpdateLevel(ctx, level); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update competency level")
		}
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"name": competency.Name, "status": competency.Status})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionCompetencyUpdate,
		Resource:   "competencies",
		ResourceID: &competency.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
	})

	return s.repo.FindDetailByID(ctx, id)
}

// Delete soft-deletes a competency; history stays queryable.
func (s *CompetencyService) Delete(ctx context.Context, id string, actorID string) error {
	competency, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "competency not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load competency")
	}
	if competency.IsDeleted {
		return appErrors.Clone(appErrors.ErrNotFound, "competency not found")
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete competency")
	}
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionCompetencyDelete,
		Resource:   "competencies",
		ResourceID: &id,
	})
	return nil
}

// AddRequirement declares that applying for any level of the competency needs
// the given level of another competency completed first.
func (s *CompetencyService) AddRequirement(ctx context.Context, competencyID string, req dto.AddRequirementRequest, actorID string) (*models.CompetencyRequirement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid requirement payload")
	}

	if _, err := s.repo.FindByID(ctx, competencyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "competency not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load competency")
	}

	requiredLevel, err := s.repo.FindLevelByID(ctx, req.RequiredLevelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "required competency level not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load required level")
	}
	if requiredLevel.CompetencyID == competencyID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "same-competency prerequisites are derived automatically and cannot be declared")
	}

	existing, err := s.repo.ListRequirements(ctx, competencyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requirements")
	}
	for _, e := range existing {
		if e.RequiredLevelID == req.RequiredLevelID {
			return nil, appErrors.Clone(appErrors.ErrConflict, "requirement already declared")
		}
	}

	requirement := &models.CompetencyRequirement{
		CompetencyID:    competencyID,
		RequiredLevelID: req.RequiredLevelID,
	}
	if err := s.repo.AddRequirement(ctx, requirement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add requirement")
	}

	payload, _ := json.Marshal(requirement)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionCompetencyUpdate,
		Resource:   "competencies",
		ResourceID: &competencyID,
		NewValues:  payload,
	})
	return requirement, nil
}

// RemoveRequirement deletes a manual prerequisite edge.
func (s *CompetencyService) RemoveRequirement(ctx context.Context, competencyID, requirementID string, actorID string) error {
	existing, err := s.repo.ListRequirements(ctx, competencyID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requirements")
	}
	found := false
	for _, e := range existing {
		if e.ID == requirementID {
			found = true
			break
		}
	}
	if !found {
		return appErrors.Clone(appErrors.ErrNotFound, "requirement not found")
	}
	if err := s.repo.DeleteRequirement(ctx, requirementID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete requirement")
	}
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionCompetencyUpdate,
		Resource:   "competencies",
		ResourceID: &competencyID,
	})
	return nil
}

// RequiredLevelIDs resolves the full prerequisite set for a level: the manual
// cross-competency edges of its parent plus the derived prior levels within
// the same competency.
func (s *CompetencyService) RequiredLevelIDs(ctx context.Context, level *models.CompetencyLevelDetail) ([]string, error) {
	var required []string

	for _, prior := range level.Name.PriorLevels() {
		sibling, err := s.repo.FindLevelByName(ctx, level.CompetencyID, prior)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve prior level")
		}
		required = append(required, sibling.ID)
	}

	edges, err := s.repo.ListRequirements(ctx, level.CompetencyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requirements")
	}
	for _, edge := range edges {
		required = append(required, edge.RequiredLevelID)
	}
	return required, nil
}

// MissingRequirements returns the prerequisite level IDs the learner has not
// completed for the given level.
func (s *CompetencyService) MissingRequirements(ctx context.Context, learnerUserID string, level *models.CompetencyLevelDetail) ([]string, error) {
	required, err := s.RequiredLevelIDs(ctx, level)
	if err != nil {
		return nil, err
	}
	if len(required) == 0 {
		return nil, nil
	}
	completed, err := s.completed.ListCompletedLevelIDs(ctx, learnerUserID, required)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve completed levels")
	}
	done := make(map[string]bool, len(completed))
	for _, id := range completed {
		done[id] = true
	}
	var missing []string
	for _, id := range required {
		if !done[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// Applicability reports, per level of a competency, whether the learner may
// apply and which prerequisites are still missing.
func (s *CompetencyService) Applicability(ctx context.Context, competencyID, learnerUserID string) ([]models.LevelApplicability, error) {
	levels, err := s.repo.ListLevels(ctx, competencyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list competency levels")
	}
	if len(levels) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "competency not found")
	}

	result := make([]models.LevelApplicability, 0, len(levels))
	for _, level := range levels {
		detail := &models.CompetencyLevelDetail{CompetencyLevel: level}
		missing, err := s.MissingRequirements(ctx, learnerUserID, detail)
		if err != nil {
			return nil, err
		}
		entry := models.LevelApplicability{
			LevelID:    level.ID,
			LevelName:  string(level.Name),
			Applicable: len(missing) == 0,
		}
		if len(missing) > 0 {
			entry.Reason = "required competency levels are not completed"
			entry.MissingLevels = missing
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *CompetencyService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "competency-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func buildLevels(contents []dto.LevelContent) ([]models.CompetencyLevel, error) {
	seen := make(map[models.LevelName]bool, len(contents))
	levels := make([]models.CompetencyLevel, 0, len(contents))
	for _, content := range contents {
		name := models.LevelName(content.Name)
		if !name.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "level name must be Basic, Competent or Advanced")
		}
		if seen[name] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate level name")
		}
		seen[name] = true
		levels = append(levels, models.CompetencyLevel{
			Name:         name,
			Overview:     content.Overview,
			Objectives:   content.Objectives,
			ProjectBrief: content.ProjectBrief,
			TrainerID:    content.TrainerID,
		})
	}
	for _, name := range models.LevelNames {
		if !seen[name] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "all three levels are required")
		}
	}
	return levels, nil
}
