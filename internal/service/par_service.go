package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/skilltrack/competency-api/internal/dto"
	"github.com/skilltrack/competency-api/internal/models"
	appErrors "github.com/skilltrack/competency-api/pkg/errors"
)

type parStore interface {
	Create(ctx context.Context, par *models.ProjectAssignmentRequest) error
	FindByID(ctx context.Context, id string) (*models.ProjectAssignmentRequest, error)
	List(ctx context.Context, filter models.PARFilter) ([]models.ProjectAssignmentRequest, int, error)
	Update(ctx context.Context, par *models.ProjectAssignmentRequest) error
}

// PARService runs the project assignment negotiation alongside the
// validation workflows. Its due derivation mirrors training requests.
type PARService struct {
	repo      parStore
	levels    levelResolver
	numbering codeReserver
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewPARService constructs the service.
func NewPARService(repo parStore, levels levelResolver, numbering codeReserver, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *PARService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PARService{
		repo:      repo,
		levels:    levels,
		numbering: numbering,
		audit:     audit,
		validator: validate,
		logger:    logger,
		now:       timeNow,
	}
}

// Create opens an assignment negotiation for a learner and level.
func (s *PARService) Create(ctx context.Context, req dto.CreateAssignmentRequest, actor *models.JWTClaims) (*models.PARRow, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	if _, err := s.levels.FindLevelByID(ctx, req.CompetencyLevelID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "competency level not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load competency level")
	}

	code, err := s.numbering.NextCode(ctx, models.NumberingProjectAssignment)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve assignment code")
	}

	par := &models.ProjectAssignmentRequest{
		PARCode:           code,
		LearnerUserID:     req.LearnerUserID,
		CompetencyLevelID: req.CompetencyLevelID,
		RequestedDate:     s.now(),
		Status:            models.PARNew,
		AssignedTo:        req.AssignedTo,
		Notes:             req.Notes,
	}
	if err := s.repo.Create(ctx, par); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment request")
	}

	payload, _ := json.Marshal(map[string]interface{}{"par_code": par.PARCode, "learner_user_id": par.LearnerUserID})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionAssignmentCreate,
		Resource:   "project-assignments",
		ResourceID: &par.ID,
		NewValues:  payload,
	})

	row := s.toRow(*par)
	return &row, nil
}

// Get returns an assignment request with due classification.
func (s *PARService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.PARRow, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	par, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleLearner && par.LearnerUserID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	row := s.toRow(*par)
	return &row, nil
}

// List returns assignment rows with read-time due classification.
func (s *PARService) List(ctx context.Context, filter models.PARFilter, actor *models.JWTClaims) ([]models.PARRow, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleLearner {
		filter.LearnerUserID = actor.UserID
	}
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignment requests")
	}
	rows := make([]models.PARRow, 0, len(requests))
	for _, par := range requests {
		rows = append(rows, s.toRow(par))
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return rows, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Update mutates an assignment request; only provided fields change.
func (s *PARService) Update(ctx context.Context, id string, req dto.UpdateAssignmentRequest, actor *models.JWTClaims) (*models.PARRow, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	par, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"status": par.Status, "assigned_to": par.AssignedTo})

	if req.Status != nil {
		target := models.PARStatus(*req.Status)
		if !target.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown assignment status")
		}
		if par.Status == models.PARClosed {
			return nil, appErrors.Clone(appErrors.ErrConflict, "closed assignments cannot change status")
		}
		par.Status = target
	}
	if req.AssignedTo != nil {
		par.AssignedTo = req.AssignedTo
	}
	if req.ResponseDue != nil {
		par.ResponseDue = req.ResponseDue
	}
	if req.ResponseDate != nil {
		par.ResponseDate = req.ResponseDate
	}
	if req.DefiniteAnswer != nil {
		par.DefiniteAnswer = req.DefiniteAnswer
		if *req.DefiniteAnswer {
			par.FollowUpDate = nil
		}
	}
	if req.FollowUpDate != nil {
		if par.DefiniteAnswer == nil || *par.DefiniteAnswer {
			return nil, appErrors.Clone(appErrors.ErrValidation, "follow_up_date is only allowed without a definite answer")
		}
		par.FollowUpDate = req.FollowUpDate
	}
	if req.Notes != nil {
		par.Notes = req.Notes
	}

	if err := s.repo.Update(ctx, par); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment request")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"status": par.Status, "assigned_to": par.AssignedTo})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionAssignmentUpdate,
		Resource:   "project-assignments",
		ResourceID: &par.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
	})

	row := s.toRow(*par)
	return &row, nil
}

func (s *PARService) load(ctx context.Context, id string) (*models.ProjectAssignmentRequest, error) {
	par, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment request")
	}
	return par, nil
}

func (s *PARService) toRow(par models.ProjectAssignmentRequest) models.PARRow {
	return models.PARRow{
		ProjectAssignmentRequest: par,
		StatusLabel:              par.Status.Label(),
		Due:                      par.DueStateAt(s.now()),
		NoFollowUpDate:           par.NoFollowUpDate(),
	}
}

func (s *PARService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "project-assignment-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
