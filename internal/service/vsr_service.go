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

type vsrStore interface {
	FindByID(ctx context.Context, id string) (*models.ValidationScheduleRequest, error)
	List(ctx context.Context, filter models.ValidationFilter) ([]models.ValidationScheduleRequest, int, error)
	Update(ctx context.Context, vsr *models.ValidationScheduleRequest) error
	AppendLog(ctx context.Context, log *models.VSRLog) error
	ListLogs(ctx context.Context, vsrID string) ([]models.VSRLog, error)
}

// VSRService schedules validation sessions and records their outcomes.
type VSRService struct {
	repo      vsrStore
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewVSRService constructs the service.
func NewVSRService(repo vsrStore, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *VSRService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &VSRService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// Schedule sets the validation session. The date and both validators are
// mandatory; scheduling is only possible while the request is pending.
func (s *VSRService) Schedule(ctx context.Context, id string, req dto.ScheduleValidationRequest, actor *models.JWTClaims) (*models.ValidationScheduleRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	vsr, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if vsr.Status != models.VSRPendingValidation && vsr.Status != models.VSRPendingRevalidation {
		return nil, appErrors.Clone(appErrors.ErrConflict, "schedule request is not pending")
	}

	scheduled := req.ScheduledDate
	ops := req.OpsValidatorID
	trainer := req.TrainerValidatorID
	vsr.Status = models.VSRScheduled
	vsr.ScheduledDate = &scheduled
	vsr.OpsValidatorID = &ops
	vsr.TrainerValidatorID = &trainer
	if err := s.repo.Update(ctx, vsr); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule validation")
	}
	s.appendLog(ctx, vsr, models.VSRLogSchedule, actor.UserID)
	s.emitAudit(ctx, actor.UserID, models.AuditActionScheduleSet, vsr)
	return vsr, nil
}

// Outcome records the pass or fail result of a scheduled session. Both
// outcomes are terminal; failed requests stay listable.
func (s *VSRService) Outcome(ctx context.Context, id string, req dto.ValidationOutcomeRequest, actor *models.JWTClaims) (*models.ValidationScheduleRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid outcome payload")
	}

	vsr, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if vsr.Status != models.VSRScheduled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "validation has not been scheduled")
	}

	target := models.VSRStatus(req.Status)
	if !target.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "outcome must be Fail or Pass")
	}
	vsr.Status = target
	if req.Note != "" {
		note := req.Note
		vsr.OutcomeNote = &note
	}
	if err := s.repo.Update(ctx, vsr); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record outcome")
	}
	s.appendLog(ctx, vsr, models.VSRLogOutcome, actor.UserID)
	s.emitAudit(ctx, actor.UserID, models.AuditActionScheduleOutcome, vsr)
	return vsr, nil
}

// Get returns a schedule request; learners only see their own.
func (s *VSRService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ValidationScheduleRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	vsr, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleLearner && vsr.LearnerUserID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return vsr, nil
}

// List returns schedule requests matching the filter.
func (s *VSRService) List(ctx context.Context, filter models.ValidationFilter, actor *models.JWTClaims) ([]models.ValidationScheduleRequest, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleLearner {
		filter.LearnerUserID = actor.UserID
	}
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule requests")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return requests, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Logs returns the scheduling and outcome history of a request.
func (s *VSRService) Logs(ctx context.Context, id string, actor *models.JWTClaims) ([]models.VSRLog, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	logs, err := s.repo.ListLogs(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule logs")
	}
	return logs, nil
}

func (s *VSRService) load(ctx context.Context, id string) (*models.ValidationScheduleRequest, error) {
	vsr, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule request")
	}
	return vsr, nil
}

func (s *VSRService) appendLog(ctx context.Context, vsr *models.ValidationScheduleRequest, action, actorID string) {
	snapshot, _ := json.Marshal(vsr)
	if err := s.repo.AppendLog(ctx, &models.VSRLog{
		VSRID:       vsr.ID,
		Action:      action,
		Snapshot:    snapshot,
		ActorUserID: actorID,
	}); err != nil {
		s.logger.Warn("failed to append schedule log", zap.Error(err))
	}
}

func (s *VSRService) emitAudit(ctx context.Context, actorID, action string, vsr *models.ValidationScheduleRequest) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{"vsr_code": vsr.VSRCode, "status": vsr.Status})
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "validation-schedules",
		ResourceID: &vsr.ID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "validation-schedule-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
