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

type vpaStore interface {
	Create(ctx context.Context, vpa *models.ValidationProjectApproval) error
	FindByID(ctx context.Context, id string) (*models.ValidationProjectApproval, error)
	FindByLearnerLevel(ctx context.Context, learnerUserID, competencyLevelID string) (*models.ValidationProjectApproval, error)
	List(ctx context.Context, filter models.ValidationFilter) ([]models.ValidationProjectApproval, int, error)
	Update(ctx context.Context, vpa *models.ValidationProjectApproval) error
	AppendLog(ctx context.Context, log *models.VPALog) error
	ListLogs(ctx context.Context, vpaID string) ([]models.VPALog, error)
}

type vpaTrainingRequestLookup interface {
	FindByLearnerLevel(ctx context.Context, learnerUserID, competencyLevelID string) (*models.TrainingRequest, error)
}

type vsrForVPAStore interface {
	Create(ctx context.Context, vsr *models.ValidationScheduleRequest) error
	FindByVPAID(ctx context.Context, vpaID string) (*models.ValidationScheduleRequest, error)
	Update(ctx context.Context, vsr *models.ValidationScheduleRequest) error
}

// VPAService handles validation project submissions and reviews. An approved
// project spawns the schedule request for the same learner and level.
type VPAService struct {
	repo      vpaStore
	requests  vpaTrainingRequestLookup
	schedules vsrForVPAStore
	numbering codeReserver
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

func timeNow() time.Time { return time.Now().UTC() }

// NewVPAService constructs the service.
func NewVPAService(repo vpaStore, requests vpaTrainingRequestLookup, schedules vsrForVPAStore, numbering codeReserver, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *VPAService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &VPAService{
		repo:      repo,
		requests:  requests,
		schedules: schedules,
		numbering: numbering,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// Submit creates or resubmits a learner's project for a level. Submission
// requires the training request at SessionsCompleted or TrainingCompleted.
// A fresh submission always resets the review: status back to Pending, the
// response date cleared, and a snapshot appended to the log.
func (s *VPAService) Submit(ctx context.Context, req dto.SubmitProjectRequest, actor *models.JWTClaims) (*models.ValidationProjectApproval, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid project submission payload")
	}

	request, err := s.requests.FindByLearnerLevel(ctx, actor.UserID, req.CompetencyLevelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no training request exists for this level")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load training request")
	}
	if request.Status != models.TrainingSessionsCompleted && request.Status != models.TrainingCompleted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "training sessions must be completed before submitting a project")
	}

	existing, err := s.repo.FindByLearnerLevel(ctx, actor.UserID, req.CompetencyLevelID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project approval")
	}

	now := timeNow()
	if existing == nil {
		code, err := s.numbering.NextCode(ctx, models.NumberingProjectApproval)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve approval code")
		}
		vpa := &models.ValidationProjectApproval{
			VPACode:           code,
			TRCode:            request.TRCode,
			LearnerUserID:     actor.UserID,
			CompetencyLevelID: req.CompetencyLevelID,
			ProjectURL:        req.ProjectURL,
			ProjectSummary:    req.ProjectSummary,
			Status:            models.VPAPending,
			SubmittedDate:     now,
		}
		if err := s.repo.Create(ctx, vpa); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create project approval")
		}
		s.appendLog(ctx, vpa, models.VPALogSubmit, actor.UserID)
		s.emitAudit(ctx, actor.UserID, models.AuditActionProjectSubmit, vpa)
		return vpa, nil
	}

	if err := s.resubmissionAllowed(ctx, existing, request); err != nil {
		return nil, err
	}

	existing.ProjectURL = req.ProjectURL
	existing.ProjectSummary = req.ProjectSummary
	existing.Status = models.VPAPending
	existing.SubmittedDate = now
	existing.ResponseDate = nil
	existing.ReviewedBy = nil
	existing.ReviewNote = nil
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resubmit project")
	}
	s.appendLog(ctx, existing, models.VPALogSubmit, actor.UserID)
	s.emitAudit(ctx, actor.UserID, models.AuditActionProjectSubmit, existing)
	return existing, nil
}

// resubmissionAllowed enforces the reopen rules: a rejected or
// resubmit-flagged project is always open; an approved one reopens only once
// the whole cycle finished (training completed and validation passed), which
// rolls the schedule request back to pending revalidation.
func (s *VPAService) resubmissionAllowed(ctx context.Context, vpa *models.ValidationProjectApproval, request *models.TrainingRequest) error {
	if vpa.Status.Editable() {
		return nil
	}
	if vpa.Status == models.VPAPending {
		return appErrors.Clone(appErrors.ErrConflict, "project is awaiting review")
	}

	if request.Status != models.TrainingCompleted {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "approved projects reopen only after training is completed")
	}
	vsr, err := s.schedules.FindByVPAID(ctx, vpa.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "approved projects reopen only after validation passed")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule request")
	}
	if vsr.Status != models.VSRPass {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "approved projects reopen only after validation passed")
	}

	vsr.Status = models.VSRPendingRevalidation
	vsr.ScheduledDate = nil
	vsr.OpsValidatorID = nil
	vsr.TrainerValidatorID = nil
	vsr.OutcomeNote = nil
	if err := s.schedules.Update(ctx, vsr); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reopen schedule request")
	}
	return nil
}

// Review records the staff decision. Approval is terminal for the project and
// spawns the schedule request when none exists yet.
func (s *VPAService) Review(ctx context.Context, id string, req dto.ReviewProjectRequest, actor *models.JWTClaims) (*models.ValidationProjectApproval, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	vpa, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project approval not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project approval")
	}
	if vpa.Status != models.VPAPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "project has already been reviewed")
	}

	target := models.VPAStatus(req.Status)
	switch target {
	case models.VPAApproved, models.VPARejected, models.VPAResubmitForRevalidation:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown review status")
	}

	now := timeNow()
	vpa.Status = target
	vpa.ResponseDate = &now
	vpa.ReviewedBy = &actor.UserID
	if req.Note != "" {
		note := req.Note
		vpa.ReviewNote = &note
	}
	if err := s.repo.Update(ctx, vpa); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record review")
	}
	s.appendLog(ctx, vpa, models.VPALogReview, actor.UserID)
	s.emitAudit(ctx, actor.UserID, models.AuditActionProjectReview, vpa)

	if target == models.VPAApproved {
		if err := s.ensureSchedule(ctx, vpa); err != nil {
			return nil, err
		}
	}
	return vpa, nil
}

func (s *VPAService) ensureSchedule(ctx context.Context, vpa *models.ValidationProjectApproval) error {
	if _, err := s.schedules.FindByVPAID(ctx, vpa.ID); err == nil {
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check schedule request")
	}

	code, err := s.numbering.NextCode(ctx, models.NumberingScheduleRequest)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve schedule code")
	}
	vsr := &models.ValidationScheduleRequest{
		VSRCode:           code,
		VPAID:             vpa.ID,
		LearnerUserID:     vpa.LearnerUserID,
		CompetencyLevelID: vpa.CompetencyLevelID,
		Status:            models.VSRPendingValidation,
	}
	if err := s.schedules.Create(ctx, vsr); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule request")
	}
	return nil
}

// Get returns a project approval; learners only see their own.
func (s *VPAService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ValidationProjectApproval, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	vpa, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project approval not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project approval")
	}
	if actor.Role == models.RoleLearner && vpa.LearnerUserID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return vpa, nil
}

// List returns project approvals matching the filter.
func (s *VPAService) List(ctx context.Context, filter models.ValidationFilter, actor *models.JWTClaims) ([]models.ValidationProjectApproval, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleLearner {
		filter.LearnerUserID = actor.UserID
	}
	approvals, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list project approvals")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return approvals, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Logs returns the submission and review history of an approval.
func (s *VPAService) Logs(ctx context.Context, id string, actor *models.JWTClaims) ([]models.VPALog, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	logs, err := s.repo.ListLogs(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list project logs")
	}
	return logs, nil
}

func (s *VPAService) appendLog(ctx context.Context, vpa *models.ValidationProjectApproval, action, actorID string) {
	snapshot, _ := json.Marshal(vpa)
	if err := s.repo.AppendLog(ctx, &models.VPALog{
		VPAID:       vpa.ID,
		Action:      action,
		Snapshot:    snapshot,
		ActorUserID: actorID,
	}); err != nil {
		s.logger.Warn("failed to append project log", zap.Error(err))
	}
}

func (s *VPAService) emitAudit(ctx context.Context, actorID, action string, vpa *models.ValidationProjectApproval) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{"vpa_code": vpa.VPACode, "status": vpa.Status})
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "validation-approvals",
		ResourceID: &vpa.ID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "validation-approval-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
