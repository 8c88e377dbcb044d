package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/skilltrack/competency-api/internal/dto"
	"github.com/skilltrack/competency-api/internal/models"
	appErrors "github.com/skilltrack/competency-api/pkg/errors"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type trainingRequestStore interface {
	Create(ctx context.Context, request *models.TrainingRequest) error
	FindByID(ctx context.Context, id string) (*models.TrainingRequest, error)
	FindDetailByID(ctx context.Context, id string) (*models.TrainingRequestDetail, error)
	ExistsForLearnerLevel(ctx context.Context, learnerUserID, competencyLevelID string) (bool, error)
	List(ctx context.Context, filter models.TrainingRequestFilter) ([]models.TrainingRequestDetail, int, error)
	Update(ctx context.Context, request *models.TrainingRequest) error
}

type levelResolver interface {
	FindLevelByID(ctx context.Context, id string) (*models.CompetencyLevelDetail, error)
}

type requirementChecker interface {
	MissingRequirements(ctx context.Context, learnerUserID string, level *models.CompetencyLevelDetail) ([]string, error)
}

type codeReserver interface {
	NextCode(ctx context.Context, module models.NumberingModule) (string, error)
}

// TrainingRequestService drives the training request workflow from
// application through completion.
type TrainingRequestService struct {
	repo         trainingRequestStore
	levels       levelResolver
	requirements requirementChecker
	numbering    codeReserver
	audit        auditLogger
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewTrainingRequestService constructs the service.
func NewTrainingRequestService(repo trainingRequestStore, levels levelResolver, requirements requirementChecker, numbering codeReserver, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *TrainingRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TrainingRequestService{
		repo:         repo,
		levels:       levels,
		requirements: requirements,
		numbering:    numbering,
		audit:        audit,
		validator:    validate,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Create applies a learner for a competency level. The duplicate gate runs
// twice: an upfront existence check for a friendly error, and the unique index
// inside the repository as the race-proof authority.
func (s *TrainingRequestService) Create(ctx context.Context, req dto.CreateTrainingRequestRequest, actor *models.JWTClaims) (*models.TrainingRequestDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid training request payload")
	}

	level, err := s.levels.FindLevelByID(ctx, req.CompetencyLevelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "competency level not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load competency level")
	}
	if level.CompetencyStatus != models.CompetencyStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "competency is not published")
	}

	exists, err := s.repo.ExistsForLearnerLevel(ctx, actor.UserID, req.CompetencyLevelID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing request")
	}
	if exists {
		return nil, appErrors.ErrDuplicateRequest
	}

	missing, err := s.requirements.MissingRequirements(ctx, actor.UserID, level)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrRequirementsNotMet, "required competency levels are not completed: "+strings.Join(missing, ", "))
	}

	code, err := s.numbering.NextCode(ctx, models.NumberingTrainingRequest)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve request code")
	}

	request := &models.TrainingRequest{
		TRCode:            code,
		LearnerUserID:     actor.UserID,
		CompetencyLevelID: req.CompetencyLevelID,
		RequestedDate:     s.now(),
		Status:            models.TrainingLookingForTrainer,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create training request")
	}

	payload, _ := json.Marshal(map[string]interface{}{"tr_code": request.TRCode, "competency_level_id": request.CompetencyLevelID})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionTrainingRequestCreate,
		Resource:   "training-requests",
		ResourceID: &request.ID,
		NewValues:  payload,
	})

	return s.repo.FindDetailByID(ctx, request.ID)
}

// Get returns a request with computed due classification. Learners only see
// their own requests.
func (s *TrainingRequestService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.TrainingRequestRow, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "training request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load training request")
	}
	if actor.Role == models.RoleLearner && detail.LearnerUserID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	row := s.toRow(*detail)
	return &row, nil
}

// List returns request rows with due classification computed at read time.
func (s *TrainingRequestService) List(ctx context.Context, filter models.TrainingRequestFilter, actor *models.JWTClaims) ([]models.TrainingRequestRow, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleLearner {
		filter.LearnerUserID = actor.UserID
	}
	details, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list training requests")
	}
	rows := make([]models.TrainingRequestRow, 0, len(details))
	for _, detail := range details {
		rows = append(rows, s.toRow(detail))
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

// Update moves a request through its state machine. Only provided fields
// change; per-transition rules are enforced before anything persists.
func (s *TrainingRequestService) Update(ctx context.Context, id string, req dto.UpdateTrainingRequestRequest, actor *models.JWTClaims) (*models.TrainingRequestRow, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "training request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load training request")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"status": request.Status, "assigned_to": request.AssignedTo})

	if req.Status != nil {
		target := models.TrainingRequestStatus(*req.Status)
		if err := s.applyTransition(request, target, req); err != nil {
			return nil, err
		}
	}
	if req.AssignedTo != nil {
		request.AssignedTo = req.AssignedTo
	}
	if req.ResponseDue != nil {
		request.ResponseDue = req.ResponseDue
	}
	if req.ResponseDate != nil {
		request.ResponseDate = req.ResponseDate
	}
	if req.IsBlocked != nil {
		if *req.IsBlocked {
			if req.BlockedReason == nil || strings.TrimSpace(*req.BlockedReason) == "" {
				return nil, appErrors.Clone(appErrors.ErrValidation, "blocked_reason is required when blocking")
			}
			request.IsBlocked = true
			request.BlockedReason = req.BlockedReason
			request.ExpectedUnblockedDate = req.ExpectedUnblockedDate
		} else {
			request.IsBlocked = false
			request.BlockedReason = nil
			request.ExpectedUnblockedDate = nil
		}
	}
	if req.DefiniteAnswer != nil {
		request.DefiniteAnswer = req.DefiniteAnswer
		if *req.DefiniteAnswer {
			request.FollowUpDate = nil
		}
	}
	if req.FollowUpDate != nil {
		if request.DefiniteAnswer == nil || *request.DefiniteAnswer {
			return nil, appErrors.Clone(appErrors.ErrValidation, "follow_up_date is only allowed without a definite answer")
		}
		request.FollowUpDate = req.FollowUpDate
	}

	if err := s.repo.Update(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update training request")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"status": request.Status, "assigned_to": request.AssignedTo})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionTrainingRequestUpdate,
		Resource:   "training-requests",
		ResourceID: &request.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
	})

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload training request")
	}
	row := s.toRow(*detail)
	return &row, nil
}

func (s *TrainingRequestService) applyTransition(request *models.TrainingRequest, target models.TrainingRequestStatus, req dto.UpdateTrainingRequestRequest) error {
	if !target.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown training request status")
	}
	if request.Status == models.TrainingCompleted {
		return appErrors.Clone(appErrors.ErrConflict, "completed requests cannot change status")
	}
	if target == request.Status {
		return nil
	}

	switch target {
	case models.TrainingOnHold:
		if req.OnHoldBy == nil || !models.OnHoldBy(*req.OnHoldBy).Valid() {
			return appErrors.Clone(appErrors.ErrValidation, "on_hold_by must be Learner or Trainer")
		}
		if req.OnHoldReason == nil || strings.TrimSpace(*req.OnHoldReason) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "on_hold_reason is required")
		}
		holder := models.OnHoldBy(*req.OnHoldBy)
		request.OnHoldBy = &holder
		request.OnHoldReason = req.OnHoldReason
	case models.TrainingDropOff:
		if req.DropOffReason == nil || strings.TrimSpace(*req.DropOffReason) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "drop_off_reason is required")
		}
		request.DropOffReason = req.DropOffReason
	case models.TrainingCompleted:
		if request.Status != models.TrainingSessionsCompleted {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "training must have all sessions completed first")
		}
	}

	if request.Status == models.TrainingOnHold && target != models.TrainingOnHold {
		request.OnHoldBy = nil
		request.OnHoldReason = nil
	}
	if request.Status == models.TrainingDropOff && target != models.TrainingDropOff {
		request.DropOffReason = nil
	}

	// Moving between the early queue states drops any manual deadline so the
	// derived one (+24h, NoBatchMatch +120h) takes over again.
	switch target {
	case models.TrainingLookingForTrainer, models.TrainingInQueue, models.TrainingNoBatchMatch:
		if req.ResponseDue == nil {
			request.ResponseDue = nil
		}
	}

	request.Status = target
	return nil
}

func (s *TrainingRequestService) toRow(detail models.TrainingRequestDetail) models.TrainingRequestRow {
	return models.TrainingRequestRow{
		TrainingRequestDetail: detail,
		StatusLabel:           detail.Status.Label(),
		Due:                   detail.DueStateAt(s.now()),
		NoFollowUpDate:        detail.NoFollowUpDate(),
	}
}

func (s *TrainingRequestService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "training-request-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
