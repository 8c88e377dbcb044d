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

const batchCountCacheKey = "batches:count-by-competency-level"

type batchStore interface {
	Create(ctx context.Context, batch *models.TrainingBatch, sessions []models.TrainingBatchSession) error
	FindByID(ctx context.Context, id string) (*models.TrainingBatch, error)
	FindDetailByID(ctx context.Context, id string) (*models.TrainingBatchDetail, error)
	List(ctx context.Context, filter models.BatchFilter) ([]models.TrainingBatch, int, error)
	AddLearner(ctx context.Context, learner *models.TrainingBatchLearner) error
	FindLearner(ctx context.Context, batchID, learnerUserID string) (*models.TrainingBatchLearner, error)
	FindSession(ctx context.Context, batchID, sessionID string) (*models.TrainingBatchSession, error)
	FindHomework(ctx context.Context, batchID, learnerUserID, sessionID string) (*models.HomeworkSession, error)
	UpsertHomework(ctx context.Context, homework *models.HomeworkSession) error
	SetHomeworkCompleted(ctx context.Context, batchID, learnerUserID, sessionID string, completed bool, reviewedBy string) error
	UpsertAttendance(ctx context.Context, attendance *models.AttendanceSession) error
	CountByCompetencyLevel(ctx context.Context) ([]models.LevelBatchCount, error)
}

type batchTrainingRequestStore interface {
	FindByID(ctx context.Context, id string) (*models.TrainingRequest, error)
	Update(ctx context.Context, request *models.TrainingRequest) error
}

type countCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// BatchService manages training batches, rosters, homework and attendance.
type BatchService struct {
	repo      batchStore
	requests  batchTrainingRequestStore
	cache     countCache
	cacheTTL  time.Duration
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBatchService constructs the service.
func NewBatchService(repo batchStore, requests batchTrainingRequestStore, cache countCache, cacheTTL time.Duration, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *BatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &BatchService{
		repo:      repo,
		requests:  requests,
		cache:     cache,
		cacheTTL:  cacheTTL,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// Create stores a batch with its ordered sessions.
func (s *BatchService) Create(ctx context.Context, req dto.CreateBatchRequest, actor *models.JWTClaims) (*models.TrainingBatchDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}

	seen := make(map[int]bool, len(req.Sessions))
	sessions := make([]models.TrainingBatchSession, 0, len(req.Sessions))
	for _, input := range req.Sessions {
		if seen[input.SessionNumber] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "session numbers must be unique within a batch")
		}
		seen[input.SessionNumber] = true
		sessions = append(sessions, models.TrainingBatchSession{
			SessionNumber: input.SessionNumber,
			Topic:         input.Topic,
			ScheduledAt:   input.ScheduledAt,
		})
	}

	batch := &models.TrainingBatch{
		Name:              req.Name,
		TrainerID:         req.TrainerID,
		CompetencyLevelID: req.CompetencyLevelID,
		StartDate:         req.StartDate,
	}
	if err := s.repo.Create(ctx, batch, sessions); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch")
	}
	s.invalidateCounts(ctx)

	payload, _ := json.Marshal(map[string]interface{}{"name": batch.Name, "competency_level_id": batch.CompetencyLevelID})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionBatchCreate,
		Resource:   "batches",
		ResourceID: &batch.ID,
		NewValues:  payload,
	})

	return s.repo.FindDetailByID(ctx, batch.ID)
}

// AddLearner joins a learner into a batch through their training request.
// The request must target the batch's competency level, and joining moves it
// into InProgress.
func (s *BatchService) AddLearner(ctx context.Context, batchID string, req dto.AddBatchLearnerRequest, actor *models.JWTClaims) (*models.TrainingBatchLearner, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid learner payload")
	}

	batch, err := s.repo.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}

	request, err := s.requests.FindByID(ctx, req.TrainingRequestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "training request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load training request")
	}
	if request.CompetencyLevelID != batch.CompetencyLevelID {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "training request targets a different competency level")
	}
	switch request.Status {
	case models.TrainingOnHold, models.TrainingDropOff, models.TrainingCompleted:
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "training request is not joinable")
	}

	if _, err := s.repo.FindLearner(ctx, batchID, request.LearnerUserID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "learner is already in this batch")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check batch roster")
	}

	learner := &models.TrainingBatchLearner{
		BatchID:           batchID,
		TrainingRequestID: request.ID,
		LearnerUserID:     request.LearnerUserID,
	}
	if err := s.repo.AddLearner(ctx, learner); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add learner to batch")
	}

	if request.Status != models.TrainingInProgress {
		request.Status = models.TrainingInProgress
		if err := s.requests.Update(ctx, request); err != nil {
			s.logger.Warn("failed to move training request into progress", zap.Error(err))
		}
	}

	payload, _ := json.Marshal(map[string]interface{}{"training_request_id": request.ID, "learner_user_id": request.LearnerUserID})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionBatchAddLearner,
		Resource:   "batches",
		ResourceID: &batchID,
		NewValues:  payload,
	})
	return learner, nil
}

// SubmitHomework upserts the learner's homework URL for a session. Once a
// trainer marked it completed, resubmission is rejected.
func (s *BatchService) SubmitHomework(ctx context.Context, batchID string, req dto.SubmitHomeworkRequest, actor *models.JWTClaims) (*models.HomeworkSession, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid homework payload")
	}

	if _, err := s.repo.FindLearner(ctx, batchID, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "learner is not part of this batch")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check batch roster")
	}
	if _, err := s.repo.FindSession(ctx, batchID, req.SessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found in this batch")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	existing, err := s.repo.FindHomework(ctx, batchID, actor.UserID, req.SessionID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load homework")
	}
	if existing != nil && existing.Completed {
		return nil, appErrors.Clone(appErrors.ErrConflict, "homework has been reviewed and is closed for resubmission")
	}

	homework := &models.HomeworkSession{
		BatchID:       batchID,
		LearnerUserID: actor.UserID,
		SessionID:     req.SessionID,
		URL:           req.URL,
	}
	if err := s.repo.UpsertHomework(ctx, homework); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit homework")
	}

	payload, _ := json.Marshal(map[string]interface{}{"session_id": req.SessionID, "url": req.URL})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionHomeworkSubmit,
		Resource:   "batches",
		ResourceID: &batchID,
		NewValues:  payload,
	})
	return s.repo.FindHomework(ctx, batchID, actor.UserID, req.SessionID)
}

// ReviewHomework toggles the trainer-controlled completed flag.
func (s *BatchService) ReviewHomework(ctx context.Context, batchID string, req dto.ReviewHomeworkRequest, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	batch, err := s.repo.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if actor.Role == models.RoleTrainer && batch.TrainerID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the batch trainer may review homework")
	}

	if _, err := s.repo.FindHomework(ctx, batchID, req.LearnerUserID, req.SessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "homework not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load homework")
	}

	if err := s.repo.SetHomeworkCompleted(ctx, batchID, req.LearnerUserID, req.SessionID, req.Completed, actor.UserID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review homework")
	}

	payload, _ := json.Marshal(map[string]interface{}{"learner_user_id": req.LearnerUserID, "session_id": req.SessionID, "completed": req.Completed})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionHomeworkReview,
		Resource:   "batches",
		ResourceID: &batchID,
		NewValues:  payload,
	})
	return nil
}

// RecordAttendance upserts an attendance mark, independent of homework.
func (s *BatchService) RecordAttendance(ctx context.Context, batchID string, req dto.RecordAttendanceRequest, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	if _, err := s.repo.FindSession(ctx, batchID, req.SessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found in this batch")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if _, err := s.repo.FindLearner(ctx, batchID, req.LearnerUserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "learner is not part of this batch")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check batch roster")
	}

	attendance := &models.AttendanceSession{
		BatchID:       batchID,
		LearnerUserID: req.LearnerUserID,
		SessionID:     req.SessionID,
		Present:       req.Present,
		RecordedBy:    actor.UserID,
	}
	if err := s.repo.UpsertAttendance(ctx, attendance); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	payload, _ := json.Marshal(map[string]interface{}{"learner_user_id": req.LearnerUserID, "session_id": req.SessionID, "present": req.Present})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionAttendanceRecord,
		Resource:   "batches",
		ResourceID: &batchID,
		NewValues:  payload,
	})
	return nil
}

// Get returns a batch with sessions, roster and homework.
func (s *BatchService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.TrainingBatchDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return detail, nil
}

// List returns batches, optionally narrowed to one training request.
func (s *BatchService) List(ctx context.Context, filter models.BatchFilter, actor *models.JWTClaims) ([]models.TrainingBatch, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleTrainer {
		filter.TrainerID = actor.UserID
	}
	batches, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return batches, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// CountByCompetencyLevel aggregates batch counts per level, served from the
// cache when warm.
func (s *BatchService) CountByCompetencyLevel(ctx context.Context) ([]models.LevelBatchCount, bool, error) {
	if s.cache != nil {
		var cached []models.LevelBatchCount
		if err := s.cache.Get(ctx, batchCountCacheKey, &cached); err == nil {
			return cached, true, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("failed to read batch count cache", zap.Error(err))
		}
	}

	counts, err := s.repo.CountByCompetencyLevel(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count batches")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, batchCountCacheKey, counts, s.cacheTTL); err != nil {
			s.logger.Warn("failed to write batch count cache", zap.Error(err))
		}
	}
	return counts, false, nil
}

func (s *BatchService) invalidateCounts(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, batchCountCacheKey); err != nil {
		s.logger.Warn("failed to invalidate batch count cache", zap.Error(err))
	}
}

func (s *BatchService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "batch-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
