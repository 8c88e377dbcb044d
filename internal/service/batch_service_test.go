package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skilltrack/competency-api/internal/dto"
	"github.com/skilltrack/competency-api/internal/models"
	appErrors "github.com/skilltrack/competency-api/pkg/errors"
)

type mockBatchRepo struct {
	batches    map[string]models.TrainingBatch
	sessions   map[string]models.TrainingBatchSession
	learners   map[string]models.TrainingBatchLearner
	homework   map[string]models.HomeworkSession
	attendance []models.AttendanceSession
	counts     []models.LevelBatchCount
	countCalls int
	lastFilter models.BatchFilter
}

func rosterKey(batchID, learnerUserID string) string {
	return batchID + "/" + learnerUserID
}

func homeworkKey(batchID, learnerUserID, sessionID string) string {
	return batchID + "/" + learnerUserID + "/" + sessionID
}

func (m *mockBatchRepo) Create(ctx context.Context, batch *models.TrainingBatch, sessions []models.TrainingBatchSession) error {
	if m.batches == nil {
		m.batches = make(map[string]models.TrainingBatch)
	}
	if batch.ID == "" {
		batch.ID = fmt.Sprintf("batch-%d", len(m.batches)+1)
	}
	m.batches[batch.ID] = *batch
	if m.sessions == nil {
		m.sessions = make(map[string]models.TrainingBatchSession)
	}
	for i, session := range sessions {
		session.ID = fmt.Sprintf("%s-session-%d", batch.ID, i+1)
		session.BatchID = batch.ID
		m.sessions[session.ID] = session
	}
	return nil
}

func (m *mockBatchRepo) FindByID(ctx context.Context, id string) (*models.TrainingBatch, error) {
	if b, ok := m.batches[id]; ok {
		return &b, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBatchRepo) FindDetailByID(ctx context.Context, id string) (*models.TrainingBatchDetail, error) {
	b, ok := m.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := models.TrainingBatchDetail{TrainingBatch: b}
	for _, s := range m.sessions {
		if s.BatchID == id {
			detail.Sessions = append(detail.Sessions, s)
		}
	}
	for _, l := range m.learners {
		if l.BatchID == id {
			detail.Learners = append(detail.Learners, l)
		}
	}
	return &detail, nil
}

func (m *mockBatchRepo) List(ctx context.Context, filter models.BatchFilter) ([]models.TrainingBatch, int, error) {
	m.lastFilter = filter
	out := make([]models.TrainingBatch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, b)
	}
	return out, len(out), nil
}

func (m *mockBatchRepo) AddLearner(ctx context.Context, learner *models.TrainingBatchLearner) error {
	if m.learners == nil {
		m.learners = make(map[string]models.TrainingBatchLearner)
	}
	learner.ID = fmt.Sprintf("roster-%d", len(m.learners)+1)
	m.learners[rosterKey(learner.BatchID, learner.LearnerUserID)] = *learner
	return nil
}

func (m *mockBatchRepo) FindLearner(ctx context.Context, batchID, learnerUserID string) (*models.TrainingBatchLearner, error) {
	if l, ok := m.learners[rosterKey(batchID, learnerUserID)]; ok {
		return &l, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBatchRepo) FindSession(ctx context.Context, batchID, sessionID string) (*models.TrainingBatchSession, error) {
	if s, ok := m.sessions[sessionID]; ok && s.BatchID == batchID {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBatchRepo) FindHomework(ctx context.Context, batchID, learnerUserID, sessionID string) (*models.HomeworkSession, error) {
	if h, ok := m.homework[homeworkKey(batchID, learnerUserID, sessionID)]; ok {
		return &h, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBatchRepo) UpsertHomework(ctx context.Context, homework *models.HomeworkSession) error {
	if m.homework == nil {
		m.homework = make(map[string]models.HomeworkSession)
	}
	key := homeworkKey(homework.BatchID, homework.LearnerUserID, homework.SessionID)
	if existing, ok := m.homework[key]; ok {
		existing.URL = homework.URL
		existing.SubmittedAt = time.Now().UTC()
		m.homework[key] = existing
		return nil
	}
	homework.ID = fmt.Sprintf("hw-%d", len(m.homework)+1)
	homework.SubmittedAt = time.Now().UTC()
	m.homework[key] = *homework
	return nil
}

func (m *mockBatchRepo) SetHomeworkCompleted(ctx context.Context, batchID, learnerUserID, sessionID string, completed bool, reviewedBy string) error {
	key := homeworkKey(batchID, learnerUserID, sessionID)
	h, ok := m.homework[key]
	if !ok {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	h.Completed = completed
	h.ReviewedAt = &now
	h.ReviewedBy = &reviewedBy
	m.homework[key] = h
	return nil
}

func (m *mockBatchRepo) UpsertAttendance(ctx context.Context, attendance *models.AttendanceSession) error {
	m.attendance = append(m.attendance, *attendance)
	return nil
}

func (m *mockBatchRepo) CountByCompetencyLevel(ctx context.Context) ([]models.LevelBatchCount, error) {
	m.countCalls++
	return m.counts, nil
}

type mockBatchRequestStore struct {
	requests map[string]models.TrainingRequest
}

func (m *mockBatchRequestStore) FindByID(ctx context.Context, id string) (*models.TrainingRequest, error) {
	if r, ok := m.requests[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBatchRequestStore) Update(ctx context.Context, request *models.TrainingRequest) error {
	m.requests[request.ID] = *request
	return nil
}

type mockCountCache struct {
	values  map[string][]byte
	deleted []string
}

func (m *mockCountCache) Get(ctx context.Context, key string, dest interface{}) error {
	if _, ok := m.values[key]; !ok {
		return appErrors.ErrCacheMiss
	}
	if counts, ok := dest.(*[]models.LevelBatchCount); ok {
		*counts = []models.LevelBatchCount{{CompetencyLevelID: "lvl-1", BatchCount: 2}}
	}
	return nil
}

func (m *mockCountCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.values == nil {
		m.values = make(map[string][]byte)
	}
	m.values[key] = []byte("cached")
	return nil
}

func (m *mockCountCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	delete(m.values, pattern)
	return nil
}

func newBatchService(repo *mockBatchRepo, requests *mockBatchRequestStore, cache *mockCountCache) *BatchService {
	return NewBatchService(repo, requests, cache, time.Minute, &mockAuditLogger{}, validator.New(), zap.NewNop())
}

func seedBatch(repo *mockBatchRepo) {
	repo.batches = map[string]models.TrainingBatch{
		"batch-1": {ID: "batch-1", Name: "Go Cohort 1", TrainerID: "trainer-1", CompetencyLevelID: "lvl-1"},
	}
	repo.sessions = map[string]models.TrainingBatchSession{
		"session-1": {ID: "session-1", BatchID: "batch-1", SessionNumber: 1, Topic: "Intro"},
	}
	repo.learners = map[string]models.TrainingBatchLearner{
		rosterKey("batch-1", "learner-1"): {ID: "roster-1", BatchID: "batch-1", TrainingRequestID: "tr-1", LearnerUserID: "learner-1"},
	}
}

func TestBatchServiceCreateRejectsDuplicateSessionNumbers(t *testing.T) {
	svc := newBatchService(&mockBatchRepo{}, &mockBatchRequestStore{}, &mockCountCache{})

	_, err := svc.Create(context.Background(), dto.CreateBatchRequest{
		Name:              "Go Cohort 1",
		TrainerID:         "trainer-1",
		CompetencyLevelID: "lvl-1",
		Sessions: []dto.BatchSessionInput{
			{SessionNumber: 1, Topic: "Intro"},
			{SessionNumber: 1, Topic: "Again"},
		},
	}, staffClaims("staff-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestBatchServiceCreateInvalidatesCountCache(t *testing.T) {
	repo := &mockBatchRepo{}
	cache := &mockCountCache{values: map[string][]byte{batchCountCacheKey: []byte("stale")}}
	svc := newBatchService(repo, &mockBatchRequestStore{}, cache)

	detail, err := svc.Create(context.Background(), dto.CreateBatchRequest{
		Name:              "Go Cohort 1",
		TrainerID:         "trainer-1",
		CompetencyLevelID: "lvl-1",
		Sessions:          []dto.BatchSessionInput{{SessionNumber: 1, Topic: "Intro"}},
	}, staffClaims("staff-1"))
	require.NoError(t, err)
	require.Len(t, detail.Sessions, 1)
	assert.Contains(t, cache.deleted, batchCountCacheKey)
}

func TestBatchServiceAddLearner(t *testing.T) {
	repo := &mockBatchRepo{}
	seedBatch(repo)
	requests := &mockBatchRequestStore{requests: map[string]models.TrainingRequest{
		"tr-2": {ID: "tr-2", LearnerUserID: "learner-2", CompetencyLevelID: "lvl-1", Status: models.TrainingInQueue},
	}}
	svc := newBatchService(repo, requests, &mockCountCache{})

	learner, err := svc.AddLearner(context.Background(), "batch-1", dto.AddBatchLearnerRequest{TrainingRequestID: "tr-2"}, staffClaims("staff-1"))
	require.NoError(t, err)
	assert.Equal(t, "learner-2", learner.LearnerUserID)
	assert.Equal(t, models.TrainingInProgress, requests.requests["tr-2"].Status)
}

func TestBatchServiceAddLearnerLevelMismatch(t *testing.T) {
	repo := &mockBatchRepo{}
	seedBatch(repo)
	requests := &mockBatchRequestStore{requests: map[string]models.TrainingRequest{
		"tr-2": {ID: "tr-2", LearnerUserID: "learner-2", CompetencyLevelID: "lvl-other", Status: models.TrainingInQueue},
	}}
	svc := newBatchService(repo, requests, &mockCountCache{})

	_, err := svc.AddLearner(context.Background(), "batch-1", dto.AddBatchLearnerRequest{TrainingRequestID: "tr-2"}, staffClaims("staff-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestBatchServiceAddLearnerAlreadyInBatch(t *testing.T) {
	repo := &mockBatchRepo{}
	seedBatch(repo)
	requests := &mockBatchRequestStore{requests: map[string]models.TrainingRequest{
		"tr-1": {ID: "tr-1", LearnerUserID: "learner-1", CompetencyLevelID: "lvl-1", Status: models.TrainingInProgress},
	}}
	svc := newBatchService(repo, requests, &mockCountCache{})

	_, err := svc.AddLearner(context.Background(), "batch-1", dto.AddBatchLearnerRequest{TrainingRequestID: "tr-1"}, staffClaims("staff-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestBatchServiceSubmitHomework(t *testing.T) {
	repo := &mockBatchRepo{}
	seedBatch(repo)
	svc := newBatchService(repo, &mockBatchRequestStore{}, &mockCountCache{})

	homework, err := svc.SubmitHomework(context.Background(), "batch-1", dto.SubmitHomeworkRequest{
		SessionID: "session-1",
		URL:       "https://git.example.com/learner/homework",
	}, learnerClaims("learner-1"))
	require.NoError(t, err)
	assert.False(t, homework.Completed)
	assert.Equal(t, "https://git.example.com/learner/homework", homework.URL)
}

func TestBatchServiceSubmitHomeworkOutsideRoster(t *testing.T) {
	repo := &mockBatchRepo{}
	seedBatch(repo)
	svc := newBatchService(repo, &mockBatchRequestStore{}, &mockCountCache{})

	_, err := svc.SubmitHomework(context.Background(), "batch-1", dto.SubmitHomeworkRequest{
		SessionID: "session-1",
		URL:       "https://git.example.com/learner/homework",
	}, learnerClaims("not-in-batch"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestBatchServiceHomeworkClosedAfterReview(t *testing.T) {
	repo := &mockBatchRepo{}
	seedBatch(repo)
	repo.homework = map[string]models.HomeworkSession{
		homeworkKey("batch-1", "learner-1", "session-1"): {
			ID: "hw-1", BatchID: "batch-1", LearnerUserID: "learner-1", SessionID: "session-1",
			URL: "https://git.example.com/learner/homework", Completed: true,
		},
	}
	svc := newBatchService(repo, &mockBatchRequestStore{}, &mockCountCache{})

	_, err := svc.SubmitHomework(context.Background(), "batch-1", dto.SubmitHomeworkRequest{
		SessionID: "session-1",
		URL:       "https://git.example.com/learner/homework-v2",
	}, learnerClaims("learner-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestBatchServiceReviewHomeworkTrainerOnly(t *testing.T) {
	repo := &mockBatchRepo{}
	seedBatch(repo)
	repo.homework = map[string]models.HomeworkSession{
		homeworkKey("batch-1", "learner-1", "session-1"): {
			ID: "hw-1", BatchID: "batch-1", LearnerUserID: "learner-1", SessionID: "session-1",
			URL: "https://git.example.com/learner/homework",
		},
	}
	svc := newBatchService(repo, &mockBatchRequestStore{}, &mockCountCache{})

	otherTrainer := &models.JWTClaims{UserID: "trainer-2", Role: models.RoleTrainer}
	err := svc.ReviewHomework(context.Background(), "batch-1", dto.ReviewHomeworkRequest{
		LearnerUserID: "learner-1", SessionID: "session-1", Completed: true,
	}, otherTrainer)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	batchTrainer := &models.JWTClaims{UserID: "trainer-1", Role: models.RoleTrainer}
	err = svc.ReviewHomework(context.Background(), "batch-1", dto.ReviewHomeworkRequest{
		LearnerUserID: "learner-1", SessionID: "session-1", Completed: true,
	}, batchTrainer)
	require.NoError(t, err)

	homework := repo.homework[homeworkKey("batch-1", "learner-1", "session-1")]
	assert.True(t, homework.Completed)
	require.NotNil(t, homework.ReviewedBy)
	assert.Equal(t, "trainer-1", *homework.ReviewedBy)
}

func TestBatchServiceRecordAttendance(t *testing.T) {
	repo := &mockBatchRepo{}
	seedBatch(repo)
	svc := newBatchService(repo, &mockBatchRequestStore{}, &mockCountCache{})

	err := svc.RecordAttendance(context.Background(), "batch-1", dto.RecordAttendanceRequest{
		LearnerUserID: "learner-1", SessionID: "session-1", Present: true,
	}, &models.JWTClaims{UserID: "trainer-1", Role: models.RoleTrainer})
	require.NoError(t, err)
	require.Len(t, repo.attendance, 1)
	assert.True(t, repo.attendance[0].Present)
	assert.Equal(t, "trainer-1", repo.attendance[0].RecordedBy)
}

func TestBatchServiceCountUsesCache(t *testing.T) {
	repo := &mockBatchRepo{counts: []models.LevelBatchCount{{CompetencyLevelID: "lvl-1", BatchCount: 2}}}
	cache := &mockCountCache{}
	svc := newBatchService(repo, &mockBatchRequestStore{}, cache)

	counts, fromCache, err := svc.CountByCompetencyLevel(context.Background())
	require.NoError(t, err)
	assert.False(t, fromCache)
	require.Len(t, counts, 1)
	assert.Equal(t, 1, repo.countCalls)

	counts, fromCache, err = svc.CountByCompetencyLevel(context.Background())
	require.NoError(t, err)
	assert.True(t, fromCache)
	require.Len(t, counts, 1)
	assert.Equal(t, 1, repo.countCalls)
}

func TestBatchServiceListScopesTrainer(t *testing.T) {
	repo := &mockBatchRepo{}
	seedBatch(repo)
	svc := newBatchService(repo, &mockBatchRequestStore{}, &mockCountCache{})

	_, _, err := svc.List(context.Background(), models.BatchFilter{}, &models.JWTClaims{UserID: "trainer-1", Role: models.RoleTrainer})
	require.NoError(t, err)
	assert.Equal(t, "trainer-1", repo.lastFilter.TrainerID)
}
