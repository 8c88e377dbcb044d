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

type mockAuditLogger struct {
	logs []models.AuditLog
	err  error
}

func (m *mockAuditLogger) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, *log)
	return nil
}

type mockTrainingRequestRepo struct {
	requests   map[string]models.TrainingRequest
	details    map[string]models.TrainingRequestDetail
	exists     bool
	lastFilter models.TrainingRequestFilter
	createErr  error
}

func (m *mockTrainingRequestRepo) Create(ctx context.Context, request *models.TrainingRequest) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.requests == nil {
		m.requests = make(map[string]models.TrainingRequest)
	}
	if request.ID == "" {
		request.ID = fmt.Sprintf("tr-%d", len(m.requests)+1)
	}
	m.requests[request.ID] = *request
	if m.details == nil {
		m.details = make(map[string]models.TrainingRequestDetail)
	}
	m.details[request.ID] = models.TrainingRequestDetail{TrainingRequest: *request}
	return nil
}

func (m *mockTrainingRequestRepo) FindByID(ctx context.Context, id string) (*models.TrainingRequest, error) {
	if r, ok := m.requests[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTrainingRequestRepo) FindDetailByID(ctx context.Context, id string) (*models.TrainingRequestDetail, error) {
	if d, ok := m.details[id]; ok {
		return &d, nil
	}
	if r, ok := m.requests[id]; ok {
		return &models.TrainingRequestDetail{TrainingRequest: r}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTrainingRequestRepo) ExistsForLearnerLevel(ctx context.Context, learnerUserID, competencyLevelID string) (bool, error) {
	return m.exists, nil
}

func (m *mockTrainingRequestRepo) List(ctx context.Context, filter models.TrainingRequestFilter) ([]models.TrainingRequestDetail, int, error) {
	m.lastFilter = filter
	details := make([]models.TrainingRequestDetail, 0, len(m.details))
	for _, d := range m.details {
		details = append(details, d)
	}
	return details, len(details), nil
}

func (m *mockTrainingRequestRepo) Update(ctx context.Context, request *models.TrainingRequest) error {
	m.requests[request.ID] = *request
	m.details[request.ID] = models.TrainingRequestDetail{TrainingRequest: *request}
	return nil
}

type mockLevelResolver struct {
	levels map[string]models.CompetencyLevelDetail
}

func (m *mockLevelResolver) FindLevelByID(ctx context.Context, id string) (*models.CompetencyLevelDetail, error) {
	if l, ok := m.levels[id]; ok {
		return &l, nil
	}
	return nil, sql.ErrNoRows
}

type mockRequirementChecker struct {
	missing []string
}

func (m *mockRequirementChecker) MissingRequirements(ctx context.Context, learnerUserID string, level *models.CompetencyLevelDetail) ([]string, error) {
	return m.missing, nil
}

type mockCodeReserver struct {
	next int
}

func (m *mockCodeReserver) NextCode(ctx context.Context, module models.NumberingModule) (string, error) {
	m.next++
	return module.FormatCode(m.next), nil
}

func learnerClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleLearner}
}

func staffClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleStaff}
}

func publishedLevel(id string) models.CompetencyLevelDetail {
	return models.CompetencyLevelDetail{
		CompetencyLevel:  models.CompetencyLevel{ID: id, CompetencyID: "comp-1", Name: models.LevelBasic},
		CompetencyName:   "Go Backend",
		CompetencyStatus: models.CompetencyStatusPublished,
	}
}

func newTrainingRequestService(repo *mockTrainingRequestRepo, levels *mockLevelResolver, reqs *mockRequirementChecker, audit *mockAuditLogger) *TrainingRequestService {
	return NewTrainingRequestService(repo, levels, reqs, &mockCodeReserver{}, audit, validator.New(), zap.NewNop())
}

func TestTrainingRequestServiceCreate(t *testing.T) {
	repo := &mockTrainingRequestRepo{}
	levels := &mockLevelResolver{levels: map[string]models.CompetencyLevelDetail{"lvl-1": publishedLevel("lvl-1")}}
	audit := &mockAuditLogger{}
	svc := newTrainingRequestService(repo, levels, &mockRequirementChecker{}, audit)

	detail, err := svc.Create(context.Background(), dto.CreateTrainingRequestRequest{CompetencyLevelID: "lvl-1"}, learnerClaims("learner-1"))
	require.NoError(t, err)
	assert.Equal(t, models.TrainingLookingForTrainer, detail.Status)
	assert.Equal(t, "TR01", detail.TRCode)
	assert.Equal(t, "learner-1", detail.LearnerUserID)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionTrainingRequestCreate, audit.logs[0].Action)
}

func TestTrainingRequestServiceCreateDuplicate(t *testing.T) {
	repo := &mockTrainingRequestRepo{exists: true}
	levels := &mockLevelResolver{levels: map[string]models.CompetencyLevelDetail{"lvl-1": publishedLevel("lvl-1")}}
	svc := newTrainingRequestService(repo, levels, &mockRequirementChecker{}, &mockAuditLogger{})

	_, err := svc.Create(context.Background(), dto.CreateTrainingRequestRequest{CompetencyLevelID: "lvl-1"}, learnerClaims("learner-1"))
	require.ErrorIs(t, err, appErrors.ErrDuplicateRequest)
}

func TestTrainingRequestServiceCreateUnpublished(t *testing.T) {
	level := publishedLevel("lvl-1")
	level.CompetencyStatus = models.CompetencyStatusDraft
	levels := &mockLevelResolver{levels: map[string]models.CompetencyLevelDetail{"lvl-1": level}}
	svc := newTrainingRequestService(&mockTrainingRequestRepo{}, levels, &mockRequirementChecker{}, &mockAuditLogger{})

	_, err := svc.Create(context.Background(), dto.CreateTrainingRequestRequest{CompetencyLevelID: "lvl-1"}, learnerClaims("learner-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestTrainingRequestServiceCreateRequirementsNotMet(t *testing.T) {
	levels := &mockLevelResolver{levels: map[string]models.CompetencyLevelDetail{"lvl-1": publishedLevel("lvl-1")}}
	reqs := &mockRequirementChecker{missing: []string{"lvl-prereq"}}
	svc := newTrainingRequestService(&mockTrainingRequestRepo{}, levels, reqs, &mockAuditLogger{})

	_, err := svc.Create(context.Background(), dto.CreateTrainingRequestRequest{CompetencyLevelID: "lvl-1"}, learnerClaims("learner-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrRequirementsNotMet.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "lvl-prereq")
}

func seedRequest(repo *mockTrainingRequestRepo, id string, status models.TrainingRequestStatus) {
	request := models.TrainingRequest{
		ID:                id,
		TRCode:            "TR01",
		LearnerUserID:     "learner-1",
		CompetencyLevelID: "lvl-1",
		RequestedDate:     time.Now().UTC().Add(-48 * time.Hour),
		Status:            status,
	}
	if repo.requests == nil {
		repo.requests = make(map[string]models.TrainingRequest)
	}
	if repo.details == nil {
		repo.details = make(map[string]models.TrainingRequestDetail)
	}
	repo.requests[id] = request
	repo.details[id] = models.TrainingRequestDetail{TrainingRequest: request}
}

func TestTrainingRequestServiceOnHoldRequiresReason(t *testing.T) {
	repo := &mockTrainingRequestRepo{}
	seedRequest(repo, "tr-1", models.TrainingInProgress)
	svc := newTrainingRequestService(repo, &mockLevelResolver{}, &mockRequirementChecker{}, &mockAuditLogger{})

	status := int(models.TrainingOnHold)
	holder := string(models.OnHoldByLearner)
	_, err := svc.Update(context.Background(), "tr-1", dto.UpdateTrainingRequestRequest{Status: &status, OnHoldBy: &holder}, staffClaims("staff-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	reason := "trainer unavailable"
	row, err := svc.Update(context.Background(), "tr-1", dto.UpdateTrainingRequestRequest{Status: &status, OnHoldBy: &holder, OnHoldReason: &reason}, staffClaims("staff-1"))
	require.NoError(t, err)
	assert.Equal(t, models.TrainingOnHold, row.Status)
	require.NotNil(t, row.OnHoldBy)
	assert.Equal(t, models.OnHoldByLearner, *row.OnHoldBy)
}

func TestTrainingRequestServiceCompletedOnlyAfterSessions(t *testing.T) {
	repo := &mockTrainingRequestRepo{}
	seedRequest(repo, "tr-1", models.TrainingInProgress)
	svc := newTrainingRequestService(repo, &mockLevelResolver{}, &mockRequirementChecker{}, &mockAuditLogger{})

	status := int(models.TrainingCompleted)
	_, err := svc.Update(context.Background(), "tr-1", dto.UpdateTrainingRequestRequest{Status: &status}, staffClaims("staff-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)

	seedRequest(repo, "tr-2", models.TrainingSessionsCompleted)
	row, err := svc.Update(context.Background(), "tr-2", dto.UpdateTrainingRequestRequest{Status: &status}, staffClaims("staff-1"))
	require.NoError(t, err)
	assert.Equal(t, models.TrainingCompleted, row.Status)
}

func TestTrainingRequestServiceCompletedIsTerminal(t *testing.T) {
	repo := &mockTrainingRequestRepo{}
	seedRequest(repo, "tr-1", models.TrainingCompleted)
	svc := newTrainingRequestService(repo, &mockLevelResolver{}, &mockRequirementChecker{}, &mockAuditLogger{})

	status := int(models.TrainingInProgress)
	_, err := svc.Update(context.Background(), "tr-1", dto.UpdateTrainingRequestRequest{Status: &status}, staffClaims("staff-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestTrainingRequestServiceExitHoldClearsFields(t *testing.T) {
	repo := &mockTrainingRequestRepo{}
	seedRequest(repo, "tr-1", models.TrainingOnHold)
	holder := models.OnHoldByTrainer
	reason := "vacation"
	manual := time.Now().UTC().Add(240 * time.Hour)
	request := repo.requests["tr-1"]
	request.OnHoldBy = &holder
	request.OnHoldReason = &reason
	request.ResponseDue = &manual
	repo.requests["tr-1"] = request
	svc := newTrainingRequestService(repo, &mockLevelResolver{}, &mockRequirementChecker{}, &mockAuditLogger{})

	status := int(models.TrainingInQueue)
	row, err := svc.Update(context.Background(), "tr-1", dto.UpdateTrainingRequestRequest{Status: &status}, staffClaims("staff-1"))
	require.NoError(t, err)
	assert.Equal(t, models.TrainingInQueue, row.Status)
	assert.Nil(t, row.OnHoldBy)
	assert.Nil(t, row.OnHoldReason)
	assert.Nil(t, row.ResponseDue)
	// the derived deadline has passed, so the row is overdue again
	assert.True(t, row.Due.Overdue)
}

func TestTrainingRequestServiceFollowUpRequiresNoDefiniteAnswer(t *testing.T) {
	repo := &mockTrainingRequestRepo{}
	seedRequest(repo, "tr-1", models.TrainingLookingForTrainer)
	svc := newTrainingRequestService(repo, &mockLevelResolver{}, &mockRequirementChecker{}, &mockAuditLogger{})

	followUp := time.Now().UTC().Add(24 * time.Hour)
	_, err := svc.Update(context.Background(), "tr-1", dto.UpdateTrainingRequestRequest{FollowUpDate: &followUp}, staffClaims("staff-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	definite := false
	row, err := svc.Update(context.Background(), "tr-1", dto.UpdateTrainingRequestRequest{DefiniteAnswer: &definite, FollowUpDate: &followUp}, staffClaims("staff-1"))
	require.NoError(t, err)
	require.NotNil(t, row.FollowUpDate)
	require.NotNil(t, row.NoFollowUpDate)
}

func TestTrainingRequestServiceListScopesLearner(t *testing.T) {
	repo := &mockTrainingRequestRepo{}
	seedRequest(repo, "tr-1", models.TrainingInQueue)
	svc := newTrainingRequestService(repo, &mockLevelResolver{}, &mockRequirementChecker{}, &mockAuditLogger{})

	_, _, err := svc.List(context.Background(), models.TrainingRequestFilter{}, learnerClaims("learner-9"))
	require.NoError(t, err)
	assert.Equal(t, "learner-9", repo.lastFilter.LearnerUserID)
}

func TestTrainingRequestServiceGetForbiddenForOtherLearner(t *testing.T) {
	repo := &mockTrainingRequestRepo{}
	seedRequest(repo, "tr-1", models.TrainingInQueue)
	svc := newTrainingRequestService(repo, &mockLevelResolver{}, &mockRequirementChecker{}, &mockAuditLogger{})

	_, err := svc.Get(context.Background(), "tr-1", learnerClaims("someone-else"))
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	row, err := svc.Get(context.Background(), "tr-1", learnerClaims("learner-1"))
	require.NoError(t, err)
	assert.Equal(t, "In Queue", row.StatusLabel)
}
