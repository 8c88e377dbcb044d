package service

import (
	"context"
	"database/sql"
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

type mockVSRRepo struct {
	schedules map[string]models.ValidationScheduleRequest
	logs      []models.VSRLog
}

func (m *mockVSRRepo) FindByID(ctx context.Context, id string) (*models.ValidationScheduleRequest, error) {
	if v, ok := m.schedules[id]; ok {
		return &v, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockVSRRepo) List(ctx context.Context, filter models.ValidationFilter) ([]models.ValidationScheduleRequest, int, error) {
	out := make([]models.ValidationScheduleRequest, 0, len(m.schedules))
	for _, v := range m.schedules {
		if filter.LearnerUserID != "" && v.LearnerUserID != filter.LearnerUserID {
			continue
		}
		out = append(out, v)
	}
	return out, len(out), nil
}

func (m *mockVSRRepo) Update(ctx context.Context, vsr *models.ValidationScheduleRequest) error {
	m.schedules[vsr.ID] = *vsr
	return nil
}

func (m *mockVSRRepo) AppendLog(ctx context.Context, log *models.VSRLog) error {
	m.logs = append(m.logs, *log)
	return nil
}

func (m *mockVSRRepo) ListLogs(ctx context.Context, vsrID string) ([]models.VSRLog, error) {
	return m.logs, nil
}

func newVSRService(repo *mockVSRRepo) *VSRService {
	return NewVSRService(repo, &mockAuditLogger{}, validator.New(), zap.NewNop())
}

func schedulePayload() dto.ScheduleValidationRequest {
	return dto.ScheduleValidationRequest{
		ScheduledDate:      time.Now().UTC().Add(72 * time.Hour),
		OpsValidatorID:     "ops-1",
		TrainerValidatorID: "trainer-1",
	}
}

func TestVSRServiceSchedule(t *testing.T) {
	repo := &mockVSRRepo{schedules: map[string]models.ValidationScheduleRequest{
		"vsr-1": {ID: "vsr-1", VSRCode: "VSR01", LearnerUserID: "learner-1", Status: models.VSRPendingValidation},
	}}
	svc := newVSRService(repo)

	vsr, err := svc.Schedule(context.Background(), "vsr-1", schedulePayload(), staffClaims("staff-1"))
	require.NoError(t, err)
	assert.Equal(t, models.VSRScheduled, vsr.Status)
	require.NotNil(t, vsr.ScheduledDate)
	require.NotNil(t, vsr.OpsValidatorID)
	require.NotNil(t, vsr.TrainerValidatorID)
	require.Len(t, repo.logs, 1)
	assert.Equal(t, models.VSRLogSchedule, repo.logs[0].Action)
}

func TestVSRServiceScheduleFromRevalidation(t *testing.T) {
	repo := &mockVSRRepo{schedules: map[string]models.ValidationScheduleRequest{
		"vsr-1": {ID: "vsr-1", LearnerUserID: "learner-1", Status: models.VSRPendingRevalidation},
	}}
	svc := newVSRService(repo)

	vsr, err := svc.Schedule(context.Background(), "vsr-1", schedulePayload(), staffClaims("staff-1"))
	require.NoError(t, err)
	assert.Equal(t, models.VSRScheduled, vsr.Status)
}

func TestVSRServiceScheduleRejectsNonPending(t *testing.T) {
	repo := &mockVSRRepo{schedules: map[string]models.ValidationScheduleRequest{
		"vsr-1": {ID: "vsr-1", LearnerUserID: "learner-1", Status: models.VSRScheduled},
	}}
	svc := newVSRService(repo)

	_, err := svc.Schedule(context.Background(), "vsr-1", schedulePayload(), staffClaims("staff-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestVSRServiceScheduleRequiresValidators(t *testing.T) {
	repo := &mockVSRRepo{schedules: map[string]models.ValidationScheduleRequest{
		"vsr-1": {ID: "vsr-1", LearnerUserID: "learner-1", Status: models.VSRPendingValidation},
	}}
	svc := newVSRService(repo)

	payload := schedulePayload()
	payload.TrainerValidatorID = ""
	_, err := svc.Schedule(context.Background(), "vsr-1", payload, staffClaims("staff-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestVSRServiceOutcome(t *testing.T) {
	repo := &mockVSRRepo{schedules: map[string]models.ValidationScheduleRequest{
		"vsr-1": {ID: "vsr-1", LearnerUserID: "learner-1", Status: models.VSRScheduled},
	}}
	svc := newVSRService(repo)

	vsr, err := svc.Outcome(context.Background(), "vsr-1", dto.ValidationOutcomeRequest{Status: int(models.VSRPass), Note: "solid demo"}, staffClaims("staff-1"))
	require.NoError(t, err)
	assert.Equal(t, models.VSRPass, vsr.Status)
	require.NotNil(t, vsr.OutcomeNote)
	assert.Equal(t, "solid demo", *vsr.OutcomeNote)
}

func TestVSRServiceOutcomeRequiresScheduled(t *testing.T) {
	repo := &mockVSRRepo{schedules: map[string]models.ValidationScheduleRequest{
		"vsr-1": {ID: "vsr-1", LearnerUserID: "learner-1", Status: models.VSRPendingValidation},
	}}
	svc := newVSRService(repo)

	_, err := svc.Outcome(context.Background(), "vsr-1", dto.ValidationOutcomeRequest{Status: int(models.VSRFail)}, staffClaims("staff-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestVSRServiceOutcomeIsTerminal(t *testing.T) {
	repo := &mockVSRRepo{schedules: map[string]models.ValidationScheduleRequest{
		"vsr-1": {ID: "vsr-1", LearnerUserID: "learner-1", Status: models.VSRScheduled},
	}}
	svc := newVSRService(repo)

	_, err := svc.Outcome(context.Background(), "vsr-1", dto.ValidationOutcomeRequest{Status: int(models.VSRFail)}, staffClaims("staff-1"))
	require.NoError(t, err)

	_, err = svc.Outcome(context.Background(), "vsr-1", dto.ValidationOutcomeRequest{Status: int(models.VSRPass)}, staffClaims("staff-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestVSRServiceGetScopesLearner(t *testing.T) {
	repo := &mockVSRRepo{schedules: map[string]models.ValidationScheduleRequest{
		"vsr-1": {ID: "vsr-1", LearnerUserID: "learner-1", Status: models.VSRPendingValidation},
	}}
	svc := newVSRService(repo)

	_, err := svc.Get(context.Background(), "vsr-1", learnerClaims("someone-else"))
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	vsr, err := svc.Get(context.Background(), "vsr-1", learnerClaims("learner-1"))
	require.NoError(t, err)
	assert.Equal(t, "vsr-1", vsr.ID)
}
