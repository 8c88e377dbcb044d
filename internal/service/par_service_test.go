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

type mockPARRepo struct {
	requests   map[string]models.ProjectAssignmentRequest
	lastFilter models.PARFilter
}

func (m *mockPARRepo) Create(ctx context.Context, par *models.ProjectAssignmentRequest) error {
	if m.requests == nil {
		m.requests = make(map[string]models.ProjectAssignmentRequest)
	}
	par.ID = fmt.Sprintf("par-%d", len(m.requests)+1)
	m.requests[par.ID] = *par
	return nil
}

func (m *mockPARRepo) FindByID(ctx context.Context, id string) (*models.ProjectAssignmentRequest, error) {
	if p, ok := m.requests[id]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPARRepo) List(ctx context.Context, filter models.PARFilter) ([]models.ProjectAssignmentRequest, int, error) {
	m.lastFilter = filter
	out := make([]models.ProjectAssignmentRequest, 0, len(m.requests))
	for _, p := range m.requests {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *mockPARRepo) Update(ctx context.Context, par *models.ProjectAssignmentRequest) error {
	m.requests[par.ID] = *par
	return nil
}

func newPARService(repo *mockPARRepo, levels *mockLevelResolver) *PARService {
	return NewPARService(repo, levels, &mockCodeReserver{}, &mockAuditLogger{}, validator.New(), zap.NewNop())
}

func TestPARServiceCreate(t *testing.T) {
	repo := &mockPARRepo{}
	levels := &mockLevelResolver{levels: map[string]models.CompetencyLevelDetail{"lvl-1": publishedLevel("lvl-1")}}
	svc := newPARService(repo, levels)

	row, err := svc.Create(context.Background(), dto.CreateAssignmentRequest{
		LearnerUserID:     "learner-1",
		CompetencyLevelID: "lvl-1",
	}, staffClaims("staff-1"))
	require.NoError(t, err)
	assert.Equal(t, models.PARNew, row.Status)
	assert.Equal(t, "PAR01", row.PARCode)
	assert.Equal(t, "New", row.StatusLabel)
}

func TestPARServiceCreateUnknownLevel(t *testing.T) {
	svc := newPARService(&mockPARRepo{}, &mockLevelResolver{})

	_, err := svc.Create(context.Background(), dto.CreateAssignmentRequest{
		LearnerUserID:     "learner-1",
		CompetencyLevelID: "missing",
	}, staffClaims("staff-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func seedPAR(repo *mockPARRepo, id string, status models.PARStatus) {
	if repo.requests == nil {
		repo.requests = make(map[string]models.ProjectAssignmentRequest)
	}
	repo.requests[id] = models.ProjectAssignmentRequest{
		ID:                id,
		PARCode:           "PAR01",
		LearnerUserID:     "learner-1",
		CompetencyLevelID: "lvl-1",
		RequestedDate:     time.Now().UTC().Add(-48 * time.Hour),
		Status:            status,
	}
}

func TestPARServiceClosedIsTerminal(t *testing.T) {
	repo := &mockPARRepo{}
	seedPAR(repo, "par-1", models.PARClosed)
	svc := newPARService(repo, &mockLevelResolver{})

	status := int(models.PARInDiscussion)
	_, err := svc.Update(context.Background(), "par-1", dto.UpdateAssignmentRequest{Status: &status}, staffClaims("staff-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestPARServiceFollowUpRequiresNoDefiniteAnswer(t *testing.T) {
	repo := &mockPARRepo{}
	seedPAR(repo, "par-1", models.PARNew)
	svc := newPARService(repo, &mockLevelResolver{})

	followUp := time.Now().UTC().Add(24 * time.Hour)
	_, err := svc.Update(context.Background(), "par-1", dto.UpdateAssignmentRequest{FollowUpDate: &followUp}, staffClaims("staff-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	definite := false
	row, err := svc.Update(context.Background(), "par-1", dto.UpdateAssignmentRequest{DefiniteAnswer: &definite, FollowUpDate: &followUp}, staffClaims("staff-1"))
	require.NoError(t, err)
	require.NotNil(t, row.FollowUpDate)
	require.NotNil(t, row.NoFollowUpDate)
}

func TestPARServiceOverdueClassification(t *testing.T) {
	repo := &mockPARRepo{}
	seedPAR(repo, "par-1", models.PARNew)
	svc := newPARService(repo, &mockLevelResolver{})

	row, err := svc.Get(context.Background(), "par-1", staffClaims("staff-1"))
	require.NoError(t, err)
	assert.True(t, row.Due.Overdue)

	// an answered request is never flagged
	responded := time.Now().UTC()
	par := repo.requests["par-1"]
	par.ResponseDate = &responded
	repo.requests["par-1"] = par

	row, err = svc.Get(context.Background(), "par-1", staffClaims("staff-1"))
	require.NoError(t, err)
	assert.False(t, row.Due.Overdue)
}

func TestPARServiceListScopesLearner(t *testing.T) {
	repo := &mockPARRepo{}
	seedPAR(repo, "par-1", models.PARNew)
	svc := newPARService(repo, &mockLevelResolver{})

	_, _, err := svc.List(context.Background(), models.PARFilter{}, learnerClaims("learner-9"))
	require.NoError(t, err)
	assert.Equal(t, "learner-9", repo.lastFilter.LearnerUserID)
}
