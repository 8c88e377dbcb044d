package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skilltrack/competency-api/internal/dto"
	"github.com/skilltrack/competency-api/internal/models"
	appErrors "github.com/skilltrack/competency-api/pkg/errors"
)

type mockCompetencyRepo struct {
	competencies map[string]models.Competency
	levels       map[string]models.CompetencyLevel
	requirements map[string]models.CompetencyRequirement
	lastFilter   models.CompetencyFilter
	deleted      []string
}

func (m *mockCompetencyRepo) List(ctx context.Context, filter models.CompetencyFilter) ([]models.Competency, int, error) {
	m.lastFilter = filter
	out := make([]models.Competency, 0, len(m.competencies))
	for _, c := range m.competencies {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *mockCompetencyRepo) FindByID(ctx context.Context, id string) (*models.Competency, error) {
	if c, ok := m.competencies[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCompetencyRepo) FindDetailByID(ctx context.Context, id string) (*models.CompetencyDetail, error) {
	c, ok := m.competencies[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := models.CompetencyDetail{Competency: c}
	for _, l := range m.levels {
		if l.CompetencyID == id {
			detail.Levels = append(detail.Levels, l)
		}
	}
	for _, r := range m.requirements {
		if r.CompetencyID == id {
			detail.Requirements = append(detail.Requirements, r)
		}
	}
	return &detail, nil
}

func (m *mockCompetencyRepo) Create(ctx context.Context, competency *models.Competency, levels []models.CompetencyLevel) error {
	if m.competencies == nil {
		m.competencies = make(map[string]models.Competency)
	}
	if m.levels == nil {
		m.levels = make(map[string]models.CompetencyLevel)
	}
	competency.ID = fmt.Sprintf("comp-%d", len(m.competencies)+1)
	m.competencies[competency.ID] = *competency
	for i, level := range levels {
		level.ID = fmt.Sprintf("%s-lvl-%d", competency.ID, i+1)
		level.CompetencyID = competency.ID
		m.levels[level.ID] = level
	}
	return nil
}

func (m *mockCompetencyRepo) Update(ctx context.Context, competency *models.Competency) error {
	m.competencies[competency.ID] = *competency
	return nil
}

func (m *mockCompetencyRepo) SoftDelete(ctx context.Context, id string) error {
	c := m.competencies[id]
	c.IsDeleted = true
	m.competencies[id] = c
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockCompetencyRepo) ListLevels(ctx context.Context, competencyID string) ([]models.CompetencyLevel, error) {
	var out []models.CompetencyLevel
	for _, name := range models.LevelNames {
		for _, l := range m.levels {
			if l.CompetencyID == competencyID && l.Name == name {
				out = append(out, l)
			}
		}
	}
	return out, nil
}

func (m *mockCompetencyRepo) FindLevelByID(ctx context.Context, id string) (*models.CompetencyLevelDetail, error) {
	if l, ok := m.levels[id]; ok {
		c := m.competencies[l.CompetencyID]
		return &models.CompetencyLevelDetail{CompetencyLevel: l, CompetencyName: c.Name, CompetencyStatus: c.Status}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCompetencyRepo) FindLevelByName(ctx context.Context, competencyID string, name models.LevelName) (*models.CompetencyLevel, error) {
	for _, l := range m.levels {
		if l.CompetencyID == competencyID && l.Name == name {
			level := l
			return &level, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockCompetencyRepo) UpdateLevel(ctx context.Context, level *models.CompetencyLevel) error {
	m.levels[level.ID] = *level
	return nil
}

func (m *mockCompetencyRepo) AddRequirement(ctx context.Context, req *models.CompetencyRequirement) error {
	if m.requirements == nil {
		m.requirements = make(map[string]models.CompetencyRequirement)
	}
	req.ID = fmt.Sprintf("req-%d", len(m.requirements)+1)
	m.requirements[req.ID] = *req
	return nil
}

func (m *mockCompetencyRepo) DeleteRequirement(ctx context.Context, id string) error {
	delete(m.requirements, id)
	return nil
}

func (m *mockCompetencyRepo) ListRequirements(ctx context.Context, competencyID string) ([]models.CompetencyRequirement, error) {
	var out []models.CompetencyRequirement
	for _, r := range m.requirements {
		if r.CompetencyID == competencyID {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockCompletedLister struct {
	completed []string
}

func (m *mockCompletedLister) ListCompletedLevelIDs(ctx context.Context, learnerUserID string, levelIDs []string) ([]string, error) {
	allowed := make(map[string]bool, len(levelIDs))
	for _, id := range levelIDs {
		allowed[id] = true
	}
	var out []string
	for _, id := range m.completed {
		if allowed[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func newCompetencyService(repo *mockCompetencyRepo, completed *mockCompletedLister) *CompetencyService {
	return NewCompetencyService(repo, completed, &mockAuditLogger{}, validator.New(), zap.NewNop())
}

func threeLevels() []dto.LevelContent {
	return []dto.LevelContent{
		{Name: "Basic", Overview: "intro"},
		{Name: "Competent", Overview: "daily work"},
		{Name: "Advanced", Overview: "lead"},
	}
}

func seedCompetency(repo *mockCompetencyRepo, id string, status models.CompetencyStatus) {
	if repo.competencies == nil {
		repo.competencies = make(map[string]models.Competency)
	}
	if repo.levels == nil {
		repo.levels = make(map[string]models.CompetencyLevel)
	}
	repo.competencies[id] = models.Competency{ID: id, Name: "Competency " + id, Status: status}
	for i, name := range models.LevelNames {
		levelID := fmt.Sprintf("%s-lvl-%d", id, i+1)
		repo.levels[levelID] = models.CompetencyLevel{ID: levelID, CompetencyID: id, Name: name}
	}
}

func TestCompetencyServiceCreate(t *testing.T) {
	repo := &mockCompetencyRepo{}
	svc := newCompetencyService(repo, &mockCompletedLister{})

	detail, err := svc.Create(context.Background(), dto.CreateCompetencyRequest{Name: "Go Backend", Levels: threeLevels()}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.CompetencyStatusDraft, detail.Status)
	assert.Len(t, detail.Levels, 3)
}

func TestCompetencyServiceCreateRejectsDuplicateLevels(t *testing.T) {
	svc := newCompetencyService(&mockCompetencyRepo{}, &mockCompletedLister{})

	levels := threeLevels()
	levels[2].Name = "Basic"
	_, err := svc.Create(context.Background(), dto.CreateCompetencyRequest{Name: "Go Backend", Levels: levels}, "admin-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestCompetencyServiceListForcesPublishedForLearners(t *testing.T) {
	repo := &mockCompetencyRepo{}
	seedCompetency(repo, "comp-1", models.CompetencyStatusPublished)
	svc := newCompetencyService(repo, &mockCompletedLister{})

	_, _, err := svc.List(context.Background(), models.CompetencyFilter{IncludeDeleted: true}, learnerClaims("learner-1"))
	require.NoError(t, err)
	require.NotNil(t, repo.lastFilter.Status)
	assert.Equal(t, models.CompetencyStatusPublished, *repo.lastFilter.Status)
	assert.False(t, repo.lastFilter.IncludeDeleted)
}

func TestCompetencyServiceGetHidesDraftFromLearners(t *testing.T) {
	repo := &mockCompetencyRepo{}
	seedCompetency(repo, "comp-1", models.CompetencyStatusDraft)
	svc := newCompetencyService(repo, &mockCompletedLister{})

	_, err := svc.Get(context.Background(), "comp-1", learnerClaims("learner-1"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)

	detail, err := svc.Get(context.Background(), "comp-1", staffClaims("staff-1"))
	require.NoError(t, err)
	assert.Equal(t, "comp-1", detail.ID)
}

func TestCompetencyServiceAddRequirementRejectsSameCompetency(t *testing.T) {
	repo := &mockCompetencyRepo{}
	seedCompetency(repo, "comp-1", models.CompetencyStatusPublished)
	svc := newCompetencyService(repo, &mockCompletedLister{})

	_, err := svc.AddRequirement(context.Background(), "comp-1", dto.AddRequirementRequest{RequiredLevelID: "comp-1-lvl-1"}, "admin-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestCompetencyServiceAddRequirementRejectsDuplicate(t *testing.T) {
	repo := &mockCompetencyRepo{}
	seedCompetency(repo, "comp-1", models.CompetencyStatusPublished)
	seedCompetency(repo, "comp-2", models.CompetencyStatusPublished)
	svc := newCompetencyService(repo, &mockCompletedLister{})

	_, err := svc.AddRequirement(context.Background(), "comp-1", dto.AddRequirementRequest{RequiredLevelID: "comp-2-lvl-1"}, "admin-1")
	require.NoError(t, err)

	_, err = svc.AddRequirement(context.Background(), "comp-1", dto.AddRequirementRequest{RequiredLevelID: "comp-2-lvl-1"}, "admin-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestCompetencyServiceMissingRequirements(t *testing.T) {
	repo := &mockCompetencyRepo{}
	seedCompetency(repo, "comp-1", models.CompetencyStatusPublished)
	seedCompetency(repo, "comp-2", models.CompetencyStatusPublished)
	repo.requirements = map[string]models.CompetencyRequirement{
		"req-1": {ID: "req-1", CompetencyID: "comp-1", RequiredLevelID: "comp-2-lvl-1"},
	}
	completed := &mockCompletedLister{completed: []string{"comp-1-lvl-1"}}
	svc := newCompetencyService(repo, completed)

	// Advanced of comp-1 needs Basic+Competent of comp-1 plus the manual edge.
	level, err := repo.FindLevelByID(context.Background(), "comp-1-lvl-3")
	require.NoError(t, err)

	missing, err := svc.MissingRequirements(context.Background(), "learner-1", level)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"comp-1-lvl-2", "comp-2-lvl-1"}, missing)
}

func TestCompetencyServiceApplicability(t *testing.T) {
	repo := &mockCompetencyRepo{}
	seedCompetency(repo, "comp-1", models.CompetencyStatusPublished)
	completed := &mockCompletedLister{completed: []string{"comp-1-lvl-1"}}
	svc := newCompetencyService(repo, completed)

	result, err := svc.Applicability(context.Background(), "comp-1", "learner-1")
	require.NoError(t, err)
	require.Len(t, result, 3)

	byLevel := make(map[string]models.LevelApplicability, len(result))
	for _, entry := range result {
		byLevel[entry.LevelName] = entry
	}
	assert.True(t, byLevel["Basic"].Applicable)
	assert.True(t, byLevel["Competent"].Applicable)
	assert.False(t, byLevel["Advanced"].Applicable)
	assert.ElementsMatch(t, []string{"comp-1-lvl-2"}, byLevel["Advanced"].MissingLevels)
}

func TestCompetencyServiceDeleteIsSoft(t *testing.T) {
	repo := &mockCompetencyRepo{}
	seedCompetency(repo, "comp-1", models.CompetencyStatusPublished)
	svc := newCompetencyService(repo, &mockCompletedLister{})

	require.NoError(t, svc.Delete(context.Background(), "comp-1", "admin-1"))
	assert.Contains(t, repo.deleted, "comp-1")

	err := svc.Delete(context.Background(), "comp-1", "admin-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
