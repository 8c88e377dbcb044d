package models

import "time"

// CompetencyStatus gates learner visibility of a competency.
type CompetencyStatus string

const (
	CompetencyStatusDraft     CompetencyStatus = "draft"
	CompetencyStatusPublished CompetencyStatus = "published"
)

// LevelName is one of the three fixed levels under every competency.
type LevelName string

const (
	LevelBasic     LevelName = "Basic"
	LevelCompetent LevelName = "Competent"
	LevelAdvanced  LevelName = "Advanced"
)

// LevelNames lists the levels in progression order.
var LevelNames = []LevelName{LevelBasic, LevelCompetent, LevelAdvanced}

// Valid reports whether the name is one of the three known levels.
func (n LevelName) Valid() bool {
	switch n {
	case LevelBasic, LevelCompetent, LevelAdvanced:
		return true
	}
	return false
}

// PriorLevels returns the same-competency levels that must be completed
// before this one. These prerequisites are derived, never stored.
func (n LevelName) PriorLevels() []LevelName {
	switch n {
	case LevelCompetent:
		return []LevelName{LevelBasic}
	case LevelAdvanced:
		return []LevelName{LevelBasic, LevelCompetent}
	}
	return nil
}

// Competency is a trainable skill with three levels.
type Competency struct {
	ID        string           `db:"id" json:"id"`
	Name      string           `db:"name" json:"name"`
	Status    CompetencyStatus `db:"status" json:"status"`
	IsDeleted bool             `db:"is_deleted" json:"is_deleted"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// CompetencyLevel holds the per-level training content and trainer assignment.
type CompetencyLevel struct {
	ID           string    `db:"id" json:"id"`
	CompetencyID string    `db:"competency_id" json:"competency_id"`
	Name         LevelName `db:"name" json:"name"`
	Overview     string    `db:"overview" json:"overview"`
	Objectives   string    `db:"objectives" json:"objectives"`
	ProjectBrief string    `db:"project_brief" json:"project_brief"`
	TrainerID    *string   `db:"trainer_id" json:"trainer_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// CompetencyLevelDetail joins the parent competency onto a level row.
type CompetencyLevelDetail struct {
	CompetencyLevel
	CompetencyName   string           `db:"competency_name" json:"competency_name"`
	CompetencyStatus CompetencyStatus `db:"competency_status" json:"competency_status"`
}

// CompetencyRequirement is a manual cross-competency prerequisite edge:
// applying for any level of CompetencyID requires RequiredLevelID completed.
// Unique on (competency_id, required_level_id).
type CompetencyRequirement struct {
	ID              string    `db:"id" json:"id"`
	CompetencyID    string    `db:"competency_id" json:"competency_id"`
	RequiredLevelID string    `db:"required_level_id" json:"required_level_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// CompetencyDetail bundles a competency with its levels and requirement edges.
type CompetencyDetail struct {
	Competency
	Levels       []CompetencyLevel       `json:"levels"`
	Requirements []CompetencyRequirement `json:"requirements"`
}

// CompetencyFilter captures list criteria.
type CompetencyFilter struct {
	Status         *CompetencyStatus
	Search         string
	IncludeDeleted bool
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// LevelApplicability describes whether a learner may apply for a level.
type LevelApplicability struct {
	LevelID       string   `json:"level_id"`
	LevelName     string   `json:"level_name"`
	Applicable    bool     `json:"applicable"`
	Reason        string   `json:"reason,omitempty"`
	MissingLevels []string `json:"missing_levels,omitempty"`
}
