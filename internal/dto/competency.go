package dto

// LevelContent carries the free-text content for one level.
type LevelContent struct {
	Name         string  `json:"name" validate:"required,oneof=Basic Competent Advanced"`
	Overview     string  `json:"overview"`
	Objectives   string  `json:"objectives"`
	ProjectBrief string  `json:"project_brief"`
	TrainerID    *string `json:"trainer_id,omitempty"`
}

// CreateCompetencyRequest creates a competency with its three levels.
type CreateCompetencyRequest struct {
	Name   string         `json:"name" validate:"required"`
	Levels []LevelContent `json:"levels" validate:"required,len=3,dive"`
}

// UpdateCompetencyRequest updates competency attributes and level content.
type UpdateCompetencyRequest struct {
	Name   *string        `json:"name,omitempty"`
	Status *string        `json:"status,omitempty" validate:"omitempty,oneof=draft published"`
	Levels []LevelContent `json:"levels,omitempty" validate:"omitempty,dive"`
}

// AddRequirementRequest declares a manual cross-competency prerequisite.
type AddRequirementRequest struct {
	RequiredLevelID string `json:"required_level_id" validate:"required"`
}
