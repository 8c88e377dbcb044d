package dto

import "time"

// SubmitProjectRequest submits or resubmits a validation project.
type SubmitProjectRequest struct {
	CompetencyLevelID string `json:"competency_level_id" validate:"required"`
	ProjectURL        string `json:"project_url" validate:"required,url"`
	ProjectSummary    string `json:"project_summary"`
}

// ReviewProjectRequest records the staff decision on a submission.
type ReviewProjectRequest struct {
	Status int    `json:"status" validate:"required,oneof=1 2 3"`
	Note   string `json:"note,omitempty"`
}

// ScheduleValidationRequest sets the validation session.
type ScheduleValidationRequest struct {
	ScheduledDate      time.Time `json:"scheduled_date" validate:"required"`
	OpsValidatorID     string    `json:"ops_validator_id" validate:"required"`
	TrainerValidatorID string    `json:"trainer_validator_id" validate:"required"`
}

// ValidationOutcomeRequest records the pass/fail result.
type ValidationOutcomeRequest struct {
	Status int    `json:"status" validate:"required,oneof=3 4"`
	Note   string `json:"note,omitempty"`
}
