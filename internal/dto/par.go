package dto

import "time"

// CreateAssignmentRequest opens a project assignment negotiation.
type CreateAssignmentRequest struct {
	LearnerUserID     string  `json:"learner_user_id" validate:"required"`
	CompetencyLevelID string  `json:"competency_level_id" validate:"required"`
	AssignedTo        *string `json:"assigned_to,omitempty"`
	Notes             *string `json:"notes,omitempty"`
}

// UpdateAssignmentRequest mutates an assignment request. Only provided
// fields change.
type UpdateAssignmentRequest struct {
	Status         *int       `json:"status,omitempty"`
	AssignedTo     *string    `json:"assigned_to,omitempty"`
	ResponseDue    *time.Time `json:"response_due,omitempty"`
	ResponseDate   *time.Time `json:"response_date,omitempty"`
	DefiniteAnswer *bool      `json:"definite_answer,omitempty"`
	FollowUpDate   *time.Time `json:"follow_up_date,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
}
