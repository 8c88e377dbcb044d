package dto

import "time"

// CreateTrainingRequestRequest is the learner's application payload.
type CreateTrainingRequestRequest struct {
	CompetencyLevelID string `json:"competency_level_id" validate:"required"`
}

// UpdateTrainingRequestRequest mutates a request through its state machine.
// Only provided fields change; the service enforces per-transition rules.
type UpdateTrainingRequestRequest struct {
	Status                *int       `json:"status,omitempty"`
	AssignedTo            *string    `json:"assigned_to,omitempty"`
	ResponseDue           *time.Time `json:"response_due,omitempty"`
	ResponseDate          *time.Time `json:"response_date,omitempty"`
	IsBlocked             *bool      `json:"is_blocked,omitempty"`
	BlockedReason         *string    `json:"blocked_reason,omitempty"`
	ExpectedUnblockedDate *time.Time `json:"expected_unblocked_date,omitempty"`
	OnHoldBy              *string    `json:"on_hold_by,omitempty"`
	OnHoldReason          *string    `json:"on_hold_reason,omitempty"`
	DropOffReason         *string    `json:"drop_off_reason,omitempty"`
	DefiniteAnswer        *bool      `json:"definite_answer,omitempty"`
	FollowUpDate          *time.Time `json:"follow_up_date,omitempty"`
}
