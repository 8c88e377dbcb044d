package models

import (
	"fmt"
	"time"
)

// VPAStatus is the closed set of validation project approval states.
type VPAStatus int

const (
	VPAPending                 VPAStatus = 0
	VPAApproved                VPAStatus = 1
	VPARejected                VPAStatus = 2
	VPAResubmitForRevalidation VPAStatus = 3
)

// Valid reports whether the code is a known state.
func (s VPAStatus) Valid() bool {
	return s >= VPAPending && s <= VPAResubmitForRevalidation
}

// Label returns the display name for the status.
func (s VPAStatus) Label() string {
	switch s {
	case VPAPending:
		return "Pending"
	case VPAApproved:
		return "Approved"
	case VPARejected:
		return "Rejected"
	case VPAResubmitForRevalidation:
		return "Resubmit For Revalidation"
	}
	return fmt.Sprintf("Unknown(%d)", int(s))
}

// Editable reports whether the project form is open for (re)submission.
func (s VPAStatus) Editable() bool {
	return s == VPARejected || s == VPAResubmitForRevalidation
}

// ValidationProjectApproval is a learner's project submission for a level,
// created once the training request qualifies. One per (learner, level);
// the vpa code is assigned at first creation and kept across resubmissions.
type ValidationProjectApproval struct {
	ID                string     `db:"id" json:"id"`
	VPACode           string     `db:"vpa_code" json:"vpa_code"`
	TRCode            string     `db:"tr_code" json:"tr_code"`
	LearnerUserID     string     `db:"learner_user_id" json:"learner_user_id"`
	CompetencyLevelID string     `db:"competency_level_id" json:"competency_level_id"`
	ProjectURL        string     `db:"project_url" json:"project_url"`
	ProjectSummary    string     `db:"project_summary" json:"project_summary"`
	Status            VPAStatus  `db:"status" json:"status"`
	SubmittedDate     time.Time  `db:"submitted_date" json:"submitted_date"`
	ResponseDate      *time.Time `db:"response_date" json:"response_date,omitempty"`
	ReviewedBy        *string    `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewNote        *string    `db:"review_note" json:"review_note,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// VPALog is an append-only record of submissions and reviews.
type VPALog struct {
	ID          string    `db:"id" json:"id"`
	VPAID       string    `db:"vpa_id" json:"vpa_id"`
	Action      string    `db:"action" json:"action"`
	Snapshot    []byte    `db:"snapshot" json:"snapshot,omitempty"`
	ActorUserID string    `db:"actor_user_id" json:"actor_user_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// VPA log actions.
const (
	VPALogSubmit = "SUBMIT"
	VPALogReview = "REVIEW"
)

// VSRStatus is the closed set of validation schedule request states.
type VSRStatus int

const (
	VSRPendingValidation   VSRStatus = 0
	VSRPendingRevalidation VSRStatus = 1
	VSRScheduled           VSRStatus = 2
	VSRFail                VSRStatus = 3
	VSRPass                VSRStatus = 4
)

// Valid reports whether the code is a known state.
func (s VSRStatus) Valid() bool {
	return s >= VSRPendingValidation && s <= VSRPass
}

// Label returns the display name for the status.
func (s VSRStatus) Label() string {
	switch s {
	case VSRPendingValidation:
		return "Pending Validation"
	case VSRPendingRevalidation:
		return "Pending Revalidation"
	case VSRScheduled:
		return "Validation Scheduled"
	case VSRFail:
		return "Fail"
	case VSRPass:
		return "Pass"
	}
	return fmt.Sprintf("Unknown(%d)", int(s))
}

// Terminal reports whether no further transitions are allowed.
func (s VSRStatus) Terminal() bool {
	return s == VSRFail || s == VSRPass
}

// ValidationScheduleRequest schedules the validation session once the
// project is approved. One per (learner, level).
type ValidationScheduleRequest struct {
	ID                 string     `db:"id" json:"id"`
	VSRCode            string     `db:"vsr_code" json:"vsr_code"`
	VPAID              string     `db:"vpa_id" json:"vpa_id"`
	LearnerUserID      string     `db:"learner_user_id" json:"learner_user_id"`
	CompetencyLevelID  string     `db:"competency_level_id" json:"competency_level_id"`
	Status             VSRStatus  `db:"status" json:"status"`
	ScheduledDate      *time.Time `db:"scheduled_date" json:"scheduled_date,omitempty"`
	OpsValidatorID     *string    `db:"ops_validator_id" json:"ops_validator_id,omitempty"`
	TrainerValidatorID *string    `db:"trainer_validator_id" json:"trainer_validator_id,omitempty"`
	OutcomeNote        *string    `db:"outcome_note" json:"outcome_note,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// VSRLog is an append-only record of scheduling and outcome changes.
type VSRLog struct {
	ID          string    `db:"id" json:"id"`
	VSRID       string    `db:"vsr_id" json:"vsr_id"`
	Action      string    `db:"action" json:"action"`
	Snapshot    []byte    `db:"snapshot" json:"snapshot,omitempty"`
	ActorUserID string    `db:"actor_user_id" json:"actor_user_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// VSR log actions.
const (
	VSRLogSchedule = "SCHEDULE"
	VSRLogOutcome  = "OUTCOME"
)

// ValidationFilter constrains VPA/VSR listings.
type ValidationFilter struct {
	LearnerUserID     string
	CompetencyLevelID string
	Status            *int
	Page              int
	PageSize          int
}
