package models

import (
	"fmt"
	"time"
)

// TrainingRequestStatus is the closed set of training request states. The
// integer values are the persisted codes; labels are resolved in code so a
// stored status can never be silently reinterpreted.
type TrainingRequestStatus int

const (
	TrainingNotStarted        TrainingRequestStatus = 0
	TrainingLookingForTrainer TrainingRequestStatus = 1
	TrainingInQueue           TrainingRequestStatus = 2
	TrainingNoBatchMatch      TrainingRequestStatus = 3
	TrainingInProgress        TrainingRequestStatus = 4
	TrainingSessionsCompleted TrainingRequestStatus = 5
	TrainingOnHold            TrainingRequestStatus = 6
	TrainingDropOff           TrainingRequestStatus = 7
	TrainingCompleted         TrainingRequestStatus = 8
)

// Valid reports whether the code is a known state.
func (s TrainingRequestStatus) Valid() bool {
	return s >= TrainingNotStarted && s <= TrainingCompleted
}

// Label returns the display name for the status.
func (s TrainingRequestStatus) Label() string {
	switch s {
	case TrainingNotStarted:
		return "Not Started"
	case TrainingLookingForTrainer:
		return "Looking For Trainer"
	case TrainingInQueue:
		return "In Queue"
	case TrainingNoBatchMatch:
		return "No Batch Match"
	case TrainingInProgress:
		return "In Progress"
	case TrainingSessionsCompleted:
		return "Sessions Completed"
	case TrainingOnHold:
		return "On Hold"
	case TrainingDropOff:
		return "Drop Off"
	case TrainingCompleted:
		return "Training Completed"
	}
	return fmt.Sprintf("Unknown(%d)", int(s))
}

// OnHoldBy identifies who requested the hold.
type OnHoldBy string

const (
	OnHoldByLearner OnHoldBy = "Learner"
	OnHoldByTrainer OnHoldBy = "Trainer"
)

// Valid reports whether the value is a known holder.
func (h OnHoldBy) Valid() bool {
	return h == OnHoldByLearner || h == OnHoldByTrainer
}

// TrainingRequest is a learner's application for a competency level. At most
// one exists per (learner, competency level) pair.
type TrainingRequest struct {
	ID                    string                `db:"id" json:"id"`
	TRCode                string                `db:"tr_code" json:"tr_code"`
	LearnerUserID         string                `db:"learner_user_id" json:"learner_user_id"`
	CompetencyLevelID     string                `db:"competency_level_id" json:"competency_level_id"`
	RequestedDate         time.Time             `db:"requested_date" json:"requested_date"`
	Status                TrainingRequestStatus `db:"status" json:"status"`
	ResponseDue           *time.Time            `db:"response_due" json:"response_due,omitempty"`
	ResponseDate          *time.Time            `db:"response_date" json:"response_date,omitempty"`
	IsBlocked             bool                  `db:"is_blocked" json:"is_blocked"`
	BlockedReason         *string               `db:"blocked_reason" json:"blocked_reason,omitempty"`
	ExpectedUnblockedDate *time.Time            `db:"expected_unblocked_date" json:"expected_unblocked_date,omitempty"`
	OnHoldBy              *OnHoldBy             `db:"on_hold_by" json:"on_hold_by,omitempty"`
	OnHoldReason          *string               `db:"on_hold_reason" json:"on_hold_reason,omitempty"`
	DropOffReason         *string               `db:"drop_off_reason" json:"drop_off_reason,omitempty"`
	DefiniteAnswer        *bool                 `db:"definite_answer" json:"definite_answer,omitempty"`
	FollowUpDate          *time.Time            `db:"follow_up_date" json:"follow_up_date,omitempty"`
	AssignedTo            *string               `db:"assigned_to" json:"assigned_to,omitempty"`
	CreatedAt             time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time             `db:"updated_at" json:"updated_at"`
}

// DueDate resolves the response deadline. The stored response_due column is a
// manual override; when it is absent the deadline derives from the requested
// date: +1 day, or +5 days while no batch matches.
func (r *TrainingRequest) DueDate() time.Time {
	if r.ResponseDue != nil {
		return *r.ResponseDue
	}
	if r.Status == TrainingNoBatchMatch {
		return r.RequestedDate.Add(NoBatchMatchDueOffset)
	}
	return r.RequestedDate.Add(ResponseDueOffset)
}

// NoFollowUpDate is auto-derived when no definite answer was given.
func (r *TrainingRequest) NoFollowUpDate() *time.Time {
	if r.DefiniteAnswer == nil || *r.DefiniteAnswer {
		return nil
	}
	t := r.RequestedDate.Add(NoFollowUpOffset)
	return &t
}

// DueStateAt classifies the request against the given clock. Answered rows
// and rows parked in OnHold or DropOff are never flagged.
func (r *TrainingRequest) DueStateAt(now time.Time) DueState {
	if r.ResponseDate != nil {
		return DueState{}
	}
	if r.Status == TrainingOnHold || r.Status == TrainingDropOff {
		return DueState{}
	}
	return classifyDue(r.DueDate(), now)
}

// TrainingRequestDetail joins learner and catalog context onto a request.
type TrainingRequestDetail struct {
	TrainingRequest
	LearnerName    string    `db:"learner_name" json:"learner_name"`
	CompetencyID   string    `db:"competency_id" json:"competency_id"`
	CompetencyName string    `db:"competency_name" json:"competency_name"`
	LevelName      LevelName `db:"level_name" json:"level_name"`
}

// TrainingRequestRow is a detail row with its computed due classification.
type TrainingRequestRow struct {
	TrainingRequestDetail
	StatusLabel    string     `json:"status_label"`
	Due            DueState   `json:"due"`
	NoFollowUpDate *time.Time `json:"no_follow_up_date,omitempty"`
}

// TrainingRequestFilter constrains listing queries.
type TrainingRequestFilter struct {
	LearnerUserID     string
	CompetencyLevelID string
	AssignedTo        string
	Status            *TrainingRequestStatus
	PendingOnly       bool
	Page              int
	PageSize          int
	SortBy            string
	SortOrder         string
}
