package models

import (
	"fmt"
	"time"
)

// PARStatus is the closed set of project assignment request states.
type PARStatus int

const (
	PARNew          PARStatus = 0
	PARInDiscussion PARStatus = 1
	PARAssigned     PARStatus = 2
	PARDeclined     PARStatus = 3
	PARClosed       PARStatus = 4
)

// Valid reports whether the code is a known state.
func (s PARStatus) Valid() bool {
	return s >= PARNew && s <= PARClosed
}

// Label returns the display name for the status.
func (s PARStatus) Label() string {
	switch s {
	case PARNew:
		return "New"
	case PARInDiscussion:
		return "In Discussion"
	case PARAssigned:
		return "Assigned"
	case PARDeclined:
		return "Declined"
	case PARClosed:
		return "Closed"
	}
	return fmt.Sprintf("Unknown(%d)", int(s))
}

// ProjectAssignmentRequest is the staff-side assignment negotiation running
// in parallel with the validation workflows. Its response-due and follow-up
// derivation mirrors the training request pattern.
type ProjectAssignmentRequest struct {
	ID                string     `db:"id" json:"id"`
	PARCode           string     `db:"par_code" json:"par_code"`
	LearnerUserID     string     `db:"learner_user_id" json:"learner_user_id"`
	CompetencyLevelID string     `db:"competency_level_id" json:"competency_level_id"`
	RequestedDate     time.Time  `db:"requested_date" json:"requested_date"`
	Status            PARStatus  `db:"status" json:"status"`
	ResponseDue       *time.Time `db:"response_due" json:"response_due,omitempty"`
	ResponseDate      *time.Time `db:"response_date" json:"response_date,omitempty"`
	DefiniteAnswer    *bool      `db:"definite_answer" json:"definite_answer,omitempty"`
	FollowUpDate      *time.Time `db:"follow_up_date" json:"follow_up_date,omitempty"`
	AssignedTo        *string    `db:"assigned_to" json:"assigned_to,omitempty"`
	Notes             *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// DueDate resolves the response deadline; the stored column is a manual
// override, otherwise requested date + 1 day while the request is new.
func (r *ProjectAssignmentRequest) DueDate() time.Time {
	if r.ResponseDue != nil {
		return *r.ResponseDue
	}
	return r.RequestedDate.Add(ResponseDueOffset)
}

// NoFollowUpDate is auto-derived when no definite answer was given.
func (r *ProjectAssignmentRequest) NoFollowUpDate() *time.Time {
	if r.DefiniteAnswer == nil || *r.DefiniteAnswer {
		return nil
	}
	t := r.RequestedDate.Add(NoFollowUpOffset)
	return &t
}

// DueStateAt classifies the request against the given clock. Answered rows
// are never flagged.
func (r *ProjectAssignmentRequest) DueStateAt(now time.Time) DueState {
	if r.ResponseDate != nil {
		return DueState{}
	}
	return classifyDue(r.DueDate(), now)
}

// PARRow is a request with its computed due classification.
type PARRow struct {
	ProjectAssignmentRequest
	StatusLabel    string     `json:"status_label"`
	Due            DueState   `json:"due"`
	NoFollowUpDate *time.Time `json:"no_follow_up_date,omitempty"`
}

// PARFilter constrains listing queries.
type PARFilter struct {
	LearnerUserID string
	AssignedTo    string
	Status        *PARStatus
	PendingOnly   bool
	Page          int
	PageSize      int
}
