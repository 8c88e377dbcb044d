package models

import "time"

// Response-due and follow-up offsets shared by the training request and
// project assignment workflows.
const (
	ResponseDueOffset     = 24 * time.Hour
	NoBatchMatchDueOffset = 5 * 24 * time.Hour
	NoFollowUpOffset      = 3 * 24 * time.Hour

	dueSoonWindow = 24 * time.Hour
	nearDueWindow = 3 * 24 * time.Hour
)

// DueState classifies a pending request against the wall clock. The flags are
// informative, not exclusive: an overdue row is also due within 24h and 3d.
type DueState struct {
	Overdue    bool `json:"overdue"`
	DueIn24h   bool `json:"due_in_24h"`
	DueIn3Days bool `json:"due_in_3d"`
}

// classifyDue derives the due flags for an unanswered request.
func classifyDue(due, now time.Time) DueState {
	return DueState{
		Overdue:    due.Before(now),
		DueIn24h:   !due.After(now.Add(dueSoonWindow)),
		DueIn3Days: !due.After(now.Add(nearDueWindow)),
	}
}
