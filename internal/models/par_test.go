package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPARDueDateMirrorsTrainingRequest(t *testing.T) {
	requested := date(2025, time.November, 10)

	par := ProjectAssignmentRequest{RequestedDate: requested, Status: PARNew}
	assert.Equal(t, date(2025, time.November, 11), par.DueDate())

	override := date(2025, time.November, 20)
	par.ResponseDue = &override
	assert.Equal(t, override, par.DueDate())
}

func TestPARNoFollowUpDate(t *testing.T) {
	no := false
	par := ProjectAssignmentRequest{RequestedDate: date(2025, time.November, 10), DefiniteAnswer: &no}

	derived := par.NoFollowUpDate()
	if assert.NotNil(t, derived) {
		assert.Equal(t, date(2025, time.November, 13), *derived)
	}
}

func TestPARDueStateSuppressedWhenAnswered(t *testing.T) {
	now := date(2025, time.November, 20)
	responded := now.Add(-time.Hour)

	par := ProjectAssignmentRequest{RequestedDate: now.Add(-5 * 24 * time.Hour), ResponseDate: &responded}
	assert.Equal(t, DueState{}, par.DueStateAt(now))

	par.ResponseDate = nil
	assert.True(t, par.DueStateAt(now).Overdue)
}

func TestPARStatusLabels(t *testing.T) {
	labels := map[PARStatus]string{
		PARNew:          "New",
		PARInDiscussion: "In Discussion",
		PARAssigned:     "Assigned",
		PARDeclined:     "Declined",
		PARClosed:       "Closed",
	}
	for status, label := range labels {
		assert.Equal(t, label, status.Label())
		assert.True(t, status.Valid())
	}
	assert.False(t, PARStatus(5).Valid())
}

func TestVPAStatusEditable(t *testing.T) {
	assert.False(t, VPAPending.Editable())
	assert.False(t, VPAApproved.Editable())
	assert.True(t, VPARejected.Editable())
	assert.True(t, VPAResubmitForRevalidation.Editable())
}

func TestVSRStatusTerminal(t *testing.T) {
	assert.False(t, VSRPendingValidation.Terminal())
	assert.False(t, VSRScheduled.Terminal())
	assert.True(t, VSRFail.Terminal())
	assert.True(t, VSRPass.Terminal())
}

func TestPermissionMatrix(t *testing.T) {
	assert.True(t, Allowed(RoleAdmin, ModuleUsers, ActionDelete))
	assert.True(t, Allowed(RoleLearner, ModuleTrainingRequests, ActionAdd))
	assert.False(t, Allowed(RoleLearner, ModuleTrainingRequests, ActionDelete))
	assert.False(t, Allowed(RoleLearner, ModuleUsers, ActionList))
	assert.True(t, Allowed(RoleTrainer, ModuleBatches, ActionAdd))
	assert.False(t, Allowed(RoleTrainer, ModuleValidationApprovals, ActionEdit))
	assert.True(t, Allowed(RoleStaff, ModuleActivityLog, ActionList))
	assert.False(t, Allowed(UserRole("GUEST"), ModuleCompetencies, ActionList))
}
