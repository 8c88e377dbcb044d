package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTrainingRequestDueDateDerivation(t *testing.T) {
	requested := date(2025, time.November, 10)

	req := TrainingRequest{RequestedDate: requested, Status: TrainingLookingForTrainer}
	assert.Equal(t, date(2025, time.November, 11), req.DueDate())

	req.Status = TrainingNoBatchMatch
	assert.Equal(t, date(2025, time.November, 15), req.DueDate())
}

func TestTrainingRequestDueDateOverride(t *testing.T) {
	requested := date(2025, time.November, 10)
	override := date(2025, time.December, 1)

	req := TrainingRequest{RequestedDate: requested, Status: TrainingNoBatchMatch, ResponseDue: &override}
	assert.Equal(t, override, req.DueDate())
}

func TestTrainingRequestDueState(t *testing.T) {
	now := date(2025, time.November, 20)

	overdue := TrainingRequest{RequestedDate: now.Add(-72 * time.Hour), Status: TrainingLookingForTrainer}
	state := overdue.DueStateAt(now)
	assert.True(t, state.Overdue)
	assert.True(t, state.DueIn24h)
	assert.True(t, state.DueIn3Days)

	nearDue := TrainingRequest{RequestedDate: now.Add(24 * time.Hour), Status: TrainingInQueue}
	state = nearDue.DueStateAt(now)
	assert.False(t, state.Overdue)
	assert.False(t, state.DueIn24h)
	assert.True(t, state.DueIn3Days)

	farOut := TrainingRequest{RequestedDate: now.Add(10 * 24 * time.Hour), Status: TrainingInQueue}
	assert.Equal(t, DueState{}, farOut.DueStateAt(now))
}

func TestTrainingRequestDueStateSuppressedWhenAnswered(t *testing.T) {
	now := date(2025, time.November, 20)
	responded := now.Add(-time.Hour)

	req := TrainingRequest{
		RequestedDate: now.Add(-10 * 24 * time.Hour),
		Status:        TrainingLookingForTrainer,
		ResponseDate:  &responded,
	}
	assert.Equal(t, DueState{}, req.DueStateAt(now))
}

func TestTrainingRequestDueStateSuppressedOnHoldDropOff(t *testing.T) {
	now := date(2025, time.November, 20)

	for _, status := range []TrainingRequestStatus{TrainingOnHold, TrainingDropOff} {
		req := TrainingRequest{RequestedDate: now.Add(-10 * 24 * time.Hour), Status: status}
		assert.Equal(t, DueState{}, req.DueStateAt(now), status.Label())
	}
}

func TestTrainingRequestNoFollowUpDate(t *testing.T) {
	requested := date(2025, time.November, 10)
	yes, no := true, false

	req := TrainingRequest{RequestedDate: requested}
	assert.Nil(t, req.NoFollowUpDate())

	req.DefiniteAnswer = &yes
	assert.Nil(t, req.NoFollowUpDate())

	req.DefiniteAnswer = &no
	derived := req.NoFollowUpDate()
	if assert.NotNil(t, derived) {
		assert.Equal(t, date(2025, time.November, 13), *derived)
	}
}

func TestTrainingRequestStatusLabels(t *testing.T) {
	labels := map[TrainingRequestStatus]string{
		TrainingNotStarted:        "Not Started",
		TrainingLookingForTrainer: "Looking For Trainer",
		TrainingInQueue:           "In Queue",
		TrainingNoBatchMatch:      "No Batch Match",
		TrainingInProgress:        "In Progress",
		TrainingSessionsCompleted: "Sessions Completed",
		TrainingOnHold:            "On Hold",
		TrainingDropOff:           "Drop Off",
		TrainingCompleted:         "Training Completed",
	}
	for status, label := range labels {
		assert.Equal(t, label, status.Label())
		assert.True(t, status.Valid())
	}
	assert.False(t, TrainingRequestStatus(9).Valid())
	assert.False(t, TrainingRequestStatus(-1).Valid())
}

func TestLevelPriorLevels(t *testing.T) {
	assert.Empty(t, LevelBasic.PriorLevels())
	assert.Equal(t, []LevelName{LevelBasic}, LevelCompetent.PriorLevels())
	assert.Equal(t, []LevelName{LevelBasic, LevelCompetent}, LevelAdvanced.PriorLevels())
}

func TestFormatCode(t *testing.T) {
	assert.Equal(t, "TR01", NumberingTrainingRequest.FormatCode(1))
	assert.Equal(t, "VPA12", NumberingProjectApproval.FormatCode(12))
	assert.Equal(t, "VSR07", NumberingScheduleRequest.FormatCode(7))
	assert.Equal(t, "PAR103", NumberingProjectAssignment.FormatCode(103))
}
