package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cadenceflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostponeStepMovesDueDate(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(2024, time.January, 1)
	eng, db := newTestEngine(t, clock)
	contact := seedContact(t, db, "Ada", "Lovelace", "Analytical")
	cadence := seedCadence(t, eng, 0, 3)
	stepID := cadence.Steps[0].ID

	enrollment, err := eng.Enroll(ctx, contact.ID, cadence.ID, 1)
	require.NoError(t, err)

	require.NoError(t, eng.PostponeStep(ctx, enrollment.ID, stepID, date(2024, time.January, 10)))

	states := loadStates(t, db, enrollment.ID)
	assert.Equal(t, "2024-01-10", states[stepID].DueOn.String())
	assert.Equal(t, models.StepPending, states[stepID].Status)
	assert.Equal(t, "2024-01-04", states[cadence.Steps[1].ID].DueOn.String(), "postponing does not re-anchor")

	history := loadHistory(t, db, enrollment.ID)
	require.Len(t, history, 2)
	last := history[1]
	assert.Equal(t, models.EventPostponed, last.EventType)
	var metadata map[string]string
	require.NoError(t, json.Unmarshal(last.Metadata, &metadata))
	assert.Equal(t, "2024-01-10", metadata["due_on"])
	assert.Equal(t, "2024-01-01", metadata["previous_due_on"])
}

func TestPostponeStepRejectsTodayAndPast(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(2024, time.January, 5)
	eng, db := newTestEngine(t, clock)
	contact := seedContact(t, db, "Ada", "Lovelace", "Analytical")
	cadence := seedCadence(t, eng, 1)
	stepID := cadence.Steps[0].ID

	enrollment, err := eng.Enroll(ctx, contact.ID, cadence.ID, 1)
	require.NoError(t, err)

	for _, newDue := range []models.Date{
		date(2024, time.January, 5),
		date(2023, time.December, 31),
		{},
	} {
		err := eng.PostponeStep(ctx, enrollment.ID, stepID, newDue)
		assert.ErrorIs(t, err, ErrInvalidDate, "due %q", newDue.String())
	}

	assert.Equal(t, "2024-01-06", loadStates(t, db, enrollment.ID)[stepID].DueOn.String())
	assert.Len(t, loadHistory(t, db, enrollment.ID), 1)
}

func TestPostponeStepPreconditions(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(2024, time.January, 1)
	eng, db := newTestEngine(t, clock)
	contact := seedContact(t, db, "Ada", "Lovelace", "Analytical")
	cadence := seedCadence(t, eng, 0, 2)
	later := date(2024, time.February, 1)

	enrollment, err := eng.Enroll(ctx, contact.ID, cadence.ID, 1)
	require.NoError(t, err)

	err = eng.PostponeStep(ctx, enrollment.ID+10, cadence.Steps[0].ID, later)
	assert.ErrorIs(t, err, ErrNotFound)

	err = eng.PostponeStep(ctx, enrollment.ID, cadence.Steps[1].ID+10, later)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = eng.CompleteStep(ctx, enrollment.ID, cadence.Steps[0].ID)
	require.NoError(t, err)
	err = eng.PostponeStep(ctx, enrollment.ID, cadence.Steps[0].ID, later)
	assert.ErrorIs(t, err, ErrStepNotPending)

	_, err = eng.Remove(ctx, enrollment.ID)
	require.NoError(t, err)
	err = eng.PostponeStep(ctx, enrollment.ID, cadence.Steps[1].ID, later)
	assert.ErrorIs(t, err, ErrStepNotPending)
}

func TestPostponedStepIsOverwrittenByReanchor(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(2024, time.January, 1)
	eng, db := newTestEngine(t, clock)
	contact := seedContact(t, db, "Ada", "Lovelace", "Analytical")
	cadence := seedCadence(t, eng, 0, 2)

	enrollment, err := eng.Enroll(ctx, contact.ID, cadence.ID, 1)
	require.NoError(t, err)
	require.NoError(t, eng.PostponeStep(ctx, enrollment.ID, cadence.Steps[1].ID, date(2024, time.January, 20)))

	clock.Set(2024, time.January, 2)
	_, err = eng.CompleteStep(ctx, enrollment.ID, cadence.Steps[0].ID)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-04", loadStates(t, db, enrollment.ID)[cadence.Steps[1].ID].DueOn.String())
}
