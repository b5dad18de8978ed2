package engine

import (
	"context"
	"testing"
	"time"

	"cadenceflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(enrollmentID uint, stepID uint, day int, status models.StepStatus, due models.Date) todoRow {
	return todoRow{
		EnrollmentID: enrollmentID,
		CadenceID:    1,
		ContactID:    enrollmentID * 10,
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Company:      "Analytical",
		StepID:       stepID,
		Label:        "step",
		ActionType:   models.ActionEmail,
		DayOffset:    day,
		Status:       status,
		DueOn:        due,
	}
}

func TestBuildToDoProjection(t *testing.T) {
	today := date(2024, time.January, 10)

	tests := []struct {
		name   string
		rows   []todoRow
		expect func(t *testing.T, items []ToDoItem)
	}{
		{
			name: "single step due today",
			rows: []todoRow{
				row(1, 1, 0, models.StepPending, today),
				row(1, 2, 3, models.StepPending, today.AddDays(3)),
			},
			expect: func(t *testing.T, items []ToDoItem) {
				require.Len(t, items, 1)
				item := items[0]
				assert.Equal(t, 0, item.CurrentDay)
				assert.False(t, item.IsMultiStep)
				assert.Equal(t, 1, item.TotalStepsInDay)
				assert.Equal(t, 1, item.RemainingStepsInDay)
				assert.True(t, item.IsDue)
				assert.False(t, item.IsOverdue)
				assert.Equal(t, "Ada Lovelace", item.ContactName)
				require.Len(t, item.PendingSteps, 1)
				assert.Equal(t, uint(1), item.PendingSteps[0].StepID)
			},
		},
		{
			name: "multi step day with one resolved",
			rows: []todoRow{
				row(1, 1, 0, models.StepCompleted, today.AddDays(-2)),
				row(1, 2, 0, models.StepPending, today.AddDays(-2)),
				row(1, 3, 0, models.StepSkipped, today.AddDays(-2)),
				row(1, 4, 5, models.StepPending, today.AddDays(3)),
			},
			expect: func(t *testing.T, items []ToDoItem) {
				require.Len(t, items, 1)
				item := items[0]
				assert.True(t, item.IsMultiStep)
				assert.Equal(t, 3, item.TotalStepsInDay)
				assert.Equal(t, 1, item.RemainingStepsInDay)
				assert.True(t, item.IsOverdue)
				assert.True(t, item.IsDue)
			},
		},
		{
			name: "current day is the lowest pending offset",
			rows: []todoRow{
				row(1, 1, 0, models.StepCompleted, today.AddDays(-5)),
				row(1, 2, 2, models.StepSkipped, today.AddDays(-3)),
				row(1, 3, 4, models.StepPending, today.AddDays(2)),
				row(1, 4, 9, models.StepPending, today.AddDays(7)),
			},
			expect: func(t *testing.T, items []ToDoItem) {
				require.Len(t, items, 1)
				assert.Equal(t, 4, items[0].CurrentDay)
				assert.False(t, items[0].IsDue)
				assert.False(t, items[0].IsOverdue)
				assert.Equal(t, today.AddDays(2), items[0].DueOn)
			},
		},
		{
			name: "due on is the earliest pending date of the day",
			rows: []todoRow{
				row(1, 1, 1, models.StepPending, today.AddDays(4)),
				row(1, 2, 1, models.StepPending, today.AddDays(1)),
			},
			expect: func(t *testing.T, items []ToDoItem) {
				require.Len(t, items, 1)
				assert.Equal(t, today.AddDays(1), items[0].DueOn)
				assert.Equal(t, 2, items[0].RemainingStepsInDay)
			},
		},
		{
			name: "enrollment without pending steps is left out",
			rows: []todoRow{
				row(1, 1, 0, models.StepCompleted, today),
				row(2, 2, 0, models.StepPending, today),
			},
			expect: func(t *testing.T, items []ToDoItem) {
				require.Len(t, items, 1)
				assert.Equal(t, uint(2), items[0].EnrollmentID)
			},
		},
		{
			name: "sorted by due date then enrollment",
			rows: []todoRow{
				row(1, 1, 0, models.StepPending, today.AddDays(2)),
				row(2, 2, 0, models.StepPending, today.AddDays(-1)),
				row(3, 3, 0, models.StepPending, today.AddDays(-1)),
			},
			expect: func(t *testing.T, items []ToDoItem) {
				require.Len(t, items, 3)
				assert.Equal(t, []uint{2, 3, 1}, []uint{items[0].EnrollmentID, items[1].EnrollmentID, items[2].EnrollmentID})
			},
		},
		{
			name: "no rows",
			rows: nil,
			expect: func(t *testing.T, items []ToDoItem) {
				assert.NotNil(t, items)
				assert.Empty(t, items)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.expect(t, buildToDo(tt.rows, today))
		})
	}
}

func TestListToDoReadsActiveEnrollments(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(2024, time.January, 1)
	eng, db := newTestEngine(t, clock)
	ada := seedContact(t, db, "Ada", "Lovelace", "Analytical")
	grace := seedContact(t, db, "Grace", "Hopper", "Navy")
	cadence := seedCadence(t, eng, 0, 0, 3)

	first, err := eng.Enroll(ctx, ada.ID, cadence.ID, 1)
	require.NoError(t, err)
	clock.Set(2024, time.January, 3)
	second, err := eng.Enroll(ctx, grace.ID, cadence.ID, 1)
	require.NoError(t, err)
	_, err = eng.CompleteStep(ctx, second.ID, cadence.Steps[0].ID)
	require.NoError(t, err)

	items, err := eng.ListToDo(ctx, cadence.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, first.ID, items[0].EnrollmentID)
	assert.Equal(t, "Ada Lovelace", items[0].ContactName)
	assert.Equal(t, "Analytical", items[0].Company)
	assert.Equal(t, "2024-01-01", items[0].DueOn.String())
	assert.True(t, items[0].IsOverdue)
	assert.True(t, items[0].IsMultiStep)
	assert.Equal(t, 2, items[0].RemainingStepsInDay)
	require.Len(t, items[0].PendingSteps, 2)
	assert.Equal(t, "step 1 (day 0)", items[0].PendingSteps[0].Label)
	assert.Equal(t, models.ActionPhone, items[0].PendingSteps[1].ActionType)

	assert.Equal(t, second.ID, items[1].EnrollmentID)
	assert.True(t, items[1].IsDue)
	assert.False(t, items[1].IsOverdue)
	assert.Equal(t, 2, items[1].TotalStepsInDay)
	assert.Equal(t, 1, items[1].RemainingStepsInDay)
}

func TestListToDoUnknownCadence(t *testing.T) {
	clock := newTestClock(2024, time.January, 1)
	eng, _ := newTestEngine(t, clock)

	_, err := eng.ListToDo(context.Background(), 77)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDueFiltersByOwnerAndDate(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(2024, time.January, 1)
	eng, db := newTestEngine(t, clock)
	ada := seedContact(t, db, "Ada", "Lovelace", "Analytical")
	grace := seedContact(t, db, "Grace", "Hopper", "Navy")

	mine := seedCadence(t, eng, 0)
	future := seedCadence(t, eng, 5)
	theirs, err := eng.CreateCadence(ctx, 2, CadenceInput{
		Name:  "Someone else's",
		Steps: []StepInput{{DayOffset: 0, Label: "call", ActionType: models.ActionPhone}},
	})
	require.NoError(t, err)

	dueNow, err := eng.Enroll(ctx, ada.ID, mine.ID, 1)
	require.NoError(t, err)
	_, err = eng.Enroll(ctx, grace.ID, future.ID, 1)
	require.NoError(t, err)
	_, err = eng.Enroll(ctx, grace.ID, theirs.ID, 2)
	require.NoError(t, err)

	items, err := eng.ListDue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, dueNow.ID, items[0].EnrollmentID)

	clock.Set(2024, time.January, 6)
	items, err = eng.ListDue(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
