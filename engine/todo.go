package engine

import (
	"context"
	"errors"
	"sort"

	"cadenceflow/models"

	"gorm.io/gorm"
)

// ToDoItem is what an active enrollment needs next: the earliest day that
// still has pending steps.
type ToDoItem struct {
	EnrollmentID        uint          `json:"enrollment_id"`
	CadenceID           uint          `json:"cadence_id"`
	ContactID           uint          `json:"contact_id"`
	ContactName         string        `json:"contact_name"`
	Company             string        `json:"company"`
	CurrentDay          int           `json:"current_day"`
	IsMultiStep         bool          `json:"is_multi_step"`
	TotalStepsInDay     int           `json:"total_steps_in_day"`
	RemainingStepsInDay int           `json:"remaining_steps_in_day"`
	DueOn               models.Date   `json:"due_on"`
	IsDue               bool          `json:"is_due"`
	IsOverdue           bool          `json:"is_overdue"`
	PendingSteps        []PendingStep `json:"pending_steps"`
}

// PendingStep is one unresolved step of the current day.
type PendingStep struct {
	StepID     uint              `json:"step_id"`
	Label      string            `json:"label"`
	ActionType models.ActionType `json:"action_type"`
	DueOn      models.Date       `json:"due_on"`
}

// todoRow is one step state of an active enrollment, joined with the step
// and contact it belongs to.
type todoRow struct {
	EnrollmentID uint
	CadenceID    uint
	ContactID    uint
	FirstName    string
	LastName     string
	Company      string
	StepID       uint
	Label        string
	ActionType   models.ActionType
	DayOffset    int
	Status       models.StepStatus
	DueOn        models.Date
}

// ListToDo builds the to-do list of a cadence. It only reads, so it can run
// as often as needed alongside writes.
func (e *Engine) ListToDo(ctx context.Context, cadenceID uint) ([]ToDoItem, error) {
	var cadence models.Cadence
	if err := e.db.WithContext(ctx).Select("id").Where("id = ?", cadenceID).Take(&cadence).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("cadence", cadenceID)
		}
		return nil, storageError(opListToDo, err)
	}

	rows, err := e.loadToDoRows(ctx, "e.cadence_id = ?", cadenceID)
	if err != nil {
		return nil, err
	}
	return buildToDo(rows, e.Today()), nil
}

// ListDue returns the items that are due or overdue today across every
// cadence owned by userID.
func (e *Engine) ListDue(ctx context.Context, userID uint) ([]ToDoItem, error) {
	rows, err := e.loadToDoRows(ctx, "e.cadence_id IN (?)",
		e.db.Model(&models.Cadence{}).Select("id").Where("user_id = ?", userID))
	if err != nil {
		return nil, err
	}
	items := buildToDo(rows, e.Today())
	due := items[:0]
	for _, item := range items {
		if item.IsDue {
			due = append(due, item)
		}
	}
	return due, nil
}

func (e *Engine) loadToDoRows(ctx context.Context, filter string, args ...interface{}) ([]todoRow, error) {
	var rows []todoRow
	err := e.db.WithContext(ctx).
		Table("enrollments AS e").
		Select(`e.id AS enrollment_id, e.cadence_id, e.contact_id,
			COALESCE(c.first_name, '') AS first_name,
			COALESCE(c.last_name, '') AS last_name,
			COALESCE(c.company, '') AS company,
			s.step_id, COALESCE(cs.label, '') AS label, COALESCE(cs.action_type, '') AS action_type,
			s.day_offset, s.status, s.due_on`).
		Joins("JOIN step_states s ON s.enrollment_id = e.id").
		Joins("LEFT JOIN cadence_steps cs ON cs.id = s.step_id").
		Joins("LEFT JOIN contacts c ON c.id = e.contact_id AND c.deleted_at IS NULL").
		Where("e.end_date IS NULL").
		Where(filter, args...).
		Order("e.id ASC, s.day_offset ASC, s.step_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, storageError(opListToDo, err)
	}
	return rows, nil
}

// buildToDo folds step rows, grouped by enrollment, into one item per
// enrollment that still has pending steps. Enrollments without pending steps
// are left out rather than shown with made-up values.
func buildToDo(rows []todoRow, today models.Date) []ToDoItem {
	byEnrollment := make(map[uint][]todoRow)
	order := make([]uint, 0)
	for _, row := range rows {
		if _, seen := byEnrollment[row.EnrollmentID]; !seen {
			order = append(order, row.EnrollmentID)
		}
		byEnrollment[row.EnrollmentID] = append(byEnrollment[row.EnrollmentID], row)
	}

	items := make([]ToDoItem, 0, len(order))
	for _, enrollmentID := range order {
		item, ok := projectEnrollment(byEnrollment[enrollmentID], today)
		if ok {
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].DueOn.Equal(items[j].DueOn) {
			return items[i].DueOn.Before(items[j].DueOn)
		}
		return items[i].EnrollmentID < items[j].EnrollmentID
	})
	return items
}

func projectEnrollment(rows []todoRow, today models.Date) (ToDoItem, bool) {
	currentDay := -1
	for _, row := range rows {
		if row.Status == models.StepPending && (currentDay < 0 || row.DayOffset < currentDay) {
			currentDay = row.DayOffset
		}
	}
	if currentDay < 0 {
		return ToDoItem{}, false
	}

	first := rows[0]
	item := ToDoItem{
		EnrollmentID: first.EnrollmentID,
		CadenceID:    first.CadenceID,
		ContactID:    first.ContactID,
		ContactName:  models.FullName(first.FirstName, first.LastName),
		Company:      first.Company,
		CurrentDay:   currentDay,
		PendingSteps: make([]PendingStep, 0),
	}
	for _, row := range rows {
		if row.DayOffset != currentDay {
			continue
		}
		item.TotalStepsInDay++
		if row.Status != models.StepPending {
			continue
		}
		item.RemainingStepsInDay++
		if item.DueOn.IsZero() || row.DueOn.Before(item.DueOn) {
			item.DueOn = row.DueOn
		}
		item.PendingSteps = append(item.PendingSteps, PendingStep{
			StepID:     row.StepID,
			Label:      row.Label,
			ActionType: row.ActionType,
			DueOn:      row.DueOn,
		})
	}

	item.IsMultiStep = item.TotalStepsInDay > 1
	item.IsDue = !item.DueOn.After(today)
	item.IsOverdue = item.DueOn.Before(today)
	return item, true
}
