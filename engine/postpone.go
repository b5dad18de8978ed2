package engine

import (
	"context"
	"errors"

	"cadenceflow/models"
	"cadenceflow/notify"

	"gorm.io/gorm"
)

// PostponeStep moves a pending step's due date forward. The new date must be
// strictly after today. The step stays pending, so nothing is re-anchored.
func (e *Engine) PostponeStep(ctx context.Context, enrollmentID, stepID uint, newDueOn models.Date) error {
	now := e.clock()
	today := models.DateOf(now, e.location)
	if newDueOn.IsZero() || !newDueOn.After(today) {
		return ErrInvalidDate
	}

	var cadenceID uint
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enrollment, err := lockEnrollment(tx, opPostponeStep, enrollmentID)
		if err != nil {
			return err
		}
		cadenceID = enrollment.CadenceID

		var state models.StepState
		if err := tx.Where("enrollment_id = ? AND step_id = ?", enrollmentID, stepID).Take(&state).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("step", stepID)
			}
			return storageError(opPostponeStep, err)
		}
		if !enrollment.Active() || state.Status != models.StepPending {
			return ErrStepNotPending
		}

		update := tx.Model(&models.StepState{}).
			Where("id = ? AND status = ?", state.ID, models.StepPending).
			Updates(map[string]interface{}{"due_on": newDueOn, "updated_at": now})
		if update.Error != nil {
			return storageError(opPostponeStep, update.Error)
		}
		if update.RowsAffected == 0 {
			return ErrStepNotPending
		}

		return appendHistory(tx, opPostponeStep, now, enrollmentID, &stepID, models.EventPostponed, map[string]interface{}{
			"due_on":          newDueOn.String(),
			"previous_due_on": state.DueOn.String(),
		})
	})
	if err != nil {
		return classify(opPostponeStep, err)
	}

	event := notify.NewEvent(string(models.EventPostponed), cadenceID, enrollmentID, now)
	event.StepID = &stepID
	e.publish(ctx, event)
	return nil
}
