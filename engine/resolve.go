package engine

import (
	"context"
	"time"

	"cadenceflow/models"
	"cadenceflow/notify"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StepResult describes what resolving a step did to the enrollment.
type StepResult struct {
	// DayCompleted is true when no step at the resolved step's day offset is
	// still pending.
	DayCompleted bool `json:"day_completed"`
	// CadenceCompleted is true when this was the last pending step and the
	// enrollment has ended.
	CadenceCompleted bool `json:"cadence_completed"`
	// Reanchored counts later steps whose due date moved.
	Reanchored int `json:"reanchored"`
}

// CompleteStep marks a pending step completed. It fails with
// ErrStepNotPending when the step is already resolved, does not belong to the
// enrollment, or the enrollment has ended; the caller should re-read the
// enrollment before trying again.
func (e *Engine) CompleteStep(ctx context.Context, enrollmentID, stepID uint) (StepResult, error) {
	return e.resolveStep(ctx, opCompleteStep, enrollmentID, stepID, models.StepCompleted)
}

// SkipStep is CompleteStep with a skipped outcome.
func (e *Engine) SkipStep(ctx context.Context, enrollmentID, stepID uint) (StepResult, error) {
	return e.resolveStep(ctx, opSkipStep, enrollmentID, stepID, models.StepSkipped)
}

func (e *Engine) resolveStep(ctx context.Context, op string, enrollmentID, stepID uint, target models.StepStatus) (StepResult, error) {
	var (
		result    StepResult
		cadenceID uint
	)
	now := e.clock()
	today := models.DateOf(now, e.location)

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enrollment, err := lockEnrollment(tx, op, enrollmentID)
		if err != nil {
			if IsPrecondition(err) {
				return ErrStepNotPending
			}
			return err
		}
		if !enrollment.Active() {
			return ErrStepNotPending
		}
		cadenceID = enrollment.CadenceID

		resolved, err := markResolved(tx, op, enrollmentID, stepID, target, now)
		if err != nil {
			return err
		}
		if !resolved {
			return ErrStepNotPending
		}
		eventType := models.EventCompleted
		if target == models.StepSkipped {
			eventType = models.EventSkipped
		}

		var state models.StepState
		if err := tx.Where("enrollment_id = ? AND step_id = ?", enrollmentID, stepID).Take(&state).Error; err != nil {
			return storageError(op, err)
		}

		if err := appendHistory(tx, op, now, enrollmentID, &stepID, eventType, map[string]interface{}{
			"day_offset": state.DayOffset,
			"due_on":     state.DueOn.String(),
		}); err != nil {
			return err
		}

		var pendingInDay int64
		if err := tx.Model(&models.StepState{}).
			Where("enrollment_id = ? AND day_offset = ? AND status = ?", enrollmentID, state.DayOffset, models.StepPending).
			Count(&pendingInDay).Error; err != nil {
			return storageError(op, err)
		}

		if pendingInDay == 0 {
			result.DayCompleted = true
			moved, err := reanchor(tx, op, enrollmentID, state.DayOffset, today, now)
			if err != nil {
				return err
			}
			result.Reanchored = moved
		}

		var pendingTotal int64
		if err := tx.Model(&models.StepState{}).
			Where("enrollment_id = ? AND status = ?", enrollmentID, models.StepPending).
			Count(&pendingTotal).Error; err != nil {
			return storageError(op, err)
		}

		if pendingTotal == 0 {
			if err := endEnrollment(tx, op, enrollmentID, now, models.EndReasonCompleted); err != nil {
				return err
			}
			if err := appendHistory(tx, op, now, enrollmentID, nil, models.EventCadenceCompleted, nil); err != nil {
				return err
			}
			result.CadenceCompleted = true
		}
		return nil
	})
	if err != nil {
		return StepResult{}, classify(op, err)
	}

	e.logger.WithFields(logrus.Fields{
		"enrollment_id":     enrollmentID,
		"step_id":           stepID,
		"status":            target,
		"day_completed":     result.DayCompleted,
		"cadence_completed": result.CadenceCompleted,
		"reanchored":        result.Reanchored,
	}).Debug("Step resolved")

	event := notify.NewEvent(string(target), cadenceID, enrollmentID, now)
	event.StepID = &stepID
	event.DayCompleted = result.DayCompleted
	event.CadenceCompleted = result.CadenceCompleted
	e.publish(ctx, event)
	return result, nil
}

// markResolved moves a step state out of pending. The status = pending
// condition is the only guard between concurrent resolutions: of two racing
// calls, exactly one sees a row affected.
func markResolved(tx *gorm.DB, op string, enrollmentID, stepID uint, target models.StepStatus, now time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     target,
		"updated_at": now,
	}
	if target == models.StepSkipped {
		updates["skipped_at"] = now
	} else {
		updates["completed_at"] = now
	}

	update := tx.Model(&models.StepState{}).
		Where("enrollment_id = ? AND step_id = ? AND status = ?", enrollmentID, stepID, models.StepPending).
		Updates(updates)
	if update.Error != nil {
		return false, storageError(op, update.Error)
	}
	return update.RowsAffected > 0, nil
}

// reanchor moves every pending step after the completed day so that it keeps
// its authored distance from that day, counted from today. Steps on or before
// the completed day are left alone.
func reanchor(tx *gorm.DB, op string, enrollmentID uint, completedDay int, today models.Date, now time.Time) (int, error) {
	var later []models.StepState
	if err := tx.Where("enrollment_id = ? AND status = ? AND day_offset > ?", enrollmentID, models.StepPending, completedDay).
		Order("day_offset ASC, step_id ASC").
		Find(&later).Error; err != nil {
		return 0, storageError(op, err)
	}

	moved := 0
	for _, state := range later {
		due := today.AddDays(state.DayOffset - completedDay)
		if due.Equal(state.DueOn) {
			continue
		}
		if err := tx.Model(&models.StepState{}).
			Where("id = ? AND status = ?", state.ID, models.StepPending).
			Updates(map[string]interface{}{"due_on": due, "updated_at": now}).Error; err != nil {
			return moved, storageError(op, err)
		}
		moved++
	}
	return moved, nil
}

func endEnrollment(tx *gorm.DB, op string, enrollmentID uint, now time.Time, reason models.EndReason) error {
	if err := tx.Model(&models.Enrollment{}).
		Where("id = ? AND end_date IS NULL", enrollmentID).
		Updates(map[string]interface{}{"end_date": now, "end_reason": reason, "updated_at": now}).Error; err != nil {
		return storageError(op, err)
	}
	return nil
}
