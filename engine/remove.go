package engine

import (
	"context"

	"cadenceflow/models"
	"cadenceflow/notify"

	"gorm.io/gorm"
)

// Remove ends an active enrollment early. Pending steps are left as they are
// and stop showing up because the enrollment is no longer active. Removing an
// enrollment that already ended succeeds without writing anything; removed
// reports whether this call ended it.
func (e *Engine) Remove(ctx context.Context, enrollmentID uint) (removed bool, err error) {
	now := e.clock()
	var cadenceID uint

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enrollment, err := lockEnrollment(tx, opRemove, enrollmentID)
		if err != nil {
			return err
		}
		if !enrollment.Active() {
			return nil
		}
		cadenceID = enrollment.CadenceID

		var pending int64
		if err := tx.Model(&models.StepState{}).
			Where("enrollment_id = ? AND status = ?", enrollmentID, models.StepPending).
			Count(&pending).Error; err != nil {
			return storageError(opRemove, err)
		}

		if err := endEnrollment(tx, opRemove, enrollmentID, now, models.EndReasonRemoved); err != nil {
			return err
		}
		removed = true
		return appendHistory(tx, opRemove, now, enrollmentID, nil, models.EventContactRemoved, map[string]interface{}{
			"pending_steps": pending,
		})
	})
	if err != nil {
		return false, classify(opRemove, err)
	}

	if removed {
		e.publish(ctx, notify.NewEvent(string(models.EventContactRemoved), cadenceID, enrollmentID, now))
	}
	return removed, nil
}
