package engine

import (
	"context"
	"errors"

	"cadenceflow/models"
	"cadenceflow/notify"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Enroll starts a new run of contactID through cadenceID, anchored on today.
// A pending step state is created for every step active right now, due on
// start date + day offset. Nothing is written unless all of it is.
func (e *Engine) Enroll(ctx context.Context, contactID, cadenceID, enrolledBy uint) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	now := e.clock()
	today := models.DateOf(now, e.location)

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var contact models.Contact
		if err := tx.Select("id").Where("id = ?", contactID).Take(&contact).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("contact", contactID)
			}
			return storageError(opEnroll, err)
		}

		var cadence models.Cadence
		if err := tx.Select("id").Where("id = ?", cadenceID).Take(&cadence).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("cadence", cadenceID)
			}
			return storageError(opEnroll, err)
		}

		var existing models.Enrollment
		err := tx.Select("id").
			Where("contact_id = ? AND cadence_id = ? AND end_date IS NULL", contactID, cadenceID).
			Take(&existing).Error
		if err == nil {
			return &AlreadyEnrolledError{EnrollmentID: existing.ID}
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return storageError(opEnroll, err)
		}

		var steps []models.CadenceStep
		if err := tx.Where("cadence_id = ? AND active = ?", cadenceID, true).
			Order("day_offset ASC, id ASC").
			Find(&steps).Error; err != nil {
			return storageError(opEnroll, err)
		}
		if len(steps) == 0 {
			return ErrNoActiveSteps
		}

		enrollment = models.Enrollment{
			ContactID:  contactID,
			CadenceID:  cadenceID,
			EnrolledBy: enrolledBy,
			StartDate:  today,
		}
		if err := tx.Create(&enrollment).Error; err != nil {
			// Lost a race with a concurrent enroll of the same pair.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &AlreadyEnrolledError{}
			}
			return storageError(opEnroll, err)
		}

		states := make([]models.StepState, 0, len(steps))
		for _, step := range steps {
			states = append(states, models.StepState{
				EnrollmentID: enrollment.ID,
				StepID:       step.ID,
				DayOffset:    step.DayOffset,
				Status:       models.StepPending,
				DueOn:        today.AddDays(step.DayOffset),
			})
		}
		if err := tx.Create(&states).Error; err != nil {
			return storageError(opEnroll, err)
		}
		enrollment.Steps = states

		return appendHistory(tx, opEnroll, now, enrollment.ID, nil, models.EventEnrolled, map[string]interface{}{
			"start_date": today.String(),
			"steps":      len(states),
		})
	})
	if err != nil {
		return nil, classify(opEnroll, err)
	}

	e.logger.WithFields(logrus.Fields{
		"enrollment_id": enrollment.ID,
		"contact_id":    contactID,
		"cadence_id":    cadenceID,
	}).Debug("Contact enrolled")
	e.publish(ctx, notify.NewEvent(string(models.EventEnrolled), cadenceID, enrollment.ID, now))
	return &enrollment, nil
}

// EnrollOutcome is the result of enrolling one contact of a bulk request.
type EnrollOutcome struct {
	ContactID       uint   `json:"contact_id"`
	EnrollmentID    uint   `json:"enrollment_id,omitempty"`
	AlreadyEnrolled bool   `json:"already_enrolled,omitempty"`
	Error           string `json:"error,omitempty"`
	err             error
}

func (o EnrollOutcome) Err() error {
	return o.err
}

const bulkEnrollConcurrency = 4

// EnrollMany enrolls each contact in its own transaction, so one failure does
// not undo the others. Outcomes come back in input order. The returned error
// is the first storage failure, if any; precondition failures only show up
// in the outcomes.
func (e *Engine) EnrollMany(ctx context.Context, contactIDs []uint, cadenceID, enrolledBy uint) ([]EnrollOutcome, error) {
	outcomes := make([]EnrollOutcome, len(contactIDs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(bulkEnrollConcurrency)
	for i, contactID := range contactIDs {
		i, contactID := i, contactID
		group.Go(func() error {
			outcome := EnrollOutcome{ContactID: contactID}
			enrollment, err := e.Enroll(groupCtx, contactID, cadenceID, enrolledBy)
			var already *AlreadyEnrolledError
			switch {
			case err == nil:
				outcome.EnrollmentID = enrollment.ID
			case errors.As(err, &already):
				outcome.AlreadyEnrolled = true
				outcome.EnrollmentID = already.EnrollmentID
			default:
				outcome.Error = err.Error()
				outcome.err = err
			}
			outcomes[i] = outcome
			if err != nil && !IsPrecondition(err) {
				return err
			}
			return nil
		})
	}
	err := group.Wait()
	return outcomes, err
}
