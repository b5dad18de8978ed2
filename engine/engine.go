// Package engine moves contacts through cadences. It owns every write to
// enrollments, step states and the history log, and computes the to-do
// projection from them.
//
// Each write runs in a single database transaction. The only concurrency
// guard is a conditional update on the step state row (status = pending),
// backed by a row lock on the enrollment so that writes to the same
// enrollment are serialized by the database.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"cadenceflow/models"
	"cadenceflow/notify"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opEnroll        = "engine.enroll"
	opCompleteStep  = "engine.complete_step"
	opSkipStep      = "engine.skip_step"
	opPostponeStep  = "engine.postpone_step"
	opRemove        = "engine.remove"
	opListToDo      = "engine.list_todo"
	opListHistory   = "engine.list_history"
	opGetEnrollment = "engine.get_enrollment"
	opCreateCadence = "engine.create_cadence"
	opGetCadence    = "engine.get_cadence"
	opDeactivate    = "engine.deactivate_step"
)

var errMissingDatabase = errors.New("database handle is required")

type Config struct {
	DB *gorm.DB
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Location decides which calendar day "today" is. Defaults to UTC.
	Location *time.Location
	Notifier notify.Publisher
	Logger   *logrus.Entry
}

type Engine struct {
	db       *gorm.DB
	clock    func() time.Time
	location *time.Location
	notifier notify.Publisher
	logger   *logrus.Entry
}

func New(cfg Config) (*Engine, error) {
	if cfg.DB == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		db:       cfg.DB,
		clock:    clock,
		location: location,
		notifier: cfg.Notifier,
		logger:   logger,
	}, nil
}

// Today is the current calendar day in the engine's location.
func (e *Engine) Today() models.Date {
	return models.DateOf(e.clock(), e.location)
}

// lockEnrollment loads the enrollment and takes a row lock on it for the rest
// of the transaction. SQLite has no row locks; there the single writer
// already serializes transactions.
func lockEnrollment(tx *gorm.DB, op string, enrollmentID uint) (models.Enrollment, error) {
	var enrollment models.Enrollment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", enrollmentID).
		Take(&enrollment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return enrollment, notFound("enrollment", enrollmentID)
	}
	if err != nil {
		return enrollment, storageError(op, err)
	}
	return enrollment, nil
}

func appendHistory(tx *gorm.DB, op string, at time.Time, enrollmentID uint, stepID *uint, eventType models.EventType, metadata map[string]interface{}) error {
	entry := models.HistoryEntry{
		EventID:      uuid.NewString(),
		EnrollmentID: enrollmentID,
		StepID:       stepID,
		EventType:    eventType,
		OccurredAt:   at,
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return storageError(op, err)
		}
		entry.Metadata = datatypes.JSON(raw)
	}
	if err := tx.Create(&entry).Error; err != nil {
		return storageError(op, err)
	}
	return nil
}

// publish runs after commit. A failed notification is logged and otherwise ignored.
func (e *Engine) publish(ctx context.Context, event notify.Event) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Publish(ctx, event); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"action":        event.Action,
			"enrollment_id": event.EnrollmentID,
		}).Warn("Failed to publish enrollment change")
	}
}
