package engine

import (
	"errors"
	"fmt"
)

// Precondition failures. Callers get these as expected outcomes; they are
// not logged as errors.
var (
	ErrAlreadyEnrolled = errors.New("contact is already enrolled in this cadence")
	ErrStepNotPending  = errors.New("step is not pending")
	ErrInvalidDate     = errors.New("new due date must be after today")
	ErrNotFound        = errors.New("not found")
	ErrNoActiveSteps   = errors.New("cadence has no active steps")
	ErrInvalidInput    = errors.New("invalid input")
)

// AlreadyEnrolledError carries the id of the enrollment that is still active.
// EnrollmentID is zero when the conflict was only detected by the unique index.
type AlreadyEnrolledError struct {
	EnrollmentID uint
}

func (e *AlreadyEnrolledError) Error() string {
	if e.EnrollmentID == 0 {
		return ErrAlreadyEnrolled.Error()
	}
	return fmt.Sprintf("%s (enrollment %d)", ErrAlreadyEnrolled.Error(), e.EnrollmentID)
}

func (e *AlreadyEnrolledError) Unwrap() error {
	return ErrAlreadyEnrolled
}

// StorageError is a transaction or connection failure. The transaction it
// happened in has been rolled back.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: storage failure: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

func notFound(what string, id uint) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, what, id)
}

// IsPrecondition reports whether err is an expected, user-facing outcome
// rather than a failure.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrAlreadyEnrolled) ||
		errors.Is(err, ErrStepNotPending) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNoActiveSteps) ||
		errors.Is(err, ErrInvalidInput)
}

// classify makes sure anything leaving a transaction is either a precondition
// error or a StorageError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var storageErr *StorageError
	if IsPrecondition(err) || errors.As(err, &storageErr) {
		return err
	}
	return storageError(op, err)
}
