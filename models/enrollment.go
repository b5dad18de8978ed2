package models

import "time"

// StepStatus is the progress of one step for one enrollment.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepSkipped   StepStatus = "skipped"
)

// EndReason records why an enrollment stopped being active.
type EndReason string

const (
	EndReasonCompleted EndReason = "completed"
	EndReasonRemoved   EndReason = "removed"
)

// Enrollment is one run of a contact through a cadence. It is active while
// EndDate is nil; ending is one-way. At most one active enrollment may exist
// per (contact, cadence), enforced by a partial unique index.
type Enrollment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ContactID  uint `gorm:"not null;index;uniqueIndex:idx_enrollments_active_pair,where:end_date IS NULL" json:"contact_id"`
	CadenceID  uint `gorm:"not null;index;uniqueIndex:idx_enrollments_active_pair,where:end_date IS NULL" json:"cadence_id"`
	EnrolledBy uint `gorm:"index" json:"enrolled_by"`

	StartDate Date       `gorm:"not null" json:"start_date"`
	EndDate   *time.Time `gorm:"index" json:"end_date"`
	EndReason EndReason  `json:"end_reason,omitempty"` // completed, removed

	// Relations
	Steps []StepState `gorm:"foreignKey:EnrollmentID" json:"steps,omitempty"`
}

func (e *Enrollment) Active() bool {
	return e.EndDate == nil
}

// StepState tracks a single cadence step for a single enrollment. Rows are
// created at enrollment time and move pending -> completed or pending ->
// skipped exactly once. DueOn only changes while the row is pending.
type StepState struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	EnrollmentID uint `gorm:"not null;uniqueIndex:idx_step_states_enrollment_step,priority:1;index:idx_step_states_enrollment_status,priority:1" json:"enrollment_id"`
	StepID       uint `gorm:"not null;uniqueIndex:idx_step_states_enrollment_step,priority:2" json:"step_id"`

	// DayOffset is copied from the step when the enrollment is created so the
	// day grouping of a running enrollment never changes under it.
	DayOffset int        `gorm:"not null" json:"day_offset"`
	Status    StepStatus `gorm:"not null;default:'pending';index:idx_step_states_enrollment_status,priority:2" json:"status"`
	DueOn     Date       `gorm:"not null" json:"due_on"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	SkippedAt   *time.Time `json:"skipped_at,omitempty"`

	// Relations
	Step *CadenceStep `gorm:"foreignKey:StepID" json:"step,omitempty"`
}
