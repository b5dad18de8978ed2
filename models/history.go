package models

import (
	"time"

	"gorm.io/datatypes"
)

// EventType names a transition recorded in the enrollment history.
type EventType string

const (
	EventEnrolled         EventType = "enrolled"
	EventCompleted        EventType = "completed"
	EventSkipped          EventType = "skipped"
	EventPostponed        EventType = "postponed"
	EventContactRemoved   EventType = "contact_removed"
	EventCadenceCompleted EventType = "cadence_completed"
)

// HistoryEntry is an append-only record of an enrollment transition. Entries
// are never updated or deleted. They order by OccurredAt, then by ID.
type HistoryEntry struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID string `gorm:"size:36;not null;uniqueIndex" json:"event_id"`

	EnrollmentID uint      `gorm:"not null;index:idx_history_enrollment_time,priority:1" json:"enrollment_id"`
	StepID       *uint     `gorm:"index" json:"step_id,omitempty"`
	EventType    EventType `gorm:"not null;index" json:"event_type"`
	OccurredAt   time.Time `gorm:"not null;index:idx_history_enrollment_time,priority:2" json:"occurred_at"`

	Metadata datatypes.JSON `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (HistoryEntry) TableName() string {
	return "history_entries"
}
