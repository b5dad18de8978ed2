package models

import "gorm.io/gorm"

// ActionType is what a step asks the rep to do.
type ActionType string

const (
	ActionEmail    ActionType = "email"
	ActionPhone    ActionType = "phone"
	ActionLinkedIn ActionType = "linkedin"
	ActionTask     ActionType = "task"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionEmail, ActionPhone, ActionLinkedIn, ActionTask:
		return true
	}
	return false
}

// Cadence is an authored outreach sequence. Its steps are anchored to day
// offsets from the date a contact is enrolled.
type Cadence struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	// Relations
	Steps []CadenceStep `gorm:"foreignKey:CadenceID" json:"steps,omitempty"`
}

// CadenceStep is one action on a given day of a cadence. Several steps may
// share a day offset. Steps referenced by a StepState are never hard deleted;
// they are deactivated so that new enrollments skip them.
type CadenceStep struct {
	gorm.Model
	CadenceID uint `gorm:"not null;index" json:"cadence_id"`

	DayOffset     int                    `gorm:"not null;index" json:"day_offset"`
	Label         string                 `gorm:"not null" json:"label"`
	ActionType    ActionType             `gorm:"not null" json:"action_type"` // email, phone, linkedin, task
	ActionPayload map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"action_payload,omitempty"`
	TemplateID    *uint                  `gorm:"index" json:"template_id,omitempty"`
	Active        bool                   `gorm:"not null;default:true" json:"active"`
}
