package models

import (
	"gorm.io/gorm"
)

// User is a rep account. Accounts are managed elsewhere; this service reads
// them to authenticate requests and to address due-task digests.
type User struct {
	gorm.Model

	Email string  `gorm:"uniqueIndex;not null" json:"email"`
	Name  *string `json:"name,omitempty"`

	// Account status
	IsActive     bool `gorm:"default:true" json:"is_active"`
	TokenVersion int  `gorm:"default:0" json:"-"`

	// Relations
	Cadences []Cadence `gorm:"foreignKey:UserID" json:"cadences,omitempty"`
}

func (u *User) DisplayName() string {
	if u.Name != nil && *u.Name != "" {
		return *u.Name
	}
	return u.Email
}
