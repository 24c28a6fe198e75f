package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const MaxEmergencyContacts = 5

type EmergencyContact struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Name         string         `gorm:"not null;column:name" json:"name"`
	Phone        string         `gorm:"not null;column:phone" json:"phone"`
	Relationship string         `gorm:"column:relationship" json:"relationship,omitempty"`
	ContactOrder int            `gorm:"not null;column:contact_order" json:"contact_order"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (EmergencyContact) TableName() string { return "emergency_contact" }
