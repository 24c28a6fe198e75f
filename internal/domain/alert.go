package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	DefaultAlertMessage       = "I may have been detained by immigration authorities. Please contact a lawyer immediately."
	DefaultAlertShareLocation = true
	MaxAlertMessageLength     = 500
)

type AlertConfig struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Message       string    `gorm:"not null;column:message" json:"message"`
	ShareLocation bool      `gorm:"not null;column:share_location" json:"share_location"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (AlertConfig) TableName() string { return "alert_config" }

// DefaultAlertConfig is served until the user saves their own config.
func DefaultAlertConfig(userID uuid.UUID) *AlertConfig {
	return &AlertConfig{
		UserID:        userID,
		Message:       DefaultAlertMessage,
		ShareLocation: DefaultAlertShareLocation,
	}
}

// AlertHistory rows are append-only. Failures holds the per-contact transport
// errors of a partially delivered alert.
type AlertHistory struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Message          string         `gorm:"not null;column:message" json:"message"`
	IsTest           bool           `gorm:"not null;column:is_test" json:"is_test"`
	ContactsNotified int            `gorm:"not null;column:contacts_notified" json:"contacts_notified"`
	Latitude         *float64       `gorm:"column:latitude" json:"latitude,omitempty"`
	Longitude        *float64       `gorm:"column:longitude" json:"longitude,omitempty"`
	Failures         datatypes.JSON `gorm:"column:failures" json:"failures,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;index" json:"created_at"`
}

func (AlertHistory) TableName() string { return "alert_history" }
