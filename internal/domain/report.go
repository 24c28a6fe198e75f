package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ActivityType string

const (
	ActivityCheckpoint   ActivityType = "checkpoint"
	ActivityRaid         ActivityType = "raid"
	ActivityPatrol       ActivityType = "patrol"
	ActivityDetention    ActivityType = "detention"
	ActivitySurveillance ActivityType = "surveillance"
	ActivityOther        ActivityType = "other"
)

var activityTypes = map[ActivityType]bool{
	ActivityCheckpoint:   true,
	ActivityRaid:         true,
	ActivityPatrol:       true,
	ActivityDetention:    true,
	ActivitySurveillance: true,
	ActivityOther:        true,
}

// ParseActivityType normalizes s and reports whether it is a known activity type.
func ParseActivityType(s string) (ActivityType, bool) {
	t := ActivityType(strings.ToLower(strings.TrimSpace(s)))
	return t, activityTypes[t]
}

type ReportStatus string

const (
	ReportStatusPending  ReportStatus = "pending"
	ReportStatusVerified ReportStatus = "verified"
	ReportStatusRemoved  ReportStatus = "removed"
)

func (s ReportStatus) Valid() bool {
	switch s {
	case ReportStatusPending, ReportStatusVerified, ReportStatusRemoved:
		return true
	default:
		return false
	}
}

const (
	MaxDescriptionLength = 500
	UnknownPlace         = "Unknown"
)

type Report struct {
	ID              uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          *uuid.UUID   `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Latitude        float64      `gorm:"not null;column:latitude" json:"latitude"`
	Longitude       float64      `gorm:"not null;column:longitude" json:"longitude"`
	City            string       `gorm:"not null;column:city" json:"city"`
	Region          string       `gorm:"not null;column:region" json:"region"`
	ActivityType    ActivityType `gorm:"not null;column:activity_type" json:"activity_type"`
	Description     string       `gorm:"column:description;size:500" json:"description,omitempty"`
	ImageURL        string       `gorm:"column:image_url" json:"image_url,omitempty"`
	ImageKey        string       `gorm:"column:image_key" json:"-"`
	Status          ReportStatus `gorm:"not null;column:status;index" json:"status"`
	ConfidenceScore int          `gorm:"not null;column:confidence_score" json:"confidence_score"`
	ConfirmCount    int          `gorm:"not null;default:0;column:confirm_count" json:"confirm_count"`
	InactiveCount   int          `gorm:"not null;default:0;column:inactive_count" json:"inactive_count"`
	FalseCount      int          `gorm:"not null;default:0;column:false_count" json:"false_count"`
	Version         int          `gorm:"not null;default:0;column:version" json:"-"`
	ExpiresAt       time.Time    `gorm:"not null;column:expires_at;index" json:"expires_at"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Report) TableName() string { return "report" }

// Visible reports whether the report is shown to viewers at now.
func (r *Report) Visible(now time.Time) bool {
	return r != nil && r.Status != ReportStatusRemoved && r.ExpiresAt.After(now)
}
