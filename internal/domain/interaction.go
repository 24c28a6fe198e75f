package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type InteractionType string

const (
	InteractionConfirm        InteractionType = "confirm"
	InteractionNoLongerActive InteractionType = "no_longer_active"
	InteractionFalse          InteractionType = "false"
)

func ParseInteractionType(s string) (InteractionType, bool) {
	t := InteractionType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case InteractionConfirm, InteractionNoLongerActive, InteractionFalse:
		return t, true
	default:
		return t, false
	}
}

// ReportInteraction is immutable once written. ActorKey is "user:<id>" for
// signed-in actors and "anon:<hash>" otherwise; (ReportID, ActorKey) is unique.
type ReportInteraction struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ReportID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_report_interaction_actor,priority:1" json:"report_id"`
	Report          *Report         `gorm:"constraint:OnDelete:CASCADE;foreignKey:ReportID;references:ID" json:"-"`
	UserID          *uuid.UUID      `gorm:"type:uuid;index" json:"user_id,omitempty"`
	ActorKey        string          `gorm:"not null;column:actor_key;uniqueIndex:idx_report_interaction_actor,priority:2" json:"-"`
	InteractionType InteractionType `gorm:"not null;column:interaction_type" json:"interaction_type"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
}

func (ReportInteraction) TableName() string { return "report_interaction" }
