package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type FeedbackCategory string

const (
	FeedbackBug         FeedbackCategory = "bug"
	FeedbackFeature     FeedbackCategory = "feature"
	FeedbackImprovement FeedbackCategory = "improvement"
	FeedbackOther       FeedbackCategory = "other"
)

func ParseFeedbackCategory(s string) (FeedbackCategory, bool) {
	c := FeedbackCategory(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case FeedbackBug, FeedbackFeature, FeedbackImprovement, FeedbackOther:
		return c, true
	default:
		return c, false
	}
}

const (
	MaxFeedbackTitleLength       = 120
	MaxFeedbackDescriptionLength = 2000
)

type Feedback struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      *uuid.UUID       `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Category    FeedbackCategory `gorm:"not null;column:category" json:"category"`
	Title       string           `gorm:"not null;column:title" json:"title"`
	Description string           `gorm:"not null;column:description" json:"description"`
	Email       string           `gorm:"column:email" json:"email,omitempty"`
	Status      string           `gorm:"not null;default:new;column:status" json:"status"`
	CreatedAt   time.Time        `gorm:"not null" json:"created_at"`
}

func (Feedback) TableName() string { return "feedback" }
