package domain

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// assignID gives rows a client-side UUID so inserts work on postgres and sqlite alike.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (r *Report) BeforeCreate(*gorm.DB) error            { assignID(&r.ID); return nil }
func (r *ReportInteraction) BeforeCreate(*gorm.DB) error { assignID(&r.ID); return nil }
func (c *EmergencyContact) BeforeCreate(*gorm.DB) error  { assignID(&c.ID); return nil }
func (a *AlertConfig) BeforeCreate(*gorm.DB) error       { assignID(&a.ID); return nil }
func (a *AlertHistory) BeforeCreate(*gorm.DB) error      { assignID(&a.ID); return nil }
func (u *User) BeforeCreate(*gorm.DB) error              { assignID(&u.ID); return nil }
func (t *UserToken) BeforeCreate(*gorm.DB) error         { assignID(&t.ID); return nil }
func (f *Feedback) BeforeCreate(*gorm.DB) error          { assignID(&f.ID); return nil }
