package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/migralert/migralert-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		// identity
		&types.User{},
		&types.UserToken{},

		// reports
		&types.Report{},
		&types.ReportInteraction{},

		// emergency alerting
		&types.EmergencyContact{},
		&types.AlertConfig{},
		&types.AlertHistory{},

		&types.Feedback{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if err := EnsureReportIndexes(db); err != nil {
		return err
	}
	return EnsureAlertIndexes(db)
}

// The statements below are valid on both postgres and sqlite.

func EnsureReportIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_report_active_lat_lng
		ON report (latitude, longitude)
		WHERE status <> 'removed' AND deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_report_active_lat_lng: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_report_active_recent
		ON report (expires_at, created_at DESC)
		WHERE status <> 'removed' AND deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_report_active_recent: %w", err)
	}
	return nil
}

func EnsureAlertIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_emergency_contact_user_order
		ON emergency_contact (user_id, contact_order)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_emergency_contact_user_order: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_alert_history_user_recent
		ON alert_history (user_id, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_alert_history_user_recent: %w", err)
	}
	return nil
}
