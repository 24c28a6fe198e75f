package repos

import (
	"gorm.io/gorm"

	"github.com/migralert/migralert-backend/internal/data/repos/alerts"
	"github.com/migralert/migralert-backend/internal/data/repos/auth"
	"github.com/migralert/migralert-backend/internal/data/repos/feedback"
	"github.com/migralert/migralert-backend/internal/data/repos/reports"
	"github.com/migralert/migralert-backend/internal/data/repos/user"
	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

type UserRepo = user.UserRepo
type UserTokenRepo = auth.UserTokenRepo

type ReportRepo = reports.ReportRepo
type ReportInteractionRepo = reports.ReportInteractionRepo
type ScoreUpdate = reports.ScoreUpdate
type ReportCursor = reports.ReportCursor

type EmergencyContactRepo = alerts.EmergencyContactRepo
type AlertConfigRepo = alerts.AlertConfigRepo
type AlertHistoryRepo = alerts.AlertHistoryRepo

type FeedbackRepo = feedback.FeedbackRepo

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo { return user.NewUserRepo(db, baseLog) }
func NewUserTokenRepo(db *gorm.DB, baseLog *logger.Logger) UserTokenRepo {
	return auth.NewUserTokenRepo(db, baseLog)
}

func NewReportRepo(db *gorm.DB, baseLog *logger.Logger) ReportRepo {
	return reports.NewReportRepo(db, baseLog)
}
func NewReportInteractionRepo(db *gorm.DB, baseLog *logger.Logger) ReportInteractionRepo {
	return reports.NewReportInteractionRepo(db, baseLog)
}

func NewEmergencyContactRepo(db *gorm.DB, baseLog *logger.Logger) EmergencyContactRepo {
	return alerts.NewEmergencyContactRepo(db, baseLog)
}
func NewAlertConfigRepo(db *gorm.DB, baseLog *logger.Logger) AlertConfigRepo {
	return alerts.NewAlertConfigRepo(db, baseLog)
}
func NewAlertHistoryRepo(db *gorm.DB, baseLog *logger.Logger) AlertHistoryRepo {
	return alerts.NewAlertHistoryRepo(db, baseLog)
}

func NewFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) FeedbackRepo {
	return feedback.NewFeedbackRepo(db, baseLog)
}

func CursorAfter(r *types.Report) ReportCursor { return reports.CursorAfter(r) }
