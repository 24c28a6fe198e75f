package app

import (
	"gorm.io/gorm"

	"github.com/migralert/migralert-backend/internal/data/repos"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

type Repos struct {
	User        repos.UserRepo
	UserToken   repos.UserTokenRepo
	Report      repos.ReportRepo
	Interaction repos.ReportInteractionRepo
	Contact     repos.EmergencyContactRepo
	AlertConfig repos.AlertConfigRepo
	History     repos.AlertHistoryRepo
	Feedback    repos.FeedbackRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:        repos.NewUserRepo(db, log),
		UserToken:   repos.NewUserTokenRepo(db, log),
		Report:      repos.NewReportRepo(db, log),
		Interaction: repos.NewReportInteractionRepo(db, log),
		Contact:     repos.NewEmergencyContactRepo(db, log),
		AlertConfig: repos.NewAlertConfigRepo(db, log),
		History:     repos.NewAlertHistoryRepo(db, log),
		Feedback:    repos.NewFeedbackRepo(db, log),
	}
}
