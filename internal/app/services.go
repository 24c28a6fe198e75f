package app

import (
	"gorm.io/gorm"

	"github.com/migralert/migralert-backend/internal/observability"
	"github.com/migralert/migralert-backend/internal/platform/logger"
	"github.com/migralert/migralert-backend/internal/realtime"
	"github.com/migralert/migralert-backend/internal/scoring"
	"github.com/migralert/migralert-backend/internal/services"
)

type Services struct {
	Auth      services.AuthService
	User      services.UserService
	Reports   services.ReportService
	Contacts  services.ContactService
	Alerts    services.AlertService
	Panic     services.PanicService
	Feedback  services.FeedbackService
	Retention services.RetentionService

	SessionCache *services.SessionCache
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	cfg Config,
	reposet Repos,
	clients Clients,
	publisher realtime.Publisher,
	metrics *observability.Metrics,
) Services {
	log.Info("Wiring services...")

	cache := services.NewSessionCache(cfg.SessionCacheTTL)

	policy, err := scoring.LoadPolicy()
	if err != nil {
		log.Warn("Scoring policy invalid; using defaults", "error", err)
	}

	authService := services.NewAuthService(
		db, log,
		reposet.User, reposet.UserToken,
		cfg.JWTSecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL,
	)
	userService := services.NewUserService(log, reposet.User)

	reportService := services.NewReportService(
		db, log,
		reposet.Report, reposet.Interaction,
		scoring.NewScorer(policy),
		clients.Geocoder, clients.Bucket, clients.Screener,
		publisher, metrics,
		services.ReportConfigFromEnv(),
	)

	contactService := services.NewContactService(
		db, log,
		reposet.Contact, reposet.AlertConfig, reposet.History,
		cache, publisher,
	)
	alertService := services.NewAlertService(
		log, contactService,
		reposet.User, reposet.History,
		clients.SMS, cache, publisher, metrics,
		services.DispatchConfigFromEnv(),
	)
	panicService := services.NewPanicService(
		log, contactService, alertService,
		publisher, metrics,
		services.PanicConfigFromEnv(),
	)

	feedbackService := services.NewFeedbackService(log, reposet.Feedback)

	retentionService := services.NewRetentionService(
		log,
		reposet.Report, reposet.UserToken, reposet.History,
		clients.Bucket, metrics,
		services.RetentionConfigFromEnv(),
	)

	return Services{
		Auth:         authService,
		User:         userService,
		Reports:      reportService,
		Contacts:     contactService,
		Alerts:       alertService,
		Panic:        panicService,
		Feedback:     feedbackService,
		Retention:    retentionService,
		SessionCache: cache,
	}
}
