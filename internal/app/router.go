package app

import (
	apphttp "github.com/migralert/migralert-backend/internal/http"
	"github.com/migralert/migralert-backend/internal/observability"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

func routerConfig(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware, metrics *observability.Metrics) apphttp.RouterConfig {
	return apphttp.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		ServiceName:     cfg.ServiceName,
		AllowedOrigins:  cfg.AllowedOrigins,
		Limiters:        middleware.Limiters,
		AuthMiddleware:  middleware.Auth,
		HealthHandler:   handlers.Health,
		AuthHandler:     handlers.Auth,
		UserHandler:     handlers.User,
		ReportHandler:   handlers.Report,
		ContactHandler:  handlers.Contact,
		AlertHandler:    handlers.Alert,
		PanicHandler:    handlers.Panic,
		RealtimeHandler: handlers.Realtime,
		FeedbackHandler: handlers.Feedback,
		MediaHandler:    handlers.Media,
	}
}
