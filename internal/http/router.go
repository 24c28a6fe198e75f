package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/migralert/migralert-backend/internal/http/handlers"
	httpMW "github.com/migralert/migralert-backend/internal/http/middleware"
	"github.com/migralert/migralert-backend/internal/observability"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

// Limiters keyed by route group. A nil limiter disables the limit.
type Limiters struct {
	Auth         httpMW.Limiter
	Submit       httpMW.Limiter
	Interactions httpMW.Limiter
	Emergency    httpMW.Limiter
	TestAlerts   httpMW.Limiter
	Feedback     httpMW.Limiter
}

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	AllowedOrigins []string
	Limiters       Limiters

	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler   *httpH.HealthHandler
	AuthHandler     *httpH.AuthHandler
	UserHandler     *httpH.UserHandler
	ReportHandler   *httpH.ReportHandler
	ContactHandler  *httpH.ContactHandler
	AlertHandler    *httpH.AlertHandler
	PanicHandler    *httpH.PanicHandler
	RealtimeHandler *httpH.RealtimeHandler
	FeedbackHandler *httpH.FeedbackHandler
	MediaHandler    *httpH.MediaHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	limit := func(route string, l httpMW.Limiter) gin.HandlerFunc {
		if l == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return httpMW.RateLimit(cfg.Log, route, l, cfg.Metrics)
	}

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	if cfg.MediaHandler != nil {
		r.GET("/media/:category/*key", cfg.MediaHandler.Serve)
	}

	api := r.Group("/api")
	am := cfg.AuthMiddleware

	// Auth (public)
	if cfg.AuthHandler != nil {
		authLimit := limit("auth", cfg.Limiters.Auth)
		api.POST("/auth/register", authLimit, cfg.AuthHandler.Register)
		api.POST("/auth/login", authLimit, cfg.AuthHandler.Login)
		api.POST("/auth/refresh", authLimit, cfg.AuthHandler.Refresh)
		api.POST("/auth/logout", am.RequireAuth(), cfg.AuthHandler.Logout)
	}

	// Reports
	if cfg.ReportHandler != nil {
		api.GET("/reports", cfg.ReportHandler.Query)
		api.GET("/reports/active", cfg.ReportHandler.ListActive)
		api.GET("/reports/:id", cfg.ReportHandler.Get)
		api.POST("/reports", am.RequireAuth(), limit("submit", cfg.Limiters.Submit), cfg.ReportHandler.Submit)
		api.POST("/reports/:id/interactions", am.OptionalAuth(), limit("interactions", cfg.Limiters.Interactions), cfg.ReportHandler.Interact)
		api.PATCH("/reports/:id/status", am.RequireAuth(), am.RequireModerator(), cfg.ReportHandler.Moderate)
	}

	// Realtime (SSE)
	if cfg.RealtimeHandler != nil {
		api.GET("/reports/stream", cfg.RealtimeHandler.ReportsStream)
		api.GET("/realtime/stream", am.RequireAuth(), cfg.RealtimeHandler.UserStream)
	}

	if cfg.FeedbackHandler != nil {
		api.POST("/feedback", am.OptionalAuth(), limit("feedback", cfg.Limiters.Feedback), cfg.FeedbackHandler.Submit)
	}

	protected := api.Group("/")
	protected.Use(am.RequireAuth())
	{
		// User (Me)
		if cfg.UserHandler != nil {
			protected.GET("/me", cfg.UserHandler.GetMe)
			protected.PATCH("/me", cfg.UserHandler.UpdateMe)
		}

		// Contacts
		if cfg.ContactHandler != nil {
			protected.GET("/contacts", cfg.ContactHandler.List)
			protected.POST("/contacts", cfg.ContactHandler.Add)
			protected.PUT("/contacts/order", cfg.ContactHandler.Reorder)
			protected.PATCH("/contacts/:id", cfg.ContactHandler.Update)
			protected.DELETE("/contacts/:id", cfg.ContactHandler.Remove)

			protected.GET("/alert-config", cfg.ContactHandler.GetAlertConfig)
			protected.PUT("/alert-config", cfg.ContactHandler.SetAlertConfig)
			protected.GET("/alert-history", cfg.ContactHandler.ListHistory)
			protected.DELETE("/alert-history", cfg.ContactHandler.ClearHistory)
		}

		// Alerts
		if cfg.AlertHandler != nil {
			// Emergency and test sends are limited separately.
			protected.POST("/alerts/emergency", limit("alerts_emergency", cfg.Limiters.Emergency), cfg.AlertHandler.Emergency)
			protected.POST("/alerts/test", limit("alerts_test", cfg.Limiters.TestAlerts), cfg.AlertHandler.Test)
		}

		// Panic
		if cfg.PanicHandler != nil {
			protected.POST("/panic/press", cfg.PanicHandler.Press)
			protected.POST("/panic/release", cfg.PanicHandler.Release)
			protected.GET("/panic/state", cfg.PanicHandler.State)
		}
	}

	return r
}
