package app

import (
	httpH "github.com/migralert/migralert-backend/internal/http/handlers"
	"github.com/migralert/migralert-backend/internal/observability"
	"github.com/migralert/migralert-backend/internal/platform/logger"
	"github.com/migralert/migralert-backend/internal/realtime"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Auth     *httpH.AuthHandler
	User     *httpH.UserHandler
	Report   *httpH.ReportHandler
	Contact  *httpH.ContactHandler
	Alert    *httpH.AlertHandler
	Panic    *httpH.PanicHandler
	Realtime *httpH.RealtimeHandler
	Feedback *httpH.FeedbackHandler
	Media    *httpH.MediaHandler
}

func wireHandlers(log *logger.Logger, services Services, clients Clients, sseHub *realtime.SSEHub, metrics *observability.Metrics) Handlers {
	log.Info("Wiring handlers...")

	rt := httpH.NewRealtimeHandler(log, sseHub, metrics)
	// A session's hold cannot outlive its last event stream.
	rt.OnSessionClosed = services.Panic.CloseSession

	h := Handlers{
		Health:   httpH.NewHealthHandler(),
		Auth:     httpH.NewAuthHandler(services.Auth, services.Panic, services.SessionCache),
		User:     httpH.NewUserHandler(services.User),
		Report:   httpH.NewReportHandler(services.Reports),
		Contact:  httpH.NewContactHandler(services.Contacts),
		Alert:    httpH.NewAlertHandler(services.Alerts),
		Panic:    httpH.NewPanicHandler(services.Panic),
		Realtime: rt,
		Feedback: httpH.NewFeedbackHandler(services.Feedback),
	}
	if clients.MemoryBucket != nil {
		h.Media = httpH.NewMediaHandler(clients.MemoryBucket)
	}
	return h
}
