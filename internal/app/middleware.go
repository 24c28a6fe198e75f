package app

import (
	"time"

	goredis "github.com/redis/go-redis/v9"

	apphttp "github.com/migralert/migralert-backend/internal/http"
	httpMW "github.com/migralert/migralert-backend/internal/http/middleware"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

type Middleware struct {
	Auth     *httpMW.AuthMiddleware
	Limiters apphttp.Limiters
}

func wireMiddleware(log *logger.Logger, services Services, rdb *goredis.Client) Middleware {
	log.Info("Wiring middleware...")
	limiter := func(name string, defLimit int, defWindow time.Duration) httpMW.Limiter {
		cfg := httpMW.RateLimitConfigFromEnv(name, defLimit, defWindow)
		if !cfg.Enabled() {
			return nil
		}
		return httpMW.NewLimiter(rdb, name, cfg)
	}
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
		Limiters: apphttp.Limiters{
			Auth:         limiter("AUTH", 20, time.Minute),
			Submit:       limiter("SUBMIT", 10, time.Minute),
			Interactions: limiter("INTERACTIONS", 30, time.Minute),
			Emergency:    limiter("EMERGENCY", 30, time.Minute),
			TestAlerts:   limiter("TEST_ALERTS", 5, time.Minute),
			Feedback:     limiter("FEEDBACK", 5, time.Minute),
		},
	}
}
