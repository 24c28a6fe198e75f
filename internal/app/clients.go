package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/migralert/migralert-backend/internal/clients/mapbox"
	"github.com/migralert/migralert-backend/internal/clients/redis"
	"github.com/migralert/migralert-backend/internal/clients/twilio"
	"github.com/migralert/migralert-backend/internal/platform/envutil"
	"github.com/migralert/migralert-backend/internal/platform/gcp"
	"github.com/migralert/migralert-backend/internal/platform/logger"
	"github.com/migralert/migralert-backend/internal/realtime/bus"
	"github.com/migralert/migralert-backend/internal/temporalx"
)

type Clients struct {
	Redis        *goredis.Client
	SSEBus       bus.Bus
	Bucket       gcp.BucketService
	MemoryBucket *gcp.MemoryBucketService
	Geocoder     mapbox.Geocoder
	SMS          twilio.Client
	Screener     gcp.PhotoScreener
	Temporal     temporalsdkclient.Client
	TemporalCfg  temporalx.Config
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Redis
	if rcfg := redis.ConfigFromEnv(); rcfg.Enabled() {
		rdb, err := redis.New(log, rcfg)
		if err != nil {
			return out, fmt.Errorf("init redis: %w", err)
		}
		out.Redis = rdb
		b, err := bus.NewRedisBus(log, rdb)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init redis SSE bus: %w", err)
		}
		out.SSEBus = b
	}

	// Object storage
	bucket, mem, err := resolveBucketService(log, cfg)
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init bucket client: %w", err)
	}
	out.Bucket = bucket
	out.MemoryBucket = mem

	// Geocoding
	if mcfg := mapbox.ConfigFromEnv(); mcfg.AccessToken != "" {
		g, err := mapbox.New(log, mcfg)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init mapbox geocoder: %w", err)
		}
		out.Geocoder = g
	} else {
		log.Warn("MAPBOX_ACCESS_TOKEN not set; reports will use placeholder places")
		out.Geocoder = mapbox.NewNoop()
	}

	// SMS
	if tcfg := twilio.ConfigFromEnv(); tcfg.Configured() {
		sms, err := twilio.New(log, tcfg)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init twilio client: %w", err)
		}
		out.SMS = sms
	} else {
		log.Warn("Twilio credentials not set; SMS sends are logged only")
		out.SMS = twilio.NewDryRun(log)
	}

	// Gcp Vision
	if envutil.Bool("VISION_SAFESEARCH_ENABLED", false) {
		screener, err := gcp.NewSafeSearchScreener(log)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init vision client: %w", err)
		}
		out.Screener = screener
	} else {
		out.Screener = gcp.NewAllowAllScreener()
	}

	// Temporal
	out.TemporalCfg = temporalx.LoadConfig()
	tc, err := temporalx.NewClient(ctx, log, out.TemporalCfg)
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init temporal client: %w", err)
	}
	out.Temporal = tc

	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Screener != nil {
		_ = c.Screener.Close()
	}
	if c.SSEBus != nil {
		_ = c.SSEBus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
