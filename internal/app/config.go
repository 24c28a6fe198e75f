package app

import (
	"strings"
	"time"

	"github.com/migralert/migralert-backend/internal/platform/envutil"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

const defaultJWTSecret = "defaultsecret"

type Config struct {
	ServiceName string
	Environment string
	Version     string
	Port        string

	JWTSecretKey    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	SSEHeartbeat    time.Duration
	SessionCacheTTL time.Duration

	ObjectStoragePublicBaseURL string

	AutoMigrate bool
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		ServiceName: envutil.String("SERVICE_NAME", "migralert-api"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),
		Port:        envutil.String("PORT", "8080"),

		JWTSecretKey:    envutil.String("JWT_SECRET_KEY", defaultJWTSecret),
		AccessTokenTTL:  envutil.Seconds("ACCESS_TOKEN_TTL", 3600),
		RefreshTokenTTL: envutil.Seconds("REFRESH_TOKEN_TTL", 30*86400),

		AllowedOrigins:  envutil.List("CORS_ALLOWED_ORIGINS", nil),
		ShutdownTimeout: envutil.Seconds("SHUTDOWN_TIMEOUT_SECONDS", 15),
		SSEHeartbeat:    envutil.Seconds("SSE_HEARTBEAT_SECONDS", 25),
		SessionCacheTTL: envutil.Seconds("SESSION_CACHE_TTL_SECONDS", 300),

		ObjectStoragePublicBaseURL: envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", ""),

		AutoMigrate: envutil.Bool("DB_AUTO_MIGRATE", true),
	}
	if cfg.JWTSecretKey == defaultJWTSecret {
		log.Warn("JWT_SECRET_KEY not set; using insecure default")
	}
	if cfg.ObjectStoragePublicBaseURL == "" {
		cfg.ObjectStoragePublicBaseURL = "http://localhost:" + strings.TrimPrefix(cfg.Port, ":") + "/media"
	}
	return cfg
}

func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
