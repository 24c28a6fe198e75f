package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/migralert/migralert-backend/internal/http/response"
	"github.com/migralert/migralert-backend/internal/observability"
	"github.com/migralert/migralert-backend/internal/platform/apierr"
	"github.com/migralert/migralert-backend/internal/platform/ctxutil"
	"github.com/migralert/migralert-backend/internal/platform/envutil"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

// Limiter counts hits per key inside fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

func (c RateLimitConfig) Enabled() bool { return c.Limit > 0 && c.Window > 0 }

// RateLimitConfigFromEnv reads RATE_LIMIT_<NAME>_REQUESTS and
// RATE_LIMIT_<NAME>_WINDOW_SECONDS. A zero limit disables the route limit.
func RateLimitConfigFromEnv(name string, defLimit int, defWindow time.Duration) RateLimitConfig {
	prefix := "RATE_LIMIT_" + name
	return RateLimitConfig{
		Limit:  envutil.Int(prefix+"_REQUESTS", defLimit),
		Window: envutil.Seconds(prefix+"_WINDOW_SECONDS", int(defWindow/time.Second)),
	}
}

type memoryWindow struct {
	start time.Time
	count int
}

type MemoryLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu        sync.Mutex
	windows   map[string]*memoryWindow
	lastSweep time.Time
}

func NewMemoryLimiter(cfg RateLimitConfig) *MemoryLimiter {
	return &MemoryLimiter{cfg: cfg, now: time.Now, windows: map[string]*memoryWindow{}}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.cfg.Window {
		for k, w := range l.windows {
			if now.Sub(w.start) >= l.cfg.Window {
				delete(l.windows, k)
			}
		}
		l.lastSweep = now
	}

	w := l.windows[key]
	if w == nil || now.Sub(w.start) >= l.cfg.Window {
		w = &memoryWindow{start: now}
		l.windows[key] = w
	}
	if w.count >= l.cfg.Limit {
		return false, w.start.Add(l.cfg.Window).Sub(now), nil
	}
	w.count++
	return true, 0, nil
}

// RedisLimiter shares windows across instances. The counter expires with
// its window, set on the first hit.
type RedisLimiter struct {
	rdb    *goredis.Client
	cfg    RateLimitConfig
	prefix string
}

func NewRedisLimiter(rdb *goredis.Client, name string, cfg RateLimitConfig) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, cfg: cfg, prefix: "migralert:ratelimit:" + name + ":"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := l.prefix + key
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, l.cfg.Window)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, fmt.Errorf("rate limit %s: %w", k, err)
	}
	if incr.Val() <= int64(l.cfg.Limit) {
		return true, 0, nil
	}
	retry := ttl.Val()
	if retry <= 0 {
		retry = l.cfg.Window
	}
	return false, retry, nil
}

// NewLimiter picks the redis limiter when a client is available.
func NewLimiter(rdb *goredis.Client, name string, cfg RateLimitConfig) Limiter {
	if rdb != nil {
		return NewRedisLimiter(rdb, name, cfg)
	}
	return NewMemoryLimiter(cfg)
}

// RateLimitKey is the authenticated user id, else the client IP.
func RateLimitKey(c *gin.Context) string {
	ctx := c.Request.Context()
	if rd := ctxutil.GetRequestData(ctx); rd != nil && rd.UserID != uuid.Nil {
		return "user:" + rd.UserID.String()
	}
	if ip := ctxutil.GetClientIP(ctx); ip != "" {
		return "ip:" + ip
	}
	return "ip:" + c.ClientIP()
}

// RateLimit rejects with 429 once the key is over its window. Limiter
// failures let the request through.
func RateLimit(log *logger.Logger, route string, limiter Limiter, m *observability.Metrics) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		ok, retryAfter, err := limiter.Allow(c.Request.Context(), route+"|"+RateLimitKey(c))
		if err != nil {
			if log != nil {
				log.Warn("Rate limiter unavailable", "route", route, "error", err)
			}
			c.Next()
			return
		}
		if !ok {
			m.RateLimited(route)
			secs := int((retryAfter + time.Second - 1) / time.Second)
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			response.RespondAPIError(c, apierr.NewRetryable(http.StatusTooManyRequests, apierr.CodeRateLimited, errRateLimited))
			return
		}
		c.Next()
	}
}
