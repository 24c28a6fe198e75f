package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/migralert/migralert-backend/internal/platform/logger"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	now := base
	l := NewMemoryLimiter(RateLimitConfig{Limit: 2, Window: time.Minute})
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _, _ := l.Allow(ctx, "a"); !ok {
			t.Fatalf("hit %d: want allowed", i)
		}
	}
	now = base.Add(20 * time.Second)
	ok, retry, err := l.Allow(ctx, "a")
	if err != nil || ok {
		t.Fatalf("third hit: want=denied got ok=%v err=%v", ok, err)
	}
	if retry != 40*time.Second {
		t.Fatalf("retry: want=%v got=%v", 40*time.Second, retry)
	}
	if ok, _, _ := l.Allow(ctx, "b"); !ok {
		t.Fatalf("other key should have its own window")
	}

	now = base.Add(time.Minute)
	if ok, _, _ := l.Allow(ctx, "a"); !ok {
		t.Fatalf("new window: want allowed")
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, errors.New("redis down")
}

func newLimitedRouter(l Limiter) *gin.Engine {
	r := gin.New()
	r.Use(AttachRequestContext())
	r.POST("/hit", RateLimit(logger.Nop(), "interactions", l, nil), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRateLimitMiddlewareRejectsWithRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newLimitedRouter(NewMemoryLimiter(RateLimitConfig{Limit: 1, Window: time.Minute}))

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/hit", nil)
		req.RemoteAddr = ip + ":4000"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	if rec := do("10.0.0.1"); rec.Code != http.StatusNoContent {
		t.Fatalf("first: want=%d got=%d", http.StatusNoContent, rec.Code)
	}
	rec := do("10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second: want=%d got=%d", http.StatusTooManyRequests, rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("retry-after: want=60 got=%q", got)
	}
	var body struct {
		Error struct {
			Code      string `json:"code"`
			Retryable bool   `json:"retryable"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "rate_limited" || !body.Error.Retryable {
		t.Fatalf("body: want rate_limited retryable got=%+v", body.Error)
	}
	if rec := do("10.0.0.2"); rec.Code != http.StatusNoContent {
		t.Fatalf("other ip: want=%d got=%d", http.StatusNoContent, rec.Code)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newLimitedRouter(failingLimiter{})
	req := httptest.NewRequest(http.MethodPost, "/hit", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status: want=%d got=%d", http.StatusNoContent, rec.Code)
	}
}
