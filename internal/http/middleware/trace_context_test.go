package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/migralert/migralert-backend/internal/platform/ctxutil"
)

func TestAttachTraceContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	var seen ctxutil.TraceData
	r.GET("/x", func(c *gin.Context) {
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			seen = *td
		}
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		header string
		keep   bool
	}{
		{"absent", "", false},
		{"kept", "req-42.a_b", true},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
		{"log injection", "abc\nlevel=error", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if tc.header != "" {
			req.Header.Set(headerRequestID, tc.header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		got := rec.Header().Get(headerRequestID)
		if tc.keep && got != tc.header {
			t.Fatalf("%s: want request id %q got=%q", tc.name, tc.header, got)
		}
		if !tc.keep && (got == "" || got == tc.header) {
			t.Fatalf("%s: want a generated request id got=%q", tc.name, got)
		}
		if seen.RequestID != got || seen.TraceID != got {
			t.Fatalf("%s: context trace data: got=%+v header=%q", tc.name, seen, got)
		}
		if rec.Header().Get(headerTraceID) != got {
			t.Fatalf("%s: trace header without a span falls back to the request id", tc.name)
		}
	}
}
