package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.AlertSend(true)
	m.RetentionPurged(3)
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have no registry")
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := NewMetrics()
	m.ObserveAPI("GET", "/api/reports", "200", 20*time.Millisecond)
	m.AlertDispatch("emergency", "ok", time.Second)
	m.ReportCreated("raid", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`migralert_api_requests_total{method="GET",route="/api/reports",status="200"} 1`,
		`migralert_alerts_dispatches_total{kind="emergency",result="ok"} 1`,
		`migralert_reports_created_total{activity_type="raid",has_photo="true"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
