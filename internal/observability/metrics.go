package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/migralert/migralert-backend/internal/platform/envutil"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

const namespace = "migralert"

// Metrics is nil when METRICS_ENABLED is off; every method is nil-safe.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	reportsCreated     *prometheus.CounterVec
	interactions       *prometheus.CounterVec
	casRetries         prometheus.Counter
	alertDispatches    *prometheus.CounterVec
	alertSends         *prometheus.CounterVec
	alertDispatchTime  prometheus.Histogram
	panicTransitions   *prometheus.CounterVec
	sseClients         prometheus.Gauge
	retentionPurged    prometheus.Counter
	rateLimitRejected  *prometheus.CounterVec
	geocodeFailures    prometheus.Counter
	photoCompressFails prometheus.Counter
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("prometheus metrics enabled")
		}
	})
	return instance
}

// NewMetrics builds a Metrics on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "api", Name: "requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "api", Name: "request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "api", Name: "inflight_requests",
			Help: "In-flight API requests.",
		}),
		reportsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reports", Name: "created_total",
			Help: "Reports created, labeled by activity type and photo presence.",
		}, []string{"activity_type", "has_photo"}),
		interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reports", Name: "interactions_total",
			Help: "Report interactions by type and outcome.",
		}, []string{"type", "result"}),
		casRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reports", Name: "score_cas_retries_total",
			Help: "Confidence score compare-and-swap retries.",
		}),
		alertDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "alerts", Name: "dispatches_total",
			Help: "Alert dispatches by kind (emergency/test) and result.",
		}, []string{"kind", "result"}),
		alertSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "alerts", Name: "sms_sends_total",
			Help: "Individual SMS sends by result.",
		}, []string{"result"}),
		alertDispatchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "alerts", Name: "dispatch_duration_seconds",
			Help:    "Wall time of an alert fan-out.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		panicTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "panic", Name: "transitions_total",
			Help: "Panic button transitions (press, release, confirmed, rejected).",
		}, []string{"transition"}),
		sseClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "realtime", Name: "sse_clients",
			Help: "Open server-sent event streams.",
		}),
		retentionPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "retention", Name: "reports_purged_total",
			Help: "Reports hard-deleted by the retention sweeper.",
		}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "api", Name: "rate_limited_total",
			Help: "Requests rejected by the rate limiter, by route.",
		}, []string{"route"}),
		geocodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reports", Name: "geocode_failures_total",
			Help: "Reverse geocode failures absorbed with placeholders.",
		}),
		photoCompressFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reports", Name: "photo_compress_failures_total",
			Help: "Photo compressions that fell back to the original bytes.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.reportsCreated, m.interactions, m.casRetries,
		m.alertDispatches, m.alertSends, m.alertDispatchTime,
		m.panicTransitions, m.sseClients, m.retentionPurged,
		m.rateLimitRejected, m.geocodeFailures, m.photoCompressFails,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ReportCreated(activityType string, hasPhoto bool) {
	if m == nil {
		return
	}
	photo := "false"
	if hasPhoto {
		photo = "true"
	}
	m.reportsCreated.WithLabelValues(activityType, photo).Inc()
}

func (m *Metrics) Interaction(kind, result string) {
	if m == nil {
		return
	}
	m.interactions.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ScoreCASRetry() {
	if m == nil {
		return
	}
	m.casRetries.Inc()
}

func (m *Metrics) AlertDispatch(kind, result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.alertDispatches.WithLabelValues(kind, result).Inc()
	m.alertDispatchTime.Observe(dur.Seconds())
}

func (m *Metrics) AlertSend(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.alertSends.WithLabelValues("ok").Inc()
		return
	}
	m.alertSends.WithLabelValues("error").Inc()
}

func (m *Metrics) PanicTransition(transition string) {
	if m == nil {
		return
	}
	m.panicTransitions.WithLabelValues(transition).Inc()
}

func (m *Metrics) SSEClientOpened() {
	if m == nil {
		return
	}
	m.sseClients.Inc()
}

func (m *Metrics) SSEClientClosed() {
	if m == nil {
		return
	}
	m.sseClients.Dec()
}

func (m *Metrics) RetentionPurged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.retentionPurged.Add(float64(n))
}

func (m *Metrics) RateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimitRejected.WithLabelValues(route).Inc()
}

func (m *Metrics) GeocodeFailure() {
	if m == nil {
		return
	}
	m.geocodeFailures.Inc()
}

func (m *Metrics) PhotoCompressFailure() {
	if m == nil {
		return
	}
	m.photoCompressFails.Inc()
}
