package observability

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kitchen_engine"

// Metrics stores Prometheus collectors used by the API and event worker.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec
	transitionsTotal         *prometheus.CounterVec
	transitionsRejectedTotal *prometheus.CounterVec
	batchVerdictsTotal       *prometheus.CounterVec
	stepDurationMinutes      prometheus.Histogram
	eventsRecordedTotal      *prometheus.CounterVec
	clockStreamsActive       prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Total number of applied batch transitions by operation.",
			},
			[]string{"operation"},
		),
		transitionsRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_rejected_total",
				Help:      "Total number of rejected batch transitions by operation and reason.",
			},
			[]string{"operation", "reason"},
		),
		batchVerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_verdicts_total",
				Help:      "Total number of recorded batch verdicts.",
			},
			[]string{"verdict"},
		),
		stepDurationMinutes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_minutes",
				Help:      "Duration of ended process steps in minutes.",
				Buckets:   []float64{1, 2, 5, 10, 15, 20, 30, 45, 60, 90, 120, 240},
			},
		),
		eventsRecordedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_recorded_total",
				Help:      "Total number of batch events written to the audit table.",
			},
			[]string{"type"},
		),
		clockStreamsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "clock_streams_active",
				Help:      "Current number of open step clock streams.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.transitionsTotal,
		m.transitionsRejectedTotal,
		m.batchVerdictsTotal,
		m.stepDurationMinutes,
		m.eventsRecordedTotal,
		m.clockStreamsActive,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncTransition(operation string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *Metrics) IncTransitionRejected(operation string, reason string) {
	if m == nil {
		return
	}
	m.transitionsRejectedTotal.WithLabelValues(normalizeLabel(operation), normalizeLabel(reason)).Inc()
}

func (m *Metrics) IncVerdict(verdict string) {
	if m == nil {
		return
	}
	m.batchVerdictsTotal.WithLabelValues(normalizeLabel(verdict)).Inc()
}

func (m *Metrics) ObserveStepDuration(duration time.Duration) {
	if m == nil {
		return
	}
	minutes := duration.Minutes()
	if minutes < 0 {
		minutes = 0
	}
	m.stepDurationMinutes.Observe(minutes)
}

func (m *Metrics) IncEventRecorded(eventType string) {
	if m == nil {
		return
	}
	m.eventsRecordedTotal.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *Metrics) IncClockStreams() {
	if m == nil {
		return
	}
	m.clockStreamsActive.Inc()
}

func (m *Metrics) DecClockStreams() {
	if m == nil {
		return
	}
	m.clockStreamsActive.Dec()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
