package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pipeline and its HTTP surface
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	apiErrorsTotal      *prometheus.CounterVec

	pointsIngested     *prometheus.CounterVec
	sourceFailures     *prometheus.CounterVec
	cycleDuration      prometheus.Histogram
	snapshotsPublished prometheus.Counter
	bufferedPoints     prometheus.Gauge
	activeSources      prometheus.Gauge
	degradedSources    prometheus.Gauge
	activeAlerts       prometheus.Gauge
	streamSubscribers  prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all metrics on a private registry so
// multiple instances can coexist in tests
func NewMetrics() *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsehub_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulsehub_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		apiErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsehub_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"endpoint", "error_type"},
		),
		pointsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsehub_points_ingested_total",
				Help: "Total number of data points ingested",
			},
			[]string{"source"},
		),
		sourceFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsehub_source_failures_total",
				Help: "Total number of source pull failures",
			},
			[]string{"source"},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pulsehub_aggregation_cycle_seconds",
				Help:    "Aggregation cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		snapshotsPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pulsehub_snapshots_published_total",
				Help: "Total number of snapshots published",
			},
		),
		bufferedPoints: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulsehub_buffered_points",
				Help: "Current number of buffered data points",
			},
		),
		activeSources: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulsehub_active_sources",
				Help: "Number of healthy source connectors",
			},
		),
		degradedSources: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulsehub_degraded_sources",
				Help: "Number of degraded source connectors",
			},
		),
		activeAlerts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulsehub_active_alerts",
				Help: "Number of active alerts",
			},
		),
		streamSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulsehub_stream_subscribers",
				Help: "Number of active snapshot stream subscribers",
			},
		),
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.apiErrorsTotal,
		m.pointsIngested,
		m.sourceFailures,
		m.cycleDuration,
		m.snapshotsPublished,
		m.bufferedPoints,
		m.activeSources,
		m.degradedSources,
		m.activeAlerts,
		m.streamSubscribers,
	)

	return m
}

// MetricsMiddleware creates a Prometheus metrics middleware
func (m *Metrics) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)

		if c.Writer.Status() >= 400 {
			errorType := "client_error"
			if c.Writer.Status() >= 500 {
				errorType = "server_error"
			}
			m.apiErrorsTotal.WithLabelValues(path, errorType).Inc()
		}
	}
}

// Handler returns the metrics exposition handler for this instance
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordIngestion counts ingested points for one source
func (m *Metrics) RecordIngestion(source string, count int) {
	m.pointsIngested.WithLabelValues(source).Add(float64(count))
}

// RecordSourceFailure counts one failed pull
func (m *Metrics) RecordSourceFailure(source string) {
	m.sourceFailures.WithLabelValues(source).Inc()
}

// RecordCycle records one aggregation cycle's outcome
func (m *Metrics) RecordCycle(duration time.Duration, buffered, active, degraded, alerts int) {
	m.cycleDuration.Observe(duration.Seconds())
	m.snapshotsPublished.Inc()
	m.bufferedPoints.Set(float64(buffered))
	m.activeSources.Set(float64(active))
	m.degradedSources.Set(float64(degraded))
	m.activeAlerts.Set(float64(alerts))
}

// SetStreamSubscribers tracks the active websocket subscriber count
func (m *Metrics) SetStreamSubscribers(count int) {
	m.streamSubscribers.Set(float64(count))
}
