package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for cloudtally.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Backend and aggregation metrics.
	BackendFetchesTotal     *prometheus.CounterVec
	BackendFetchDuration    *prometheus.HistogramVec
	NormalizationDropsTotal *prometheus.CounterVec
	AggregationsTotal       *prometheus.CounterVec
	FleetCost               *prometheus.GaugeVec

	// Auth and rate limiting metrics.
	AuthFailuresTotal        *prometheus.CounterVec
	AuthSuccessesTotal       *prometheus.CounterVec
	RateLimitRejectionsTotal *prometheus.CounterVec

	// History collector metrics.
	CollectorBufferSize    prometheus.Gauge
	CollectorFlushesTotal  *prometheus.CounterVec
	CollectorFlushDuration prometheus.Histogram
	CollectorRecordsTotal  prometheus.Counter

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudtally_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cloudtally_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		BackendFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudtally_backend_fetches_total",
			Help: "Total number of backend listings by resource kind and outcome.",
		}, []string{"kind", "outcome"}),

		BackendFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cloudtally_backend_fetch_duration_seconds",
			Help:    "Backend listing duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),

		NormalizationDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudtally_normalization_drops_total",
			Help: "Total number of malformed records dropped during normalization.",
		}, []string{"kind"}),

		AggregationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudtally_aggregations_total",
			Help: "Total number of aggregations by status (ok, degraded, failed).",
		}, []string{"status"}),

		FleetCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cloudtally_fleet_cost",
			Help: "Fleet total cost computed by the most recent aggregation.",
		}, []string{"currency"}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudtally_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_type"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudtally_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"auth_type"}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudtally_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"scope"}),

		CollectorBufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cloudtally_history_buffer_size",
			Help: "Current number of buffered cost history records.",
		}),

		CollectorFlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudtally_history_flushes_total",
			Help: "Total number of cost history flushes.",
		}, []string{"status"}),

		CollectorFlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cloudtally_history_flush_duration_seconds",
			Help:    "Duration of cost history flushes in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		CollectorRecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cloudtally_history_records_total",
			Help: "Total number of cost history records recorded.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cloudtally_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.BackendFetchesTotal,
		m.BackendFetchDuration,
		m.NormalizationDropsTotal,
		m.AggregationsTotal,
		m.FleetCost,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.RateLimitRejectionsTotal,
		m.CollectorBufferSize,
		m.CollectorFlushesTotal,
		m.CollectorFlushDuration,
		m.CollectorRecordsTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method, pathPattern string, statusCode int, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(seconds)
}

// ObserveFetch records one backend listing.
func (m *Metrics) ObserveFetch(kind, outcome string, seconds float64) {
	m.BackendFetchesTotal.WithLabelValues(kind, outcome).Inc()
	m.BackendFetchDuration.WithLabelValues(kind).Observe(seconds)
}

// IncNormalizationDrop increments the dropped record counter for kind.
func (m *Metrics) IncNormalizationDrop(kind string) {
	m.NormalizationDropsTotal.WithLabelValues(kind).Inc()
}

// IncAggregation increments the aggregation counter for status.
func (m *Metrics) IncAggregation(status string) {
	m.AggregationsTotal.WithLabelValues(status).Inc()
}

// SetFleetCost records the latest fleet total.
func (m *Metrics) SetFleetCost(currency string, total float64) {
	m.FleetCost.WithLabelValues(currency).Set(total)
}

// IncAuthFailure increments the auth failure counter for the given auth type.
func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

// IncAuthSuccess increments the auth success counter for the given auth type.
func (m *Metrics) IncAuthSuccess(authType string) {
	m.AuthSuccessesTotal.WithLabelValues(authType).Inc()
}

// ObserveBearer adapts bearer middleware outcomes to the auth counters.
func (m *Metrics) ObserveBearer(outcome string) {
	if outcome == "ok" {
		m.IncAuthSuccess("bearer")
		return
	}
	m.IncAuthFailure("bearer")
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection(scope string) {
	m.RateLimitRejectionsTotal.WithLabelValues(scope).Inc()
}

// SetCollectorBufferSize sets the history buffer gauge.
func (m *Metrics) SetCollectorBufferSize(n int) {
	m.CollectorBufferSize.Set(float64(n))
}

// ObserveCollectorFlush records one history flush.
func (m *Metrics) ObserveCollectorFlush(status string, seconds float64) {
	m.CollectorFlushesTotal.WithLabelValues(status).Inc()
	m.CollectorFlushDuration.Observe(seconds)
}

// IncCollectorRecords increments the recorded history counter.
func (m *Metrics) IncCollectorRecords() {
	m.CollectorRecordsTotal.Inc()
}
