package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LavishGent/callgate/internal/types"
)

// PrometheusRecorder exports cache and scheduler activity as Prometheus
// series. Keys are never used as labels; only tiers and endpoint:action pairs.
type PrometheusRecorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	cacheLookups *prometheus.CounterVec
	cacheLatency *prometheus.HistogramVec
	cacheSets    *prometheus.CounterVec
	cacheBytes   *prometheus.CounterVec
	evictions    *prometheus.CounterVec

	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	retries        *prometheus.CounterVec
	circuitChanges *prometheus.CounterVec
}

// NewPrometheusRecorder registers the gateway series on reg. When reg is nil
// a dedicated registry is created so several recorders can coexist.
func NewPrometheusRecorder(namespace string, reg *prometheus.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "callgate"
	}

	r := &PrometheusRecorder{
		gatherer: reg,
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		cacheLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookup_duration_seconds",
			Help:      "Latency distribution for cache lookups.",
			Buckets:   []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"tier"}),
		cacheSets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "sets_total",
			Help:      "Entries written per tier.",
		}, []string{"tier"}),
		cacheBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "written_bytes_total",
			Help:      "Bytes written per tier.",
		}, []string{"tier"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries evicted per tier.",
		}, []string{"tier"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "requests_total",
			Help:      "Backend calls by endpoint:action and outcome.",
		}, []string{"endpoint", "outcome"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for backend call attempts.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"endpoint", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "retries_total",
			Help:      "Retries scheduled by endpoint:action and attempt number.",
		}, []string{"endpoint", "attempt"}),
		circuitChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circuit",
			Name:      "state_changes_total",
			Help:      "Circuit breaker transitions.",
		}, []string{"from", "to"}),
	}

	reg.MustRegister(
		r.cacheLookups, r.cacheLatency, r.cacheSets, r.cacheBytes, r.evictions,
		r.requests, r.requestLatency, r.retries, r.circuitChanges,
	)
	r.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return r
}

// Handler exposes the recorder's registry for scraping.
func (r *PrometheusRecorder) Handler() http.Handler {
	return r.handler
}

// Gatherer returns the underlying gatherer for tests and custom exporters.
func (r *PrometheusRecorder) Gatherer() prometheus.Gatherer {
	return r.gatherer
}

func (r *PrometheusRecorder) RecordHit(tier string, key string, latency time.Duration) {
	tier = normalizeLabel(tier)
	r.cacheLookups.WithLabelValues(tier, "hit").Inc()
	r.cacheLatency.WithLabelValues(tier).Observe(latency.Seconds())
}

func (r *PrometheusRecorder) RecordMiss(tier string, key string, latency time.Duration) {
	tier = normalizeLabel(tier)
	r.cacheLookups.WithLabelValues(tier, "miss").Inc()
	r.cacheLatency.WithLabelValues(tier).Observe(latency.Seconds())
}

func (r *PrometheusRecorder) RecordSet(tier string, key string, size int, latency time.Duration) {
	tier = normalizeLabel(tier)
	r.cacheSets.WithLabelValues(tier).Inc()
	r.cacheBytes.WithLabelValues(tier).Add(float64(size))
}

func (r *PrometheusRecorder) RecordEviction(tier string, key string) {
	r.evictions.WithLabelValues(normalizeLabel(tier)).Inc()
}

func (r *PrometheusRecorder) RecordRequest(endpoint string, outcome string, latency time.Duration) {
	endpoint, outcome = normalizeLabel(endpoint), normalizeLabel(outcome)
	r.requests.WithLabelValues(endpoint, outcome).Inc()
	r.requestLatency.WithLabelValues(endpoint, outcome).Observe(latency.Seconds())
}

func (r *PrometheusRecorder) RecordRetry(endpoint string, attempt int) {
	r.retries.WithLabelValues(normalizeLabel(endpoint), strconv.Itoa(attempt)).Inc()
}

func (r *PrometheusRecorder) RecordCircuitBreakerStateChange(from, to string) {
	r.circuitChanges.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

var _ types.MetricsRecorder = (*PrometheusRecorder)(nil)
