package gateway

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks gateway-level counters. The atomic counters back /status;
// the Prometheus vectors are only created when a registerer is given.
type Metrics struct {
	requests     atomic.Int64
	failures     atomic.Int64
	errors       atomic.Int64
	totalLatency atomic.Int64 // nanoseconds

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpFailures *prometheus.CounterVec
}

// NewMetrics creates gateway metrics. reg may be nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{}
	if reg == nil {
		return m
	}
	f := promauto.With(reg)
	m.httpRequests = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coauthor",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	m.httpDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "coauthor",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
	m.httpFailures = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coauthor",
		Subsystem: "http",
		Name:      "failures_total",
		Help:      "Requests answered with an in-band failure, by route.",
	}, []string{"route"})
	return m
}

// RecordRequest records a served request.
func (m *Metrics) RecordRequest(route string, code int, latency time.Duration) {
	m.requests.Add(1)
	m.totalLatency.Add(int64(latency))
	if code >= 500 {
		m.errors.Add(1)
	}
	if m.httpRequests != nil {
		m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(latency.Seconds())
	}
}

// RecordFailure records a request answered with status false.
func (m *Metrics) RecordFailure(route string) {
	m.failures.Add(1)
	if m.httpFailures != nil {
		m.httpFailures.WithLabelValues(route).Inc()
	}
}

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	requests := m.requests.Load()
	snap := MetricsSnapshot{
		Requests: requests,
		Failures: m.failures.Load(),
		Errors:   m.errors.Load(),
	}
	if requests > 0 {
		snap.AvgLatency = time.Duration(m.totalLatency.Load() / requests)
	}
	return snap
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Requests   int64         `json:"requests"`
	Failures   int64         `json:"failures"`
	Errors     int64         `json:"errors"`
	AvgLatency time.Duration `json:"avg_latency_ns"`
}
