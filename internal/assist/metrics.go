package assist

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "coauthor"

// Metrics holds the Prometheus collectors of the assistant operations.
// A nil *Metrics records nothing.
type Metrics struct {
	// SessionsStarted counts start_session calls by outcome (ok, invalid_code,
	// rate_limited, error).
	SessionsStarted *prometheus.CounterVec

	// SessionsEnded counts end_session calls by outcome (ok, save_error,
	// unknown_session).
	SessionsEnded *prometheus.CounterVec

	// Queries counts query calls by outcome.
	Queries *prometheus.CounterVec

	// ProviderErrors counts completion failures by provider.Kind.
	ProviderErrors *prometheus.CounterVec

	// ProviderLatency observes completion call duration by engine.
	ProviderLatency *prometheus.HistogramVec

	// Suggestions counts candidates by fate: returned, empty, duplicate,
	// blocked.
	Suggestions *prometheus.CounterVec

	// LogsRetrieved counts get_log calls by outcome.
	LogsRetrieved *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_started_total",
			Help:      "start_session calls by outcome.",
		}, []string{"outcome"}),
		SessionsEnded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_ended_total",
			Help:      "end_session calls by outcome.",
		}, []string{"outcome"}),
		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "queries_total",
			Help:      "Suggestion queries by outcome.",
		}, []string{"outcome"}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "provider",
			Name:      "errors_total",
			Help:      "Completion failures by kind.",
		}, []string{"kind"}),
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Completion request duration.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 30},
		}, []string{"engine"}),
		Suggestions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "suggestions_total",
			Help:      "Candidate suggestions by fate.",
		}, []string{"fate"}),
		LogsRetrieved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "logs_retrieved_total",
			Help:      "get_log calls by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) sessionStarted(outcome string) {
	if m == nil {
		return
	}
	m.SessionsStarted.WithLabelValues(outcome).Inc()
}

func (m *Metrics) sessionEnded(outcome string) {
	if m == nil {
		return
	}
	m.SessionsEnded.WithLabelValues(outcome).Inc()
}

func (m *Metrics) query(outcome string) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) providerCall(engine, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderLatency.WithLabelValues(engine).Observe(d.Seconds())
	if kind != "" {
		m.ProviderErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) suggestions(returned, empty, duplicate, blocked int) {
	if m == nil {
		return
	}
	m.Suggestions.WithLabelValues("returned").Add(float64(returned))
	m.Suggestions.WithLabelValues("empty").Add(float64(empty))
	m.Suggestions.WithLabelValues("duplicate").Add(float64(duplicate))
	m.Suggestions.WithLabelValues("blocked").Add(float64(blocked))
}

func (m *Metrics) logRetrieved(outcome string) {
	if m == nil {
		return
	}
	m.LogsRetrieved.WithLabelValues(outcome).Inc()
}
