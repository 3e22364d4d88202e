// Package observability provides Prometheus metrics, health endpoints,
// and trace setup for the runtime.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Turn metrics
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tomo_turns_total",
			Help: "Total number of processed turns",
		},
		[]string{"status"},
	)

	turnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tomo_turn_duration_seconds",
			Help:    "End-to-end turn duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	turnAbortsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tomo_turn_aborts_total",
			Help: "Turns aborted on workflow integrity errors",
		},
		[]string{"policy"},
	)

	// Action metrics
	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tomo_actions_total",
			Help: "Total number of executed actions",
		},
		[]string{"action", "outcome"},
	)

	// Session metrics
	commitConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tomo_session_commit_conflicts_total",
			Help: "Session commits rejected on a stale version",
		},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tomo_active_sessions",
			Help: "Number of stored sessions",
		},
	)

	// Backend metrics
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tomo_llm_calls_total",
			Help: "Total number of LLM backend calls",
		},
		[]string{"backend", "status"},
	)

	llmCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tomo_llm_call_duration_seconds",
			Help:    "LLM backend call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	initOnce sync.Once
)

// InitMetrics registers the Prometheus metrics. Safe to call more than
// once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			turnsTotal,
			turnDuration,
			turnAbortsTotal,
			actionsTotal,
			commitConflictsTotal,
			activeSessions,
			llmCallsTotal,
			llmCallDuration,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordTurn records one completed turn.
func RecordTurn(duration time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	turnsTotal.WithLabelValues(status).Inc()
	turnDuration.Observe(duration.Seconds())
}

// RecordTurnAbort records a turn aborted on an integrity error.
func RecordTurnAbort(policy string) {
	turnAbortsTotal.WithLabelValues(policy).Inc()
}

// RecordAction records one executed action.
func RecordAction(action, outcome string) {
	actionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordCommitConflict records a rejected session commit.
func RecordCommitConflict() {
	commitConflictsTotal.Inc()
}

// SetActiveSessions sets the stored-session gauge.
func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// RecordLLMCall records one backend call.
func RecordLLMCall(backend string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	llmCallsTotal.WithLabelValues(backend, status).Inc()
	llmCallDuration.WithLabelValues(backend).Observe(duration.Seconds())
}
