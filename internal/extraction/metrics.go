package extraction

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the extraction pipeline.
type Metrics struct {
	SessionsTotal    *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	SessionDuration  *prometheus.HistogramVec
	TasksTotal       *prometheus.CounterVec
	StrategyCalls    *prometheus.CounterVec
	StrategyDuration *prometheus.HistogramVec
	TokensTotal      *prometheus.CounterVec
	ConflictsTotal   prometheus.Counter
}

// NewMetrics creates and registers Prometheus metrics for the extraction
// pipeline.
//
// This function uses sync.Once to ensure metrics are only registered once
// globally, preventing "duplicate metrics collector registration" panics.
//
// All metrics are prefixed with "extractd_" for namespacing.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			SessionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "extractd_sessions_total",
					Help: "Total number of extraction sessions by outcome",
				},
				[]string{"status"}, // "completed" or "failed"
			),

			ActiveSessions: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "extractd_active_sessions",
					Help: "Number of extraction sessions currently running",
				},
			),

			SessionDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "extractd_session_duration_seconds",
					Help:    "End-to-end extraction session duration in seconds",
					Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.5m
				},
				[]string{"strategy"},
			),

			TasksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "extractd_tasks_total",
					Help: "Total number of extraction tasks by type and outcome",
				},
				[]string{"type", "status"},
			),

			StrategyCalls: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "extractd_strategy_calls_total",
					Help: "Total number of strategy invocations by outcome",
				},
				[]string{"strategy", "outcome"}, // "ok" or "error"
			),

			StrategyDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "extractd_strategy_duration_seconds",
					Help:    "Duration of single strategy runs in seconds",
					Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
				},
				[]string{"strategy"},
			),

			TokensTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "extractd_tokens_total",
					Help: "Total LLM tokens consumed by strategy",
				},
				[]string{"strategy"},
			),

			ConflictsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "extractd_conflicts_total",
					Help: "Total number of field conflicts recorded by voting",
				},
			),
		}
	})
	return globalMetrics
}
