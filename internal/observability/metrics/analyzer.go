// Package metrics provides custom Prometheus metrics for the analyzer and
// alerting pipelines.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// AnalyzerMetrics contains all Prometheus metrics related to analyzer runs.
type AnalyzerMetrics struct {
	Runs        *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	registry    *prometheus.Registry
}

// NewAnalyzerMetrics creates a new instance of AnalyzerMetrics and registers
// it with the provided registry.
func NewAnalyzerMetrics(registry *prometheus.Registry) (*AnalyzerMetrics, error) {
	m := &AnalyzerMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register analyzer metrics: %w", err)
	}
	return m, nil
}

func (m *AnalyzerMetrics) initMetrics() {
	m.Runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analyzer_runs_total",
		Help: "Total number of analyzer runs by kind and status",
	}, []string{"kind", "status"})

	m.Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analyzer_transitions_total",
		Help: "Total number of persisted level transitions by kind and direction",
	}, []string{"kind", "from", "to"})

	m.RunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analyzer_run_duration_seconds",
		Help:    "Duration of analyzer runs in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"kind"})
}

// RecordRun increments the run counter for an analyzer kind.
// Status is one of success, error, insufficient_data, skipped.
func (m *AnalyzerMetrics) RecordRun(kind, status string) {
	m.Runs.WithLabelValues(kind, status).Inc()
}

// RecordTransition increments the transition counter for a persisted level
// change.
func (m *AnalyzerMetrics) RecordTransition(kind, from, to string) {
	m.Transitions.WithLabelValues(kind, from, to).Inc()
}

// RecordRunDuration observes one analyzer run duration.
func (m *AnalyzerMetrics) RecordRunDuration(kind string, seconds float64) {
	m.RunDuration.WithLabelValues(kind).Observe(seconds)
}

// Describe implements prometheus.Collector.
func (m *AnalyzerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Runs.Describe(ch)
	m.Transitions.Describe(ch)
	m.RunDuration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *AnalyzerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Runs.Collect(ch)
	m.Transitions.Collect(ch)
	m.RunDuration.Collect(ch)
}
