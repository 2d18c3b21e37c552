package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// AlertingMetrics contains all Prometheus metrics related to rule evaluation
// and notification dispatch.
type AlertingMetrics struct {
	RulesEvaluated *prometheus.CounterVec
	Dispatched     *prometheus.CounterVec
	registry       *prometheus.Registry
}

// NewAlertingMetrics creates a new instance of AlertingMetrics and registers
// it with the provided registry.
func NewAlertingMetrics(registry *prometheus.Registry) (*AlertingMetrics, error) {
	m := &AlertingMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register alerting metrics: %w", err)
	}
	return m, nil
}

func (m *AlertingMetrics) initMetrics() {
	m.RulesEvaluated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alerting_rules_evaluated_total",
		Help: "Total number of alert rule evaluations by outcome",
	}, []string{"outcome"})

	m.Dispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alerting_notifications_total",
		Help: "Total number of notification dispatch attempts by channel and status",
	}, []string{"channel", "status"})
}

// RecordRuleEvaluation increments the rule evaluation counter.
// Outcome is one of fired, skipped, off_schedule, error.
func (m *AlertingMetrics) RecordRuleEvaluation(outcome string) {
	m.RulesEvaluated.WithLabelValues(outcome).Inc()
}

// RecordDispatch increments the dispatch counter for a channel.
// Status is one of success, error.
func (m *AlertingMetrics) RecordDispatch(channel, status string) {
	m.Dispatched.WithLabelValues(channel, status).Inc()
}

// Describe implements prometheus.Collector.
func (m *AlertingMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.RulesEvaluated.Describe(ch)
	m.Dispatched.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *AlertingMetrics) Collect(ch chan<- prometheus.Metric) {
	m.RulesEvaluated.Collect(ch)
	m.Dispatched.Collect(ch)
}
