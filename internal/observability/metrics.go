// Package observability provides metrics collection for the analyzer and
// alerting pipelines.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldsight/fieldsight-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Analyzer *metrics.AnalyzerMetrics
	Alerting *metrics.AlertingMetrics
	Worker   *metrics.WorkerMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors. It returns an error if any collector fails to register.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	analyzerMetrics, err := metrics.NewAnalyzerMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer metrics: %w", err)
	}
	alertingMetrics, err := metrics.NewAlertingMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create alerting metrics: %w", err)
	}
	workerMetrics, err := metrics.NewWorkerMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Analyzer: analyzerMetrics,
		Alerting: alertingMetrics,
		Worker:   workerMetrics,
	}, nil
}

// Handler returns an HTTP handler exposing the registry in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
