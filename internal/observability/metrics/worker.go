package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics contains all Prometheus metrics related to the task queue.
type WorkerMetrics struct {
	TasksEnqueued *prometheus.CounterVec
	TasksDropped  *prometheus.CounterVec
	QueueDepth    prometheus.Gauge
	registry      *prometheus.Registry
}

// NewWorkerMetrics creates a new instance of WorkerMetrics and registers it
// with the provided registry.
func NewWorkerMetrics(registry *prometheus.Registry) (*WorkerMetrics, error) {
	m := &WorkerMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register worker metrics: %w", err)
	}
	return m, nil
}

func (m *WorkerMetrics) initMetrics() {
	m.TasksEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_tasks_enqueued_total",
		Help: "Total number of tasks enqueued by operation",
	}, []string{"operation"})

	m.TasksDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_tasks_dropped_total",
		Help: "Total number of duplicate tasks dropped by the idempotency guard",
	}, []string{"operation"})

	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_queue_depth",
		Help: "Current number of tasks waiting in the queue",
	})
}

// RecordEnqueued increments the enqueued counter for an operation.
func (m *WorkerMetrics) RecordEnqueued(operation string) {
	m.TasksEnqueued.WithLabelValues(operation).Inc()
}

// RecordDropped increments the dropped counter for an operation.
func (m *WorkerMetrics) RecordDropped(operation string) {
	m.TasksDropped.WithLabelValues(operation).Inc()
}

// SetQueueDepth records the current queue depth.
func (m *WorkerMetrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// Describe implements prometheus.Collector.
func (m *WorkerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.TasksEnqueued.Describe(ch)
	m.TasksDropped.Describe(ch)
	ch <- m.QueueDepth.Desc()
}

// Collect implements prometheus.Collector.
func (m *WorkerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.TasksEnqueued.Collect(ch)
	m.TasksDropped.Collect(ch)
	ch <- m.QueueDepth
}
