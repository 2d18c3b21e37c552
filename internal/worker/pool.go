// Package worker runs the background task units of the analyzer pipeline:
// subject evaluations, alert rule evaluations and the auto-resolve sweep.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/fieldsight/fieldsight-go/internal/errors"
	"github.com/fieldsight/fieldsight-go/internal/logging"
	"github.com/fieldsight/fieldsight-go/internal/observability/metrics"
)

// Task operations.
const (
	OpAnalyzeSubject = "analyze_subject"
	OpEvaluateAlerts = "evaluate_alert_rules"
	OpAutoResolve    = "auto_resolve"
)

// Task is one unit of work. A non-empty Key makes the unit idempotent: a
// second enqueue of the same operation and key within the grace window is
// dropped. An empty Key always enqueues.
type Task struct {
	Operation string
	Key       string
	Run       func(ctx context.Context) error
}

// PoolStats are cumulative pool counters.
type PoolStats struct {
	Enqueued  uint64
	Dropped   uint64
	Processed uint64
	Errors    uint64
}

// Pool is a fixed-size worker pool over a bounded task channel. Enqueue
// never blocks: when the buffer is full the task is dropped and counted.
type Pool struct {
	tasks   chan Task
	workers int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	// locks holds the unit-of-work markers that drop duplicate enqueues
	// of the same operation and key inside the grace window.
	locks *cache.Cache
	grace time.Duration

	stats   PoolStats
	metrics *metrics.WorkerMetrics
	logger  *slog.Logger
}

// NewPool builds a pool of the given size. Metrics may be nil.
func NewPool(workers, bufferSize int, grace time.Duration, m *metrics.WorkerMetrics) *Pool {
	if workers < 1 {
		workers = 1
	}
	if bufferSize < 1 {
		bufferSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		tasks:   make(chan Task, bufferSize),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
		locks:   cache.New(grace, time.Minute),
		grace:   grace,
		metrics: m,
		logger:  logging.ForService("worker"),
	}
}

// Start launches the worker goroutines. Calling Start twice is a no-op.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}
	p.logger.Info("starting workers", "count", p.workers)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

func lockKey(operation, key string) string {
	return operation + "__" + key
}

// TryEnqueue offers a task to the pool without blocking. It returns false
// when the pool is stopped, the task duplicates a unit still inside its
// grace window, or the buffer is full.
func (p *Pool) TryEnqueue(task Task) bool {
	if !p.running.Load() {
		return false
	}

	if task.Key != "" && p.grace > 0 {
		if err := p.locks.Add(lockKey(task.Operation, task.Key), struct{}{}, cache.DefaultExpiration); err != nil {
			atomic.AddUint64(&p.stats.Dropped, 1)
			if p.metrics != nil {
				p.metrics.RecordDropped(task.Operation)
			}
			p.logger.Debug("duplicate task dropped",
				"operation", task.Operation, "key", task.Key)
			return false
		}
	}

	select {
	case p.tasks <- task:
		atomic.AddUint64(&p.stats.Enqueued, 1)
		if p.metrics != nil {
			p.metrics.RecordEnqueued(task.Operation)
			p.metrics.SetQueueDepth(len(p.tasks))
		}
		return true
	default:
		atomic.AddUint64(&p.stats.Dropped, 1)
		if p.metrics != nil {
			p.metrics.RecordDropped(task.Operation)
		}
		p.logger.Warn("task dropped, queue full",
			"operation", task.Operation, "key", task.Key)
		return false
	}
}

func (p *Pool) run(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			if p.metrics != nil {
				p.metrics.SetQueueDepth(len(p.tasks))
			}
			p.process(task, logger)
		}
	}
}

// process runs one task under panic recovery, so a misbehaving unit never
// takes a worker down.
func (p *Pool) process(task Task, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint64(&p.stats.Errors, 1)
			err := errors.Newf("task panic: %v", r).
				Component("worker").
				Category(errors.CategoryJobQueue).
				Context("operation", task.Operation).
				Build()
			logger.Error("task panicked",
				"operation", task.Operation, "key", task.Key, "error", err)
		}
	}()

	if err := task.Run(p.ctx); err != nil {
		atomic.AddUint64(&p.stats.Errors, 1)
		logger.Error("task failed",
			"operation", task.Operation, "key", task.Key, "error", err)
		return
	}
	atomic.AddUint64(&p.stats.Processed, 1)
}

// Shutdown stops accepting tasks and waits for in-flight work up to the
// timeout.
func (p *Pool) Shutdown(timeout time.Duration) error {
	if !p.running.Swap(false) {
		return nil
	}

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
		return nil
	case <-time.After(timeout):
		return errors.Newf("worker pool shutdown timed out after %s", timeout).
			Component("worker").
			Category(errors.CategoryJobQueue).
			Build()
	}
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Enqueued:  atomic.LoadUint64(&p.stats.Enqueued),
		Dropped:   atomic.LoadUint64(&p.stats.Dropped),
		Processed: atomic.LoadUint64(&p.stats.Processed),
		Errors:    atomic.LoadUint64(&p.stats.Errors),
	}
}
