package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldsight/fieldsight-go/internal/alerting"
	"github.com/fieldsight/fieldsight-go/internal/analyzer"
	"github.com/fieldsight/fieldsight-go/internal/conf"
	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/logging"
	"github.com/fieldsight/fieldsight-go/internal/observability/metrics"
)

// defaultBufferSize bounds the task queue.
const defaultBufferSize = 1000

// Engine schedules the pipeline's task units on a pool: a new fix debounces
// into a subject evaluation, each created event feeds an alert rule
// evaluation, and a periodic sweep resolves stale events.
type Engine struct {
	pool   *Pool
	store  datastore.Interface
	runner *analyzer.Runner
	alerts *alerting.Service
	delay  time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	debounce map[string]*time.Timer

	loopStop chan struct{}
	loopWG   sync.WaitGroup
	stopOnce sync.Once
}

// NewEngine builds the engine from the analyzer settings. Metrics may be
// nil.
func NewEngine(store datastore.Interface, runner *analyzer.Runner, alerts *alerting.Service, settings *conf.AnalyzerSettings, m *metrics.WorkerMetrics) *Engine {
	return &Engine{
		pool:     NewPool(settings.Workers, defaultBufferSize, settings.TaskGraceWindow, m),
		store:    store,
		runner:   runner,
		alerts:   alerts,
		delay:    settings.HandleFixDelay,
		logger:   logging.ForService("worker"),
		debounce: make(map[string]*time.Timer),
		loopStop: make(chan struct{}),
	}
}

// Start launches the pool workers.
func (e *Engine) Start() {
	e.pool.Start()
}

// HandleFix defers a subject evaluation by the configured delay, so a burst
// of fixes for one subject squashes into a single run. A fix arriving while
// a timer is pending resets it.
func (e *Engine) HandleFix(subjectID string) {
	if e.delay <= 0 {
		e.EnqueueSubject(subjectID)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if timer, ok := e.debounce[subjectID]; ok {
		timer.Reset(e.delay)
		return
	}
	e.debounce[subjectID] = time.AfterFunc(e.delay, func() {
		e.mu.Lock()
		delete(e.debounce, subjectID)
		e.mu.Unlock()
		e.EnqueueSubject(subjectID)
	})
}

// EnqueueSubject queues one analyzer evaluation for a subject. Duplicate
// enqueues inside the grace window are dropped.
func (e *Engine) EnqueueSubject(subjectID string) bool {
	return e.pool.TryEnqueue(Task{
		Operation: OpAnalyzeSubject,
		Key:       subjectID,
		Run: func(ctx context.Context) error {
			return e.analyzeSubject(ctx, subjectID)
		},
	})
}

// EnqueueAlertEvaluation queues rule evaluation for one event change. The
// unit key guards against duplicate concurrent evaluations of the same
// event inside the grace window.
func (e *Engine) EnqueueAlertEvaluation(eventID string, created bool) bool {
	return e.pool.TryEnqueue(Task{
		Operation: OpEvaluateAlerts,
		Key:       eventID,
		Run: func(ctx context.Context) error {
			return e.alerts.EvaluateAlertRules(ctx, eventID, created)
		},
	})
}

func (e *Engine) analyzeSubject(ctx context.Context, subjectID string) error {
	created, err := e.runner.EvaluateSubject(ctx, subjectID)
	if err != nil {
		return err
	}
	for _, ev := range created {
		e.EnqueueAlertEvaluation(ev.EventID, true)
	}
	return nil
}

// startLoop runs fn on the given interval until Shutdown.
func (e *Engine) startLoop(interval time.Duration, fn func()) {
	e.loopWG.Add(1)
	go func() {
		defer e.loopWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.loopStop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// StartAutoResolveSweep queues an auto-resolve pass on the given interval.
func (e *Engine) StartAutoResolveSweep(interval time.Duration) {
	e.startLoop(interval, func() {
		e.pool.TryEnqueue(Task{
			Operation: OpAutoResolve,
			Key:       "sweep",
			Run:       e.RunAutoResolve,
		})
	})
}

// StartPeriodicEvaluation schedules every subject with an active analyzer
// config on the given interval. Subjects already queued or inside their
// grace window are dropped by the pool.
func (e *Engine) StartPeriodicEvaluation(interval time.Duration) {
	e.startLoop(interval, func() {
		if err := e.EnqueueAllSubjects(); err != nil {
			e.logger.Error("periodic evaluation pass failed", "error", err)
		}
	})
}

// EnqueueAllSubjects queues one evaluation per subject with an active
// config.
func (e *Engine) EnqueueAllSubjects() error {
	subjects, err := e.store.SubjectsWithActiveConfigs()
	if err != nil {
		return err
	}
	for i := range subjects {
		e.EnqueueSubject(subjects[i].ID)
	}
	return nil
}

// RunAutoResolve resolves every event whose type's auto-resolve deadline
// has passed, then queues an alert evaluation for each state change.
func (e *Engine) RunAutoResolve(ctx context.Context) error {
	due, err := e.store.EventsDueForAutoResolve(time.Now().UTC())
	if err != nil {
		return err
	}

	for i := range due {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		event := due[i]
		event.State = datastore.StateResolved
		if err := e.store.UpdateEvent(&event, datastore.ProvenanceAnalyzer); err != nil {
			e.logger.Error("failed to auto-resolve event",
				"event_id", event.ID, "error", err)
			continue
		}
		e.logger.Info("event auto-resolved",
			"event_id", event.ID, "event_type", event.EventType)
		e.EnqueueAlertEvaluation(event.ID, false)
	}
	return nil
}

// Stats returns the underlying pool counters.
func (e *Engine) Stats() PoolStats {
	return e.pool.Stats()
}

// Shutdown stops the periodic loops, cancels pending debounce timers and
// drains the pool.
func (e *Engine) Shutdown(timeout time.Duration) error {
	e.stopOnce.Do(func() { close(e.loopStop) })
	e.loopWG.Wait()

	e.mu.Lock()
	for id, timer := range e.debounce {
		timer.Stop()
		delete(e.debounce, id)
	}
	e.mu.Unlock()

	return e.pool.Shutdown(timeout)
}
