package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/errors"
	"github.com/fieldsight/fieldsight-go/internal/observability/metrics"
)

// CreatedEvent is one event produced by a subject evaluation, handed to the
// alerting layer.
type CreatedEvent struct {
	EventID string
}

// Runner evaluates every active analyzer config bound to a subject. Each
// config is isolated: a failing or panicking analyzer never aborts its
// siblings.
type Runner struct {
	store   datastore.Interface
	deps    Deps
	tracker *Tracker
	metrics *metrics.AnalyzerMetrics

	// silenced holds quiet-period markers per (config, subject). An entry
	// means "an event was created recently, skip evaluation".
	silenced *cache.Cache
}

// NewRunner builds a runner. Metrics may be nil.
func NewRunner(store datastore.Interface, env EnvironmentalSampler, m *metrics.AnalyzerMetrics) *Runner {
	return &Runner{
		store:    store,
		deps:     Deps{Store: store, Env: env},
		tracker:  NewTracker(store, m),
		metrics:  m,
		silenced: cache.New(cache.NoExpiration, 5*time.Minute),
	}
}

func silenceKey(configID, subjectID string) string {
	return fmt.Sprintf("analyzer_silent__%s__%s", configID, subjectID)
}

// EvaluateSubject runs all active analyzer configs for one subject and
// returns the events created by qualifying transitions.
func (r *Runner) EvaluateSubject(ctx context.Context, subjectID string) ([]CreatedEvent, error) {
	subject, err := r.store.GetSubject(subjectID)
	if err != nil {
		return nil, err
	}
	if !subject.IsActive {
		logger.Warn("skipping inactive subject", "subject_id", subjectID)
		return nil, nil
	}

	configs, err := r.store.ActiveAnalyzerConfigsForSubject(subjectID)
	if err != nil {
		return nil, err
	}

	var created []CreatedEvent
	for i := range configs {
		cfg := configs[i]
		if _, quiet := r.silenced.Get(silenceKey(cfg.ID, subjectID)); quiet {
			logger.Debug("config in quiet period",
				"config", cfg.Name, "subject_id", subjectID)
			r.recordRun(cfg.Kind, "skipped")
			continue
		}

		events, err := r.evaluateConfig(ctx, cfg, subject)
		if err != nil {
			if errors.HasCategory(err, errors.CategoryInsufficientData) {
				r.recordRun(cfg.Kind, "insufficient_data")
				continue
			}
			r.recordRun(cfg.Kind, "error")
			logger.Error("analyzer config evaluation failed",
				"config", cfg.Name, "kind", cfg.Kind,
				"subject_id", subjectID, "error", err)
			continue
		}
		r.recordRun(cfg.Kind, "success")

		if len(events) > 0 && cfg.QuietPeriod > 0 {
			r.silenced.Set(silenceKey(cfg.ID, subjectID), true, cfg.QuietPeriod)
		}
		created = append(created, events...)
	}
	return created, nil
}

// evaluateConfig runs one analyzer config against the subject's trajectory.
func (r *Runner) evaluateConfig(ctx context.Context, cfg datastore.AnalyzerConfig, subject datastore.Subject) (created []CreatedEvent, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Newf("analyzer panicked: %v", rec).
				Component("analyzer").
				Category(errors.CategoryAnalyzer).
				Context("config", cfg.Name).
				Context("kind", cfg.Kind).
				Build()
		}
	}()

	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.RecordRunDuration(cfg.Kind, time.Since(start).Seconds())
		}
	}()

	a, err := ForConfig(r.deps, cfg, subject)
	if err != nil {
		return nil, err
	}

	fixes, err := r.store.FixesForSubject(subject.ID, cfg.SearchTimeHours, time.Time{})
	if err != nil {
		return nil, err
	}
	traj := fixesToTrajectory(fixes)

	results, err := a.Analyze(ctx, traj)
	if err != nil {
		return nil, err
	}

	for _, result := range results {
		outcome, err := r.tracker.Process(ctx, cfg, subject, cfg.Kind, result)
		if err != nil {
			return created, err
		}
		if outcome.Created {
			created = append(created, CreatedEvent{EventID: outcome.EventID})
		}
	}
	return created, nil
}

func (r *Runner) recordRun(kind, status string) {
	if r.metrics != nil {
		r.metrics.RecordRun(kind, status)
	}
}
