package analyzer

import (
	"context"
	"fmt"

	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/observability/metrics"
)

// Tracker applies the hysteresis gate: it reads the last persisted result
// for a (subject, config) pair fresh from the store, decides whether the new
// result is a transition worth keeping, and mirrors that decision into event
// creation. Never caches across calls; evaluation runs on arbitrary workers.
type Tracker struct {
	store   datastore.Interface
	metrics *metrics.AnalyzerMetrics
}

// NewTracker builds a tracker. Metrics may be nil.
func NewTracker(store datastore.Interface, m *metrics.AnalyzerMetrics) *Tracker {
	return &Tracker{store: store, metrics: m}
}

// Outcome reports what the tracker did with one result.
type Outcome struct {
	Persisted bool
	// EventID is the created event's id, empty when no event was created.
	EventID string
	// Created distinguishes a fresh event from a suppressed duplicate.
	Created bool
}

// Process runs one result through the hysteresis gate.
//
// A result persists iff its level is WARNING or CRITICAL (abnormal states
// re-arm on every run), or it is the OK that closes an abnormal run. OK after
// OK writes nothing. Geofence results additionally suppress a repeat carrying
// the same estimated time as the last persisted result, since an unchanged
// trajectory re-detects the same crossing forever.
func (t *Tracker) Process(ctx context.Context, cfg datastore.AnalyzerConfig, subject datastore.Subject, kind string, result Result) (Outcome, error) {
	previous, err := t.store.LatestAnalyzerResult(subject.ID, cfg.ID)
	if err != nil {
		return Outcome{}, err
	}

	previousLevel := LevelOK
	if previous != nil {
		previousLevel = previous.Level
	}

	switch {
	case result.Level >= LevelWarning:
		if kind == KindGeofence && previous != nil && previous.EstimatedTime.Equal(result.EstimatedTime) {
			return Outcome{}, nil
		}
		// Environmental samples re-read the same raster until a new fix
		// arrives; repeat only when the level or the sample time moved.
		if kind == KindEnvironmental && previous != nil &&
			previous.Level == result.Level && !result.EstimatedTime.After(previous.EstimatedTime) {
			return Outcome{}, nil
		}
	case previous == nil || previousLevel < LevelWarning:
		// OK after OK: nothing to report.
		return Outcome{}, nil
	}

	row := &datastore.AnalyzerResult{
		AnalyzerConfigID: cfg.ID,
		SubjectID:        subject.ID,
		Level:            result.Level,
		Title:            result.Title,
		Message:          result.Message,
		EstimatedTime:    result.EstimatedTime,
		Latitude:         result.Location.Lat,
		Longitude:        result.Location.Lon,
		Values:           datastore.JSONMap(result.Values),
	}
	if err := t.store.SaveAnalyzerResult(row); err != nil {
		return Outcome{}, err
	}

	logger.Info("analyzer transition persisted",
		"subject_id", subject.ID,
		"kind", kind,
		"previous_level", LevelName(previousLevel),
		"new_level", LevelName(result.Level))
	if t.metrics != nil {
		t.metrics.RecordTransition(kind, LevelName(previousLevel), LevelName(result.Level))
	}

	eventID, created, err := t.createEvent(ctx, cfg, subject, kind, result)
	if err != nil {
		return Outcome{Persisted: true}, err
	}
	return Outcome{Persisted: true, EventID: eventID, Created: created}, nil
}

// createEvent mirrors the persistence gate into the event store: an anomaly
// event while abnormal, a distinct all-clear event on the closing OK.
func (t *Tracker) createEvent(_ context.Context, cfg datastore.AnalyzerConfig, subject datastore.Subject, kind string, result Result) (string, bool, error) {
	eventType := EventTypeForKind(kind)
	priority := datastore.PriImportant
	switch result.Level {
	case LevelCritical:
		priority = datastore.PriUrgent
	case LevelOK:
		eventType = AllClearEventType(eventType)
		priority = datastore.PriReference
	}

	lat, lon := result.Location.Lat, result.Location.Lon

	if kind == KindGeofence {
		existing, err := t.store.FindEventAt(subject.ID, eventType, result.EstimatedTime, lon, lat)
		if err != nil {
			return "", false, err
		}
		if existing != nil {
			logger.Debug("suppressing duplicate geofence event",
				"subject_id", subject.ID, "event_type", eventType,
				"event_time", result.EstimatedTime)
			return existing.ID, false, nil
		}
	}

	details := datastore.JSONMap{}
	for k, v := range result.Values {
		details[k] = v
	}
	details["analyzer_name"] = cfg.Name
	details["subject_name"] = subject.Name

	event := &datastore.Event{
		Title:      result.Title,
		EventType:  eventType,
		Priority:   priority,
		EventTime:  result.EstimatedTime,
		Latitude:   &lat,
		Longitude:  &lon,
		Details:    details,
		Provenance: datastore.ProvenanceAnalyzer,
		ReportedBy: cfg.Name,
		SubjectID:  subject.ID,
	}
	if err := t.store.CreateEvent(event, datastore.ProvenanceAnalyzer); err != nil {
		return "", false, fmt.Errorf("creating %s event: %w", eventType, err)
	}
	return event.ID, true, nil
}
