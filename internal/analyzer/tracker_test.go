package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/geo"
)

func trackerFixture(t *testing.T) (*datastore.SQLiteStore, *Tracker, datastore.AnalyzerConfig, datastore.Subject) {
	t.Helper()
	store := newTestStore(t)
	subject := seedSubject(t, store, "s-1", "g-1")
	cfg := datastore.AnalyzerConfig{ID: "cfg-1", Name: "immobility herd", Kind: KindImmobility}
	require.NoError(t, store.DB.Create(&cfg).Error)
	return store, NewTracker(store, nil), cfg, subject
}

func resultAt(level int, at time.Time) Result {
	return Result{
		Level:         level,
		Title:         "t",
		EstimatedTime: at,
		Location:      geo.Point{Lon: 36.0, Lat: 1.0},
		Values:        map[string]any{"total_fix_count": 5},
	}
}

func countRows[T any](t *testing.T, store *datastore.SQLiteStore) int64 {
	t.Helper()
	var n int64
	var model T
	require.NoError(t, store.DB.Model(&model).Count(&n).Error)
	return n
}

func TestTrackerOKAfterOKWritesNothing(t *testing.T) {
	t.Parallel()
	store, tracker, cfg, subject := trackerFixture(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	outcome, err := tracker.Process(ctx, cfg, subject, cfg.Kind, resultAt(LevelOK, at))
	require.NoError(t, err)
	assert.False(t, outcome.Persisted)

	outcome, err = tracker.Process(ctx, cfg, subject, cfg.Kind, resultAt(LevelOK, at.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, outcome.Persisted)

	assert.Zero(t, countRows[datastore.AnalyzerResult](t, store))
	assert.Zero(t, countRows[datastore.Event](t, store))
}

func TestTrackerWarningToCriticalDirectTransition(t *testing.T) {
	t.Parallel()
	store, tracker, cfg, subject := trackerFixture(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	outcome, err := tracker.Process(ctx, cfg, subject, cfg.Kind, resultAt(LevelWarning, at))
	require.NoError(t, err)
	assert.True(t, outcome.Persisted)
	assert.True(t, outcome.Created)

	// CRITICAL right after WARNING persists without an intermediate OK.
	outcome, err = tracker.Process(ctx, cfg, subject, cfg.Kind, resultAt(LevelCritical, at.Add(time.Hour)))
	require.NoError(t, err)
	assert.True(t, outcome.Persisted)

	assert.Equal(t, int64(2), countRows[datastore.AnalyzerResult](t, store))

	event, err := store.GetEvent(outcome.EventID)
	require.NoError(t, err)
	assert.Equal(t, "immobility", event.EventType)
	assert.Equal(t, datastore.PriUrgent, event.Priority)
	assert.Equal(t, "s-1", event.SubjectID)
}

func TestTrackerAllClearAfterAbnormal(t *testing.T) {
	t.Parallel()
	store, tracker, cfg, subject := trackerFixture(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := tracker.Process(ctx, cfg, subject, cfg.Kind, resultAt(LevelCritical, at))
	require.NoError(t, err)

	outcome, err := tracker.Process(ctx, cfg, subject, cfg.Kind, resultAt(LevelOK, at.Add(time.Hour)))
	require.NoError(t, err)
	assert.True(t, outcome.Persisted)
	require.True(t, outcome.Created)

	event, err := store.GetEvent(outcome.EventID)
	require.NoError(t, err)
	assert.Equal(t, "immobility_all_clear", event.EventType)
	assert.Equal(t, datastore.PriReference, event.Priority)

	// The all-clear closed the abnormal run; further OKs are silent.
	outcome, err = tracker.Process(ctx, cfg, subject, cfg.Kind, resultAt(LevelOK, at.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.False(t, outcome.Persisted)
}

func TestTrackerGeofenceEqualTimestampSuppression(t *testing.T) {
	t.Parallel()
	store, tracker, _, subject := trackerFixture(t)
	cfg := datastore.AnalyzerConfig{ID: "cfg-geo", Name: "fence", Kind: KindGeofence}
	require.NoError(t, store.DB.Create(&cfg).Error)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	outcome, err := tracker.Process(ctx, cfg, subject, cfg.Kind, resultAt(LevelCritical, at))
	require.NoError(t, err)
	assert.True(t, outcome.Created)

	// Re-detecting the same crossing must not write a second row or event.
	outcome, err = tracker.Process(ctx, cfg, subject, cfg.Kind, resultAt(LevelCritical, at))
	require.NoError(t, err)
	assert.False(t, outcome.Persisted)

	assert.Equal(t, int64(1), countRows[datastore.AnalyzerResult](t, store))
	assert.Equal(t, int64(1), countRows[datastore.Event](t, store))
}
