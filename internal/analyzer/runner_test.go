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

func TestRunnerImmobilityLifecycle(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	seedSubject(t, store, "s-1", "g-1")

	cfg := immobilityConfig()
	cfg.SubjectGroupID = "g-1"
	cfg.IsActive = true
	require.NoError(t, store.DB.Create(&cfg).Error)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	spot := geo.Point{Lon: 36.5, Lat: 1.0}
	insertFixes(t, store, "s-1", repeatPoint(spot, 20), start, 20*time.Minute)

	runner := NewRunner(store, nil, nil)
	created, err := runner.EvaluateSubject(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, created, 1)

	event, err := store.GetEvent(created[0].EventID)
	require.NoError(t, err)
	assert.Equal(t, "immobility", event.EventType)
	assert.Equal(t, datastore.PriUrgent, event.Priority)

	// A single fix 5 km away breaks the cluster: the next run reports
	// exactly one all-clear.
	require.NoError(t, store.InsertFix(&datastore.Fix{
		SubjectID:  "s-1",
		RecordedAt: start.Add(400 * time.Minute),
		Latitude:   1.045,
		Longitude:  36.5,
	}))

	created, err = runner.EvaluateSubject(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, created, 1)

	allClear, err := store.GetEvent(created[0].EventID)
	require.NoError(t, err)
	assert.Equal(t, "immobility_all_clear", allClear.EventType)
}

func TestRunnerGeofenceDuplicateSuppression(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	seedSubject(t, store, "s-1", "g-1")

	require.NoError(t, store.DB.Create(&datastore.SpatialFeatureGroup{
		ID: "fg-1", Name: "critical fences",
	}).Error)
	require.NoError(t, store.DB.Create(&datastore.SpatialFeature{
		ID: "f-1", GroupID: "fg-1", Name: "river fence", Kind: "polyline",
		Geometry: `[[36.5, 0.0], [36.5, 2.0]]`,
	}).Error)

	cfg := datastore.AnalyzerConfig{
		ID: "cfg-geo", Name: "river geofence", Kind: KindGeofence,
		SubjectGroupID: "g-1", IsActive: true,
		CriticalFenceGroupID: "fg-1",
	}
	require.NoError(t, store.DB.Create(&cfg).Error)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	insertFixes(t, store, "s-1", []geo.Point{
		{Lon: 36.4, Lat: 1.0},
		{Lon: 36.6, Lat: 1.0},
	}, start, 30*time.Minute)

	runner := NewRunner(store, nil, nil)
	created, err := runner.EvaluateSubject(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, created, 1)

	event, err := store.GetEvent(created[0].EventID)
	require.NoError(t, err)
	assert.Equal(t, "geofence_break", event.EventType)
	require.NotNil(t, event.Longitude)
	assert.InDelta(t, 36.5, *event.Longitude, 1e-6)
	assert.Equal(t, "Unknown region", event.Details["contain_regions"])

	// Unchanged trajectory: running again must not create a second event.
	created, err = runner.EvaluateSubject(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Empty(t, created)

	var n int64
	require.NoError(t, store.DB.Model(&datastore.Event{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestRunnerSkipsInactiveSubject(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	subject := seedSubject(t, store, "s-1", "g-1")
	require.NoError(t, store.DB.Model(&subject).Update("is_active", false).Error)

	runner := NewRunner(store, nil, nil)
	created, err := runner.EvaluateSubject(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestRunnerQuietPeriod(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	seedSubject(t, store, "s-1", "g-1")

	cfg := immobilityConfig()
	cfg.SubjectGroupID = "g-1"
	cfg.IsActive = true
	cfg.QuietPeriod = time.Hour
	require.NoError(t, store.DB.Create(&cfg).Error)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	spot := geo.Point{Lon: 36.5, Lat: 1.0}
	insertFixes(t, store, "s-1", repeatPoint(spot, 20), start, 20*time.Minute)

	runner := NewRunner(store, nil, nil)
	created, err := runner.EvaluateSubject(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, created, 1)

	// Within the quiet period the config does not run at all, so the
	// still-immobile subject creates no second event.
	created, err = runner.EvaluateSubject(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestRunnerConfigErrorIsolation(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	seedSubject(t, store, "s-1", "g-1")

	// Misconfigured geofence (no fence group) plus a valid immobility config:
	// the bad one is skipped, the good one still runs.
	bad := datastore.AnalyzerConfig{
		ID: "cfg-bad", Name: "broken fence", Kind: KindGeofence,
		SubjectGroupID: "g-1", IsActive: true,
	}
	require.NoError(t, store.DB.Create(&bad).Error)

	good := immobilityConfig()
	good.SubjectGroupID = "g-1"
	good.IsActive = true
	require.NoError(t, store.DB.Create(&good).Error)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	spot := geo.Point{Lon: 36.5, Lat: 1.0}
	insertFixes(t, store, "s-1", repeatPoint(spot, 20), start, 20*time.Minute)

	runner := NewRunner(store, nil, nil)
	created, err := runner.EvaluateSubject(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Len(t, created, 1)
}
