package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/errors"
	"github.com/fieldsight/fieldsight-go/internal/geo"
	"github.com/fieldsight/fieldsight-go/internal/trajectory"
)

func immobilityConfig() datastore.AnalyzerConfig {
	return datastore.AnalyzerConfig{
		ID: "cfg-imm", Name: "immobility test", Kind: KindImmobility,
		Parameters: datastore.JSONMap{
			"threshold_radius":      13.0,
			"threshold_time":        18000.0,
			"threshold_probability": 0.8,
		},
	}
}

func TestImmobilityClusterCritical(t *testing.T) {
	t.Parallel()

	subject := datastore.Subject{ID: "s-1", Name: "zebra-1", IsActive: true}
	a, err := newImmobility(Deps{}, immobilityConfig(), subject)
	require.NoError(t, err)

	// 20 fixes 20 minutes apart at one spot: span 380 min, threshold 300 min.
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	spot := geo.Point{Lon: 36.5, Lat: 1.0}
	traj := trajectoryOf(repeatPoint(spot, 20), start, 20*time.Minute)

	results, err := a.Analyze(context.Background(), traj)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, LevelCritical, r.Level)
	assert.Equal(t, 1.0, r.Values["probability_value"])
	assert.Equal(t, 20, r.Values["total_fix_count"])
	// The qualifying cluster's oldest fix is the first one whose span from
	// the newest fix exceeds the time threshold: 16 intervals back.
	assert.Equal(t, start.Add(3*20*time.Minute), r.EstimatedTime)
	assert.InDelta(t, spot.Lat, r.Location.Lat, 1e-9)
}

func TestImmobilityMovingSubjectIsOK(t *testing.T) {
	t.Parallel()

	subject := datastore.Subject{ID: "s-1", Name: "zebra-1", IsActive: true}
	a, err := newImmobility(Deps{}, immobilityConfig(), subject)
	require.NoError(t, err)

	// Each fix 5 km from the last: no cluster ever qualifies.
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	points := make([]geo.Point, 20)
	for i := range points {
		points[i] = geo.Point{Lon: 36.0, Lat: float64(i) * 0.045}
	}
	traj := trajectoryOf(points, start, 20*time.Minute)

	results, err := a.Analyze(context.Background(), traj)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, LevelOK, results[0].Level)
	assert.Equal(t, "zebra-1 is moving", results[0].Title)
	assert.Equal(t, start.Add(19*20*time.Minute), results[0].EstimatedTime)
}

func TestImmobilityShortSpanIsInsufficientData(t *testing.T) {
	t.Parallel()

	subject := datastore.Subject{ID: "s-1", Name: "zebra-1", IsActive: true}
	a, err := newImmobility(Deps{}, immobilityConfig(), subject)
	require.NoError(t, err)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	spot := geo.Point{Lon: 36.5, Lat: 1.0}
	// Total span 60 min, threshold 300 min.
	traj := trajectoryOf(repeatPoint(spot, 4), start, 20*time.Minute)

	_, err = a.Analyze(context.Background(), traj)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryInsufficientData))

	_, err = a.Analyze(context.Background(), trajectory.New(nil))
	require.Error(t, err)
}
