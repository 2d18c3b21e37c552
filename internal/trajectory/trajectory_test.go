package trajectory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsight/fieldsight-go/internal/errors"
	"github.com/fieldsight/fieldsight-go/internal/geo"
)

func fixAt(lon, lat float64, at time.Time) Fix {
	return Fix{Point: geo.Point{Lon: lon, Lat: lat}, RecordedAt: at}
}

func TestNewOrdersAndDeduplicates(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	traj := New([]Fix{
		fixAt(36.0, 1.0, base.Add(2*time.Minute)),
		fixAt(36.1, 1.0, base),
		fixAt(36.2, 1.0, base.Add(2*time.Minute)), // duplicate timestamp, dropped
		fixAt(36.3, 1.0, base.Add(time.Minute)),
	})

	require.Equal(t, 3, traj.Len())
	first, err := traj.First()
	require.NoError(t, err)
	assert.Equal(t, 36.1, first.Point.Lon)
	last, err := traj.Last()
	require.NoError(t, err)
	assert.Equal(t, base.Add(2*time.Minute), last.RecordedAt)
	assert.Equal(t, 36.0, last.Point.Lon, "first fix at a timestamp wins")
}

func TestSegmentsSpeedAndHeading(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// Two fixes 0.01 degrees of latitude apart (about 1.11 km), one hour apart.
	traj := New([]Fix{
		fixAt(36.0, 1.00, base),
		fixAt(36.0, 1.01, base.Add(time.Hour)),
	})

	segments, err := traj.Segments()
	require.NoError(t, err)
	require.Len(t, segments, 1)

	s := segments[0]
	assert.InDelta(t, 1111.9, s.DistanceMeters, 5.0)
	assert.InDelta(t, 1.11, s.SpeedKmHr, 0.01)
	assert.InDelta(t, 0.0, s.HeadingDegrees, 0.01, "due north")
	assert.Equal(t, time.Hour, s.Duration)
}

func TestSegmentsInsufficientData(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Segments()
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryInsufficientData))

	_, err = New([]Fix{fixAt(36.0, 1.0, time.Now())}).SpeedsKmHr()
	require.Error(t, err)
}

func TestZeroDurationSegmentHasZeroSpeed(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// Duplicate timestamps collapse, so force a zero-duration pair through
	// the internal representation by using nanosecond spacing instead.
	traj := New([]Fix{
		fixAt(36.0, 1.0, base),
		fixAt(36.5, 1.0, base.Add(time.Nanosecond)),
	})
	segments, err := traj.Segments()
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Positive(t, segments[0].SpeedKmHr)
}

func TestWithinWindow(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var fixes []Fix
	for i := 0; i < 5; i++ {
		fixes = append(fixes, fixAt(36.0, 1.0, base.Add(time.Duration(i)*time.Minute)))
	}
	traj := New(fixes)

	window := traj.Within(base, base.Add(3*time.Minute))
	require.Equal(t, 3, window.Len())
	first, err := window.First()
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Minute), first.RecordedAt)

	open := traj.Within(time.Time{}, time.Time{})
	assert.Equal(t, 5, open.Len())
}
