// Package trajectory builds ordered movement tracks from location fixes and
// derives per-segment speed and heading.
package trajectory

import (
	"sort"
	"time"

	"github.com/fieldsight/fieldsight-go/internal/errors"
	"github.com/fieldsight/fieldsight-go/internal/geo"
)

// ErrInsufficientData is returned when a computation needs more fixes than
// the trajectory holds.
var ErrInsufficientData = errors.Newf("insufficient trajectory data").
	Component("trajectory").
	Category(errors.CategoryInsufficientData).
	Build()

// Fix is one timestamped location sample.
type Fix struct {
	Point      geo.Point
	RecordedAt time.Time
}

// Segment joins two consecutive fixes.
type Segment struct {
	Start, End     Fix
	DistanceMeters float64
	Duration       time.Duration
	SpeedKmHr      float64
	HeadingDegrees float64
}

// Trajectory is a time-ordered sequence of fixes for one subject.
type Trajectory struct {
	fixes []Fix
}

// New builds a trajectory from fixes in any order. Fixes sharing the same
// timestamp collapse to the first seen, so stuttering trackers do not
// produce zero-duration segments.
func New(fixes []Fix) Trajectory {
	sorted := make([]Fix, len(fixes))
	copy(sorted, fixes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RecordedAt.Before(sorted[j].RecordedAt)
	})

	deduped := sorted[:0]
	for _, f := range sorted {
		if len(deduped) > 0 && f.RecordedAt.Equal(deduped[len(deduped)-1].RecordedAt) {
			continue
		}
		deduped = append(deduped, f)
	}
	return Trajectory{fixes: deduped}
}

// Len returns the number of fixes.
func (t Trajectory) Len() int { return len(t.fixes) }

// Fixes returns the fixes in ascending time order.
func (t Trajectory) Fixes() []Fix { return t.fixes }

// First returns the oldest fix.
func (t Trajectory) First() (Fix, error) {
	if len(t.fixes) == 0 {
		return Fix{}, ErrInsufficientData
	}
	return t.fixes[0], nil
}

// Last returns the newest fix.
func (t Trajectory) Last() (Fix, error) {
	if len(t.fixes) == 0 {
		return Fix{}, ErrInsufficientData
	}
	return t.fixes[len(t.fixes)-1], nil
}

// Segments derives the consecutive-pair segments. At least two fixes are
// required.
func (t Trajectory) Segments() ([]Segment, error) {
	if len(t.fixes) < 2 {
		return nil, ErrInsufficientData
	}
	segments := make([]Segment, 0, len(t.fixes)-1)
	for i := 1; i < len(t.fixes); i++ {
		start, end := t.fixes[i-1], t.fixes[i]
		dist := geo.DistanceMeters(start.Point, end.Point)
		dur := end.RecordedAt.Sub(start.RecordedAt)

		speed := 0.0
		if dur > 0 {
			speed = (dist / 1000.0) / dur.Hours()
		}
		segments = append(segments, Segment{
			Start:          start,
			End:            end,
			DistanceMeters: dist,
			Duration:       dur,
			SpeedKmHr:      speed,
			HeadingDegrees: geo.HeadingDegrees(start.Point, end.Point),
		})
	}
	return segments, nil
}

// SpeedsKmHr returns the per-segment speeds in segment order.
func (t Trajectory) SpeedsKmHr() ([]float64, error) {
	segments, err := t.Segments()
	if err != nil {
		return nil, err
	}
	speeds := make([]float64, len(segments))
	for i, s := range segments {
		speeds[i] = s.SpeedKmHr
	}
	return speeds, nil
}

// Within returns the sub-trajectory of fixes recorded in (since, until].
// A zero since means no lower bound; a zero until means no upper bound.
func (t Trajectory) Within(since, until time.Time) Trajectory {
	var kept []Fix
	for _, f := range t.fixes {
		if !since.IsZero() && !f.RecordedAt.After(since) {
			continue
		}
		if !until.IsZero() && f.RecordedAt.After(until) {
			continue
		}
		kept = append(kept, f)
	}
	return Trajectory{fixes: kept}
}
