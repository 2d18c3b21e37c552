package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldsight/fieldsight-go/internal/conf"
	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/geo"
	"github.com/fieldsight/fieldsight-go/internal/trajectory"
)

// newTestStore opens a fresh in-memory SQLite store with migrations applied.
func newTestStore(t *testing.T) *datastore.SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Database.SQLite.Enabled = true
	settings.Database.SQLite.Path = ":memory:"

	store := &datastore.SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedSubject creates a subject in a group and returns both.
func seedSubject(t *testing.T, store *datastore.SQLiteStore, subjectID, groupID string) datastore.Subject {
	t.Helper()

	group := datastore.SubjectGroup{ID: groupID, Name: groupID}
	require.NoError(t, store.DB.Create(&group).Error)
	subject := datastore.Subject{
		ID: subjectID, Name: subjectID, IsActive: true,
		Groups: []datastore.SubjectGroup{group},
	}
	require.NoError(t, store.DB.Create(&subject).Error)
	return subject
}

// insertFixes stores fixes and returns them ascending in time.
func insertFixes(t *testing.T, store *datastore.SQLiteStore, subjectID string, points []geo.Point, start time.Time, spacing time.Duration) {
	t.Helper()
	for i, p := range points {
		require.NoError(t, store.InsertFix(&datastore.Fix{
			SubjectID:  subjectID,
			RecordedAt: start.Add(time.Duration(i) * spacing),
			Latitude:   p.Lat,
			Longitude:  p.Lon,
		}))
	}
}

func trajectoryOf(points []geo.Point, start time.Time, spacing time.Duration) trajectory.Trajectory {
	fixes := make([]trajectory.Fix, len(points))
	for i, p := range points {
		fixes[i] = trajectory.Fix{Point: p, RecordedAt: start.Add(time.Duration(i) * spacing)}
	}
	return trajectory.New(fixes)
}

func repeatPoint(p geo.Point, n int) []geo.Point {
	points := make([]geo.Point, n)
	for i := range points {
		points[i] = p
	}
	return points
}

func TestForConfigUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := ForConfig(Deps{}, datastore.AnalyzerConfig{Kind: "telepathy"}, datastore.Subject{})
	require.Error(t, err)
}

func TestEventTypeMapping(t *testing.T) {
	t.Parallel()

	require.Equal(t, "geofence_break", EventTypeForKind(KindGeofence))
	require.Equal(t, "immobility_all_clear", AllClearEventType(EventTypeForKind(KindImmobility)))
}
