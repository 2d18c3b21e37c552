// Package analyzer implements the per-subject trajectory analyzers: a closed
// set of detection strategies that consume one subject's trajectory and emit
// severity-leveled results.
package analyzer

import (
	"context"
	"log/slog"
	"time"

	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/errors"
	"github.com/fieldsight/fieldsight-go/internal/geo"
	"github.com/fieldsight/fieldsight-go/internal/logging"
	"github.com/fieldsight/fieldsight-go/internal/trajectory"
)

var logger *slog.Logger = logging.ForService("analyzer")

// Severity levels. Rows persist at WARNING and above, plus the one OK that
// closes an abnormal run.
const (
	LevelOK       = 10
	LevelWarning  = 20
	LevelCritical = 30
)

// LevelName returns the display name of a level.
func LevelName(level int) string {
	switch level {
	case LevelCritical:
		return "CRITICAL"
	case LevelWarning:
		return "WARNING"
	default:
		return "OK"
	}
}

// Analyzer kinds.
const (
	KindImmobility         = "immobility"
	KindGeofence           = "geofence"
	KindFeatureProximity   = "feature_proximity"
	KindSubjectProximity   = "subject_proximity"
	KindLowSpeedPercentile = "low_speed_percentile"
	KindLowSpeedWilcoxon   = "low_speed_wilcoxon"
	KindEnvironmental      = "environmental"
)

// eventTypes maps analyzer kind to the event type its anomalies produce.
// The all-clear counterpart is derived by AllClearEventType.
var eventTypes = map[string]string{
	KindImmobility:         "immobility",
	KindGeofence:           "geofence_break",
	KindFeatureProximity:   "proximity",
	KindSubjectProximity:   "subject_proximity",
	KindLowSpeedPercentile: "low_speed_percentile",
	KindLowSpeedWilcoxon:   "low_speed_wilcoxon",
	KindEnvironmental:      "environmental",
}

// EventTypeForKind returns the anomaly event type for an analyzer kind.
func EventTypeForKind(kind string) string {
	if et, ok := eventTypes[kind]; ok {
		return et
	}
	return kind
}

// AllClearEventType returns the event type reported when a subject returns
// to normal.
func AllClearEventType(eventType string) string {
	return eventType + "_all_clear"
}

// Result is the outcome of one analyzer run: a severity level with evidence.
// Immutable once produced; persistence decisions belong to the state tracker.
type Result struct {
	Level         int
	Title         string
	Message       string
	EstimatedTime time.Time
	Location      geo.Point
	Values        map[string]any
}

// Analyzer is one detection strategy bound to one config and subject.
type Analyzer interface {
	// Kind returns the analyzer kind identifier.
	Kind() string
	// Analyze inspects the trajectory and returns zero or more results.
	// ErrInsufficientData means "nothing to report", not a failure.
	Analyze(ctx context.Context, traj trajectory.Trajectory) ([]Result, error)
}

// EnvironmentalSampler extracts a raster value at a point. Implemented by the
// envdata client; injected so analyzer tests need no HTTP.
type EnvironmentalSampler interface {
	SampleMean(ctx context.Context, p geo.Point, descriptor string) (SampleInfo, error)
}

// SampleInfo is one raster sample result.
type SampleInfo struct {
	MeanValue   float64
	ImageName   string
	BandName    string
	SampledTime time.Time
}

// Deps carries the collaborators analyzers may need.
type Deps struct {
	Store datastore.Interface
	Env   EnvironmentalSampler
}

// Factory builds an analyzer from its config for one subject.
type Factory func(deps Deps, cfg datastore.AnalyzerConfig, subject datastore.Subject) (Analyzer, error)

var registry = map[string]Factory{
	KindImmobility:         newImmobility,
	KindGeofence:           newGeofence,
	KindFeatureProximity:   newFeatureProximity,
	KindSubjectProximity:   newSubjectProximity,
	KindLowSpeedPercentile: newLowSpeedPercentile,
	KindLowSpeedWilcoxon:   newLowSpeedWilcoxon,
	KindEnvironmental:      newEnvironmental,
}

// ForConfig instantiates the analyzer the config names.
func ForConfig(deps Deps, cfg datastore.AnalyzerConfig, subject datastore.Subject) (Analyzer, error) {
	factory, ok := registry[cfg.Kind]
	if !ok {
		return nil, errors.Newf("unknown analyzer kind %q", cfg.Kind).
			Component("analyzer").
			Category(errors.CategoryConfiguration).
			Context("config", cfg.Name).
			Build()
	}
	return factory(deps, cfg, subject)
}

// configError reports a misconfigured analyzer config. The runner logs it
// and skips the config; sibling configs still run.
func configError(cfg datastore.AnalyzerConfig, msg string) error {
	return errors.Newf("%s", msg).
		Component("analyzer").
		Category(errors.CategoryConfiguration).
		Context("config", cfg.Name).
		Context("kind", cfg.Kind).
		Build()
}

// Kinds returns the registered analyzer kinds.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	return kinds
}
