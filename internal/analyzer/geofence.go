package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/geo"
	"github.com/fieldsight/fieldsight-go/internal/trajectory"
)

// fence is one named crossing line with the severity its breach carries.
type fence struct {
	name  string
	line  geo.Polyline
	level int
}

// region is one named containment polygon.
type region struct {
	name    string
	polygon geo.Polygon
}

// geofence detects trajectory segments that cross configured fence lines and
// names the region the subject ended up in.
type geofence struct {
	cfg     datastore.AnalyzerConfig
	subject datastore.Subject
	fences  []fence
	regions []region
}

func newGeofence(deps Deps, cfg datastore.AnalyzerConfig, subject datastore.Subject) (Analyzer, error) {
	if cfg.CriticalFenceGroupID == "" && cfg.WarningFenceGroupID == "" {
		return nil, configError(cfg, "geofence requires at least one fence group")
	}

	a := &geofence{cfg: cfg, subject: subject}

	load := func(groupID string, level int) error {
		features, err := deps.Store.FeaturesInGroup(groupID)
		if err != nil {
			return err
		}
		for _, f := range features {
			line, err := decodeLine(f)
			if err != nil {
				logger.Warn("skipping malformed fence geometry",
					"feature", f.Name, "config", cfg.Name, "error", err)
				continue
			}
			a.fences = append(a.fences, fence{name: f.Name, line: line, level: level})
		}
		return nil
	}
	if err := load(cfg.CriticalFenceGroupID, LevelCritical); err != nil {
		return nil, err
	}
	if err := load(cfg.WarningFenceGroupID, LevelWarning); err != nil {
		return nil, err
	}

	containment, err := deps.Store.FeaturesInGroup(cfg.ContainmentGroupID)
	if err != nil {
		return nil, err
	}
	for _, f := range containment {
		ring, err := decodeLine(f)
		if err != nil {
			logger.Warn("skipping malformed containment geometry",
				"feature", f.Name, "config", cfg.Name, "error", err)
			continue
		}
		a.regions = append(a.regions, region{name: f.Name, polygon: geo.Polygon(ring)})
	}
	return a, nil
}

func (a *geofence) Kind() string { return KindGeofence }

func (a *geofence) Analyze(_ context.Context, traj trajectory.Trajectory) ([]Result, error) {
	segments, err := traj.Segments()
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, seg := range segments {
		for _, f := range a.fences {
			crossing, ok := geo.CrossesPolyline(seg.Start.Point, seg.End.Point, f.line)
			if !ok {
				continue
			}
			results = append(results, Result{
				Level: f.level,
				Title: fmt.Sprintf("%s crossed %s", a.subject.Name, f.name),
				Message: fmt.Sprintf("%s crossed geofence %s heading into %s",
					a.subject.Name, f.name, a.containedIn(seg.End.Point)),
				EstimatedTime: seg.End.RecordedAt,
				Location:      crossing,
				Values: map[string]any{
					"geofence_name":      f.name,
					"contain_regions":    a.containedIn(seg.End.Point),
					"total_fix_count":    traj.Len(),
					"subject_speed_kmhr": seg.SpeedKmHr,
					"subject_heading":    seg.HeadingDegrees,
				},
			})
		}
	}
	return results, nil
}

// containedIn names the containment regions holding the point, or
// "Unknown region" when none do.
func (a *geofence) containedIn(p geo.Point) string {
	var names []string
	for _, r := range a.regions {
		if r.polygon.Contains(p) {
			names = append(names, r.name)
		}
	}
	if len(names) == 0 {
		return "Unknown region"
	}
	return strings.Join(names, ", ")
}

// decodeLine parses a feature's [[lon,lat], ...] geometry.
func decodeLine(f datastore.SpatialFeature) (geo.Polyline, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(f.Geometry), &coords); err != nil {
		return nil, fmt.Errorf("decoding geometry of %s: %w", f.Name, err)
	}
	if len(coords) < 2 {
		return nil, fmt.Errorf("geometry of %s has fewer than two vertices", f.Name)
	}
	line := make(geo.Polyline, len(coords))
	for i, c := range coords {
		if len(c) < 2 {
			return nil, fmt.Errorf("geometry of %s has a malformed vertex", f.Name)
		}
		line[i] = geo.Point{Lon: c[0], Lat: c[1]}
	}
	return line, nil
}
