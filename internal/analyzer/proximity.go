package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/geo"
	"github.com/fieldsight/fieldsight-go/internal/trajectory"
)

// featureProximity fires when a subject comes within a distance threshold of
// any feature in the configured proximal group. Only the two most recent
// fixes matter; older history carries no proximity signal.
type featureProximity struct {
	cfg       datastore.AnalyzerConfig
	subject   datastore.Subject
	threshold float64
	targets   []datastore.SpatialFeature
}

func newFeatureProximity(deps Deps, cfg datastore.AnalyzerConfig, subject datastore.Subject) (Analyzer, error) {
	if cfg.ProximalGroupID == "" {
		return nil, configError(cfg, "feature proximity requires a proximal feature group")
	}
	threshold := cfg.FloatParam("threshold_dist_meters", 0)
	if threshold <= 0 {
		return nil, configError(cfg, "threshold_dist_meters must be positive")
	}
	targets, err := deps.Store.FeaturesInGroup(cfg.ProximalGroupID)
	if err != nil {
		return nil, err
	}
	return &featureProximity{cfg: cfg, subject: subject, threshold: threshold, targets: targets}, nil
}

func (a *featureProximity) Kind() string { return KindFeatureProximity }

func (a *featureProximity) Analyze(_ context.Context, traj trajectory.Trajectory) ([]Result, error) {
	seg, err := lastSegment(traj)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, target := range a.targets {
		point, err := featurePoint(target)
		if err != nil {
			logger.Warn("skipping proximity target with malformed geometry",
				"feature", target.Name, "config", a.cfg.Name, "error", err)
			continue
		}
		dist := geo.DistanceMeters(seg.End.Point, point)
		if dist > a.threshold {
			continue
		}
		results = append(results, Result{
			Level: LevelCritical,
			Title: fmt.Sprintf("%s in proximity of %s", a.subject.Name, target.Name),
			Message: fmt.Sprintf("%s is %.0f m from %s",
				a.subject.Name, dist, target.Name),
			EstimatedTime: seg.End.RecordedAt,
			Location:      seg.End.Point,
			Values: map[string]any{
				"spatial_feature_name":  target.Name,
				"proximity_dist_meters": dist,
				"subject_speed_kmhr":    seg.SpeedKmHr,
				"subject_heading":       seg.HeadingDegrees,
				"total_fix_count":       traj.Len(),
			},
		})
	}
	return results, nil
}

// subjectProximity fires when two subjects from paired groups are observed
// near each other at close points in time.
type subjectProximity struct {
	cfg       datastore.AnalyzerConfig
	subject   datastore.Subject
	store     datastore.Interface
	threshold float64
	// maxSkew is how far apart the two subjects' latest observations may be
	// for the comparison to mean anything.
	maxSkew time.Duration
}

func newSubjectProximity(deps Deps, cfg datastore.AnalyzerConfig, subject datastore.Subject) (Analyzer, error) {
	if cfg.SecondSubjectGroupID == "" {
		return nil, configError(cfg, "subject proximity requires a second subject group")
	}
	threshold := cfg.FloatParam("threshold_dist_meters", 0)
	if threshold <= 0 {
		return nil, configError(cfg, "threshold_dist_meters must be positive")
	}
	return &subjectProximity{
		cfg:       cfg,
		subject:   subject,
		store:     deps.Store,
		threshold: threshold,
		maxSkew:   time.Duration(cfg.FloatParam("proximity_time", 2) * float64(time.Hour)),
	}, nil
}

func (a *subjectProximity) Kind() string { return KindSubjectProximity }

func (a *subjectProximity) Analyze(_ context.Context, traj trajectory.Trajectory) ([]Result, error) {
	seg, err := lastSegment(traj)
	if err != nil {
		return nil, err
	}

	others, err := a.store.GetSubjectsInGroup(a.cfg.SecondSubjectGroupID)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, other := range others {
		if other.ID == a.subject.ID || !other.IsActive {
			continue
		}
		otherFix, err := a.store.LatestFix(other.ID)
		if err != nil {
			return nil, err
		}
		if otherFix == nil {
			continue
		}

		skew := seg.End.RecordedAt.Sub(otherFix.RecordedAt)
		if math.Abs(skew.Hours()) > a.maxSkew.Hours() {
			continue
		}
		otherPoint := geo.Point{Lon: otherFix.Longitude, Lat: otherFix.Latitude}
		dist := geo.DistanceMeters(seg.End.Point, otherPoint)
		if dist > a.threshold {
			continue
		}
		results = append(results, Result{
			Level: LevelCritical,
			Title: fmt.Sprintf("%s in proximity of %s", a.subject.Name, other.Name),
			Message: fmt.Sprintf("%s is %.0f m from %s",
				a.subject.Name, dist, other.Name),
			EstimatedTime: seg.End.RecordedAt,
			Location:      seg.End.Point,
			Values: map[string]any{
				"subject_1_id":          a.subject.ID,
				"subject_1_name":        a.subject.Name,
				"subject_2_id":          other.ID,
				"subject_2_name":        other.Name,
				"proximity_dist_meters": dist,
				"total_fix_count":       traj.Len(),
			},
		})
	}
	return results, nil
}

// lastSegment subsamples the trajectory to its two most recent fixes.
func lastSegment(traj trajectory.Trajectory) (trajectory.Segment, error) {
	segments, err := traj.Segments()
	if err != nil {
		return trajectory.Segment{}, err
	}
	return segments[len(segments)-1], nil
}

// featurePoint reduces a feature to a representative point: the point itself,
// or the centroid of a polyline/polygon.
func featurePoint(f datastore.SpatialFeature) (geo.Point, error) {
	if f.Kind == "point" {
		var coord []float64
		if err := json.Unmarshal([]byte(f.Geometry), &coord); err != nil || len(coord) < 2 {
			return geo.Point{}, fmt.Errorf("decoding point geometry of %s", f.Name)
		}
		return geo.Point{Lon: coord[0], Lat: coord[1]}, nil
	}
	line, err := decodeLine(f)
	if err != nil {
		return geo.Point{}, err
	}
	return geo.Centroid(line), nil
}
