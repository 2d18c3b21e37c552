package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/geo"
	"github.com/fieldsight/fieldsight-go/internal/trajectory"
)

// immobility detects a subject stuck in place: walking fixes newest to
// oldest it grows a spatial cluster, and fires once the fraction of fixes
// near the cluster centroid stays high for longer than the time threshold.
type immobility struct {
	cfg     datastore.AnalyzerConfig
	subject datastore.Subject

	radiusMeters float64
	minSpan      time.Duration
	probability  float64
}

func newImmobility(_ Deps, cfg datastore.AnalyzerConfig, subject datastore.Subject) (Analyzer, error) {
	a := &immobility{
		cfg:          cfg,
		subject:      subject,
		radiusMeters: cfg.FloatParam("threshold_radius", 13.0),
		minSpan:      time.Duration(cfg.FloatParam("threshold_time", 18000) * float64(time.Second)),
		probability:  cfg.FloatParam("threshold_probability", 0.8),
	}
	if a.radiusMeters <= 0 || a.probability <= 0 || a.minSpan <= 0 {
		return nil, configError(cfg, "threshold_radius, threshold_time and threshold_probability must be positive")
	}
	return a, nil
}

func (a *immobility) Kind() string { return KindImmobility }

func (a *immobility) Analyze(_ context.Context, traj trajectory.Trajectory) ([]Result, error) {
	fixes := traj.Fixes()
	if len(fixes) < 2 {
		return nil, trajectory.ErrInsufficientData
	}
	newest := fixes[len(fixes)-1]
	oldest := fixes[0]
	if newest.RecordedAt.Sub(oldest.RecordedAt) < a.minSpan {
		return nil, trajectory.ErrInsufficientData
	}

	var cluster []geo.Point
	for i := len(fixes) - 1; i >= 0; i-- {
		cluster = append(cluster, fixes[i].Point)
		centroid := geo.Centroid(cluster)

		inRadius := 0
		maxDist := 0.0
		for _, p := range cluster {
			d := geo.DistanceMeters(centroid, p)
			if d <= a.radiusMeters {
				inRadius++
			}
			if d > maxDist {
				maxDist = d
			}
		}
		p := float64(inRadius) / float64(len(cluster))
		span := newest.RecordedAt.Sub(fixes[i].RecordedAt)

		if p >= a.probability && span > a.minSpan {
			return []Result{{
				Level:         LevelCritical,
				Title:         fmt.Sprintf("%s is immobile", a.subject.Name),
				Message:       fmt.Sprintf("%s has been immobile for %s", a.subject.Name, span.Round(time.Minute)),
				EstimatedTime: fixes[i].RecordedAt,
				Location:      centroid,
				Values: map[string]any{
					"probability_value": p,
					"cluster_radius":    maxDist,
					"cluster_fix_count": len(cluster),
					"total_fix_count":   len(fixes),
					"immobility_time":   span.Seconds(),
				},
			}}, nil
		}
	}

	return []Result{{
		Level:         LevelOK,
		Title:         fmt.Sprintf("%s is moving", a.subject.Name),
		EstimatedTime: newest.RecordedAt,
		Location:      newest.Point,
		Values: map[string]any{
			"total_fix_count": len(fixes),
		},
	}}, nil
}
