package analyzer

import (
	"context"
	"fmt"

	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/trajectory"
)

// environmental samples a remote raster service at the subject's newest fix
// and fires when the sampled mean exceeds the configured threshold.
type environmental struct {
	cfg        datastore.AnalyzerConfig
	subject    datastore.Subject
	sampler    EnvironmentalSampler
	descriptor string
	threshold  float64
}

func newEnvironmental(deps Deps, cfg datastore.AnalyzerConfig, subject datastore.Subject) (Analyzer, error) {
	if deps.Env == nil {
		return nil, configError(cfg, "environmental analyzer requires a configured raster endpoint")
	}
	descriptor := cfg.StringParam("environmental_descriptor", "")
	if descriptor == "" {
		return nil, configError(cfg, "environmental_descriptor is required")
	}
	return &environmental{
		cfg:        cfg,
		subject:    subject,
		sampler:    deps.Env,
		descriptor: descriptor,
		threshold:  cfg.FloatParam("threshold_value", 0),
	}, nil
}

func (a *environmental) Kind() string { return KindEnvironmental }

func (a *environmental) Analyze(ctx context.Context, traj trajectory.Trajectory) ([]Result, error) {
	newest, err := traj.Last()
	if err != nil {
		return nil, err
	}

	sample, err := a.sampler.SampleMean(ctx, newest.Point, a.descriptor)
	if err != nil {
		return nil, err
	}

	result := Result{
		Level:         LevelOK,
		Title:         fmt.Sprintf("%s %s is normal", a.subject.Name, a.descriptor),
		EstimatedTime: newest.RecordedAt,
		Location:      newest.Point,
		Values: map[string]any{
			"environmental_descriptor": a.descriptor,
			"mean_value":               sample.MeanValue,
			"img_name":                 sample.ImageName,
			"img_band_name":            sample.BandName,
			"total_fix_count":          traj.Len(),
		},
	}
	if sample.MeanValue > a.threshold {
		result.Level = LevelCritical
		result.Title = fmt.Sprintf("%s %s above threshold", a.subject.Name, a.descriptor)
		result.Message = fmt.Sprintf("%s at %s: %.2f exceeds %.2f",
			a.descriptor, a.subject.Name, sample.MeanValue, a.threshold)
	}
	return []Result{result}, nil
}
