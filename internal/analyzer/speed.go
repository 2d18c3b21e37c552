package analyzer

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/geo"
	"github.com/fieldsight/fieldsight-go/internal/trajectory"
)

// baselineDays is the lookback used for the rank-sum baseline distribution.
const baselineDays = 30

// lowSpeedPercentile compares the median segment speed over the window
// against a per-subject speed-profile percentile, falling back to a
// configured default threshold.
type lowSpeedPercentile struct {
	cfg        datastore.AnalyzerConfig
	subject    datastore.Subject
	store      datastore.Interface
	percentile string
	fallback   float64
}

func newLowSpeedPercentile(deps Deps, cfg datastore.AnalyzerConfig, subject datastore.Subject) (Analyzer, error) {
	return &lowSpeedPercentile{
		cfg:        cfg,
		subject:    subject,
		store:      deps.Store,
		percentile: cfg.StringParam("low_speed_threshold_percentile", "0.25"),
		fallback:   cfg.FloatParam("default_low_speed_value", 5.0),
	}, nil
}

func (a *lowSpeedPercentile) Kind() string { return KindLowSpeedPercentile }

func (a *lowSpeedPercentile) Analyze(_ context.Context, traj trajectory.Trajectory) ([]Result, error) {
	speeds, err := traj.SpeedsKmHr()
	if err != nil {
		return nil, err
	}
	median := medianOf(speeds)

	threshold := a.fallback
	profile, err := a.store.GetSpeedProfile(a.subject.ID)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		if v, ok := profile.Percentiles[a.percentile].(float64); ok {
			threshold = v
		}
	}

	newest, err := traj.Last()
	if err != nil {
		return nil, err
	}

	result := Result{
		Level:         LevelOK,
		Title:         fmt.Sprintf("%s speed is normal", a.subject.Name),
		EstimatedTime: newest.RecordedAt,
		Location:      newest.Point,
		Values: map[string]any{
			"low_speed_threshold_percentile": a.percentile,
			"low_speed_threshold_value":      threshold,
			"current_median_speed_value":     median,
			"total_fix_count":                traj.Len(),
		},
	}
	if median < threshold {
		result.Level = LevelCritical
		result.Title = fmt.Sprintf("%s is moving slowly", a.subject.Name)
		result.Message = fmt.Sprintf("%s median speed %.2f km/h is below %.2f km/h",
			a.subject.Name, median, threshold)
	}
	return []Result{result}, nil
}

// lowSpeedWilcoxon compares the current window's speed distribution against
// a 30-day baseline using a one-sided rank-sum test. Low p-value means the
// current window is significantly slower than the subject's recent normal.
type lowSpeedWilcoxon struct {
	cfg     datastore.AnalyzerConfig
	subject datastore.Subject
	store   datastore.Interface
	cutoff  float64
}

func newLowSpeedWilcoxon(deps Deps, cfg datastore.AnalyzerConfig, subject datastore.Subject) (Analyzer, error) {
	return &lowSpeedWilcoxon{
		cfg:     cfg,
		subject: subject,
		store:   deps.Store,
		cutoff:  cfg.FloatParam("low_speed_probability_cutoff", 0.05),
	}, nil
}

func (a *lowSpeedWilcoxon) Kind() string { return KindLowSpeedWilcoxon }

func (a *lowSpeedWilcoxon) Analyze(_ context.Context, traj trajectory.Trajectory) ([]Result, error) {
	current, err := traj.SpeedsKmHr()
	if err != nil {
		return nil, err
	}

	windowStart, err := traj.First()
	if err != nil {
		return nil, err
	}
	baselineFixes, err := a.store.FixesForSubject(a.subject.ID, baselineDays*24, windowStart.RecordedAt)
	if err != nil {
		return nil, err
	}
	baseline, err := fixesToTrajectory(baselineFixes).SpeedsKmHr()
	if err != nil {
		return nil, err
	}
	if len(baseline) < len(current) {
		return nil, trajectory.ErrInsufficientData
	}

	p := rankSumLessP(current, baseline)

	newest, err := traj.Last()
	if err != nil {
		return nil, err
	}
	result := Result{
		Level:         LevelOK,
		Title:         fmt.Sprintf("%s speed is normal", a.subject.Name),
		EstimatedTime: newest.RecordedAt,
		Location:      newest.Point,
		Values: map[string]any{
			"low_speed_probability_cutoff": a.cutoff,
			"low_speed_probability":        p,
			"total_fix_count":              traj.Len(),
		},
	}
	if p < a.cutoff {
		result.Level = LevelCritical
		result.Title = fmt.Sprintf("%s is moving slowly", a.subject.Name)
		result.Message = fmt.Sprintf("%s speed distribution is below baseline (p=%.4f)",
			a.subject.Name, p)
	}
	return []Result{result}, nil
}

// medianOf returns the sample median.
func medianOf(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// rankSumLessP runs a one-sided Mann-Whitney test for "sample is
// stochastically less than baseline", using the tie-corrected normal
// approximation with continuity correction.
func rankSumLessP(sample, baseline []float64) float64 {
	n1, n2 := float64(len(sample)), float64(len(baseline))
	total := len(sample) + len(baseline)

	type obs struct {
		value  float64
		sample bool
	}
	combined := make([]obs, 0, total)
	for _, v := range sample {
		combined = append(combined, obs{v, true})
	}
	for _, v := range baseline {
		combined = append(combined, obs{v, false})
	}
	sort.Slice(combined, func(i, j int) bool { return combined[i].value < combined[j].value })

	// Average ranks over tie groups; accumulate the tie correction term.
	ranks := make([]float64, total)
	tieCorrection := 0.0
	for i := 0; i < total; {
		j := i
		for j < total && combined[j].value == combined[i].value {
			j++
		}
		avg := float64(i+j+1) / 2.0
		for k := i; k < j; k++ {
			ranks[k] = avg
		}
		t := float64(j - i)
		tieCorrection += t*t*t - t
		i = j
	}

	rankSum := 0.0
	for i, o := range combined {
		if o.sample {
			rankSum += ranks[i]
		}
	}
	u := rankSum - n1*(n1+1)/2.0

	mean := n1 * n2 / 2.0
	n := n1 + n2
	variance := n1 * n2 / 12.0 * ((n + 1) - tieCorrection/(n*(n-1)))
	if variance <= 0 {
		return 1.0
	}

	z := (u - mean + 0.5) / math.Sqrt(variance)
	return distuv.Normal{Mu: 0, Sigma: 1}.CDF(z)
}

// fixesToTrajectory converts stored fixes to a trajectory.
func fixesToTrajectory(fixes []datastore.Fix) trajectory.Trajectory {
	converted := make([]trajectory.Fix, len(fixes))
	for i, f := range fixes {
		converted[i] = trajectory.Fix{
			Point:      geo.Point{Lon: f.Longitude, Lat: f.Latitude},
			RecordedAt: f.RecordedAt,
		}
	}
	return trajectory.New(converted)
}
