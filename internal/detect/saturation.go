package detect

import (
	"fmt"
	"time"

	"github.com/cloudscout/cloudscout/internal/incident"
	"github.com/cloudscout/cloudscout/internal/telemetry"
)

// Defaults for the compute-saturation detector.
const (
	DefaultSaturationThreshold = 95.0
	DefaultSaturationDuration  = 10 * time.Minute
)

var saturationRecommendations = []string{
	"Inspect top processes on the instance for runaway consumers",
	"Resize the instance or move the workload to a larger type",
	"Review auto-scaling limits and scale-out policies for this group",
}

// Saturation flags compute instances whose CPU utilization holds at or above
// a threshold for a minimum contiguous duration.
type Saturation struct {
	Threshold   float64       // percent; a sample breaches at ≥ Threshold
	MinDuration time.Duration // shortest run span that trips the detector
}

// NewSaturation builds the detector, substituting defaults for zero values.
func NewSaturation(threshold float64, minDuration time.Duration) *Saturation {
	if threshold <= 0 {
		threshold = DefaultSaturationThreshold
	}
	if minDuration <= 0 {
		minDuration = DefaultSaturationDuration
	}
	return &Saturation{Threshold: threshold, MinDuration: minDuration}
}

func (d *Saturation) Family() incident.Family { return incident.FamilySaturation }

func (d *Saturation) AppliesTo(res telemetry.Resource) bool {
	return res.Kind == telemetry.KindInstance
}

func (d *Saturation) Metrics() []string { return []string{telemetry.MetricCPUUtilization} }

func (d *Saturation) NeedsEvents() bool { return false }

// Evaluate finds the longest contiguous run of breaching samples. The run is
// counted over the samples present: a gap in the series neither extends nor
// breaks it, only an explicit below-threshold sample does. Run span is run
// length × sampling period.
//
// Severity is medium for a span in [1×, 2×) of MinDuration and high at ≥2×,
// so wider breaches never rank below narrower ones.
func (d *Saturation) Evaluate(res telemetry.Resource, in Input) ([]incident.Candidate, error) {
	series := in.Series[telemetry.MetricCPUUtilization]
	if series.Empty() {
		return nil, nil
	}

	run, peak := longestBreachRun(series.Points, d.Threshold)
	span := time.Duration(run) * series.Period
	if span < d.MinDuration {
		return nil, nil
	}

	sev := incident.SeverityMedium
	if span >= 2*d.MinDuration {
		sev = incident.SeverityHigh
	}

	c := incident.NewCandidate(
		incident.FamilySaturation, res, sev,
		fmt.Sprintf("CPU saturated on %s", res.ID),
		fmt.Sprintf("CPU utilization held at or above %.1f%% for %s (peak %.1f%%, minimum to trip %s).",
			d.Threshold, span, peak, d.MinDuration),
	)
	c.Recommendations = saturationRecommendations
	c.Series = []*telemetry.MetricSeries{series}
	return []incident.Candidate{c}, nil
}

// longestBreachRun returns the length of the longest consecutive stretch of
// samples with value ≥ threshold, and the peak value seen inside any
// breaching stretch.
func longestBreachRun(points []telemetry.Point, threshold float64) (run int, peak float64) {
	var current int
	for _, p := range points {
		if p.Value >= threshold {
			current++
			if current > run {
				run = current
			}
			if p.Value > peak {
				peak = p.Value
			}
			continue
		}
		current = 0
	}
	return run, peak
}
