package detect

import (
	"fmt"
	"time"

	"github.com/cloudscout/cloudscout/internal/incident"
	"github.com/cloudscout/cloudscout/internal/telemetry"
)

// Defaults for the usage-volume-spike detector.
const (
	DefaultUsageThreshold = 100000.0
	DefaultUsageWindow    = 60 * time.Minute
	DefaultCostPer1K      = 0.01 // dollars per thousand tokens
)

var usageRecommendations = []string{
	"Identify the callers driving the spike and confirm the traffic is intended",
	"Cap per-client invocation rates or token budgets at the gateway",
	"Review prompt sizes and retry loops for accidental amplification",
}

// Usage flags model resources whose token consumption over a sliding window
// reaches a configured volume. Token spikes are direct cost exposure, so
// every hit is high severity.
type Usage struct {
	Threshold float64       // token sum that trips the detector (≥)
	Window    time.Duration // sliding window the sum covers
	CostPer1K float64       // dollars per 1000 tokens, for the estimate
}

// NewUsage builds the detector, substituting defaults for zero values.
func NewUsage(threshold float64, window time.Duration, costPer1K float64) *Usage {
	if threshold <= 0 {
		threshold = DefaultUsageThreshold
	}
	if window <= 0 {
		window = DefaultUsageWindow
	}
	if costPer1K <= 0 {
		costPer1K = DefaultCostPer1K
	}
	return &Usage{Threshold: threshold, Window: window, CostPer1K: costPer1K}
}

func (d *Usage) Family() incident.Family { return incident.FamilyUsage }

func (d *Usage) AppliesTo(res telemetry.Resource) bool {
	return res.Kind == telemetry.KindModel
}

func (d *Usage) Metrics() []string {
	return []string{telemetry.MetricTokenCount, telemetry.MetricInvocations}
}

func (d *Usage) NeedsEvents() bool { return false }

// Evaluate sums tokens over the trailing Window portion of the fetched
// range. The description always carries the numeric overage and a
// rough-order cost estimate; invocation stats are included when that series
// is available.
func (d *Usage) Evaluate(res telemetry.Resource, in Input) ([]incident.Candidate, error) {
	tokens := in.Series[telemetry.MetricTokenCount]
	if tokens.Empty() {
		return nil, nil
	}

	cutoff := in.Window.End.Add(-d.Window)
	var total float64
	for _, p := range tokens.Points {
		if !p.Time.Before(cutoff) {
			total += p.Value
		}
	}
	if total < d.Threshold {
		return nil, nil
	}

	overage := total - d.Threshold
	cost := total / 1000 * d.CostPer1K
	desc := fmt.Sprintf("%.0f tokens consumed in the last %s, %.0f over the %.0f threshold. Estimated spend ~$%.2f at $%.3f per 1K tokens.",
		total, d.Window, overage, d.Threshold, cost, d.CostPer1K)

	invocations := in.Series[telemetry.MetricInvocations]
	var calls float64
	for _, p := range invocations.PointsIn(cutoff, in.Window.End) {
		calls += p.Value
	}
	if calls > 0 {
		desc += fmt.Sprintf(" %.0f invocations averaged %.0f tokens per call.", calls, total/calls)
	}

	c := incident.NewCandidate(
		incident.FamilyUsage, res, incident.SeverityHigh,
		fmt.Sprintf("Token usage spike on %s", res.ID),
		desc,
	)
	c.Recommendations = usageRecommendations
	c.Series = []*telemetry.MetricSeries{tokens}
	if !invocations.Empty() {
		c.Series = append(c.Series, invocations)
	}
	return []incident.Candidate{c}, nil
}
