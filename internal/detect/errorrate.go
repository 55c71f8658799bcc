package detect

import (
	"fmt"

	"github.com/cloudscout/cloudscout/internal/incident"
	"github.com/cloudscout/cloudscout/internal/telemetry"
)

// Defaults for the function-error-rate detector.
const (
	DefaultErrorThreshold   = 5
	DefaultTimeoutThreshold = 25000.0 // milliseconds
)

var errorRateRecommendations = []string{
	"Pull recent invocation logs and group failures by error type",
	"Check the most recent deployment for a regression and roll back if needed",
	"Verify downstream dependencies (databases, queues, third-party APIs) are reachable",
}

// ErrorRate flags function resources whose in-window error sum reaches a
// configured count. The severity escalates when a companion duration metric
// shows the function running at or past its timeout.
type ErrorRate struct {
	MaxErrors float64 // error sum that trips the detector (≥)
	TimeoutMS float64 // duration sample that marks a timeout (≥)
}

// NewErrorRate builds the detector, substituting defaults for zero values.
func NewErrorRate(maxErrors int, timeoutMS float64) *ErrorRate {
	if maxErrors <= 0 {
		maxErrors = DefaultErrorThreshold
	}
	if timeoutMS <= 0 {
		timeoutMS = DefaultTimeoutThreshold
	}
	return &ErrorRate{MaxErrors: float64(maxErrors), TimeoutMS: timeoutMS}
}

func (d *ErrorRate) Family() incident.Family { return incident.FamilyErrorRate }

func (d *ErrorRate) AppliesTo(res telemetry.Resource) bool {
	return res.Kind == telemetry.KindFunction
}

func (d *ErrorRate) Metrics() []string {
	return []string{telemetry.MetricErrorCount, telemetry.MetricDurationMS}
}

func (d *ErrorRate) NeedsEvents() bool { return false }

// Evaluate sums errors across the window. Medium severity by default; high
// when any duration sample is at or above the timeout threshold, since
// errors plus timeouts usually mean the function is hanging, not failing
// fast. A missing duration series leaves the severity at medium.
func (d *ErrorRate) Evaluate(res telemetry.Resource, in Input) ([]incident.Candidate, error) {
	errSeries := in.Series[telemetry.MetricErrorCount]
	if errSeries.Empty() {
		return nil, nil
	}

	total := errSeries.Sum()
	if total < d.MaxErrors {
		return nil, nil
	}

	sev := incident.SeverityMedium
	desc := fmt.Sprintf("%.0f invocation errors in the last %s (threshold %.0f).",
		total, in.Window.Span(), d.MaxErrors)

	durSeries := in.Series[telemetry.MetricDurationMS]
	if maxDur, ok := durSeries.Max(); ok && maxDur >= d.TimeoutMS {
		sev = incident.SeverityHigh
		desc += fmt.Sprintf(" Invocations are also hitting the timeout: peak duration %.0f ms against a %.0f ms limit.",
			maxDur, d.TimeoutMS)
	}

	c := incident.NewCandidate(
		incident.FamilyErrorRate, res, sev,
		fmt.Sprintf("Elevated errors on %s", res.ID),
		desc,
	)
	c.Recommendations = errorRateRecommendations
	c.Series = []*telemetry.MetricSeries{errSeries}
	if !durSeries.Empty() {
		c.Series = append(c.Series, durSeries)
	}
	return []incident.Candidate{c}, nil
}
