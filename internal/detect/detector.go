package detect

import (
	"github.com/cloudscout/cloudscout/internal/incident"
	"github.com/cloudscout/cloudscout/internal/telemetry"
)

// Input is the telemetry handed to one detector evaluation: the window it
// covers, the prefetched series keyed by canonical metric name, and the
// audit events when the detector asked for them.
type Input struct {
	Window telemetry.Window
	Series map[string]*telemetry.MetricSeries
	Events []telemetry.AuditEvent
}

// Detector turns a telemetry window into zero or more incident candidates.
// Evaluate must be pure given its inputs: no fetching, no shared state, no
// side effects. An empty window is a clean no-candidates result, not an
// error; Evaluate errors are reserved for inputs the detector cannot
// interpret.
type Detector interface {
	// Family tags the incident class this detector produces.
	Family() incident.Family

	// AppliesTo reports whether the detector evaluates this resource kind.
	AppliesTo(res telemetry.Resource) bool

	// Metrics lists the canonical series names the engine must prefetch.
	Metrics() []string

	// NeedsEvents reports whether the audit window must be prefetched.
	NeedsEvents() bool

	// Evaluate inspects the window and returns candidates for res.
	Evaluate(res telemetry.Resource, in Input) ([]incident.Candidate, error)
}
