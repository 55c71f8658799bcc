package telemetry

import (
	"context"
	"time"
)

// Canonical metric names requested by detectors. Each Source maps these to
// its provider-specific counterparts (CloudWatch metric names, scrape-target
// metric families, fixture file keys).
const (
	// CPU utilization of a compute instance, percent 0–100.
	MetricCPUUtilization = "cpu_utilization"

	// Invocation error count for a function resource.
	MetricErrorCount = "error_count"

	// Invocation duration for a function resource, milliseconds.
	MetricDurationMS = "duration_ms"

	// Tokens consumed by a model resource.
	MetricTokenCount = "token_count"

	// Invocation count for a model resource.
	MetricInvocations = "invocations"
)

// ResourceKind identifies the class of cloud resource a telemetry query
// targets. The kind decides which detectors apply and how a Source maps
// canonical metric names.
type ResourceKind string

const (
	KindInstance ResourceKind = "instance" // compute instance (CPU telemetry)
	KindFunction ResourceKind = "function" // serverless function (errors, duration)
	KindModel    ResourceKind = "model"    // managed model endpoint (token usage)
	KindBucket   ResourceKind = "bucket"   // object storage (audit events)
)

// Resource is a monitored cloud resource.
type Resource struct {
	ID   string       `json:"id" yaml:"id"`
	Kind ResourceKind `json:"kind" yaml:"kind"`
}

// Window is a half-open time range [Start, End) over which telemetry is
// requested.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Span returns the wall-clock length of the window.
func (w Window) Span() time.Duration { return w.End.Sub(w.Start) }

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Lookback builds a window ending at now and reaching back d.
func Lookback(now time.Time, d time.Duration) Window {
	return Window{Start: now.Add(-d), End: now}
}

// Point is a single sample in a metric series.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// MetricSeries is an ordered sequence of samples for one metric on one
// resource, covering a fixed lookback window at a fixed sampling period.
// A series is immutable once retrieved; the detector that requested it owns
// it for the duration of one evaluation.
type MetricSeries struct {
	Resource string        `json:"resource"`
	Metric   string        `json:"metric"`
	Points   []Point       `json:"points"`
	Period   time.Duration `json:"period"`
}

// Empty reports whether the series carries no samples.
func (s *MetricSeries) Empty() bool { return s == nil || len(s.Points) == 0 }

// Sum returns the total of all sample values. 0 for an empty series.
func (s *MetricSeries) Sum() float64 {
	if s == nil {
		return 0
	}
	var total float64
	for _, p := range s.Points {
		total += p.Value
	}
	return total
}

// PointsIn returns the samples falling inside [from, to), preserving order.
func (s *MetricSeries) PointsIn(from, to time.Time) []Point {
	if s == nil {
		return nil
	}
	var out []Point
	for _, p := range s.Points {
		if !p.Time.Before(from) && p.Time.Before(to) {
			out = append(out, p)
		}
	}
	return out
}

// Max returns the largest sample value. ok is false for an empty series.
func (s *MetricSeries) Max() (v float64, ok bool) {
	if s.Empty() {
		return 0, false
	}
	v = s.Points[0].Value
	for _, p := range s.Points[1:] {
		if p.Value > v {
			v = p.Value
		}
	}
	return v, true
}

// Outcome is the result of an audited operation.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
)

// AuditEvent is one record from the cloud audit trail. EventID references
// the raw provider payload so operators can look up the full record.
type AuditEvent struct {
	Time      time.Time `json:"time"`
	Actor     string    `json:"actor"`
	Resource  string    `json:"resource"`
	Operation string    `json:"operation"`
	Outcome   Outcome   `json:"outcome"`
	EventID   string    `json:"event_id"`
}

// Source supplies telemetry for a requested resource and window.
//
// Implementations classify failures via *SourceError so the engine can tell
// a permission problem from a transient one. Transient failures are retried
// with backoff inside the source; the engine never sees them unless retries
// exhaust. Both methods honor ctx cancellation and deadlines.
type Source interface {
	// Series returns the samples for one canonical metric on one resource
	// across the window, at the given sampling period. A successful call
	// with no data in-window returns a series with zero points, not an
	// error.
	Series(ctx context.Context, res Resource, metric string, win Window, period time.Duration) (*MetricSeries, error)

	// Events returns the audit events touching the resource inside the
	// window, oldest first. Sources without an audit trail return an empty
	// slice.
	Events(ctx context.Context, res Resource, win Window) ([]AuditEvent, error)
}
