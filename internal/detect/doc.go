// Package detect holds the four incident detectors and the engine that runs
// them across the monitored resource set.
//
// Each detector is a pure evaluation over a fetched telemetry window:
// saturation.go (contiguous CPU runs at or above a threshold), errorrate.go
// (in-window error sums with timeout escalation), usage.go (token volume
// against a cost threshold), denial.go (denied audit operations grouped per
// actor). Detectors never fetch; the engine prefetches what Metrics() and
// NeedsEvents() declare and hands the slices over.
//
// engine.go orchestrates resource × detector pairs under a bounded worker
// pool. A combination that fails (fetch error, malformed payload, detector
// fault) is recorded on the ScanResult and never aborts the others.
package detect
