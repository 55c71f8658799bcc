package telemetry

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a Source failure so the engine can decide between
// retrying, skipping, or surfacing a configuration problem.
type ErrorKind string

const (
	// ErrorTransient covers throttling, timeouts, and connectivity loss.
	// Retried with backoff inside the source; visible only when retries
	// exhaust.
	ErrorTransient ErrorKind = "transient"

	// ErrorPermission means the credentials in use cannot read this
	// telemetry. Recorded and skipped, never retried.
	ErrorPermission ErrorKind = "permission-denied"

	// ErrorNotFound means the resource or metric does not exist at the
	// provider.
	ErrorNotFound ErrorKind = "not-found"

	// ErrorMalformed means the provider responded with a payload the
	// source could not interpret.
	ErrorMalformed ErrorKind = "malformed-data"
)

// SourceError wraps a provider failure with its classification, the
// operation that failed, and the resource it targeted.
type SourceError struct {
	Kind     ErrorKind
	Op       string // provider operation, e.g. "cloudwatch.GetMetricStatistics"
	Resource string
	Err      error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Kind, e.Resource)
	}
	return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Resource, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// KindOf returns the classification of err, or "" when err is not a
// *SourceError.
func KindOf(err error) ErrorKind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsTransient reports whether err is a source failure worth retrying.
func IsTransient(err error) bool { return KindOf(err) == ErrorTransient }

// IsPermission reports whether err is a credentials/configuration problem.
func IsPermission(err error) bool { return KindOf(err) == ErrorPermission }

// IsNotFound reports whether err indicates a missing resource or metric.
func IsNotFound(err error) bool { return KindOf(err) == ErrorNotFound }

// IsMalformed reports whether err indicates an uninterpretable payload.
func IsMalformed(err error) bool { return KindOf(err) == ErrorMalformed }
