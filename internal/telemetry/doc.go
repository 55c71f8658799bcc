// Package telemetry defines the data model for cloud telemetry (metric series
// and audit events) and the Source interface the detection engine fetches
// through.
//
// Three sources are implemented: an AWS-backed source (aws.go) reading
// CloudWatch metric statistics and CloudTrail audit lookups, a scrape source
// (scrape.go) that polls Prometheus text-format endpoints and accumulates
// samples in memory, and a fixture source (fixture.go) that reads canned
// series/events from JSON files for demos and deterministic tests.
//
// Source errors are classified by kind (errors.go): transient failures are
// retried with truncated exponential backoff inside the source boundary,
// permission and not-found failures are reported to the caller unretried,
// and malformed payloads are flagged so the engine can record them without
// aborting a scan.
package telemetry
