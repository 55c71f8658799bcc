// Package evidence captures the telemetry that justified each surfaced
// incident.
//
// collector.go serializes the exact series and event slices a detector
// evaluated into an EvidenceBundle, degrading per artifact (oversize,
// unserializable) instead of dropping the incident. archive.go persists
// bundles under an evidence directory, optionally packs each one as a
// tar.gz, and sweeps trees older than the configured retention.
package evidence
