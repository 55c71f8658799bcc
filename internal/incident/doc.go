// Package incident defines the core output model of a scan: candidates
// produced by detectors, surfaced incidents with evidence bundles, and the
// per-cycle ScanResult.
//
// Identity is by fingerprint, not by object: hash(family, resource, coarse
// severity band), computed by Fingerprint(). Two candidates with the same
// fingerprint are the same underlying condition re-observed, which is what
// the dedupe/cooldown ledger keys on. The coarse band (warn vs page) keeps
// the fingerprint stable when a condition wobbles between adjacent
// severities on the same side of the alerting gate.
package incident
