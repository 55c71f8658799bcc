// Package api implements the HTTP REST surface for cloudscout.
//
// New(history, scheduler) returns an http.Handler that serves:
//
//	GET  /api/v1/status                   scheduler state, last scan summary
//	POST /api/v1/scan                     trigger a single-shot scan, return its result
//	GET  /api/v1/incidents                incidents from the most recent scan
//	GET  /api/v1/incidents/{fingerprint}  incident detail with its evidence manifest
//	GET  /api/v1/results                  recent scan results, newest first
//	GET  /api/v1/diagnostics              plain-English operator hints
//
// All endpoints respond with Content-Type: application/json and return 405
// for unexpected methods. RequireKey wraps the handler with X-API-Key
// authentication; an empty key passes everything through. JSON types are
// defined in types.go. No external HTTP framework is used.
package api
