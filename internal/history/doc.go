// Package history keeps recent scan results in memory for the API, the
// WebSocket hub, and the CLI. Results age out past a TTL and the store is
// capped by count, so a long-running watch never grows without bound.
package history
