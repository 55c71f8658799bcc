// Package schedule drives the scan lifecycle. A Scheduler runs either a
// single scan on demand or a continuous Idle, Scanning, CoolingDown loop
// with at most one scan in flight; completed results flow to an ordered
// set of sinks (dispatch, history, broadcast, archival).
package schedule
