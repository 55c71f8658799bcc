// Package ledger holds the process-wide dedupe/cooldown state for alert
// dispatch: fingerprint to last-alerted time, plus an in-flight claim bit
// so two overlapping dispatches of the same fingerprint cannot both decide
// to alert. Entries are capacity-bounded by an LRU cache and age-evicted
// past retention.
package ledger
