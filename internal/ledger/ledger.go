package ledger

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Defaults for the dedupe/cooldown ledger.
const (
	DefaultCooldown  = 15 * time.Minute
	DefaultRetention = 24 * time.Hour
	DefaultCapacity  = 1024
)

// entry is the per-fingerprint state. lastAlerted is zero until the first
// successful send; inFlight marks a dispatch between TryAcquire and
// MarkSent/Release.
type entry struct {
	lastAlerted time.Time
	inFlight    bool
}

// Ledger maps incident fingerprints to the last time they were alerted.
// A single mutex serializes all operations; write volume is a handful of
// fingerprints per scan cycle.
type Ledger struct {
	mu       sync.Mutex
	entries  *lru.Cache[string, *entry]
	cooldown time.Duration
}

// New builds a ledger. Zero cooldown or capacity take the defaults.
func New(cooldown time.Duration, capacity int) *Ledger {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, _ := lru.New[string, *entry](capacity)
	return &Ledger{entries: cache, cooldown: cooldown}
}

// TryAcquire reports whether the fingerprint is alert-worthy right now:
// never alerted, or alerted at least a cooldown ago. When it is, the
// fingerprint is claimed in-flight, so a concurrent TryAcquire for the same
// fingerprint returns false until MarkSent or Release. Check and claim are
// one atomic step.
func (l *Ledger) TryAcquire(fingerprint string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries.Get(fingerprint)
	if !ok {
		l.entries.Add(fingerprint, &entry{inFlight: true})
		return true
	}
	if e.inFlight {
		return false
	}
	if !e.lastAlerted.IsZero() && now.Sub(e.lastAlerted) < l.cooldown {
		return false
	}
	e.inFlight = true
	return true
}

// MarkSent records a successful alert for the fingerprint and clears its
// claim. The cooldown clock restarts at now.
func (l *Ledger) MarkSent(fingerprint string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries.Get(fingerprint)
	if !ok {
		e = &entry{}
		l.entries.Add(fingerprint, e)
	}
	e.lastAlerted = now
	e.inFlight = false
}

// Release clears the in-flight claim without recording an alert. Used when
// every transport failed: the incident stays eligible for the next cycle.
func (l *Ledger) Release(fingerprint string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries.Get(fingerprint); ok {
		e.inFlight = false
	}
}

// LastAlerted returns when the fingerprint last alerted. ok is false for
// fingerprints never recorded.
func (l *Ledger) LastAlerted(fingerprint string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries.Get(fingerprint)
	if !ok || e.lastAlerted.IsZero() {
		return time.Time{}, false
	}
	return e.lastAlerted, true
}

// Evict drops entries whose last alert is older than the retention. Entries
// still in flight are kept regardless of age. It returns how many entries
// were removed.
func (l *Ledger) Evict(now time.Time, retention time.Duration) int {
	if retention <= 0 {
		retention = DefaultRetention
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for _, fp := range l.entries.Keys() {
		e, ok := l.entries.Peek(fp)
		if !ok || e.inFlight {
			continue
		}
		if !e.lastAlerted.IsZero() && now.Sub(e.lastAlerted) > retention {
			l.entries.Remove(fp)
			removed++
		}
	}
	return removed
}

// Len reports how many fingerprints the ledger currently tracks.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries.Len()
}
