package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudscout/cloudscout/internal/incident"
)

// Defaults for the scan-result store.
const (
	DefaultMaxResults = 100
	DefaultTTL        = 24 * time.Hour
)

// Store is a thread-safe in-memory record of recent scan results, oldest
// first. A background goroutine (Run) periodically evicts results older
// than the TTL; Add evicts by count.
type Store struct {
	mu      sync.RWMutex
	results []*incident.ScanResult
	max     int
	ttl     time.Duration
	now     func() time.Time // injectable for deterministic tests
}

// New creates a Store. Zero max or ttl take the defaults.
func New(max int, ttl time.Duration) *Store {
	if max <= 0 {
		max = DefaultMaxResults
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{max: max, ttl: ttl, now: time.Now}
}

// Add appends a completed scan result. Callers must not modify res after
// calling Add. The oldest results fall off when the cap is exceeded.
func (s *Store) Add(res *incident.ScanResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	if len(s.results) > s.max {
		s.results = s.results[len(s.results)-s.max:]
	}
}

// Latest returns the most recent scan result.
func (s *Store) Latest() (*incident.ScanResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.results) == 0 {
		return nil, false
	}
	return s.results[len(s.results)-1], true
}

// List returns the stored results newest first, excluding any older than
// the TTL that have not yet been evicted.
func (s *Store) List() []*incident.ScanResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]*incident.ScanResult, 0, len(s.results))
	for i := len(s.results) - 1; i >= 0; i-- {
		if s.results[i].StartedAt.After(cutoff) {
			out = append(out, s.results[i])
		}
	}
	return out
}

// Incident looks up a fingerprint across stored results, newest first.
func (s *Store) Incident(fingerprint string) (*incident.Incident, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.results) - 1; i >= 0; i-- {
		if inc, ok := s.results[i].Incident(fingerprint); ok {
			return inc, true
		}
	}
	return nil, false
}

// Count returns how many results are currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Evict removes results whose scan started before now minus the TTL. It
// returns the number removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	keep := s.results[:0]
	for _, r := range s.results {
		if r.StartedAt.After(cutoff) {
			keep = append(keep, r)
		}
	}
	removed := len(s.results) - len(keep)
	s.results = keep
	return removed
}

// Run starts the background TTL eviction loop, ticking at half the TTL
// (minimum 1 second). It blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("history: evicted stale scan results", "count", n)
			}
		}
	}
}
