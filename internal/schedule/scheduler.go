package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudscout/cloudscout/internal/incident"
	"github.com/cloudscout/cloudscout/internal/telemetry"
)

// DefaultInterval is the continuous-mode cycle interval when none is configured.
const DefaultInterval = 5 * time.Minute

// ErrBusy is returned by RunOnce when another scan already holds the slot.
var ErrBusy = errors.New("scan already in progress")

// State is the scheduler's lifecycle phase.
type State string

const (
	StateIdle        State = "idle"
	StateScanning    State = "scanning"
	StateCoolingDown State = "cooling-down"
)

// Scanner runs one detection pass over an inventory snapshot. Scan always
// returns a result, even when every detector failed.
type Scanner interface {
	Scan(ctx context.Context, resources []telemetry.Resource) *incident.ScanResult
}

// Sink consumes a completed scan. Sinks run in registration order after every
// cycle; a failing sink is logged and the remaining sinks still run.
type Sink interface {
	Name() string
	Consume(ctx context.Context, res *incident.ScanResult) error
}

// NewSink wraps fn as a named Sink.
func NewSink(name string, fn func(ctx context.Context, res *incident.ScanResult) error) Sink {
	return sinkFunc{name: name, fn: fn}
}

type sinkFunc struct {
	name string
	fn   func(ctx context.Context, res *incident.ScanResult) error
}

func (s sinkFunc) Name() string { return s.name }
func (s sinkFunc) Consume(ctx context.Context, res *incident.ScanResult) error {
	return s.fn(ctx, res)
}

// InventoryFunc returns the resources for the next cycle. It is consulted at
// the start of every scan, so inventory edits land between scans, never
// mid-scan.
type InventoryFunc func() []telemetry.Resource

// Options tunes a Scheduler. The zero value is usable.
type Options struct {
	// Interval between continuous-mode cycles. Defaults to DefaultInterval.
	Interval time.Duration
	// Sinks observe every completed scan, in order.
	Sinks []Sink
}

// Scheduler serializes scan cycles: at most one scan is in flight whether it
// was started by the continuous loop or by RunOnce.
type Scheduler struct {
	scanner   Scanner
	inventory InventoryFunc
	sinks     []Sink
	interval  time.Duration

	mu      sync.Mutex
	state   State
	skipped uint64
}

// New builds a Scheduler over scanner and inventory.
func New(scanner Scanner, inventory InventoryFunc, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if inventory == nil {
		inventory = func() []telemetry.Resource { return nil }
	}
	return &Scheduler{
		scanner:   scanner,
		inventory: inventory,
		sinks:     opts.Sinks,
		interval:  opts.Interval,
		state:     StateIdle,
	}
}

// State reports the current lifecycle phase.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Skipped reports how many ticks were dropped because a scan was still running.
func (s *Scheduler) Skipped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// RunOnce executes a single scan cycle and returns its result. Sinks see the
// result exactly as a continuous-mode cycle's. Returns ErrBusy when a scan is
// already in flight.
func (s *Scheduler) RunOnce(ctx context.Context) (*incident.ScanResult, error) {
	if !s.tryBegin() {
		return nil, ErrBusy
	}
	res := s.cycle(ctx)
	s.setState(StateIdle)
	return res, nil
}

// Run executes scan cycles until ctx is cancelled: one immediately, then one
// per interval. A tick that arrives while a scan is still running is skipped,
// never queued. Cancellation is observed at the CoolingDown to Idle
// transition; an in-progress scan always completes, bounded by its fetch
// timeouts.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if !s.runCycle(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			if !s.runCycle(ctx) {
				return
			}
			// A cycle that overran the interval leaves a tick queued.
			// Dropping it keeps scans sequential, not back to back.
			select {
			case <-ticker.C:
				s.noteSkip("scan overran interval")
			default:
			}
		}
	}
}

// runCycle drives one continuous-mode cycle through Scanning and CoolingDown.
// It reports false once cancellation has been observed.
func (s *Scheduler) runCycle(ctx context.Context) bool {
	if !s.tryBegin() {
		s.noteSkip("scan already in progress")
		return true
	}
	s.cycle(ctx)
	s.setState(StateCoolingDown)
	stopped := ctx.Err() != nil
	s.setState(StateIdle)
	if stopped {
		slog.Info("scheduler stopped")
	}
	return !stopped
}

func (s *Scheduler) cycle(ctx context.Context) *incident.ScanResult {
	res := s.scanner.Scan(ctx, s.inventory())
	for _, sink := range s.sinks {
		if err := sink.Consume(ctx, res); err != nil {
			slog.Error("scan sink failed", "sink", sink.Name(), "err", err)
		}
	}
	slog.Info("scan cycle complete",
		"resources", len(res.Resources),
		"incidents", len(res.Incidents),
		"errors", len(res.Errors),
		"duration", res.Duration,
	)
	return res
}

// tryBegin moves Idle to Scanning, failing when another scan holds the slot.
func (s *Scheduler) tryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return false
	}
	s.state = StateScanning
	return true
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Scheduler) noteSkip(reason string) {
	s.mu.Lock()
	s.skipped++
	total := s.skipped
	s.mu.Unlock()
	slog.Warn("scan tick skipped", "reason", reason, "skipped_total", total)
}
