package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cloudscout/cloudscout/internal/incident"
	"github.com/cloudscout/cloudscout/internal/telemetry"
)

// Engine defaults.
const (
	DefaultLookback     = 60 * time.Minute
	DefaultPeriod       = 5 * time.Minute
	DefaultFetchTimeout = 30 * time.Second
	DefaultWorkers      = 8
)

// Collector captures the telemetry behind a candidate into an evidence
// bundle. Implementations degrade rather than fail: a bundle always comes
// back, marked incomplete when capture fell short.
type Collector interface {
	Collect(c incident.Candidate, now time.Time) *incident.EvidenceBundle
}

// Options tune a scan engine. Zero values take the defaults above.
type Options struct {
	Lookback     time.Duration    // telemetry window ending at scan start
	Period       time.Duration    // sampling period requested from the source
	FetchTimeout time.Duration    // ceiling per source call
	Workers      int              // concurrent resource×detector evaluations
	Now          func() time.Time // injectable clock
}

// Engine runs every applicable detector against every monitored resource
// and assembles the results of one scan cycle.
type Engine struct {
	source    telemetry.Source
	detectors []Detector
	collector Collector

	lookback     time.Duration
	period       time.Duration
	fetchTimeout time.Duration
	workers      int
	now          func() time.Time
}

// NewEngine wires an engine over the given source and detector set. The
// collector may be nil, in which case incidents surface without evidence.
func NewEngine(source telemetry.Source, detectors []Detector, collector Collector, opts Options) *Engine {
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		source:       source,
		detectors:    detectors,
		collector:    collector,
		lookback:     opts.Lookback,
		period:       opts.Period,
		fetchTimeout: opts.FetchTimeout,
		workers:      opts.Workers,
		now:          opts.Now,
	}
}

// Scan evaluates all resources against all applicable detectors over the
// lookback window ending now. It always returns a result: failures of
// individual resource×detector combinations are recorded in Errors, and a
// cancelled context stops scheduling new work while keeping whatever
// completed.
func (e *Engine) Scan(ctx context.Context, resources []telemetry.Resource) *incident.ScanResult {
	start := e.now()
	win := telemetry.Lookback(start, e.lookback)

	var (
		mu         sync.Mutex
		candidates []incident.Candidate
		scanErrs   []incident.DetectorError
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, res := range resources {
		for _, det := range e.detectors {
			if !det.AppliesTo(res) {
				continue
			}
			res, det := res, det
			g.Go(func() error {
				if gCtx.Err() != nil {
					return nil
				}
				cands, derr := e.evaluate(gCtx, res, det, win)
				mu.Lock()
				candidates = append(candidates, cands...)
				if derr != nil {
					scanErrs = append(scanErrs, *derr)
				}
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait() // failures land in scanErrs, never abort the scan

	// Sort before deduping so the result is identical however the pool
	// scheduled the work: within a fingerprint the highest-severity
	// candidate sorts first and is the one kept.
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.Family != b.Family {
			return a.Family < b.Family
		}
		if a.Resource.ID != b.Resource.ID {
			return a.Resource.ID < b.Resource.ID
		}
		return a.Title < b.Title
	})
	candidates = dedupe(candidates)
	sort.Slice(scanErrs, func(i, j int) bool {
		a, b := scanErrs[i], scanErrs[j]
		if a.Family != b.Family {
			return a.Family < b.Family
		}
		return a.Resource < b.Resource
	})

	incidents := make([]incident.Incident, 0, len(candidates))
	for _, c := range candidates {
		inc := incident.NewIncident(c)
		if e.collector != nil {
			inc.Evidence = e.collector.Collect(c, start)
		}
		incidents = append(incidents, inc)
	}

	return &incident.ScanResult{
		StartedAt: start,
		Duration:  e.now().Sub(start),
		Resources: resources,
		Incidents: incidents,
		Errors:    scanErrs,
	}
}

// evaluate prefetches what one detector declared and runs it against one
// resource. Any failure, from the source or from the detector itself, comes
// back as a DetectorError for that combination alone.
func (e *Engine) evaluate(ctx context.Context, res telemetry.Resource, det Detector, win telemetry.Window) ([]incident.Candidate, *incident.DetectorError) {
	in := Input{Window: win, Series: make(map[string]*telemetry.MetricSeries)}

	for _, metric := range det.Metrics() {
		series, err := e.fetchSeries(ctx, res, metric, win)
		if err != nil {
			return nil, e.recordErr(res, det, fmt.Sprintf("fetch %s", metric), err)
		}
		in.Series[metric] = series
	}
	if det.NeedsEvents() {
		events, err := e.fetchEvents(ctx, res, win)
		if err != nil {
			return nil, e.recordErr(res, det, "fetch events", err)
		}
		in.Events = events
	}

	cands, err := det.Evaluate(res, in)
	if err != nil {
		return nil, e.recordErr(res, det, "evaluate", err)
	}
	return cands, nil
}

func (e *Engine) fetchSeries(ctx context.Context, res telemetry.Resource, metric string, win telemetry.Window) (*telemetry.MetricSeries, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()
	return e.source.Series(fetchCtx, res, metric, win, e.period)
}

func (e *Engine) fetchEvents(ctx context.Context, res telemetry.Resource, win telemetry.Window) ([]telemetry.AuditEvent, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()
	return e.source.Events(fetchCtx, res, win)
}

func (e *Engine) recordErr(res telemetry.Resource, det Detector, op string, err error) *incident.DetectorError {
	slog.Warn("detector skipped",
		"family", string(det.Family()),
		"resource", res.ID,
		"op", op,
		"err", err)
	return &incident.DetectorError{
		Family:   det.Family(),
		Resource: res.ID,
		Kind:     string(telemetry.KindOf(err)),
		Message:  fmt.Sprintf("%s: %v", op, err),
	}
}

// dedupe collapses candidates sharing a fingerprint: same condition
// re-observed within one scan. Input must already be sorted, so keeping the
// first occurrence keeps the highest severity.
func dedupe(cands []incident.Candidate) []incident.Candidate {
	if len(cands) < 2 {
		return cands
	}
	seen := make(map[string]struct{}, len(cands))
	out := make([]incident.Candidate, 0, len(cands))
	for _, c := range cands {
		if _, ok := seen[c.Fingerprint]; ok {
			continue
		}
		seen[c.Fingerprint] = struct{}{}
		out = append(out, c)
	}
	return out
}
