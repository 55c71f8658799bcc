package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const defaultScrapeTimeout = 10 * time.Second

// defaultFamilies maps canonical metric names to the exposition family
// scraped when a target does not override the mapping.
var defaultFamilies = map[string]string{
	MetricCPUUtilization: "node_cpu_utilization_percent",
	MetricErrorCount:     "function_errors_total",
	MetricDurationMS:     "function_duration_milliseconds",
	MetricTokenCount:     "model_tokens_consumed_total",
	MetricInvocations:    "model_invocations_total",
}

// ScrapeTarget describes one Prometheus text-format endpoint to poll and the
// resource its samples belong to.
type ScrapeTarget struct {
	Resource Resource          `yaml:"resource"`
	Endpoint string            `yaml:"endpoint"`
	Metrics  map[string]string `yaml:"metrics"` // canonical name → family name; defaults applied per entry
	Auth     ScrapeAuth        `yaml:"auth"`
	TLS      ScrapeTLS         `yaml:"tls"`
}

// family resolves the exposition family name for a canonical metric.
func (t ScrapeTarget) family(metric string) string {
	if name, ok := t.Metrics[metric]; ok && name != "" {
		return name
	}
	return defaultFamilies[metric]
}

// ScrapeAuth configures request authentication for a scrape target.
// Secrets are named by environment variable, never stored inline.
type ScrapeAuth struct {
	Mode        string `yaml:"mode"` // "", "bearer", "basic", "apikey"
	Header      string `yaml:"header"`
	TokenEnv    string `yaml:"token_env"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Token resolves the bearer/API-key secret from the environment.
func (a ScrapeAuth) Token() string { return os.Getenv(a.TokenEnv) }

// Password resolves the basic-auth password from the environment.
func (a ScrapeAuth) Password() string { return os.Getenv(a.PasswordEnv) }

// ScrapeTLS configures TLS behaviour for a scrape target.
type ScrapeTLS struct {
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// ScrapeSource polls Prometheus text-format endpoints and accumulates
// samples in memory, serving metric queries from the accumulator. Counters
// are stored as per-poll increments (with a reset guard) so in-window sums
// are meaningful; gauges are stored as observed. There is no audit trail
// behind a scrape endpoint, so Events always returns an empty window.
//
// Run must be started for samples to accumulate; Series answers from
// whatever has been collected so far.
type ScrapeSource struct {
	targets  []ScrapeTarget
	clients  map[string]*http.Client // keyed by resource ID
	interval time.Duration
	keep     time.Duration

	mu      sync.Mutex
	samples map[sampleKey][]Point
	prev    map[sampleKey]float64 // last raw counter totals

	now func() time.Time // injectable for tests
}

type sampleKey struct {
	resource string
	metric   string
}

// NewScrapeSource builds a ScrapeSource polling each target every interval
// and retaining samples for keep. HTTP clients are built once per target and
// reused across polls.
func NewScrapeSource(targets []ScrapeTarget, interval, keep time.Duration) (*ScrapeSource, error) {
	s := &ScrapeSource{
		targets:  targets,
		clients:  make(map[string]*http.Client, len(targets)),
		interval: interval,
		keep:     keep,
		samples:  make(map[sampleKey][]Point),
		prev:     make(map[sampleKey]float64),
		now:      time.Now,
	}
	for _, t := range targets {
		client, err := buildScrapeClient(t)
		if err != nil {
			return nil, fmt.Errorf("scrape target %q: %w", t.Resource.ID, err)
		}
		s.clients[t.Resource.ID] = client
	}
	return s, nil
}

// Poll scrapes every target once, synchronously. Run does this on its own
// cadence; single-shot callers use Poll before querying. Counters need two
// polls before a delta exists, so one-off scans see gauge metrics only.
func (s *ScrapeSource) Poll(ctx context.Context) {
	s.pollAll(ctx)
}

// Run polls all targets once immediately, then on every interval tick, until
// ctx is cancelled.
func (s *ScrapeSource) Run(ctx context.Context) {
	s.pollAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollAll(ctx)
		}
	}
}

func (s *ScrapeSource) pollAll(ctx context.Context) {
	for _, t := range s.targets {
		if ctx.Err() != nil {
			return
		}
		if err := s.poll(ctx, t); err != nil {
			// A failed poll is a sample gap, not a scan failure. Detectors
			// treat missing samples as below threshold.
			slog.Warn("telemetry: scrape poll failed",
				"resource", t.Resource.ID, "endpoint", t.Endpoint, "err", err)
		}
	}
}

// poll fetches one target and folds its families into the accumulator.
func (s *ScrapeSource) poll(ctx context.Context, t ScrapeTarget) error {
	mfs, err := fetchFamilies(ctx, s.clients[t.Resource.ID], t.Endpoint)
	if err != nil {
		return err
	}

	at := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	for metric := range defaultFamilies {
		mf, ok := mfs[t.family(metric)]
		if !ok {
			continue
		}
		key := sampleKey{resource: t.Resource.ID, metric: metric}
		value := sumFamily(mf)

		if mf.GetType() == dto.MetricType_COUNTER {
			prev, seen := s.prev[key]
			s.prev[key] = value
			if !seen {
				// First observation establishes the baseline; there is no
				// delta to record yet.
				continue
			}
			value = deltaOf(value, prev)
		}

		s.samples[key] = append(s.samples[key], Point{Time: at, Value: value})
		s.samples[key] = prune(s.samples[key], at.Add(-s.keep))
	}
	return nil
}

// Series implements Source. The returned period is the poll interval, the
// rate samples actually accumulate at, regardless of the requested period.
func (s *ScrapeSource) Series(_ context.Context, res Resource, metric string, win Window, _ time.Duration) (*MetricSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	series := &MetricSeries{Resource: res.ID, Metric: metric, Period: s.interval}
	for _, p := range s.samples[sampleKey{resource: res.ID, metric: metric}] {
		if win.Contains(p.Time) {
			series.Points = append(series.Points, p)
		}
	}
	return series, nil
}

// Events implements Source. Scrape endpoints expose no audit trail.
func (s *ScrapeSource) Events(_ context.Context, _ Resource, _ Window) ([]AuditEvent, error) {
	return nil, nil
}

// prune drops points older than cutoff. Points are appended in time order,
// so the first retained index bounds the slice.
func prune(points []Point, cutoff time.Time) []Point {
	i := 0
	for i < len(points) && points[i].Time.Before(cutoff) {
		i++
	}
	if i == 0 {
		return points
	}
	return append(points[:0:0], points[i:]...)
}

// deltaOf returns the positive counter delta between current and previous.
// If current < previous (counter reset after restart), returns 0.
func deltaOf(current, previous float64) float64 {
	d := current - previous
	if d < 0 {
		return 0
	}
	return d
}

// scrapeRoundTripper injects authentication headers into every outgoing
// request.
type scrapeRoundTripper struct {
	base http.RoundTripper
	auth ScrapeAuth
}

func (t *scrapeRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Token())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildScrapeClient constructs an http.Client for the target's auth and TLS
// settings.
func buildScrapeClient(t ScrapeTarget) (*http.Client, error) {
	switch t.Auth.Mode {
	case "", "bearer", "basic", "apikey":
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", t.Auth.Mode)
	}
	tlsCfg := &tls.Config{
		InsecureSkipVerify: t.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	return &http.Client{
		Transport: &scrapeRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: t.Auth,
		},
		Timeout: defaultScrapeTimeout,
	}, nil
}

// fetchFamilies performs an HTTP GET to url and returns parsed metric
// families.
func fetchFamilies(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseFamilies(resp.Body)
}

// parseFamilies decodes a Prometheus text exposition from r into metric
// families. A partial result with a non-fatal parse warning is still
// returned successfully.
func parseFamilies(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	// Non-empty result with a non-nil err means partial parse (trailing
	// lines, format warnings). Treat as success.
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily,
// across label sets. Returns 0 if mf is nil.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}
