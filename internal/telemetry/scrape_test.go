package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// exposition payloads for two successive polls of the same endpoint. The
// counter families advance between polls; the gauge moves independently.
const expositionPoll1 = `
# TYPE node_cpu_utilization_percent gauge
node_cpu_utilization_percent 88.5

# TYPE function_errors_total counter
function_errors_total{code="500"} 40
function_errors_total{code="502"} 10

# TYPE model_tokens_consumed_total counter
model_tokens_consumed_total 100000
`

const expositionPoll2 = `
# TYPE node_cpu_utilization_percent gauge
node_cpu_utilization_percent 97.25

# TYPE function_errors_total counter
function_errors_total{code="500"} 43
function_errors_total{code="502"} 13

# TYPE model_tokens_consumed_total counter
model_tokens_consumed_total 99500
`

func newExpositionServer(t *testing.T, payloads ...string) *httptest.Server {
	t.Helper()
	var n atomic.Int64
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		i := n.Add(1) - 1
		if i >= int64(len(payloads)) {
			i = int64(len(payloads)) - 1
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(payloads[i]))
	}))
}

func newTestScrapeSource(t *testing.T, endpoint string, res Resource) *ScrapeSource {
	t.Helper()
	src, err := NewScrapeSource([]ScrapeTarget{{Resource: res, Endpoint: endpoint}}, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewScrapeSource: %v", err)
	}
	return src
}

// --- Accumulation behaviour ---

func TestScrapeSource_GaugeSampledAsObserved(t *testing.T) {
	srv := newExpositionServer(t, expositionPoll1, expositionPoll2)
	defer srv.Close()

	res := Resource{ID: "node-1", Kind: KindInstance}
	src := newTestScrapeSource(t, srv.URL, res)

	now := baseTime
	src.now = func() time.Time { return now }

	if err := src.poll(context.Background(), src.targets[0]); err != nil {
		t.Fatalf("poll 1: %v", err)
	}
	now = tick(1)
	if err := src.poll(context.Background(), src.targets[0]); err != nil {
		t.Fatalf("poll 2: %v", err)
	}

	win := Window{Start: tick(-1), End: tick(2)}
	s, err := src.Series(context.Background(), res, MetricCPUUtilization, win, 5*time.Minute)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(s.Points) != 2 {
		t.Fatalf("gauge points = %d, want 2", len(s.Points))
	}
	if s.Points[0].Value != 88.5 || s.Points[1].Value != 97.25 {
		t.Errorf("gauge values = %v, %v, want 88.5, 97.25", s.Points[0].Value, s.Points[1].Value)
	}
	// The period reported is the poll interval, not the requested period.
	if s.Period != time.Minute {
		t.Errorf("period = %v, want poll interval 1m", s.Period)
	}
}

func TestScrapeSource_CounterBaselineThenDelta(t *testing.T) {
	srv := newExpositionServer(t, expositionPoll1, expositionPoll2)
	defer srv.Close()

	res := Resource{ID: "fn-1", Kind: KindFunction}
	src := newTestScrapeSource(t, srv.URL, res)

	now := baseTime
	src.now = func() time.Time { return now }

	if err := src.poll(context.Background(), src.targets[0]); err != nil {
		t.Fatalf("poll 1: %v", err)
	}
	now = tick(1)
	if err := src.poll(context.Background(), src.targets[0]); err != nil {
		t.Fatalf("poll 2: %v", err)
	}

	win := Window{Start: tick(-1), End: tick(2)}
	s, err := src.Series(context.Background(), res, MetricErrorCount, win, time.Minute)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	// Poll 1 only establishes the baseline (50 across label sets); poll 2
	// records the increment 56-50 = 6.
	if len(s.Points) != 1 {
		t.Fatalf("counter points = %d, want 1", len(s.Points))
	}
	if s.Points[0].Value != 6 {
		t.Errorf("counter delta = %v, want 6", s.Points[0].Value)
	}
}

func TestScrapeSource_CounterResetRecordsZero(t *testing.T) {
	srv := newExpositionServer(t, expositionPoll1, expositionPoll2)
	defer srv.Close()

	res := Resource{ID: "model-1", Kind: KindModel}
	src := newTestScrapeSource(t, srv.URL, res)

	now := baseTime
	src.now = func() time.Time { return now }

	_ = src.poll(context.Background(), src.targets[0]) // baseline 100000
	now = tick(1)
	_ = src.poll(context.Background(), src.targets[0]) // total dropped to 99500

	win := Window{Start: tick(-1), End: tick(2)}
	s, err := src.Series(context.Background(), res, MetricTokenCount, win, time.Minute)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(s.Points) != 1 || s.Points[0].Value != 0 {
		t.Errorf("points after reset = %+v, want one zero-valued sample", s.Points)
	}
}

// --- Windowing and retention ---

func TestScrapeSource_SeriesFiltersWindow(t *testing.T) {
	srv := newExpositionServer(t, expositionPoll1)
	defer srv.Close()

	res := Resource{ID: "node-1", Kind: KindInstance}
	src := newTestScrapeSource(t, srv.URL, res)

	now := baseTime
	src.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		now = tick(i)
		if err := src.poll(context.Background(), src.targets[0]); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
	}

	// Only the sample at tick(1) falls inside [1m, 2m).
	win := Window{Start: tick(1), End: tick(2)}
	s, err := src.Series(context.Background(), res, MetricCPUUtilization, win, time.Minute)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(s.Points) != 1 {
		t.Fatalf("points = %d, want 1", len(s.Points))
	}
	if !s.Points[0].Time.Equal(tick(1)) {
		t.Errorf("point time = %v, want %v", s.Points[0].Time, tick(1))
	}
}

func TestScrapeSource_PrunesBeyondRetention(t *testing.T) {
	srv := newExpositionServer(t, expositionPoll1)
	defer srv.Close()

	res := Resource{ID: "node-1", Kind: KindInstance}
	src, err := NewScrapeSource([]ScrapeTarget{{Resource: res, Endpoint: srv.URL}}, time.Minute, 10*time.Minute)
	if err != nil {
		t.Fatalf("NewScrapeSource: %v", err)
	}

	now := baseTime
	src.now = func() time.Time { return now }

	_ = src.poll(context.Background(), src.targets[0])
	now = tick(30) // first sample is now 30 minutes old, retention is 10
	_ = src.poll(context.Background(), src.targets[0])

	src.mu.Lock()
	pts := src.samples[sampleKey{resource: "node-1", metric: MetricCPUUtilization}]
	src.mu.Unlock()
	if len(pts) != 1 {
		t.Fatalf("retained points = %d, want 1", len(pts))
	}
	if !pts[0].Time.Equal(tick(30)) {
		t.Errorf("retained point time = %v, want %v", pts[0].Time, tick(30))
	}
}

// --- Failure behaviour ---

func TestScrapeSource_PollFailureLeavesGap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := Resource{ID: "node-1", Kind: KindInstance}
	src := newTestScrapeSource(t, srv.URL, res)
	src.now = func() time.Time { return baseTime }

	if err := src.poll(context.Background(), src.targets[0]); err == nil {
		t.Fatal("poll of failing endpoint should error")
	}

	// No samples recorded; Series still answers with an empty window.
	win := Window{Start: tick(-5), End: tick(5)}
	s, err := src.Series(context.Background(), res, MetricCPUUtilization, win, time.Minute)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if !s.Empty() {
		t.Errorf("series after failed poll = %d points, want empty", len(s.Points))
	}
}

func TestScrapeSource_EventsAlwaysEmpty(t *testing.T) {
	srv := newExpositionServer(t, expositionPoll1)
	defer srv.Close()

	res := Resource{ID: "node-1", Kind: KindInstance}
	src := newTestScrapeSource(t, srv.URL, res)

	events, err := src.Events(context.Background(), res, Lookback(baseTime, time.Hour))
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events = %d, want 0", len(events))
	}
}

func TestNewScrapeSource_RejectsUnknownAuthMode(t *testing.T) {
	_, err := NewScrapeSource([]ScrapeTarget{{
		Resource: Resource{ID: "x", Kind: KindInstance},
		Endpoint: "http://localhost:9100/metrics",
		Auth:     ScrapeAuth{Mode: "kerberos"},
	}}, time.Minute, time.Hour)
	if err == nil {
		t.Fatal("unknown auth mode should be rejected")
	}
}
