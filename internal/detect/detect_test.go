package detect

import (
	"time"

	"github.com/cloudscout/cloudscout/internal/telemetry"
)

// baseTime is a fixed reference point so all test timings are deterministic.
var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// tick returns baseTime advanced by n minutes.
func tick(n int) time.Time {
	return baseTime.Add(time.Duration(n) * time.Minute)
}

// hourWindow is the telemetry window [baseTime, baseTime+60m) used by the
// detector tests.
func hourWindow() telemetry.Window {
	return telemetry.Window{Start: tick(0), End: tick(60)}
}

// minuteSeries builds a series with one sample per minute starting at
// baseTime.
func minuteSeries(res telemetry.Resource, metric string, values ...float64) *telemetry.MetricSeries {
	points := make([]telemetry.Point, len(values))
	for i, v := range values {
		points[i] = telemetry.Point{Time: tick(i), Value: v}
	}
	return &telemetry.MetricSeries{Resource: res.ID, Metric: metric, Points: points, Period: time.Minute}
}

var (
	testInstance = telemetry.Resource{ID: "i-0abc123", Kind: telemetry.KindInstance}
	testFunction = telemetry.Resource{ID: "checkout-fn", Kind: telemetry.KindFunction}
	testModel    = telemetry.Resource{ID: "titan-express", Kind: telemetry.KindModel}
	testBucket   = telemetry.Resource{ID: "invoice-archive", Kind: telemetry.KindBucket}
)

// repeat returns n copies of v, for building flat sample runs.
func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
