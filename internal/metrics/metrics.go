// Package metrics exposes the process's Prometheus instrumentation. All
// collectors register against the default registry so promhttp.Handler
// serves them without extra wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cloudscout/cloudscout/internal/dispatch"
	"github.com/cloudscout/cloudscout/internal/incident"
)

var (
	ScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudscout_scans_total",
		Help: "Completed scan cycles",
	})

	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cloudscout_scan_duration_seconds",
		Help:    "Wall-clock duration of scan cycles",
		Buckets: prometheus.DefBuckets,
	})

	IncidentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudscout_incidents_total",
			Help: "Incidents surfaced by scans",
		},
		[]string{"family", "severity"},
	)

	DetectorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudscout_detector_errors_total",
			Help: "Detector evaluations recorded as failed",
		},
		[]string{"family"},
	)

	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudscout_alerts_total",
			Help: "Alert dispatch outcomes",
		},
		[]string{"outcome"},
	)
)

// RecordScan updates the scan counters from one completed result.
func RecordScan(res *incident.ScanResult) {
	ScansTotal.Inc()
	ScanDuration.Observe(res.Duration.Seconds())
	for _, inc := range res.Incidents {
		IncidentsTotal.WithLabelValues(string(inc.Family), string(inc.Severity)).Inc()
	}
	for _, derr := range res.Errors {
		DetectorErrors.WithLabelValues(string(derr.Family)).Inc()
	}
}

// RecordDispatch updates alert counters from a dispatch report. Suppressions
// keep their reason in the outcome label ("suppressed_gate",
// "suppressed_cooldown").
func RecordDispatch(rep dispatch.Report) {
	if n := len(rep.Sent); n > 0 {
		AlertsTotal.WithLabelValues("sent").Add(float64(n))
	}
	if n := len(rep.Failed); n > 0 {
		AlertsTotal.WithLabelValues("failed").Add(float64(n))
	}
	for _, sup := range rep.Suppressed {
		AlertsTotal.WithLabelValues("suppressed_" + sup.Reason).Inc()
	}
}

// ObserveScheduler registers a gauge that reads the scheduler's skipped-tick
// count through fn. Call it once at startup.
func ObserveScheduler(fn func() float64) prometheus.GaugeFunc {
	return promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cloudscout_scheduler_skipped_ticks",
		Help: "Scan ticks skipped because a scan was still running",
	}, fn)
}
