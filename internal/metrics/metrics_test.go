package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cloudscout/cloudscout/internal/dispatch"
	"github.com/cloudscout/cloudscout/internal/incident"
)

// Collectors are process-global, so every assertion is on deltas.

func TestRecordScan(t *testing.T) {
	scansBefore := testutil.ToFloat64(ScansTotal)
	highBefore := testutil.ToFloat64(IncidentsTotal.WithLabelValues("compute-saturation", "high"))
	errsBefore := testutil.ToFloat64(DetectorErrors.WithLabelValues("usage-volume-spike"))

	res := &incident.ScanResult{
		StartedAt: time.Now(),
		Duration:  750 * time.Millisecond,
		Incidents: []incident.Incident{
			{Candidate: incident.Candidate{Family: incident.FamilySaturation, Severity: incident.SeverityHigh}},
			{Candidate: incident.Candidate{Family: incident.FamilySaturation, Severity: incident.SeverityHigh}},
		},
		Errors: []incident.DetectorError{
			{Family: incident.FamilyUsage, Resource: "titan-express", Message: "fetch token_count: throttled"},
		},
	}
	RecordScan(res)

	if got := testutil.ToFloat64(ScansTotal) - scansBefore; got != 1 {
		t.Errorf("scans delta = %v, want 1", got)
	}
	got := testutil.ToFloat64(IncidentsTotal.WithLabelValues("compute-saturation", "high")) - highBefore
	if got != 2 {
		t.Errorf("incident delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(DetectorErrors.WithLabelValues("usage-volume-spike")) - errsBefore; got != 1 {
		t.Errorf("detector error delta = %v, want 1", got)
	}
}

func TestRecordDispatch(t *testing.T) {
	sentBefore := testutil.ToFloat64(AlertsTotal.WithLabelValues("sent"))
	failedBefore := testutil.ToFloat64(AlertsTotal.WithLabelValues("failed"))
	gateBefore := testutil.ToFloat64(AlertsTotal.WithLabelValues("suppressed_gate"))
	coolBefore := testutil.ToFloat64(AlertsTotal.WithLabelValues("suppressed_cooldown"))

	RecordDispatch(dispatch.Report{
		Sent:   []string{"inc-a1b2c3", "inc-d4e5f6"},
		Failed: []string{"inc-778899"},
		Suppressed: []dispatch.Suppression{
			{IncidentID: "inc-0a0b0c", Reason: "gate"},
			{IncidentID: "inc-0d0e0f", Reason: "cooldown"},
			{IncidentID: "inc-101112", Reason: "cooldown"},
		},
	})

	if got := testutil.ToFloat64(AlertsTotal.WithLabelValues("sent")) - sentBefore; got != 2 {
		t.Errorf("sent delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(AlertsTotal.WithLabelValues("failed")) - failedBefore; got != 1 {
		t.Errorf("failed delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(AlertsTotal.WithLabelValues("suppressed_gate")) - gateBefore; got != 1 {
		t.Errorf("gate delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(AlertsTotal.WithLabelValues("suppressed_cooldown")) - coolBefore; got != 2 {
		t.Errorf("cooldown delta = %v, want 2", got)
	}
}

func TestObserveScheduler(t *testing.T) {
	skipped := 3.0
	g := ObserveScheduler(func() float64 { return skipped })

	if got := testutil.ToFloat64(g); got != 3 {
		t.Errorf("gauge = %v, want 3", got)
	}
	skipped = 5
	if got := testutil.ToFloat64(g); got != 5 {
		t.Errorf("gauge after bump = %v, want 5", got)
	}
}
