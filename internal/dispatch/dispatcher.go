package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/cloudscout/cloudscout/internal/incident"
	"github.com/cloudscout/cloudscout/internal/ledger"
)

// Transport delivers one alert to an external system. Send failures are
// the transport's to describe and the dispatcher's to handle; they never
// propagate past it.
type Transport interface {
	Name() string
	Send(ctx context.Context, a Alert) error
}

// Suppression names an incident held back and why: "gate" for severity
// below the alert set, "cooldown" for a fingerprint inside its cooldown or
// already being dispatched.
type Suppression struct {
	IncidentID string `json:"incident_id"`
	Reason     string `json:"reason"`
}

// Report summarizes one dispatch pass over a scan result.
type Report struct {
	Sent       []string      `json:"sent,omitempty"`
	Suppressed []Suppression `json:"suppressed,omitempty"`
	Failed     []string      `json:"failed,omitempty"`
}

// Dispatcher gates surfaced incidents by severity and cooldown and fans
// qualifying alerts out to every configured transport.
type Dispatcher struct {
	gate       map[incident.Severity]bool
	ledger     *ledger.Ledger
	transports []Transport
	now        func() time.Time
}

// New builds a dispatcher. An empty gate defaults to {high, critical}; a
// nil clock uses time.Now.
func New(gate []incident.Severity, led *ledger.Ledger, transports []Transport, now func() time.Time) *Dispatcher {
	if len(gate) == 0 {
		gate = []incident.Severity{incident.SeverityHigh, incident.SeverityCritical}
	}
	if now == nil {
		now = time.Now
	}
	gateSet := make(map[incident.Severity]bool, len(gate))
	for _, s := range gate {
		gateSet[s] = true
	}
	return &Dispatcher{gate: gateSet, ledger: led, transports: transports, now: now}
}

// Dispatch walks the scan result's incidents in order. Each one passes the
// severity gate, then atomically claims its fingerprint in the ledger. A
// claimed incident is sent to all transports: all succeeding records the
// alert, any failing releases the claim so the incident stays eligible next
// cycle. One incident's failure never affects the others. With no
// transports configured a claimed incident is recorded as sent.
func (d *Dispatcher) Dispatch(ctx context.Context, res *incident.ScanResult) Report {
	var report Report
	now := d.now()

	for i := range res.Incidents {
		inc := res.Incidents[i]

		if !d.gate[inc.Severity] {
			report.Suppressed = append(report.Suppressed, Suppression{IncidentID: inc.ID, Reason: "gate"})
			continue
		}
		if !d.ledger.TryAcquire(inc.Fingerprint, now) {
			report.Suppressed = append(report.Suppressed, Suppression{IncidentID: inc.ID, Reason: "cooldown"})
			slog.Debug("alert suppressed by cooldown", "incident", inc.ID, "fingerprint", inc.Fingerprint)
			continue
		}

		alert := buildAlert(inc, now)
		failed := false
		for _, tr := range d.transports {
			if err := tr.Send(ctx, alert); err != nil {
				slog.Error("alert delivery failed",
					"transport", tr.Name(),
					"incident", inc.ID,
					"resource", alert.Resource,
					"err", err)
				failed = true
			}
		}

		if failed {
			d.ledger.Release(inc.Fingerprint)
			report.Failed = append(report.Failed, inc.ID)
			continue
		}
		d.ledger.MarkSent(inc.Fingerprint, now)
		report.Sent = append(report.Sent, inc.ID)
		slog.Info("alert dispatched",
			"incident", inc.ID,
			"severity", string(inc.Severity),
			"resource", inc.Resource.ID,
			"transports", len(d.transports))
	}
	return report
}
