package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudscout/cloudscout/internal/incident"
	"github.com/cloudscout/cloudscout/internal/ledger"
	"github.com/cloudscout/cloudscout/internal/telemetry"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeTransport records alerts and fails on demand.
type fakeTransport struct {
	name string
	fail bool
	sent []Alert
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Send(_ context.Context, a Alert) error {
	if f.fail {
		return errors.New("connection refused")
	}
	f.sent = append(f.sent, a)
	return nil
}

func saturationIncident(sev incident.Severity, resID string) incident.Incident {
	c := incident.NewCandidate(
		incident.FamilySaturation,
		telemetry.Resource{ID: resID, Kind: telemetry.KindInstance},
		sev,
		"CPU saturated on "+resID,
		"sustained saturation",
	)
	c.Recommendations = []string{"resize the instance"}
	return incident.NewIncident(c)
}

func resultWith(incs ...incident.Incident) *incident.ScanResult {
	return &incident.ScanResult{StartedAt: baseTime, Incidents: incs}
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// --- Severity gate ---

func TestDispatch_DefaultGatePassesHighAndCritical(t *testing.T) {
	tr := &fakeTransport{name: "wh"}
	d := New(nil, ledger.New(15*time.Minute, 0), []Transport{tr}, fixedNow(baseTime))

	res := resultWith(
		saturationIncident(incident.SeverityLow, "i-low"),
		saturationIncident(incident.SeverityMedium, "i-med"),
		saturationIncident(incident.SeverityHigh, "i-high"),
		saturationIncident(incident.SeverityCritical, "i-crit"),
	)
	report := d.Dispatch(context.Background(), res)

	assert.Len(t, report.Sent, 2)
	assert.Len(t, tr.sent, 2)
	require.Len(t, report.Suppressed, 2)
	for _, s := range report.Suppressed {
		assert.Equal(t, "gate", s.Reason)
	}
	assert.Empty(t, report.Failed)
}

func TestDispatch_CustomGateAdmitsMedium(t *testing.T) {
	tr := &fakeTransport{name: "wh"}
	gate := []incident.Severity{incident.SeverityMedium, incident.SeverityHigh, incident.SeverityCritical}
	d := New(gate, ledger.New(15*time.Minute, 0), []Transport{tr}, fixedNow(baseTime))

	report := d.Dispatch(context.Background(), resultWith(saturationIncident(incident.SeverityMedium, "i-med")))

	assert.Len(t, report.Sent, 1)
	assert.Empty(t, report.Suppressed)
}

// --- Cooldown ---

func TestDispatch_RepeatWithinCooldownSuppressed(t *testing.T) {
	tr := &fakeTransport{name: "wh"}
	led := ledger.New(15*time.Minute, 0)
	d := New(nil, led, []Transport{tr}, fixedNow(baseTime))

	inc := saturationIncident(incident.SeverityHigh, "i-0abc")
	first := d.Dispatch(context.Background(), resultWith(inc))
	require.Len(t, first.Sent, 1)

	// Next cycle observes the same condition: same fingerprint.
	again := saturationIncident(incident.SeverityHigh, "i-0abc")
	second := d.Dispatch(context.Background(), resultWith(again))

	assert.Empty(t, second.Sent)
	require.Len(t, second.Suppressed, 1)
	assert.Equal(t, "cooldown", second.Suppressed[0].Reason)
	assert.Len(t, tr.sent, 1, "transport must see the alert once")
}

func TestDispatch_ReAlertsAfterCooldownElapses(t *testing.T) {
	tr := &fakeTransport{name: "wh"}
	led := ledger.New(15*time.Minute, 0)

	first := New(nil, led, []Transport{tr}, fixedNow(baseTime))
	require.Len(t, first.Dispatch(context.Background(), resultWith(saturationIncident(incident.SeverityHigh, "i-0abc"))).Sent, 1)

	later := New(nil, led, []Transport{tr}, fixedNow(baseTime.Add(15*time.Minute)))
	report := later.Dispatch(context.Background(), resultWith(saturationIncident(incident.SeverityHigh, "i-0abc")))

	assert.Len(t, report.Sent, 1, "persisting condition must re-alert after the cooldown")
	assert.Len(t, tr.sent, 2)
}

// --- Transport failure ---

func TestDispatch_TransportFailureLeavesEligible(t *testing.T) {
	tr := &fakeTransport{name: "wh", fail: true}
	led := ledger.New(15*time.Minute, 0)
	d := New(nil, led, []Transport{tr}, fixedNow(baseTime))

	inc := saturationIncident(incident.SeverityHigh, "i-0abc")
	report := d.Dispatch(context.Background(), resultWith(inc))

	require.Len(t, report.Failed, 1)
	assert.Empty(t, report.Sent)
	_, recorded := led.LastAlerted(inc.Fingerprint)
	assert.False(t, recorded, "failed delivery must not start the cooldown")

	// The transport recovers; the next cycle delivers.
	tr.fail = false
	retry := d.Dispatch(context.Background(), resultWith(saturationIncident(incident.SeverityHigh, "i-0abc")))
	assert.Len(t, retry.Sent, 1)
}

func TestDispatch_AnyTransportFailingFailsTheIncident(t *testing.T) {
	healthy := &fakeTransport{name: "wh"}
	broken := &fakeTransport{name: "nats", fail: true}
	led := ledger.New(15*time.Minute, 0)
	d := New(nil, led, []Transport{healthy, broken}, fixedNow(baseTime))

	inc := saturationIncident(incident.SeverityHigh, "i-0abc")
	report := d.Dispatch(context.Background(), resultWith(inc))

	require.Len(t, report.Failed, 1)
	assert.Empty(t, report.Sent)
	// Every transport is still attempted.
	assert.Len(t, healthy.sent, 1)
	_, recorded := led.LastAlerted(inc.Fingerprint)
	assert.False(t, recorded)
}

func TestDispatch_OneFailureDoesNotAffectOthers(t *testing.T) {
	tr := &fakeTransport{name: "wh"}
	led := ledger.New(15*time.Minute, 0)
	d := New(nil, led, []Transport{tr}, fixedNow(baseTime))

	// Claim one fingerprint up front so its dispatch is refused, while the
	// other incident flows through.
	blocked := saturationIncident(incident.SeverityHigh, "i-blocked")
	require.True(t, led.TryAcquire(blocked.Fingerprint, baseTime))

	open := saturationIncident(incident.SeverityCritical, "i-open")
	report := d.Dispatch(context.Background(), resultWith(blocked, open))

	assert.Equal(t, []string{open.ID}, report.Sent)
	require.Len(t, report.Suppressed, 1)
	assert.Equal(t, blocked.ID, report.Suppressed[0].IncidentID)
}

// --- Payload ---

func TestDispatch_AlertCarriesIncidentFields(t *testing.T) {
	tr := &fakeTransport{name: "wh"}
	d := New(nil, ledger.New(15*time.Minute, 0), []Transport{tr}, fixedNow(baseTime))

	inc := saturationIncident(incident.SeverityHigh, "i-0abc")
	d.Dispatch(context.Background(), resultWith(inc))

	require.Len(t, tr.sent, 1)
	a := tr.sent[0]
	assert.Equal(t, inc.ID, a.ID)
	assert.Equal(t, inc.Fingerprint, a.Fingerprint)
	assert.Equal(t, string(incident.FamilySaturation), a.Family)
	assert.Equal(t, "high", a.Severity)
	assert.Equal(t, "i-0abc", a.Resource)
	assert.Equal(t, inc.Title, a.Title)
	assert.Equal(t, inc.Recommendations, a.Recommendations)
	assert.True(t, a.FiredAt.Equal(baseTime))
}

func TestDispatch_NoTransportsStillRecords(t *testing.T) {
	led := ledger.New(15*time.Minute, 0)
	d := New(nil, led, nil, fixedNow(baseTime))

	inc := saturationIncident(incident.SeverityHigh, "i-0abc")
	report := d.Dispatch(context.Background(), resultWith(inc))

	assert.Len(t, report.Sent, 1)
	_, recorded := led.LastAlerted(inc.Fingerprint)
	assert.True(t, recorded)
}
