package detect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cloudscout/cloudscout/internal/incident"
	"github.com/cloudscout/cloudscout/internal/telemetry"
)

var denialRecommendations = []string{
	"Confirm whether the actor should have access; grant the missing permission if so",
	"If the access is unexpected, rotate the actor's credentials and audit its recent activity",
	"Tighten the bucket policy to stop probing from unauthorized principals",
}

// Denial flags storage resources with denied access attempts in the audit
// window. Denied events group per actor rather than per event, so a
// principal retrying a broken call does not flood the scan. Every denial is
// high severity: either a deployment is broken or someone is probing.
type Denial struct{}

// NewDenial builds the detector. It has no thresholds.
func NewDenial() *Denial { return &Denial{} }

func (d *Denial) Family() incident.Family { return incident.FamilyDenial }

func (d *Denial) AppliesTo(res telemetry.Resource) bool {
	return res.Kind == telemetry.KindBucket
}

func (d *Denial) Metrics() []string { return nil }

func (d *Denial) NeedsEvents() bool { return true }

// Evaluate groups denied events by actor and emits one candidate per
// (resource, actor) pair, however many times that actor was denied. Actors
// are sorted so repeated scans over the same window produce the same order.
func (d *Denial) Evaluate(res telemetry.Resource, in Input) ([]incident.Candidate, error) {
	byActor := make(map[string][]telemetry.AuditEvent)
	for _, ev := range in.Events {
		if ev.Outcome != telemetry.OutcomeDenied {
			continue
		}
		byActor[ev.Actor] = append(byActor[ev.Actor], ev)
	}
	if len(byActor) == 0 {
		return nil, nil
	}

	actors := make([]string, 0, len(byActor))
	for actor := range byActor {
		actors = append(actors, actor)
	}
	sort.Strings(actors)

	out := make([]incident.Candidate, 0, len(actors))
	for _, actor := range actors {
		events := byActor[actor]
		c := incident.NewCandidate(
			incident.FamilyDenial, res, incident.SeverityHigh,
			fmt.Sprintf("Access denied on %s for %s", res.ID, actor),
			fmt.Sprintf("%d denied attempt(s) by %s in the last %s: %s.",
				len(events), actor, in.Window.Span(), summarizeOps(events)),
		)
		c.Recommendations = denialRecommendations
		c.Events = events
		out = append(out, c)
	}
	return out, nil
}

// summarizeOps renders the denied operations with per-operation counts,
// e.g. "GetObject x3, PutObject x1".
func summarizeOps(events []telemetry.AuditEvent) string {
	counts := make(map[string]int)
	for _, ev := range events {
		counts[ev.Operation]++
	}
	ops := make([]string, 0, len(counts))
	for op := range counts {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	parts := make([]string, 0, len(ops))
	for _, op := range ops {
		parts = append(parts, fmt.Sprintf("%s x%d", op, counts[op]))
	}
	return strings.Join(parts, ", ")
}
