package api

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cloudscout/cloudscout/internal/incident"
	"github.com/cloudscout/cloudscout/internal/telemetry"
)

// DiagnosticHint is one human-readable insight about the deployment's
// health, written in plain English so an operator without cloud-telemetry
// background can act on it.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown in the dashboard.
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
}

// computeDiagnostics derives operator hints from the most recent scan.
// Hints are ordered: critical first, then warnings, then info.
func computeDiagnostics(res *incident.ScanResult) []DiagnosticHint {
	if res == nil {
		return []DiagnosticHint{{
			Key:   "warming_up",
			Level: "info",
			Title: "Warming up",
			Detail: "No scan has completed yet. The first results arrive after the " +
				"next scan cycle finishes; use POST /api/v1/scan to trigger one " +
				"immediately. No action needed.",
		}}
	}

	var hints []DiagnosticHint

	byKind := make(map[telemetry.ErrorKind][]incident.DetectorError)
	for _, derr := range res.Errors {
		byKind[telemetry.ErrorKind(derr.Kind)] = append(byKind[telemetry.ErrorKind(derr.Kind)], derr)
	}

	if denied := byKind[telemetry.ErrorPermission]; len(denied) > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "telemetry_access_denied",
			Level: "critical",
			Title: "Telemetry access denied",
			Detail: fmt.Sprintf(
				"The scan identity was refused telemetry for %s. This is a "+
					"configuration problem, not an outage: grant the identity read "+
					"access to the monitored resources (metrics and audit events). "+
					"Until then, the affected detectors are skipped every cycle and "+
					"incidents on those resources go unseen.",
				resourceList(denied)),
		})
	}

	if transient := byKind[telemetry.ErrorTransient]; len(transient) > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "telemetry_unreachable",
			Level: "warning",
			Title: "Telemetry fetches failing",
			Detail: fmt.Sprintf(
				"Fetches for %s failed even after retries, usually throttling or a "+
					"flaky endpoint. The scan carried on without that data. If this "+
					"persists across cycles, lower the scan frequency or raise the "+
					"provider's rate limits.",
				resourceList(transient)),
		})
	}

	if missing := byKind[telemetry.ErrorNotFound]; len(missing) > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "unknown_resource",
			Level: "warning",
			Title: "Unknown resource or metric",
			Detail: fmt.Sprintf(
				"The telemetry provider does not know %s. Most often the inventory "+
					"file lists a resource that was deleted or renamed; prune it, or "+
					"fix the resource id.",
				resourceList(missing)),
		})
	}

	if malformed := byKind[telemetry.ErrorMalformed]; len(malformed) > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "malformed_telemetry",
			Level: "warning",
			Title: "Malformed telemetry",
			Detail: fmt.Sprintf(
				"Responses for %s could not be parsed and were treated as empty. "+
					"Check the endpoint actually serves the expected format; a proxy "+
					"error page in front of a metrics endpoint is a common cause.",
				resourceList(malformed)),
		})
	}

	if faults := byKind[""]; len(faults) > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "detector_fault",
			Level: "warning",
			Title: "Detector fault",
			Detail: fmt.Sprintf(
				"A detector failed while evaluating %s. The rest of the scan was "+
					"unaffected. The error text is in the scan result's error list; "+
					"this usually indicates a bug worth reporting.",
				resourceList(faults)),
		})
	}

	if paging := pagingCount(res); paging > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "incidents_paging",
			Level: "warning",
			Title: fmt.Sprintf("%d incident(s) paging", paging),
			Detail: fmt.Sprintf(
				"The last scan surfaced %d incident(s) at high or critical "+
					"severity. Each carries a description, remediation "+
					"recommendations, and an evidence bundle under "+
					"/api/v1/incidents/{fingerprint}.",
				paging),
		})
	}

	if incompleteEvidence(res) {
		hints = append(hints, DiagnosticHint{
			Key:   "evidence_incomplete",
			Level: "info",
			Title: "Evidence partially captured",
			Detail: "Some incidents carry evidence bundles flagged incomplete: an " +
				"artifact failed to serialize or exceeded the size cap. The " +
				"incidents themselves are unaffected; raise " +
				"evidence.max_artifact_bytes if full capture matters.",
		})
	}

	if len(hints) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "all_clear",
			Level: "ok",
			Title: "All clear",
			Detail: fmt.Sprintf(
				"The last scan covered %d resource(s) with no incidents and no "+
					"telemetry failures. Nothing to do.",
				len(res.Resources)),
		})
	}
	return hints
}

// resourceList renders the affected resources of a group of errors as a
// short, deterministic, comma-separated list.
func resourceList(errs []incident.DetectorError) string {
	seen := make(map[string]bool, len(errs))
	var ids []string
	for _, e := range errs {
		if !seen[e.Resource] {
			seen[e.Resource] = true
			ids = append(ids, e.Resource)
		}
	}
	sort.Strings(ids)
	if len(ids) > 4 {
		return fmt.Sprintf("%s and %d more", strings.Join(ids[:4], ", "), len(ids)-4)
	}
	return strings.Join(ids, ", ")
}

func pagingCount(res *incident.ScanResult) int {
	n := 0
	for _, inc := range res.Incidents {
		if inc.Severity.AtLeast(incident.SeverityHigh) {
			n++
		}
	}
	return n
}

func incompleteEvidence(res *incident.ScanResult) bool {
	for _, inc := range res.Incidents {
		if inc.Evidence != nil && inc.Evidence.Incomplete {
			return true
		}
	}
	return false
}
