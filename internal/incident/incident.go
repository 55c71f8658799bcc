package incident

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloudscout/cloudscout/internal/telemetry"
)

// Severity ranks how much attention an incident warrants.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for gate comparisons. Unknown values rank 0.
var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the numeric order of s (low=1 … critical=4, unknown=0).
func (s Severity) Rank() int { return severityRank[s] }

// AtLeast reports whether s ranks at or above min.
func (s Severity) AtLeast(min Severity) bool { return s.Rank() >= min.Rank() }

// Band is the coarse severity grouping used in fingerprints.
type Band string

const (
	BandWarn Band = "warn" // low, medium
	BandPage Band = "page" // high, critical
)

// Band returns the coarse grouping s belongs to.
func (s Severity) Band() Band {
	if s.AtLeast(SeverityHigh) {
		return BandPage
	}
	return BandWarn
}

// ParseSeverity converts a config/user string into a Severity.
func ParseSeverity(raw string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := severityRank[s]; !ok {
		return "", fmt.Errorf("unknown severity %q", raw)
	}
	return s, nil
}

// Family tags the class of condition a detector looks for.
type Family string

const (
	FamilySaturation Family = "compute-saturation"
	FamilyErrorRate  Family = "function-error-rate"
	FamilyUsage      Family = "usage-volume-spike"
	FamilyDenial     Family = "access-denial"
)

// Candidate is a detector's claim that a condition warrants attention. The
// triggering telemetry is held by reference: the exact slices the detector
// evaluated, never a later re-read.
type Candidate struct {
	Family          Family                    `json:"family"`
	Resource        telemetry.Resource        `json:"resource"`
	Severity        Severity                  `json:"severity"`
	Title           string                    `json:"title"`
	Description     string                    `json:"description"`
	Recommendations []string                  `json:"recommendations,omitempty"`
	Fingerprint     string                    `json:"fingerprint"`
	Series          []*telemetry.MetricSeries `json:"-"`
	Events          []telemetry.AuditEvent    `json:"-"`
}

// NewCandidate builds a Candidate with its fingerprint computed. The caller
// attaches the triggering telemetry and recommendations afterwards.
func NewCandidate(family Family, res telemetry.Resource, sev Severity, title, description string) Candidate {
	return Candidate{
		Family:      family,
		Resource:    res,
		Severity:    sev,
		Title:       title,
		Description: description,
		Fingerprint: Fingerprint(family, res.ID, sev),
	}
}

// Incident is a surfaced candidate: uniquely identified, with its evidence
// bundle attached.
type Incident struct {
	ID string `json:"id"`
	Candidate
	Evidence *EvidenceBundle `json:"evidence"`
}

// NewIncident promotes a candidate, assigning a fresh incident ID.
func NewIncident(c Candidate) Incident {
	return Incident{ID: newIncidentID(), Candidate: c}
}

func newIncidentID() string {
	u := uuid.New()
	return fmt.Sprintf("inc-%x", u[:6])
}

// Artifact kinds found in an evidence manifest.
const (
	ArtifactMetricSeries = "metric-series"
	ArtifactAuditEvents  = "audit-events"
)

// Artifact is one captured telemetry slice, serialized verbatim.
type Artifact struct {
	Name string          `json:"name"`
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EvidenceBundle is the immutable snapshot of telemetry that justified an
// incident. Incomplete is set when collection degraded; the incident is
// still reported.
type EvidenceBundle struct {
	Fingerprint string     `json:"fingerprint"`
	CreatedAt   time.Time  `json:"created_at"`
	Artifacts   []Artifact `json:"artifacts"`
	Incomplete  bool       `json:"incomplete"`
	Failure     string     `json:"failure,omitempty"`
}

// DetectorError records a detector×resource combination that failed without
// aborting the scan. Kind carries the telemetry error classification when
// the failure came from the source boundary.
type DetectorError struct {
	Family   Family `json:"family"`
	Resource string `json:"resource"`
	Kind     string `json:"kind,omitempty"`
	Message  string `json:"message"`
}

// ScanResult is the complete output of one scan cycle. Immutable once
// returned; ownership passes to whoever requested the scan.
type ScanResult struct {
	StartedAt time.Time            `json:"started_at"`
	Duration  time.Duration        `json:"duration"`
	Resources []telemetry.Resource `json:"resources"`
	Incidents []Incident           `json:"incidents"`
	Errors    []DetectorError      `json:"errors"`
}

// Incident returns the surfaced incident with the given fingerprint.
func (r *ScanResult) Incident(fingerprint string) (*Incident, bool) {
	for i := range r.Incidents {
		if r.Incidents[i].Fingerprint == fingerprint {
			return &r.Incidents[i], true
		}
	}
	return nil, false
}

// SeverityCounts tallies surfaced incidents per severity.
func (r *ScanResult) SeverityCounts() map[Severity]int {
	counts := make(map[Severity]int)
	for _, inc := range r.Incidents {
		counts[inc.Severity]++
	}
	return counts
}
