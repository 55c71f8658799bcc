package evidence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudscout/cloudscout/internal/incident"
)

// DefaultMaxArtifactBytes caps a single serialized artifact at 1 MiB.
const DefaultMaxArtifactBytes = 1 << 20

// Collector turns a candidate's referenced telemetry into an evidence
// bundle. It never re-fetches: the bundle reflects exactly what the
// detector saw, not a later read.
type Collector struct {
	MaxArtifactBytes int
}

// NewCollector builds a collector, substituting the default artifact cap
// for a zero limit.
func NewCollector(maxArtifactBytes int) *Collector {
	if maxArtifactBytes <= 0 {
		maxArtifactBytes = DefaultMaxArtifactBytes
	}
	return &Collector{MaxArtifactBytes: maxArtifactBytes}
}

// Collect serializes the candidate's series and events verbatim. A bundle
// always comes back: an artifact that cannot be captured is left out of the
// manifest and noted on the bundle, with Incomplete set.
func (c *Collector) Collect(cand incident.Candidate, now time.Time) *incident.EvidenceBundle {
	b := &incident.EvidenceBundle{
		Fingerprint: cand.Fingerprint,
		CreatedAt:   now,
	}

	var failures []string
	for i, s := range cand.Series {
		if s == nil {
			continue
		}
		name := fmt.Sprintf("series-%s", s.Metric)
		if s.Metric == "" {
			name = fmt.Sprintf("series-%d", i)
		}
		c.addArtifact(b, &failures, name, incident.ArtifactMetricSeries, s)
	}
	if len(cand.Events) > 0 {
		c.addArtifact(b, &failures, "audit-events", incident.ArtifactAuditEvents, cand.Events)
	}

	if len(failures) > 0 {
		b.Incomplete = true
		b.Failure = strings.Join(failures, "; ")
	}
	return b
}

func (c *Collector) addArtifact(b *incident.EvidenceBundle, failures *[]string, name, kind string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		*failures = append(*failures, fmt.Sprintf("%s: %v", name, err))
		return
	}
	if len(data) > c.MaxArtifactBytes {
		*failures = append(*failures, fmt.Sprintf("%s: %d bytes exceeds %d cap", name, len(data), c.MaxArtifactBytes))
		return
	}
	b.Artifacts = append(b.Artifacts, incident.Artifact{Name: name, Kind: kind, Data: data})
}
