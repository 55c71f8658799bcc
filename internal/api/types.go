package api

// StatusResponse is the payload for GET /api/v1/status.
type StatusResponse struct {
	State        string         `json:"state"`
	LastScan     string         `json:"last_scan,omitempty"` // RFC3339, absent before the first scan
	Resources    int            `json:"resources"`
	Incidents    int            `json:"incidents"`
	Errors       int            `json:"errors"`
	Severities   map[string]int `json:"severities,omitempty"`
	ScansKept    int            `json:"scans_kept"`
	SkippedTicks uint64         `json:"skipped_ticks"`
}

// IncidentResponse is one surfaced incident in list, detail, and scan payloads.
type IncidentResponse struct {
	ID              string            `json:"id"`
	Fingerprint     string            `json:"fingerprint"`
	Family          string            `json:"family"`
	Severity        string            `json:"severity"`
	Resource        string            `json:"resource"`
	Kind            string            `json:"kind"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Recommendations []string          `json:"recommendations,omitempty"`
	Evidence        *EvidenceResponse `json:"evidence,omitempty"`
}

// EvidenceResponse is the evidence manifest attached to an incident.
// Artifact payloads are not inlined; the archive holds the full bundles.
type EvidenceResponse struct {
	Fingerprint string             `json:"fingerprint"`
	CreatedAt   string             `json:"created_at"` // RFC3339
	Artifacts   []ArtifactResponse `json:"artifacts"`
	Incomplete  bool               `json:"incomplete"`
	Failure     string             `json:"failure,omitempty"`
}

// ArtifactResponse names one captured artifact and its serialized size.
type ArtifactResponse struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Bytes int    `json:"bytes"`
}

// ErrorResponse is one recorded detector failure within a scan result.
type ErrorResponse struct {
	Family   string `json:"family"`
	Resource string `json:"resource"`
	Kind     string `json:"kind,omitempty"`
	Message  string `json:"message"`
}

// ResultResponse summarizes one scan cycle in GET /api/v1/results and
// POST /api/v1/scan.
type ResultResponse struct {
	StartedAt  string             `json:"started_at"` // RFC3339
	DurationMS int64              `json:"duration_ms"`
	Resources  int                `json:"resources"`
	Incidents  []IncidentResponse `json:"incidents"`
	Errors     []ErrorResponse    `json:"errors"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
