package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cloudscout/cloudscout/internal/history"
	"github.com/cloudscout/cloudscout/internal/incident"
	"github.com/cloudscout/cloudscout/internal/schedule"
)

// Handler is the HTTP handler for all /api/v1/* endpoints. It reads scan
// state from the history store and triggers single-shot scans through the
// scheduler; it never mutates engine state directly.
type Handler struct {
	history *history.Store
	sched   *schedule.Scheduler
	mux     *http.ServeMux
}

// New creates a Handler wired to the history store and scheduler and
// registers all routes.
func New(hist *history.Store, sched *schedule.Scheduler) http.Handler {
	h := &Handler{history: hist, sched: sched, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/status", h.status)
	h.mux.HandleFunc("/api/v1/scan", h.scan)
	h.mux.HandleFunc("/api/v1/incidents", h.listIncidents)
	h.mux.HandleFunc("/api/v1/incidents/", h.getIncident) // subtree, extracts {fingerprint}
	h.mux.HandleFunc("/api/v1/results", h.results)
	h.mux.HandleFunc("/api/v1/diagnostics", h.diagnostics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// status returns GET /api/v1/status: scheduler phase plus a summary of the
// most recent scan.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := StatusResponse{
		State:        string(h.sched.State()),
		ScansKept:    h.history.Count(),
		SkippedTicks: h.sched.Skipped(),
	}
	if res, ok := h.history.Latest(); ok {
		resp.LastScan = res.StartedAt.UTC().Format(time.RFC3339)
		resp.Resources = len(res.Resources)
		resp.Incidents = len(res.Incidents)
		resp.Errors = len(res.Errors)
		resp.Severities = severityCounts(res)
	}
	jsonResp(w, http.StatusOK, resp)
}

// scan handles POST /api/v1/scan: runs a single-shot scan and returns its
// result. Returns 409 while another scan holds the slot.
func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	res, err := h.sched.RunOnce(r.Context())
	if errors.Is(err, schedule.ErrBusy) {
		jsonErr(w, http.StatusConflict, "scan already in progress")
		return
	}
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, toResultResponse(res))
}

// listIncidents returns GET /api/v1/incidents: the most recent scan's
// incidents, or an empty list before the first scan completes.
func (h *Handler) listIncidents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	out := make([]IncidentResponse, 0)
	if res, ok := h.history.Latest(); ok {
		for i := range res.Incidents {
			out = append(out, toIncidentResponse(&res.Incidents[i]))
		}
	}
	jsonResp(w, http.StatusOK, out)
}

// getIncident returns GET /api/v1/incidents/{fingerprint}: the newest
// occurrence of that fingerprint across the retained history.
func (h *Handler) getIncident(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	fingerprint := strings.TrimPrefix(r.URL.Path, "/api/v1/incidents/")
	if fingerprint == "" {
		// Redirect bare /api/v1/incidents/ to the list handler.
		h.listIncidents(w, r)
		return
	}

	inc, ok := h.history.Incident(fingerprint)
	if !ok {
		jsonErr(w, http.StatusNotFound, "incident not found")
		return
	}
	jsonResp(w, http.StatusOK, toIncidentResponse(inc))
}

// results returns GET /api/v1/results: retained scan results, newest first.
func (h *Handler) results(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	list := h.history.List()
	out := make([]ResultResponse, 0, len(list))
	for _, res := range list {
		out = append(out, toResultResponse(res))
	}
	jsonResp(w, http.StatusOK, out)
}

// diagnostics returns GET /api/v1/diagnostics: operator hints derived from
// the most recent scan.
func (h *Handler) diagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	res, _ := h.history.Latest()
	jsonResp(w, http.StatusOK, computeDiagnostics(res))
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// toIncidentResponse maps a surfaced incident to its JSON representation.
func toIncidentResponse(inc *incident.Incident) IncidentResponse {
	out := IncidentResponse{
		ID:              inc.ID,
		Fingerprint:     inc.Fingerprint,
		Family:          string(inc.Family),
		Severity:        string(inc.Severity),
		Resource:        inc.Resource.ID,
		Kind:            string(inc.Resource.Kind),
		Title:           inc.Title,
		Description:     inc.Description,
		Recommendations: inc.Recommendations,
	}
	if b := inc.Evidence; b != nil {
		ev := &EvidenceResponse{
			Fingerprint: b.Fingerprint,
			CreatedAt:   b.CreatedAt.UTC().Format(time.RFC3339),
			Artifacts:   make([]ArtifactResponse, 0, len(b.Artifacts)),
			Incomplete:  b.Incomplete,
			Failure:     b.Failure,
		}
		for _, a := range b.Artifacts {
			ev.Artifacts = append(ev.Artifacts, ArtifactResponse{
				Name:  a.Name,
				Kind:  a.Kind,
				Bytes: len(a.Data),
			})
		}
		out.Evidence = ev
	}
	return out
}

// toResultResponse maps a scan result to its JSON representation.
func toResultResponse(res *incident.ScanResult) ResultResponse {
	out := ResultResponse{
		StartedAt:  res.StartedAt.UTC().Format(time.RFC3339),
		DurationMS: res.Duration.Milliseconds(),
		Resources:  len(res.Resources),
		Incidents:  make([]IncidentResponse, 0, len(res.Incidents)),
		Errors:     make([]ErrorResponse, 0, len(res.Errors)),
	}
	for i := range res.Incidents {
		out.Incidents = append(out.Incidents, toIncidentResponse(&res.Incidents[i]))
	}
	for _, derr := range res.Errors {
		out.Errors = append(out.Errors, ErrorResponse{
			Family:   string(derr.Family),
			Resource: derr.Resource,
			Kind:     derr.Kind,
			Message:  derr.Message,
		})
	}
	return out
}

func severityCounts(res *incident.ScanResult) map[string]int {
	counts := res.SeverityCounts()
	if len(counts) == 0 {
		return nil
	}
	out := make(map[string]int, len(counts))
	for sev, n := range counts {
		out[string(sev)] = n
	}
	return out
}
