package dispatch

import (
	"time"

	"github.com/cloudscout/cloudscout/internal/incident"
)

// Alert is the notification payload built from a surfaced incident. It
// carries everything a human needs to act without reaching back into the
// scan result.
type Alert struct {
	ID              string    `json:"id"`
	Fingerprint     string    `json:"fingerprint"`
	Family          string    `json:"family"`
	Severity        string    `json:"severity"`
	Resource        string    `json:"resource"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Recommendations []string  `json:"recommendations,omitempty"`
	FiredAt         time.Time `json:"fired_at"`
}

func buildAlert(inc incident.Incident, now time.Time) Alert {
	return Alert{
		ID:              inc.ID,
		Fingerprint:     inc.Fingerprint,
		Family:          string(inc.Family),
		Severity:        string(inc.Severity),
		Resource:        inc.Resource.ID,
		Title:           inc.Title,
		Description:     inc.Description,
		Recommendations: inc.Recommendations,
		FiredAt:         now,
	}
}

func severityLabel(s string) string {
	switch incident.Severity(s) {
	case incident.SeverityCritical:
		return "[CRITICAL]"
	case incident.SeverityHigh:
		return "[HIGH]"
	case incident.SeverityMedium:
		return "[MEDIUM]"
	default:
		return "[LOW]"
	}
}

func severityColor(s string) string {
	switch incident.Severity(s) {
	case incident.SeverityCritical:
		return "FF4F6A"
	case incident.SeverityHigh:
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
