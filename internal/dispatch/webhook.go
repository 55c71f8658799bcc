package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Webhook payload styles.
const (
	WebhookSlack   = "slack"
	WebhookTeams   = "teams"
	WebhookGeneric = "generic"
)

// Webhook posts alerts to an HTTP endpoint in the payload style the
// receiver expects.
type Webhook struct {
	name   string
	kind   string
	url    string
	client *http.Client
}

// NewWebhook builds a webhook transport. kind must be one of slack, teams,
// or generic.
func NewWebhook(name, kind, url string) (*Webhook, error) {
	switch kind {
	case WebhookSlack, WebhookTeams, WebhookGeneric:
	default:
		return nil, fmt.Errorf("unknown webhook kind %q", kind)
	}
	if url == "" {
		return nil, fmt.Errorf("webhook %s: empty URL", name)
	}
	return &Webhook{
		name:   name,
		kind:   kind,
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (w *Webhook) Name() string { return w.name }

func (w *Webhook) Send(ctx context.Context, a Alert) error {
	var payload any
	switch w.kind {
	case WebhookSlack:
		payload = slackPayload(a)
	case WebhookTeams:
		payload = teamsPayload(a)
	default:
		payload = map[string]any{"alert": a}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return w.post(ctx, body)
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func slackPayload(a Alert) map[string]string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* %s\n%s", severityLabel(a.Severity), a.Title, a.Description)
	for _, rec := range a.Recommendations {
		fmt.Fprintf(&b, "\n• %s", rec)
	}
	return map[string]string{"text": b.String()}
}

func teamsPayload(a Alert) map[string]any {
	text := a.Description
	if len(a.Recommendations) > 0 {
		text += "\n\nRecommended: " + strings.Join(a.Recommendations, "; ")
	}
	return map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a.Severity),
		"summary":    a.Title,
		"title":      fmt.Sprintf("CloudScout Alert: %s", a.Title),
		"text":       text,
	}
}
