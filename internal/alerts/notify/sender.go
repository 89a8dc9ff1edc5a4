// Package notify provides outbound alert notification via incoming webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/opshield/incident-sentry/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultUsername = "IncidentSentry"
)

var titleCaser = cases.Title(language.English)

// Config holds outbound webhook sender configuration.
type Config struct {
	// URL is the incoming-webhook endpoint. An empty URL disables sending.
	URL      string
	Username string        // display username, default "IncidentSentry"
	Timeout  time.Duration // request timeout
}

// Sender posts incident notifications to a configured incoming webhook.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a new outbound webhook sender.
func NewSender(config Config) *Sender {
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Enabled reports whether a webhook URL is configured.
func (s *Sender) Enabled() bool {
	return s.config.URL != ""
}

type webhookPayload struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
}

// Send posts a notification about the incident. Callers on the ingest path
// treat the returned error as advisory only.
func (s *Sender) Send(ctx context.Context, incident *domain.Incident) error {
	if !s.Enabled() {
		return nil
	}

	payload := webhookPayload{
		Username: s.config.Username,
		Text: fmt.Sprintf("### %s Alert: %s\n\nCategory: %s\nStatus: %s\nDetected: %s",
			titleCaser.String(string(incident.Severity)),
			incident.Title,
			incident.Category,
			incident.Status,
			incident.DetectedAt.Format(time.RFC3339),
		),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, string(respBody))
	}

	slog.Debug("alert notification sent", "webhook", maskWebhookURL(s.config.URL), "incident_id", incident.ID)
	return nil
}

// maskWebhookURL hides part of the URL for logging.
func maskWebhookURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}
