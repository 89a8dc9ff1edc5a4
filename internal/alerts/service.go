// Package alerts exposes the alert view over incidents and the external
// webhook ingest endpoint.
package alerts

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/opshield/incident-sentry/internal/domain"
	"github.com/opshield/incident-sentry/internal/identity"
	"github.com/opshield/incident-sentry/internal/incidents"
	"github.com/opshield/incident-sentry/internal/pkg/metrics"
)

const (
	defaultTitle       = "Security Alert"
	defaultDescription = "Automated alert received via webhook"
	defaultSeverity    = domain.SeverityHigh
	defaultCategory    = domain.CategoryNetworkIntrusion
)

// ErrIngestNotConfigured means no owner could be resolved for a webhook
// alert, so nothing was persisted.
var ErrIngestNotConfigured = errors.New("webhook ingest not configured")

// UserLookup resolves the fallback admin account for webhook ownership.
type UserLookup interface {
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Notifier sends a best-effort outbound notification about an incident.
type Notifier interface {
	Send(ctx context.Context, incident *domain.Incident) error
}

// Config holds webhook ingest ownership settings.
type Config struct {
	// DefaultOwnerID is stamped as creator when the caller is anonymous.
	DefaultOwnerID string
	// FallbackAdminEmail is looked up when DefaultOwnerID is unset.
	FallbackAdminEmail string
}

// Service normalizes webhook payloads into incidents.
type Service struct {
	incidents *incidents.Service
	users     UserLookup
	notifier  Notifier
	config    Config
}

// NewService creates a new alerts service.
func NewService(incidentService *incidents.Service, users UserLookup, notifier Notifier, config Config) *Service {
	return &Service{
		incidents: incidentService,
		users:     users,
		notifier:  notifier,
		config:    config,
	}
}

// WebhookPayload is the loosely-typed body external systems post. Unknown
// fields are ignored.
type WebhookPayload struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Severity        string   `json:"severity"`
	Category        string   `json:"category"`
	AffectedSystems []string `json:"affectedSystems"`
	IPAddresses     []string `json:"ipAddresses"`
	SourceIP        string   `json:"sourceIp"`
	SrcIP           string   `json:"src_ip"`
	IP              string   `json:"ip"`
	Tags            []string `json:"tags"`
}

// Ingest normalizes an external alert payload and records it as an
// incident. The actor is usually nil since the endpoint is unauthenticated;
// ownership then falls back to the configured default owner, then to the
// fallback admin account.
func (s *Service) Ingest(ctx context.Context, payload WebhookPayload, actor *domain.User) (*domain.Incident, error) {
	owner, err := s.resolveOwner(ctx, actor)
	if err != nil {
		metrics.WebhookIngestTotal.WithLabelValues("unconfigured").Inc()
		return nil, err
	}

	now := time.Now()
	input := incidents.CreateIncidentInput{
		Title:           orDefault(payload.Title, defaultTitle),
		Description:     orDefault(payload.Description, defaultDescription),
		Severity:        normalizeSeverity(payload.Severity),
		Category:        domain.Category(orDefault(payload.Category, string(defaultCategory))),
		Source:          domain.SourceAutomated,
		AffectedSystems: payload.AffectedSystems,
		IPAddresses:     mergeIPs(payload),
		DetectedAt:      &now,
		Tags:            payload.Tags,
	}

	incident, err := s.incidents.CreateIncident(ctx, input, owner)
	if err != nil {
		metrics.WebhookIngestTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.WebhookIngestTotal.WithLabelValues("created").Inc()

	if s.notifier != nil {
		// Fire and forget: the ingest response never waits on, or fails
		// because of, the outbound notification.
		go func() {
			notifyCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := s.notifier.Send(notifyCtx, incident); err != nil {
				slog.Warn("outbound alert notification failed", "incident_id", incident.ID, "error", err)
			}
		}()
	}

	return incident, nil
}

func (s *Service) resolveOwner(ctx context.Context, actor *domain.User) (*domain.User, error) {
	if actor != nil {
		return actor, nil
	}
	if s.config.DefaultOwnerID != "" {
		return &domain.User{ID: s.config.DefaultOwnerID}, nil
	}
	if s.config.FallbackAdminEmail != "" {
		admin, err := s.users.GetUserByEmail(ctx, strings.ToLower(s.config.FallbackAdminEmail))
		if err == nil {
			return admin, nil
		}
		if !errors.Is(err, identity.ErrUserNotFound) {
			return nil, err
		}
	}
	return nil, ErrIngestNotConfigured
}

// normalizeSeverity lower-cases the payload value and falls back to high
// when it is not a recognized severity.
func normalizeSeverity(raw string) domain.Severity {
	severity := domain.Severity(strings.ToLower(strings.TrimSpace(raw)))
	if !severity.IsValid() {
		return defaultSeverity
	}
	return severity
}

// mergeIPs collects IP candidates from every supported payload key and
// de-duplicates them, preserving first-seen order.
func mergeIPs(payload WebhookPayload) []string {
	candidates := append([]string{}, payload.IPAddresses...)
	for _, single := range []string{payload.SourceIP, payload.SrcIP, payload.IP} {
		if single != "" {
			candidates = append(candidates, single)
		}
	}

	seen := map[string]bool{}
	merged := []string{}
	for _, ip := range candidates {
		ip = strings.TrimSpace(ip)
		if ip == "" || seen[ip] {
			continue
		}
		seen[ip] = true
		merged = append(merged, ip)
	}
	return merged
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
