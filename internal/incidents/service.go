// Package incidents implements the incident repository, its query builder
// and the blocked-IP set.
package incidents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opshield/incident-sentry/internal/domain"
	"github.com/opshield/incident-sentry/internal/pkg/ctxlog"
	"github.com/opshield/incident-sentry/internal/realtime"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	defaultSortBy  = "createdAt"
	defaultSortDir = "desc"
)

// sortableFields is the allow-list for the list sort specification.
// Anything else silently falls back to the default sort.
var sortableFields = map[string]bool{
	"createdAt":  true,
	"severity":   true,
	"status":     true,
	"category":   true,
	"detectedAt": true,
}

// Service implements incident business logic.
type Service struct {
	repo        Repository
	broadcaster realtime.Broadcaster
}

// NewService creates a new incident service.
func NewService(repo Repository, broadcaster realtime.Broadcaster) *Service {
	return &Service{repo: repo, broadcaster: broadcaster}
}

// CreateIncidentInput holds data for creating an incident.
type CreateIncidentInput struct {
	Title           string
	Description     string
	Severity        domain.Severity
	Status          domain.IncidentStatus
	Category        domain.Category
	Source          domain.IncidentSource
	AffectedSystems []string
	AffectedUsers   []string
	IPAddresses     []string
	Location        *domain.Location
	DetectedAt      *time.Time
	EstimatedImpact domain.Impact
	FinancialImpact *domain.FinancialImpact
	Tags            []string
}

func (in *CreateIncidentInput) validate() error {
	var errs []string

	if strings.TrimSpace(in.Title) == "" {
		errs = append(errs, "title is required")
	} else if len(in.Title) > 200 {
		errs = append(errs, "title must be at most 200 characters")
	}
	if strings.TrimSpace(in.Description) == "" {
		errs = append(errs, "description is required")
	}
	if !in.Severity.IsValid() {
		errs = append(errs, "severity is invalid")
	}
	if !in.Category.IsValid() {
		errs = append(errs, "category is invalid")
	}
	if in.Status != "" && !in.Status.IsValid() {
		errs = append(errs, "status is invalid")
	}
	if in.Source != "" && !in.Source.IsValid() {
		errs = append(errs, "source is invalid")
	}
	if in.EstimatedImpact != "" && !in.EstimatedImpact.IsValid() {
		errs = append(errs, "estimatedImpact is invalid")
	}
	for _, ip := range in.IPAddresses {
		if !domain.IsValidIPv4(ip) {
			errs = append(errs, fmt.Sprintf("ip address %q is invalid", ip))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(errs, ", "))
	}
	return nil
}

// CreateIncident validates the input, stamps the creator and the creation
// timeline entry, persists the record and notifies the dashboard room.
func (s *Service) CreateIncident(ctx context.Context, input CreateIncidentInput, actor *domain.User) (*domain.Incident, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	now := time.Now()

	incident := &domain.Incident{
		Title:           strings.TrimSpace(input.Title),
		Description:     strings.TrimSpace(input.Description),
		Severity:        input.Severity,
		Status:          input.Status,
		Category:        input.Category,
		Source:          input.Source,
		AffectedSystems: orEmpty(input.AffectedSystems),
		AffectedUsers:   orEmpty(input.AffectedUsers),
		IPAddresses:     orEmpty(input.IPAddresses),
		Location:        input.Location,
		DetectedAt:      now,
		ReportedAt:      now,
		EstimatedImpact: input.EstimatedImpact,
		FinancialImpact: input.FinancialImpact,
		CreatedBy:       actor.ID,
		Tags:            orEmpty(input.Tags),
		Evidence:        []domain.Evidence{},
		Notes:           []domain.Note{},
		RelatedIncidents: []string{},
		Recommendations:  []string{},
	}

	if incident.Status == "" {
		incident.Status = domain.StatusOpen
	}
	if incident.Source == "" {
		incident.Source = domain.SourceManual
	}
	if incident.EstimatedImpact == "" {
		incident.EstimatedImpact = domain.ImpactModerate
	}
	if input.DetectedAt != nil {
		incident.DetectedAt = *input.DetectedAt
	}

	incident.Timeline = []domain.TimelineEntry{{
		Timestamp:   now,
		Action:      domain.TimelineActionCreated,
		Description: "Incident created",
		User:        actor.ID,
	}}

	if err := s.repo.CreateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	ctxlog.FromContext(ctx).Info("incident created",
		"incident_id", incident.ID,
		"severity", incident.Severity,
		"category", incident.Category,
	)

	// Notify only after the write is durably committed.
	s.broadcaster.Publish(realtime.DashboardRoom, realtime.EventIncidentCreated, incident)

	return incident, nil
}

// NormalizeListQuery applies pagination defaults, the limit clamp and the
// sort allow-list fallback.
func NormalizeListQuery(q ListQuery) ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if !sortableFields[q.SortBy] {
		q.SortBy = defaultSortBy
		q.SortDir = defaultSortDir
	}
	if q.SortDir != "asc" {
		q.SortDir = "desc"
	}
	return q
}

// ListIncidents returns a filtered, sorted page of incidents plus the
// total matching count.
func (s *Service) ListIncidents(ctx context.Context, q ListQuery) ([]*domain.Incident, int, error) {
	return s.repo.ListIncidents(ctx, NormalizeListQuery(q))
}

// GetIncident returns the incident with the given id.
func (s *Service) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	return s.repo.GetIncident(ctx, id)
}

// UpdateIncidentInput holds the whitelisted mutable fields. Nil fields are
// not touched; each provided enum is validated independently.
type UpdateIncidentInput struct {
	Status      *domain.IncidentStatus
	Severity    *domain.Severity
	Category    *domain.Category
	Description *string
	AssignedTo  *string
}

// UpdateIncident applies the whitelisted fields, stamps updatedBy, appends
// a status-change timeline entry and the resolved-at stamp on transitions
// into a terminal status, then notifies the dashboard room.
func (s *Service) UpdateIncident(ctx context.Context, id string, input UpdateIncidentInput, actor *domain.User) (*domain.Incident, error) {
	var errs []string
	if input.Status != nil && !input.Status.IsValid() {
		errs = append(errs, "status is invalid")
	}
	if input.Severity != nil && !input.Severity.IsValid() {
		errs = append(errs, "severity is invalid")
	}
	if input.Category != nil && !input.Category.IsValid() {
		errs = append(errs, "category is invalid")
	}
	if input.AssignedTo != nil && *input.AssignedTo != "" {
		if _, err := uuid.Parse(*input.AssignedTo); err != nil {
			errs = append(errs, "assignedTo is invalid")
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrValidation, strings.Join(errs, ", "))
	}

	change := ChangeSet{
		Status:      input.Status,
		Severity:    input.Severity,
		Category:    input.Category,
		Description: input.Description,
		AssignedTo:  input.AssignedTo,
		UpdatedBy:   actor.ID,
	}

	if input.Status != nil {
		now := time.Now()
		change.TimelineEntry = &domain.TimelineEntry{
			Timestamp:   now,
			Action:      domain.TimelineActionStatusChanged,
			Description: fmt.Sprintf("Status changed to: %s", *input.Status),
			User:        actor.ID,
		}
		if input.Status.IsTerminal() {
			change.ResolvedAt = &now
		}
	}

	incident, err := s.repo.UpdateIncident(ctx, id, change)
	if err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Info("incident updated", "incident_id", id, "updated_by", actor.ID)

	s.broadcaster.Publish(realtime.DashboardRoom, realtime.EventIncidentUpdated, incident)

	return incident, nil
}

// BulkUpdatePayload is the event payload for a bulk status update. The
// broadcast carries the id list and new status, not each record.
type BulkUpdatePayload struct {
	IDs    []string              `json:"ids"`
	Status domain.IncidentStatus `json:"status"`
}

// BulkUpdateStatus applies one status to all given ids and returns the
// count of records actually modified. Missing ids are not an error.
func (s *Service) BulkUpdateStatus(ctx context.Context, ids []string, status domain.IncidentStatus, actor *domain.User) (int, error) {
	if len(ids) == 0 {
		return 0, ErrEmptyIDList
	}
	if !status.IsValid() {
		return 0, fmt.Errorf("%w: status is invalid", ErrValidation)
	}

	change := BulkStatusChange{Status: status, UpdatedBy: actor.ID}
	if status.IsTerminal() {
		now := time.Now()
		change.ResolvedAt = &now
	}

	modified, err := s.repo.BulkUpdateStatus(ctx, ids, change)
	if err != nil {
		return 0, fmt.Errorf("bulk update status: %w", err)
	}

	ctxlog.FromContext(ctx).Info("incidents bulk updated",
		"count", modified,
		"status", status,
		"updated_by", actor.ID,
	)

	s.broadcaster.Publish(realtime.DashboardRoom, realtime.EventIncidentBulkUpdated, BulkUpdatePayload{
		IDs:    ids,
		Status: status,
	})

	return modified, nil
}

// ListAlerts returns recent high-priority incidents as alert projections.
func (s *Service) ListAlerts(ctx context.Context, q AlertQuery) ([]*Alert, error) {
	if q.Limit < 1 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if len(q.Severities) == 0 {
		q.Severities = []string{string(domain.SeverityHigh), string(domain.SeverityCritical)}
	}
	if q.Since.IsZero() {
		q.Since = time.Now().Add(-24 * time.Hour)
	}
	return s.repo.ListAlerts(ctx, q)
}

// BlockIP upserts a blocked IP entry (create-or-update-reason).
func (s *Service) BlockIP(ctx context.Context, ip, reason string, actor *domain.User) (*domain.BlockedIP, error) {
	if strings.TrimSpace(ip) == "" {
		return nil, fmt.Errorf("%w: ip is required", ErrValidation)
	}
	if !domain.IsValidIPv4(ip) {
		return nil, fmt.Errorf("%w: ip address %q is invalid", ErrValidation, ip)
	}

	blocked, err := s.repo.UpsertBlockedIP(ctx, &domain.BlockedIP{
		IP:        ip,
		Reason:    reason,
		BlockedBy: actor.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("block ip: %w", err)
	}

	ctxlog.FromContext(ctx).Info("ip blocked", "ip", ip, "blocked_by", actor.ID)
	return blocked, nil
}

// UnblockIP removes a blocked IP entry and returns the deleted count.
func (s *Service) UnblockIP(ctx context.Context, ip string) (int, error) {
	deleted, err := s.repo.DeleteBlockedIP(ctx, ip)
	if err != nil {
		return 0, fmt.Errorf("unblock ip: %w", err)
	}
	return deleted, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
