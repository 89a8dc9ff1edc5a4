package incidents

import (
	"context"
	"time"

	"github.com/opshield/incident-sentry/internal/domain"
)

// Repository defines the interface for incident and blocked-IP storage.
type Repository interface {
	CreateIncident(ctx context.Context, incident *domain.Incident) error
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	ListIncidents(ctx context.Context, q ListQuery) ([]*domain.Incident, int, error)
	// UpdateIncident applies the change set and returns the updated record.
	// Returns ErrIncidentNotFound when id does not resolve.
	UpdateIncident(ctx context.Context, id string, change ChangeSet) (*domain.Incident, error)
	// BulkUpdateStatus applies the same status to every matching record in
	// one operation and returns the number actually modified. Missing ids
	// are skipped silently.
	BulkUpdateStatus(ctx context.Context, ids []string, change BulkStatusChange) (int, error)

	CountIncidents(ctx context.Context, f CountFilter) (int, error)
	CountByCategory(ctx context.Context) (map[string]int, error)
	// AverageResolutionHours averages resolved_at - created_at over records
	// with status=resolved and resolved_at set. Returns 0 with no matches.
	AverageResolutionHours(ctx context.Context) (float64, error)
	ListRecent(ctx context.Context, limit int) ([]*RecentIncident, error)
	ListAlerts(ctx context.Context, q AlertQuery) ([]*Alert, error)

	UpsertBlockedIP(ctx context.Context, blocked *domain.BlockedIP) (*domain.BlockedIP, error)
	DeleteBlockedIP(ctx context.Context, ip string) (int, error)
}

// ListQuery holds filter, sort and pagination options for listing incidents.
// Use NormalizeListQuery to apply defaults and clamps before passing it to
// the repository.
type ListQuery struct {
	Severity string
	Status   string
	// Q is matched case-insensitively as a substring against title,
	// description, category and tags.
	Q       string
	Since   *time.Time
	Page    int
	Limit   int
	SortBy  string
	SortDir string
}

// Offset returns the row offset for the current page.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// ChangeSet describes a single-incident update. Nil fields are left
// unchanged. The service computes the resolved-at stamp and timeline entry
// so the side effects are visible at the call site.
type ChangeSet struct {
	Status        *domain.IncidentStatus
	Severity      *domain.Severity
	Category      *domain.Category
	Description   *string
	AssignedTo    *string
	ResolvedAt    *time.Time
	TimelineEntry *domain.TimelineEntry
	UpdatedBy     string
}

// BulkStatusChange describes a bulk status update.
type BulkStatusChange struct {
	Status     domain.IncidentStatus
	ResolvedAt *time.Time
	UpdatedBy  string
}

// CountFilter holds the independent count dimensions the dashboard uses.
type CountFilter struct {
	Status       *domain.IncidentStatus
	Severity     *domain.Severity
	CreatedSince *time.Time
}

// RecentIncident is the trimmed projection for the dashboard recent list.
type RecentIncident struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Severity        domain.Severity `json:"severity"`
	Status          domain.IncidentStatus `json:"status"`
	Category        domain.Category `json:"category"`
	AffectedSystems []string       `json:"affectedSystems"`
	CreatedAt       time.Time      `json:"createdAt"`
	CreatedBy       RecentCreator  `json:"createdBy"`
}

// RecentCreator is the creator projection embedded in RecentIncident.
type RecentCreator struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AlertQuery holds filters for the alerts view over incidents.
type AlertQuery struct {
	Severities []string
	Since      time.Time
	Limit      int
}

// Alert is the trimmed alert projection of an incident.
type Alert struct {
	ID        string                `json:"id"`
	Type      string                `json:"type"`
	Title     string                `json:"title"`
	Severity  domain.Severity       `json:"severity"`
	Status    domain.IncidentStatus `json:"status"`
	Category  domain.Category       `json:"category"`
	Source    domain.IncidentSource `json:"source"`
	CreatedAt time.Time             `json:"createdAt"`
}
