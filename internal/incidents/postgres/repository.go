// Package postgres provides the PostgreSQL implementation of the incidents repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opshield/incident-sentry/internal/domain"
	"github.com/opshield/incident-sentry/internal/incidents"
)

// Repository implements incidents.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const incidentColumns = `
	id, title, description, severity, status, category, source,
	affected_systems, affected_users, ip_addresses, location,
	detected_at, reported_at, resolved_at, estimated_impact, financial_impact,
	COALESCE(assigned_to::text, ''), created_by, COALESCE(updated_by::text, ''),
	tags, evidence, timeline, notes, related_incidents, compliance,
	lessons_learned, recommendations, created_at, updated_at
`

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var incident domain.Incident
	err := row.Scan(
		&incident.ID,
		&incident.Title,
		&incident.Description,
		&incident.Severity,
		&incident.Status,
		&incident.Category,
		&incident.Source,
		&incident.AffectedSystems,
		&incident.AffectedUsers,
		&incident.IPAddresses,
		&incident.Location,
		&incident.DetectedAt,
		&incident.ReportedAt,
		&incident.ResolvedAt,
		&incident.EstimatedImpact,
		&incident.FinancialImpact,
		&incident.AssignedTo,
		&incident.CreatedBy,
		&incident.UpdatedBy,
		&incident.Tags,
		&incident.Evidence,
		&incident.Timeline,
		&incident.Notes,
		&incident.RelatedIncidents,
		&incident.Compliance,
		&incident.LessonsLearned,
		&incident.Recommendations,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

// CreateIncident stores a new incident and fills in the generated fields.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident) error {
	query := `
		INSERT INTO incidents (
			title, description, severity, status, category, source,
			affected_systems, affected_users, ip_addresses, location,
			detected_at, estimated_impact, financial_impact,
			assigned_to, created_by, tags, timeline
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, reported_at, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		incident.Title,
		incident.Description,
		incident.Severity,
		incident.Status,
		incident.Category,
		incident.Source,
		incident.AffectedSystems,
		incident.AffectedUsers,
		incident.IPAddresses,
		incident.Location,
		incident.DetectedAt,
		incident.EstimatedImpact,
		incident.FinancialImpact,
		nullUUID(incident.AssignedTo),
		incident.CreatedBy,
		incident.Tags,
		incident.Timeline,
	).Scan(&incident.ID, &incident.ReportedAt, &incident.CreatedAt, &incident.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// GetIncident retrieves an incident by id. A malformed id maps to
// not-found rather than a cast error.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`

	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return incident, nil
}

// ListIncidents retrieves a filtered, sorted, paginated page of incidents
// together with the total count over the same filter.
func (r *Repository) ListIncidents(ctx context.Context, q incidents.ListQuery) ([]*domain.Incident, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if q.Severity != "" {
		where += fmt.Sprintf(" AND severity = $%d", argIdx)
		args = append(args, q.Severity)
		argIdx++
	}
	if q.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, q.Status)
		argIdx++
	}
	if q.Since != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *q.Since)
		argIdx++
	}
	if q.Q != "" {
		pattern := "%" + escapeLike(q.Q) + "%"
		where += fmt.Sprintf(` AND (
			title ILIKE $%d
			OR description ILIKE $%d
			OR category ILIKE $%d
			OR EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE $%d)
		)`, argIdx, argIdx, argIdx, argIdx)
		args = append(args, pattern)
		argIdx++
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM incidents ` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count incidents: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM incidents %s ORDER BY %s %s, id LIMIT $%d OFFSET $%d`,
		incidentColumns, where, sortColumn(q.SortBy), sortDirection(q.SortDir), argIdx, argIdx+1,
	)
	args = append(args, q.Limit, q.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	list := []*domain.Incident{}
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan incident: %w", err)
		}
		list = append(list, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list incidents: %w", err)
	}
	return list, total, nil
}

// UpdateIncident applies the change set and returns the updated record.
func (r *Repository) UpdateIncident(ctx context.Context, id string, change incidents.ChangeSet) (*domain.Incident, error) {
	set := []string{"updated_at = now()"}
	args := []interface{}{id}
	argIdx := 2

	addSet := func(column string, value interface{}) {
		set = append(set, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if change.Status != nil {
		addSet("status", *change.Status)
	}
	if change.Severity != nil {
		addSet("severity", *change.Severity)
	}
	if change.Category != nil {
		addSet("category", *change.Category)
	}
	if change.Description != nil {
		addSet("description", *change.Description)
	}
	if change.AssignedTo != nil {
		addSet("assigned_to", nullUUID(*change.AssignedTo))
	}
	if change.ResolvedAt != nil {
		addSet("resolved_at", *change.ResolvedAt)
	}
	if change.TimelineEntry != nil {
		entry, err := json.Marshal([]domain.TimelineEntry{*change.TimelineEntry})
		if err != nil {
			return nil, fmt.Errorf("marshal timeline entry: %w", err)
		}
		set = append(set, fmt.Sprintf("timeline = timeline || $%d::jsonb", argIdx))
		args = append(args, entry)
		argIdx++
	}
	if change.UpdatedBy != "" {
		addSet("updated_by", change.UpdatedBy)
	}

	query := `
		UPDATE incidents
		SET ` + strings.Join(set, ", ") + `
		WHERE id = $1
		RETURNING ` + incidentColumns

	incident, err := scanIncident(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, incidents.ErrIncidentNotFound
		}
		// assigned_to is the only column here with a caller-supplied FK,
		// so a violation means the assignee does not exist.
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: assignedTo does not resolve to a user", incidents.ErrValidation)
		}
		return nil, fmt.Errorf("update incident: %w", err)
	}
	return incident, nil
}

// BulkUpdateStatus applies the same status to every matching incident in a
// single statement. Ids are compared as text so malformed or unknown ids
// are skipped instead of failing the whole batch.
func (r *Repository) BulkUpdateStatus(ctx context.Context, ids []string, change incidents.BulkStatusChange) (int, error) {
	query := `
		UPDATE incidents
		SET status = $1,
		    resolved_at = COALESCE($2, resolved_at),
		    updated_by = $3,
		    updated_at = now()
		WHERE id::text = ANY($4)
	`
	tag, err := r.db.Exec(ctx, query,
		change.Status,
		change.ResolvedAt,
		nullUUID(change.UpdatedBy),
		ids,
	)
	if err != nil {
		return 0, fmt.Errorf("bulk update status: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountIncidents counts incidents matching the filter.
func (r *Repository) CountIncidents(ctx context.Context, f incidents.CountFilter) (int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if f.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *f.Status)
		argIdx++
	}
	if f.Severity != nil {
		where += fmt.Sprintf(" AND severity = $%d", argIdx)
		args = append(args, *f.Severity)
		argIdx++
	}
	if f.CreatedSince != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *f.CreatedSince)
		argIdx++
	}

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM incidents `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count incidents: %w", err)
	}
	return count, nil
}

// CountByCategory returns per-category incident counts.
func (r *Repository) CountByCategory(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `SELECT category, COUNT(*) FROM incidents GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("count by category: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		counts[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count by category: %w", err)
	}
	return counts, nil
}

// AverageResolutionHours averages time-to-resolution over resolved
// incidents that carry a resolution stamp.
func (r *Repository) AverageResolutionHours(ctx context.Context) (float64, error) {
	query := `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (resolved_at - created_at)) / 3600), 0)
		FROM incidents
		WHERE status = 'resolved' AND resolved_at IS NOT NULL
	`
	var hours float64
	if err := r.db.QueryRow(ctx, query).Scan(&hours); err != nil {
		return 0, fmt.Errorf("average resolution hours: %w", err)
	}
	return hours, nil
}

// ListRecent returns the newest incidents with their creator attached.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]*incidents.RecentIncident, error) {
	query := `
		SELECT i.id, i.title, i.description, i.severity, i.status, i.category,
		       i.affected_systems, i.created_at,
		       COALESCE(u.first_name, ''), COALESCE(u.last_name, ''), COALESCE(u.email, '')
		FROM incidents i
		LEFT JOIN users u ON u.id = i.created_by
		ORDER BY i.created_at DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent incidents: %w", err)
	}
	defer rows.Close()

	list := []*incidents.RecentIncident{}
	for rows.Next() {
		var recent incidents.RecentIncident
		var firstName, lastName string
		err := rows.Scan(
			&recent.ID,
			&recent.Title,
			&recent.Description,
			&recent.Severity,
			&recent.Status,
			&recent.Category,
			&recent.AffectedSystems,
			&recent.CreatedAt,
			&firstName,
			&lastName,
			&recent.CreatedBy.Email,
		)
		if err != nil {
			return nil, fmt.Errorf("scan recent incident: %w", err)
		}
		recent.CreatedBy.Name = strings.TrimSpace(firstName + " " + lastName)
		list = append(list, &recent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recent incidents: %w", err)
	}
	return list, nil
}

// ListAlerts returns the alert projection of recent high-priority incidents.
func (r *Repository) ListAlerts(ctx context.Context, q incidents.AlertQuery) ([]*incidents.Alert, error) {
	query := `
		SELECT id, title, severity, status, category, source, created_at
		FROM incidents
		WHERE severity = ANY($1) AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, q.Severities, q.Since, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	list := []*incidents.Alert{}
	for rows.Next() {
		alert := incidents.Alert{Type: "incident"}
		err := rows.Scan(
			&alert.ID,
			&alert.Title,
			&alert.Severity,
			&alert.Status,
			&alert.Category,
			&alert.Source,
			&alert.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		list = append(list, &alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return list, nil
}

// UpsertBlockedIP inserts or refreshes a blocked IP entry.
func (r *Repository) UpsertBlockedIP(ctx context.Context, blocked *domain.BlockedIP) (*domain.BlockedIP, error) {
	query := `
		INSERT INTO blocked_ips (ip, reason, blocked_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (ip) DO UPDATE
		SET reason = EXCLUDED.reason, blocked_at = now(), blocked_by = EXCLUDED.blocked_by
		RETURNING ip, reason, blocked_at, COALESCE(blocked_by::text, '')
	`
	var out domain.BlockedIP
	err := r.db.QueryRow(ctx, query,
		blocked.IP,
		blocked.Reason,
		nullUUID(blocked.BlockedBy),
	).Scan(&out.IP, &out.Reason, &out.BlockedAt, &out.BlockedBy)
	if err != nil {
		return nil, fmt.Errorf("upsert blocked ip: %w", err)
	}
	return &out, nil
}

// DeleteBlockedIP removes a blocked IP and reports how many rows went away.
func (r *Repository) DeleteBlockedIP(ctx context.Context, ip string) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM blocked_ips WHERE ip = $1`, ip)
	if err != nil {
		return 0, fmt.Errorf("delete blocked ip: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// escapeLike escapes LIKE metacharacters so user input matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

var sortColumns = map[string]string{
	"createdAt":  "created_at",
	"severity":   "severity",
	"status":     "status",
	"category":   "category",
	"detectedAt": "detected_at",
}

// sortColumn maps an already-normalized sort key to its column. Falls back
// to created_at so a stale key can never reach the SQL as-is.
func sortColumn(sortBy string) string {
	if col, ok := sortColumns[sortBy]; ok {
		return col
	}
	return "created_at"
}

func sortDirection(dir string) string {
	if dir == "asc" {
		return "ASC"
	}
	return "DESC"
}

func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func nullUUID(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
