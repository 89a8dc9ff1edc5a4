// Package dashboard aggregates incident statistics for the operations view.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/opshield/incident-sentry/internal/domain"
	"github.com/opshield/incident-sentry/internal/incidents"
)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 50
)

// Repository is the slice of incident storage the dashboard reads from.
type Repository interface {
	CountIncidents(ctx context.Context, f incidents.CountFilter) (int, error)
	CountByCategory(ctx context.Context) (map[string]int, error)
	AverageResolutionHours(ctx context.Context) (float64, error)
	ListRecent(ctx context.Context, limit int) ([]*incidents.RecentIncident, error)
}

// Service computes dashboard aggregates.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new dashboard service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Overview carries the headline totals.
type Overview struct {
	Total             int     `json:"total"`
	Open              int     `json:"open"`
	Investigating     int     `json:"investigating"`
	Contained         int     `json:"contained"`
	Resolved          int     `json:"resolved"`
	Closed            int     `json:"closed"`
	AvgResolutionTime float64 `json:"avgResolutionTime"`
}

// SeverityBreakdown carries per-severity counts.
type SeverityBreakdown struct {
	Low      int `json:"low"`
	Medium   int `json:"medium"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}

// Trends carries the recent-activity counts.
type Trends struct {
	Last24Hours int `json:"last24Hours"`
	Today       int `json:"today"`
}

// Stats is the full dashboard aggregate. Each value is computed with its
// own query, so concurrent writes can skew individual numbers slightly.
type Stats struct {
	Overview   Overview          `json:"overview"`
	Severity   SeverityBreakdown `json:"severity"`
	Categories map[string]int    `json:"categories"`
	Trends     Trends            `json:"trends"`
}

// Stats assembles the aggregate as of call time.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	var err error

	if stats.Overview.Total, err = s.repo.CountIncidents(ctx, incidents.CountFilter{}); err != nil {
		return nil, fmt.Errorf("total count: %w", err)
	}

	statusCounts := []struct {
		status domain.IncidentStatus
		target *int
	}{
		{domain.StatusOpen, &stats.Overview.Open},
		{domain.StatusInvestigating, &stats.Overview.Investigating},
		{domain.StatusContained, &stats.Overview.Contained},
		{domain.StatusResolved, &stats.Overview.Resolved},
		{domain.StatusClosed, &stats.Overview.Closed},
	}
	for _, c := range statusCounts {
		status := c.status
		if *c.target, err = s.repo.CountIncidents(ctx, incidents.CountFilter{Status: &status}); err != nil {
			return nil, fmt.Errorf("count status %s: %w", status, err)
		}
	}

	severityCounts := []struct {
		severity domain.Severity
		target   *int
	}{
		{domain.SeverityLow, &stats.Severity.Low},
		{domain.SeverityMedium, &stats.Severity.Medium},
		{domain.SeverityHigh, &stats.Severity.High},
		{domain.SeverityCritical, &stats.Severity.Critical},
	}
	for _, c := range severityCounts {
		severity := c.severity
		if *c.target, err = s.repo.CountIncidents(ctx, incidents.CountFilter{Severity: &severity}); err != nil {
			return nil, fmt.Errorf("count severity %s: %w", severity, err)
		}
	}

	if stats.Categories, err = s.repo.CountByCategory(ctx); err != nil {
		return nil, fmt.Errorf("count by category: %w", err)
	}

	now := s.now()
	last24 := now.Add(-24 * time.Hour)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if stats.Trends.Last24Hours, err = s.repo.CountIncidents(ctx, incidents.CountFilter{CreatedSince: &last24}); err != nil {
		return nil, fmt.Errorf("count last 24h: %w", err)
	}
	if stats.Trends.Today, err = s.repo.CountIncidents(ctx, incidents.CountFilter{CreatedSince: &midnight}); err != nil {
		return nil, fmt.Errorf("count today: %w", err)
	}

	if stats.Overview.AvgResolutionTime, err = s.repo.AverageResolutionHours(ctx); err != nil {
		return nil, fmt.Errorf("average resolution time: %w", err)
	}

	return stats, nil
}

// RecentIncidents returns the newest incidents in a trimmed projection.
// Limit defaults to 10 and is capped at 50.
func (s *Service) RecentIncidents(ctx context.Context, limit int) ([]*incidents.RecentIncident, error) {
	if limit < 1 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	return s.repo.ListRecent(ctx, limit)
}
