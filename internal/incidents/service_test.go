package incidents

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opshield/incident-sentry/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	incidents      map[string]*domain.Incident
	nextID         int
	lastChange     *ChangeSet
	lastBulkChange *BulkStatusChange
	bulkModified   int
	blocked        map[string]*domain.BlockedIP
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		incidents: map[string]*domain.Incident{},
		blocked:   map[string]*domain.BlockedIP{},
	}
}

func (m *mockRepository) CreateIncident(_ context.Context, incident *domain.Incident) error {
	m.nextID++
	incident.ID = fmt.Sprintf("inc-%d", m.nextID)
	incident.CreatedAt = time.Now()
	incident.UpdatedAt = incident.CreatedAt
	m.incidents[incident.ID] = incident
	return nil
}

func (m *mockRepository) GetIncident(_ context.Context, id string) (*domain.Incident, error) {
	if i, ok := m.incidents[id]; ok {
		return i, nil
	}
	return nil, ErrIncidentNotFound
}

func (m *mockRepository) ListIncidents(_ context.Context, _ ListQuery) ([]*domain.Incident, int, error) {
	out := []*domain.Incident{}
	for _, i := range m.incidents {
		out = append(out, i)
	}
	return out, len(out), nil
}

func (m *mockRepository) UpdateIncident(_ context.Context, id string, change ChangeSet) (*domain.Incident, error) {
	incident, ok := m.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	m.lastChange = &change
	if change.Status != nil {
		incident.Status = *change.Status
	}
	if change.Severity != nil {
		incident.Severity = *change.Severity
	}
	if change.Description != nil {
		incident.Description = *change.Description
	}
	if change.ResolvedAt != nil {
		incident.ResolvedAt = change.ResolvedAt
	}
	if change.TimelineEntry != nil {
		incident.Timeline = append(incident.Timeline, *change.TimelineEntry)
	}
	incident.UpdatedBy = change.UpdatedBy
	return incident, nil
}

func (m *mockRepository) BulkUpdateStatus(_ context.Context, ids []string, change BulkStatusChange) (int, error) {
	m.lastBulkChange = &change
	modified := 0
	for _, id := range ids {
		if incident, ok := m.incidents[id]; ok {
			incident.Status = change.Status
			modified++
		}
	}
	m.bulkModified = modified
	return modified, nil
}

func (m *mockRepository) CountIncidents(_ context.Context, _ CountFilter) (int, error) {
	return len(m.incidents), nil
}

func (m *mockRepository) CountByCategory(_ context.Context) (map[string]int, error) {
	return map[string]int{}, nil
}

func (m *mockRepository) AverageResolutionHours(_ context.Context) (float64, error) {
	return 0, nil
}

func (m *mockRepository) ListRecent(_ context.Context, _ int) ([]*RecentIncident, error) {
	return nil, nil
}

func (m *mockRepository) ListAlerts(_ context.Context, _ AlertQuery) ([]*Alert, error) {
	return []*Alert{}, nil
}

func (m *mockRepository) UpsertBlockedIP(_ context.Context, blocked *domain.BlockedIP) (*domain.BlockedIP, error) {
	blocked.BlockedAt = time.Now()
	m.blocked[blocked.IP] = blocked
	return blocked, nil
}

func (m *mockRepository) DeleteBlockedIP(_ context.Context, ip string) (int, error) {
	if _, ok := m.blocked[ip]; !ok {
		return 0, nil
	}
	delete(m.blocked, ip)
	return 1, nil
}

// recordingBroadcaster captures published events.
type recordingBroadcaster struct {
	events []publishedEvent
}

type publishedEvent struct {
	room    string
	event   string
	payload interface{}
}

func (b *recordingBroadcaster) Publish(room, event string, payload interface{}) {
	b.events = append(b.events, publishedEvent{room: room, event: event, payload: payload})
}

var actor = &domain.User{ID: "actor-1", Role: domain.RoleAnalyst}

func validInput() CreateIncidentInput {
	return CreateIncidentInput{
		Title:       "Suspicious login burst",
		Description: "Multiple failed logins from one host",
		Severity:    domain.SeverityHigh,
		Category:    domain.CategoryNetworkIntrusion,
	}
}

func TestCreateIncident_DefaultsAndTimeline(t *testing.T) {
	repo := newMockRepository()
	broadcaster := &recordingBroadcaster{}
	service := NewService(repo, broadcaster)

	incident, err := service.CreateIncident(context.Background(), validInput(), actor)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusOpen, incident.Status)
	assert.Equal(t, domain.SourceManual, incident.Source)
	assert.Equal(t, domain.ImpactModerate, incident.EstimatedImpact)
	assert.Equal(t, "actor-1", incident.CreatedBy)

	require.Len(t, incident.Timeline, 1)
	assert.Equal(t, domain.TimelineActionCreated, incident.Timeline[0].Action)
	assert.Equal(t, "actor-1", incident.Timeline[0].User)

	require.Len(t, broadcaster.events, 1)
	assert.Equal(t, "dashboard", broadcaster.events[0].room)
	assert.Equal(t, "incident_created", broadcaster.events[0].event)
}

func TestCreateIncident_ValidationJoinsMessages(t *testing.T) {
	service := NewService(newMockRepository(), &recordingBroadcaster{})

	_, err := service.CreateIncident(context.Background(), CreateIncidentInput{
		Severity: "urgent",
		Category: "weird",
	}, actor)

	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "title is required")
	assert.Contains(t, err.Error(), "severity is invalid")
	assert.Contains(t, err.Error(), "category is invalid")
}

func TestCreateIncident_RejectsBadIP(t *testing.T) {
	broadcaster := &recordingBroadcaster{}
	service := NewService(newMockRepository(), broadcaster)

	input := validInput()
	input.IPAddresses = []string{"10.0.0.1", "999.1.2.3"}

	_, err := service.CreateIncident(context.Background(), input, actor)
	require.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, broadcaster.events, "nothing may be broadcast on failure")
}

func TestNormalizeListQuery(t *testing.T) {
	tests := []struct {
		name string
		in   ListQuery
		want ListQuery
	}{
		{
			name: "defaults",
			in:   ListQuery{},
			want: ListQuery{Page: 1, Limit: 50, SortBy: "createdAt", SortDir: "desc"},
		},
		{
			name: "limit clamped to 200",
			in:   ListQuery{Limit: 1000},
			want: ListQuery{Page: 1, Limit: 200, SortBy: "createdAt", SortDir: "desc"},
		},
		{
			name: "unknown sort falls back",
			in:   ListQuery{SortBy: "'; DROP TABLE incidents;--", SortDir: "asc"},
			want: ListQuery{Page: 1, Limit: 50, SortBy: "createdAt", SortDir: "desc"},
		},
		{
			name: "valid sort kept",
			in:   ListQuery{SortBy: "severity", SortDir: "asc"},
			want: ListQuery{Page: 1, Limit: 50, SortBy: "severity", SortDir: "asc"},
		},
		{
			name: "bad direction becomes desc",
			in:   ListQuery{SortBy: "severity", SortDir: "sideways"},
			want: ListQuery{Page: 1, Limit: 50, SortBy: "severity", SortDir: "desc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeListQuery(tt.in))
		})
	}
}

func TestListQuery_Offset(t *testing.T) {
	q := NormalizeListQuery(ListQuery{Page: 3, Limit: 20})
	assert.Equal(t, 40, q.Offset())
}

func TestUpdateIncident_TerminalStatusStampsResolvedAt(t *testing.T) {
	repo := newMockRepository()
	broadcaster := &recordingBroadcaster{}
	service := NewService(repo, broadcaster)

	incident, err := service.CreateIncident(context.Background(), validInput(), actor)
	require.NoError(t, err)
	broadcaster.events = nil

	second := &domain.User{ID: "actor-2", Role: domain.RoleAdmin}
	resolved := domain.StatusResolved
	updated, err := service.UpdateIncident(context.Background(), incident.ID, UpdateIncidentInput{
		Status: &resolved,
	}, second)
	require.NoError(t, err)

	require.NotNil(t, updated.ResolvedAt)
	assert.Equal(t, "actor-2", updated.UpdatedBy)
	require.Len(t, updated.Timeline, 2)
	assert.Equal(t, domain.TimelineActionStatusChanged, updated.Timeline[1].Action)

	require.Len(t, broadcaster.events, 1)
	assert.Equal(t, "incidentUpdated", broadcaster.events[0].event)
}

func TestUpdateIncident_NonTerminalStatusLeavesResolvedAt(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &recordingBroadcaster{})

	incident, err := service.CreateIncident(context.Background(), validInput(), actor)
	require.NoError(t, err)

	investigating := domain.StatusInvestigating
	updated, err := service.UpdateIncident(context.Background(), incident.ID, UpdateIncidentInput{
		Status: &investigating,
	}, actor)
	require.NoError(t, err)

	assert.Nil(t, updated.ResolvedAt)
	assert.Nil(t, repo.lastChange.ResolvedAt)
}

func TestUpdateIncident_RejectsInvalidEnums(t *testing.T) {
	service := NewService(newMockRepository(), &recordingBroadcaster{})

	bad := domain.IncidentStatus("paused")
	_, err := service.UpdateIncident(context.Background(), "inc-1", UpdateIncidentInput{Status: &bad}, actor)
	require.ErrorIs(t, err, ErrValidation)
}

func TestUpdateIncident_RejectsMalformedAssignee(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &recordingBroadcaster{})

	incident, err := service.CreateIncident(context.Background(), validInput(), actor)
	require.NoError(t, err)

	assignee := "not-a-uuid"
	_, err = service.UpdateIncident(context.Background(), incident.ID, UpdateIncidentInput{AssignedTo: &assignee}, actor)
	require.ErrorIs(t, err, ErrValidation)
	assert.Nil(t, repo.lastChange, "a malformed assignee must never reach the store")
}

func TestUpdateIncident_NotFound(t *testing.T) {
	service := NewService(newMockRepository(), &recordingBroadcaster{})

	description := "updated"
	_, err := service.UpdateIncident(context.Background(), "missing", UpdateIncidentInput{Description: &description}, actor)
	assert.ErrorIs(t, err, ErrIncidentNotFound)
}

func TestBulkUpdateStatus_EmptyIDList(t *testing.T) {
	repo := newMockRepository()
	broadcaster := &recordingBroadcaster{}
	service := NewService(repo, broadcaster)

	_, err := service.BulkUpdateStatus(context.Background(), nil, domain.StatusClosed, actor)
	assert.ErrorIs(t, err, ErrEmptyIDList)
	assert.Nil(t, repo.lastBulkChange, "no write may happen for an empty id list")
	assert.Empty(t, broadcaster.events)
}

func TestBulkUpdateStatus_SkipsMissingIDs(t *testing.T) {
	repo := newMockRepository()
	broadcaster := &recordingBroadcaster{}
	service := NewService(repo, broadcaster)

	first, err := service.CreateIncident(context.Background(), validInput(), actor)
	require.NoError(t, err)
	second, err := service.CreateIncident(context.Background(), validInput(), actor)
	require.NoError(t, err)
	broadcaster.events = nil

	modified, err := service.BulkUpdateStatus(context.Background(),
		[]string{first.ID, second.ID, "missing"}, domain.StatusContained, actor)
	require.NoError(t, err)
	assert.Equal(t, 2, modified)

	// One broadcast for the whole batch, carrying ids and the new status
	require.Len(t, broadcaster.events, 1)
	assert.Equal(t, "incidentBulkUpdated", broadcaster.events[0].event)
	payload, ok := broadcaster.events[0].payload.(BulkUpdatePayload)
	require.True(t, ok)
	assert.Equal(t, domain.StatusContained, payload.Status)
	assert.Len(t, payload.IDs, 3)
}

func TestBulkUpdateStatus_TerminalStampsResolvedAt(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &recordingBroadcaster{})

	incident, err := service.CreateIncident(context.Background(), validInput(), actor)
	require.NoError(t, err)

	_, err = service.BulkUpdateStatus(context.Background(), []string{incident.ID}, domain.StatusResolved, actor)
	require.NoError(t, err)
	assert.NotNil(t, repo.lastBulkChange.ResolvedAt)

	_, err = service.BulkUpdateStatus(context.Background(), []string{incident.ID}, domain.StatusOpen, actor)
	require.NoError(t, err)
	assert.Nil(t, repo.lastBulkChange.ResolvedAt)
}

func TestBlockIP(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &recordingBroadcaster{})

	blocked, err := service.BlockIP(context.Background(), "203.0.113.7", "brute force", actor)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", blocked.IP)
	assert.Equal(t, "actor-1", blocked.BlockedBy)

	_, err = service.BlockIP(context.Background(), "not-an-ip", "", actor)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = service.BlockIP(context.Background(), "", "", actor)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUnblockIP_ReportsDeletedCount(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, &recordingBroadcaster{})

	_, err := service.BlockIP(context.Background(), "203.0.113.7", "scan", actor)
	require.NoError(t, err)

	deleted, err := service.UnblockIP(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	deleted, err = service.UnblockIP(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}
