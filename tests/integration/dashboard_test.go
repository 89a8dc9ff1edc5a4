//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/opshield/incident-sentry/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dashboardStats struct {
	Overview struct {
		Total             int     `json:"total"`
		Open              int     `json:"open"`
		Investigating     int     `json:"investigating"`
		Contained         int     `json:"contained"`
		Resolved          int     `json:"resolved"`
		Closed            int     `json:"closed"`
		AvgResolutionTime float64 `json:"avgResolutionTime"`
	} `json:"overview"`
	Severity struct {
		Low      int `json:"low"`
		Medium   int `json:"medium"`
		High     int `json:"high"`
		Critical int `json:"critical"`
	} `json:"severity"`
	Categories map[string]int `json:"categories"`
	Trends     struct {
		Last24Hours int `json:"last24Hours"`
		Today       int `json:"today"`
	} `json:"trends"`
}

func getStats(t *testing.T, client *testutil.Client) dashboardStats {
	t.Helper()

	resp, err := client.GET("/api/dashboard/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data dashboardStats `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

func TestDashboard_RequiresAuth(t *testing.T) {
	client := newTestClientWithoutValidation()

	resp, err := client.GET("/api/dashboard/stats")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestDashboard_Stats_ReflectsIncidents(t *testing.T) {
	client := newTestClient(t)
	loginAsAdmin(t, client)

	before := getStats(t, client)

	createTestIncident(t, client, "Dashboard ddos incident", withSeverity("critical"), withCategory("ddos"))
	id := createTestIncident(t, client, "Dashboard resolved incident", withSeverity("low"))

	resp, err := client.PUT("/api/incidents/"+id, map[string]interface{}{
		"status": "resolved",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	after := getStats(t, client)

	assert.Equal(t, before.Overview.Total+2, after.Overview.Total)
	assert.Equal(t, before.Overview.Resolved+1, after.Overview.Resolved)
	assert.Equal(t, before.Severity.Critical+1, after.Severity.Critical)
	assert.Equal(t, before.Severity.Low+1, after.Severity.Low)
	assert.Equal(t, before.Categories["ddos"]+1, after.Categories["ddos"])
	assert.GreaterOrEqual(t, after.Trends.Last24Hours, 2)
	assert.GreaterOrEqual(t, after.Trends.Today, 2)
	assert.GreaterOrEqual(t, after.Overview.AvgResolutionTime, 0.0)
}

func TestDashboard_RecentIncidents(t *testing.T) {
	client := newTestClient(t)
	loginAsAdmin(t, client)

	createTestIncident(t, client, "Most recent incident")

	resp, err := client.GET("/api/dashboard/recent-incidents?limit=3")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Count int `json:"count"`
		Data  []struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			CreatedBy struct {
				Name  string `json:"name"`
				Email string `json:"email"`
			} `json:"createdBy"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	require.NotEmpty(t, result.Data)
	assert.Equal(t, len(result.Data), result.Count)
	assert.LessOrEqual(t, result.Count, 3)
	assert.Equal(t, "Most recent incident", result.Data[0].Title)
	assert.Equal(t, adminEmail, result.Data[0].CreatedBy.Email)
	assert.NotEmpty(t, result.Data[0].CreatedBy.Name)
}
