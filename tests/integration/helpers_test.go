//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/opshield/incident-sentry/internal/testutil"
	"github.com/stretchr/testify/require"
)

// loginAsAdmin authenticates the client as the seeded admin account.
func loginAsAdmin(t *testing.T, client *testutil.Client) {
	t.Helper()
	client.LoginAs(t, adminEmail, adminPassword)
}

// registeredUser describes an account created through the API.
type registeredUser struct {
	ID       string
	Email    string
	Password string
	Token    string
}

// registerTestUser creates a fresh account with the given role and returns
// its credentials plus the token issued at registration.
func registerTestUser(t *testing.T, client *testutil.Client, role string) registeredUser {
	t.Helper()

	email := testutil.RandomEmail()
	password := "password-" + testutil.RandomString(4)

	resp, err := client.POST("/api/auth/register", map[string]string{
		"username":  testutil.RandomUsername(),
		"email":     email,
		"password":  password,
		"firstName": "Test",
		"lastName":  "User",
		"role":      role,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	testutil.DecodeJSON(t, resp, &result)
	require.NotEmpty(t, result.Token)
	require.NotEmpty(t, result.User.ID)

	return registeredUser{
		ID:       result.User.ID,
		Email:    email,
		Password: password,
		Token:    result.Token,
	}
}

// incidentOption mutates an incident creation payload.
type incidentOption func(map[string]interface{})

func withSeverity(severity string) incidentOption {
	return func(m map[string]interface{}) {
		m["severity"] = severity
	}
}

func withStatus(status string) incidentOption {
	return func(m map[string]interface{}) {
		m["status"] = status
	}
}

func withCategory(category string) incidentOption {
	return func(m map[string]interface{}) {
		m["category"] = category
	}
}

func withIPAddresses(ips ...string) incidentOption {
	return func(m map[string]interface{}) {
		m["ipAddresses"] = ips
	}
}

// createTestIncident creates an incident and returns its ID.
func createTestIncident(t *testing.T, client *testutil.Client, title string, opts ...incidentOption) string {
	t.Helper()

	payload := map[string]interface{}{
		"title":       title,
		"description": "Test incident description",
		"severity":    "medium",
		"category":    "malware",
	}
	for _, opt := range opts {
		opt(payload)
	}

	resp, err := client.POST("/api/incidents", payload)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	require.NotEmpty(t, result.Data.ID)
	return result.Data.ID
}

// incidentView is the incident shape the tests assert against.
type incidentView struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
	Status      string   `json:"status"`
	Category    string   `json:"category"`
	Source      string   `json:"source"`
	IPAddresses []string `json:"ipAddresses"`
	ResolvedAt  *string  `json:"resolvedAt"`
	AssignedTo  string   `json:"assignedTo"`
	CreatedBy   string   `json:"createdBy"`
	UpdatedBy   string   `json:"updatedBy"`
	Timeline    []struct {
		Action      string `json:"action"`
		Description string `json:"description"`
		User        string `json:"user"`
	} `json:"timeline"`
	EstimatedImpact string `json:"estimatedImpact"`
}

// getIncident fetches an incident by ID.
func getIncident(t *testing.T, client *testutil.Client, id string) incidentView {
	t.Helper()

	resp, err := client.GET("/api/incidents/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data incidentView `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}
