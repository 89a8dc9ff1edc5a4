//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/opshield/incident-sentry/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth_ReturnsUptime(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.GET("/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Status      string  `json:"status"`
		Timestamp   string  `json:"timestamp"`
		Uptime      float64 `json:"uptime"`
		Environment string  `json:"environment"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, "OK", result.Status)
	assert.NotEmpty(t, result.Timestamp)
	assert.GreaterOrEqual(t, result.Uptime, 0.0)
	assert.Equal(t, "test", result.Environment)
}

func TestReadyz_ChecksDatabase(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.GET("/readyz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", testutil.ReadBody(t, resp))
}

func TestVersion_ReturnsBuildInfo(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.GET("/version")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Version string `json:"version"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.NotEmpty(t, result.Version)
}

func TestNotFound_ReturnsJSON(t *testing.T) {
	client := newTestClientWithoutValidation()

	resp, err := client.GET("/api/no-such-endpoint")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.False(t, result.Success)
	assert.Equal(t, "endpoint not found", result.Message)
}

func TestElasticsearchPing_Compatibility(t *testing.T) {
	client := newTestClient(t)
	loginAsAdmin(t, client)

	resp, err := client.GET("/api/elasticsearch/ping")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.True(t, result.Success)
	assert.Equal(t, "ok", result.Message)
}
