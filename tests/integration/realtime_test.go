//go:build integration

package integration

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsMessage mirrors the realtime wire format.
type wsMessage struct {
	Event     string          `json:"event"`
	Room      string          `json:"room"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

func dialDashboard(t *testing.T) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	err = conn.WriteJSON(map[string]string{"type": "join", "room": "dashboard"})
	require.NoError(t, err)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestRealtime_IncidentCreatedReachesDashboard(t *testing.T) {
	conn := dialDashboard(t)

	// The join message is processed asynchronously; give the read pump a
	// moment before triggering the event.
	time.Sleep(100 * time.Millisecond)

	client := newTestClient(t)
	loginAsAdmin(t, client)
	id := createTestIncident(t, client, "Broadcast incident", withSeverity("critical"))

	msg := readEvent(t, conn)
	assert.Equal(t, "incident_created", msg.Event)
	assert.Equal(t, "dashboard", msg.Room)
	assert.False(t, msg.Timestamp.IsZero())

	var payload struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, id, payload.ID)
	assert.Equal(t, "Broadcast incident", payload.Title)
}

func TestRealtime_StatusChangeReachesDashboard(t *testing.T) {
	client := newTestClient(t)
	loginAsAdmin(t, client)
	id := createTestIncident(t, client, "Broadcast update incident")

	conn := dialDashboard(t)
	time.Sleep(100 * time.Millisecond)

	resp, err := client.PUT("/api/incidents/"+id, map[string]interface{}{
		"status": "investigating",
	})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	resp.Body.Close()

	msg := readEvent(t, conn)
	assert.Equal(t, "incidentUpdated", msg.Event)

	var payload struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, id, payload.ID)
	assert.Equal(t, "investigating", payload.Status)
}

func TestRealtime_NoEventsBeforeJoin(t *testing.T) {
	wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client := newTestClient(t)
	loginAsAdmin(t, client)
	createTestIncident(t, client, "Invisible incident")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(500*time.Millisecond)))
	var msg wsMessage
	err = conn.ReadJSON(&msg)
	assert.Error(t, err, "clients that never joined a room receive nothing")
}
