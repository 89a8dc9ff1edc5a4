// Package realtime provides the websocket fan-out channel for dashboard
// clients. Delivery is best-effort, at-most-once: the channel is a
// notification side-channel, never a source of truth.
package realtime

// Room joined by dashboard clients to receive incident events.
const DashboardRoom = "dashboard"

// Event names emitted to the dashboard room.
const (
	EventIncidentCreated     = "incident_created"
	EventIncidentUpdated     = "incidentUpdated"
	EventIncidentBulkUpdated = "incidentBulkUpdated"
)

// Broadcaster publishes events to a named room. It is decoupled from the
// websocket transport so the repositories can be tested against a no-op
// or recording implementation.
type Broadcaster interface {
	Publish(room, event string, payload interface{})
}

// NopBroadcaster discards all events.
type NopBroadcaster struct{}

// Publish implements Broadcaster.
func (NopBroadcaster) Publish(string, string, interface{}) {}
