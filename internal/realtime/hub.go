package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opshield/incident-sentry/internal/pkg/metrics"
)

// Message is the wire format pushed to clients.
type Message struct {
	Event     string      `json:"event"`
	Room      string      `json:"room"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub maintains the set of active connections and fans events out to the
// rooms they joined. Implements Broadcaster.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	closed  bool
}

// NewHub creates a new hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]bool)}
}

// Publish sends an event to every client that joined the room. A client
// with a full send buffer is dropped: there is no backlog and no replay.
func (h *Hub) Publish(room, event string, payload interface{}) {
	data, err := json.Marshal(Message{
		Event:     event,
		Room:      room,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		slog.Error("failed to marshal realtime message", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	var stale []*Client
	for client := range h.clients {
		if !client.inRoom(room) {
			continue
		}
		select {
		case client.send <- data:
		default:
			stale = append(stale, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range stale {
		slog.Warn("dropping slow realtime client", "client_id", client.id)
		h.remove(client)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients. Used during shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.closed = true
	h.mu.Unlock()

	for _, client := range clients {
		close(client.send)
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(client.send)
		return
	}
	h.clients[client] = true
	slog.Debug("realtime client connected", "client_id", client.id)
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	for room := range client.rooms() {
		metrics.RealtimeClients.WithLabelValues(room).Dec()
	}
	slog.Debug("realtime client disconnected", "client_id", client.id)
}
