package realtime

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/opshield/incident-sentry/internal/pkg/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The HTTP layer already applies CORS policy; the upgrade itself is open.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS handles GET /ws, upgrading the connection and starting the
// client pumps. Clients must send a join message before receiving events.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		id:     uuid.New().String(),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		joined: make(map[string]bool),
	}

	h.add(client)

	go client.writePump()
	go client.readPump()
}

func (c *Client) joinDashboard() {
	if c.inRoom(DashboardRoom) {
		return
	}
	c.join(DashboardRoom)
	metrics.RealtimeClients.WithLabelValues(DashboardRoom).Inc()
	slog.Debug("realtime client joined room", "client_id", c.id, "room", DashboardRoom)
}
