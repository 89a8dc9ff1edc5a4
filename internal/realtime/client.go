package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Client is a single websocket connection. Clients receive nothing until
// they send a join message for a room.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	joined map[string]bool
}

// joinRequest is the only inbound message kind clients may send.
type joinRequest struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

func (c *Client) inRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joined[room]
}

func (c *Client) rooms() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rooms := make(map[string]bool, len(c.joined))
	for room := range c.joined {
		rooms[room] = true
	}
	return rooms
}

func (c *Client) join(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined[room] = true
}

// readPump consumes inbound messages (join requests) until the
// connection drops, then unregisters the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req joinRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		if req.Type == "join" && req.Room == DashboardRoom {
			c.joinDashboard()
		}
	}
}

// writePump forwards the send channel to the connection and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
