package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulsewatch/pulsewatch/internal/notify"
)

const (
	writeTimeout = 10 * time.Second

	// Per-client send buffer; slow consumers are dropped when it fills.
	sendBuffer = 16
)

// Message is the JSON document pushed to websocket subscribers
type Message struct {
	Kind         string `json:"kind"`
	IncidentUUID string `json:"incident_uuid,omitempty"`
	Title        string `json:"title,omitempty"`
	Severity     string `json:"severity,omitempty"`
	Status       string `json:"status,omitempty"`
	Level        int    `json:"escalation_level,omitempty"`
	Context      string `json:"context,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// Hub broadcasts incident lifecycle events to connected websocket clients.
// It implements notify.Notifier so it plugs into the same fan-out as Slack.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
	}
}

// Add registers a websocket connection and starts its writer. The hub owns
// the connection from this point and closes it when the client is dropped.
func (h *Hub) Add(conn *websocket.Conn) {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	go h.readLoop(c)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Notify broadcasts the event to all connected clients
func (h *Hub) Notify(_ context.Context, event notify.Event) {
	msg := Message{
		Kind:      string(event.Kind),
		Context:   event.Context,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if event.Incident != nil {
		msg.IncidentUUID = event.Incident.UUID
		msg.Title = event.Incident.Title
		msg.Severity = string(event.Incident.Severity)
		msg.Status = string(event.Incident.Status)
		msg.Level = event.Incident.EscalationLevel
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal event message: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Buffer full, the client is too slow to keep.
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(c)
			return
		}
	}
}

// readLoop drains the connection so control frames are processed and we
// notice when the peer goes away.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}
