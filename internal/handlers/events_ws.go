package handlers

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/pulsewatch/pulsewatch/internal/events"
)

// EventsHandler upgrades dashboard connections to websockets fed by the
// incident event hub
type EventsHandler struct {
	hub      *events.Hub
	upgrader websocket.Upgrader
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(hub *events.Hub) *EventsHandler {
	return &EventsHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth happens at the JWT middleware; origins are handled
			// by the CORS layer in front of the mux.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetupRoutes sets up the websocket route
func (h *EventsHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/events", h.handleEvents)
}

// handleEvents handles GET /ws/events
func (h *EventsHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed: %v", err)
		return
	}
	h.hub.Add(conn)
}
