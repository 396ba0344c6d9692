package session

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"canvashub/config"
	"canvashub/logging"
	"canvashub/room"
	"canvashub/store"
)

// Hub wires the WebSocket transport to the room manager and the event
// store. One Hub per process; ServeWS upgrades one connection at a
// time and hands it off to a Connection.
type Hub struct {
	rooms  *room.Manager
	store  *store.Store
	wsCfg  config.WebSocketConfig
	upgrader websocket.Upgrader
}

// NewHub constructs a Hub over an already-initialized store and room
// manager.
func NewHub(st *store.Store, rooms *room.Manager, wsCfg config.WebSocketConfig) *Hub {
	return &Hub{
		rooms: rooms,
		store: st,
		wsCfg: wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsCfg.ReadBufferSize,
			WriteBufferSize: wsCfg.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the HTTP request to a WebSocket and spins up the
// reader/writer goroutine pair for the new connection. userID
// identifies the caller; canvashub does not perform authentication
// itself (spec Non-goals) so it trusts whatever the HTTP layer in
// front of it has already established.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		hub:          h,
		conn:         conn,
		send:         make(chan []byte, h.wsCfg.SendBufferSize),
		connectionID: uuid.NewString(),
		userID:       userID,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writePump()
	go c.readPump()
}
