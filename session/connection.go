package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"canvashub/logging"
	"canvashub/room"
)

// Connection is one live WebSocket connection, multiplexing the
// envelope protocol on top of it. Mirrors the teacher's Client:
// readPump/writePump goroutine pair, ping/pong liveness, a buffered
// send channel the rest of the process writes into.
type Connection struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	connectionID string
	userID       string
	username     string

	ctx    context.Context
	cancel context.CancelFunc

	canvasID string
	member   *room.Member
}

func (c *Connection) readPump() {
	defer func() {
		c.leaveCanvas()
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.wsCfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.wsCfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.wsCfg.PongTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error("websocket read error", map[string]interface{}{
					"connection_id": c.connectionID,
					"error":         err.Error(),
				})
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.sendError("", "malformed envelope")
			continue
		}
		c.dispatch(env)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.wsCfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.wsCfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.wsCfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue writes a pre-encoded envelope to this connection only,
// dropping it rather than blocking if the send buffer is full.
func (c *Connection) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		logging.Warn("dropping message, connection send buffer full", map[string]interface{}{
			"connection_id": c.connectionID,
		})
	}
}

func (c *Connection) sendEnvelope(msgType string, data interface{}) {
	payload, err := encode(msgType, data)
	if err != nil {
		logging.Error("failed to encode outbound envelope", map[string]interface{}{
			"type":  msgType,
			"error": err.Error(),
		})
		return
	}
	c.enqueue(payload)
}

func (c *Connection) sendError(context, message string) {
	c.sendEnvelope(MsgError, map[string]interface{}{"context": context, "message": message})
}

func (c *Connection) leaveCanvas() {
	if c.canvasID == "" || c.member == nil {
		return
	}
	remaining := c.hub.rooms.Leave(c.canvasID, c.member)
	if r, ok := c.hub.rooms.Get(c.canvasID); ok {
		r.Broadcast(mustEncode(MsgUserLeft, map[string]interface{}{
			"userId":        c.userID,
			"connectionId":  c.connectionID,
			"remainingUsers": remaining,
		}), nil)
	}
	c.canvasID = ""
	c.member = nil
}

func mustEncode(msgType string, data interface{}) []byte {
	payload, err := encode(msgType, data)
	if err != nil {
		logging.Error("failed to encode broadcast envelope", map[string]interface{}{
			"type":  msgType,
			"error": err.Error(),
		})
		return nil
	}
	return payload
}
