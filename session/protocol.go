// Package session implements the per-connection WebSocket protocol
// (spec §4.F): one JSON envelope message plane multiplexing
// JOIN_CANVAS, LEAVE_CANVAS, SHAPE_EVENT, BATCH_SYNC, GET_STATE, and
// CURSOR_MOVE over a single gorilla/websocket duplex connection,
// grounded on the teacher's readPump/writePump client pattern.
package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire format for every message exchanged over the
// canvas WebSocket: a type tag plus an opaque data payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound message types.
const (
	MsgJoinCanvas  = "JOIN_CANVAS"
	MsgLeaveCanvas = "LEAVE_CANVAS"
	MsgShapeEvent  = "SHAPE_EVENT"
	MsgBatchSync   = "BATCH_SYNC"
	MsgGetState    = "GET_STATE"
	MsgCursorMove  = "CURSOR_MOVE"
)

// Outbound message types.
const (
	MsgJoinSuccess       = "JOIN_SUCCESS"
	MsgJoinError         = "JOIN_ERROR"
	MsgUserJoined        = "USER_JOINED"
	MsgUserLeft          = "USER_LEFT"
	MsgEventAck          = "EVENT_ACK"
	MsgCanvasState       = "CANVAS_STATE"
	MsgIncrementalUpdate = "INCREMENTAL_UPDATE"
	MsgBatchSyncResult   = "BATCH_SYNC_RESULT"
	MsgError             = "ERROR"
)

func encode(msgType string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Data: raw})
}

// joinCanvasRequest is the data payload of a JOIN_CANVAS message.
type joinCanvasRequest struct {
	CanvasID string `json:"canvasId"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
}

// shapeEventRequest is the data payload of a SHAPE_EVENT message.
type shapeEventRequest struct {
	EventType    string                 `json:"eventType"`
	ShapeID      string                 `json:"shapeId,omitempty"`
	Payload      map[string]interface{} `json:"payload"`
	LocalEventID string                 `json:"localEventId,omitempty"`
}

// batchSyncRequest is the data payload of a BATCH_SYNC message.
type batchSyncRequest struct {
	Events           []batchedEvent `json:"events"`
	LastKnownVersion int64          `json:"lastKnownVersion"`
}

type batchedEvent struct {
	LocalEventID string                 `json:"localEventId"`
	ShapeID      string                 `json:"shapeId,omitempty"`
	EventType    string                 `json:"eventType"`
	Payload      map[string]interface{} `json:"payload"`
	Timestamp    int64                  `json:"timestamp,omitempty"`
}

// getStateRequest is the data payload of a GET_STATE message. Since is
// optional; zero means "send the full snapshot".
type getStateRequest struct {
	Since int64 `json:"since,omitempty"`
}

// cursorMoveRequest is the data payload of a CURSOR_MOVE message.
type cursorMoveRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func parseShapeID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func eventTimestamp(ts int64) time.Time {
	if ts == 0 {
		return time.Now()
	}
	return time.UnixMilli(ts)
}
