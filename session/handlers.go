package session

import (
	"encoding/json"

	"canvashub/events"
	"canvashub/logging"
	"canvashub/room"
	"canvashub/store"
)

func (c *Connection) dispatch(env Envelope) {
	switch env.Type {
	case MsgJoinCanvas:
		c.handleJoinCanvas(env.Data)
	case MsgLeaveCanvas:
		c.leaveCanvas()
	case MsgShapeEvent:
		c.handleShapeEvent(env.Data)
	case MsgBatchSync:
		c.handleBatchSync(env.Data)
	case MsgGetState:
		c.handleGetState(env.Data)
	case MsgCursorMove:
		c.handleCursorMove(env.Data)
	default:
		c.sendError(env.Type, "unknown message type")
	}
}

func (c *Connection) handleJoinCanvas(raw json.RawMessage) {
	var req joinCanvasRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.CanvasID == "" {
		c.sendError(MsgJoinCanvas, "canvasId is required")
		return
	}

	if c.canvasID != "" {
		c.leaveCanvas()
	}

	canvasID, err := parseShapeID(req.CanvasID)
	if err != nil || canvasID == nil {
		c.sendEnvelope(MsgJoinError, map[string]interface{}{"message": "invalid canvasId"})
		return
	}

	if req.Username != "" {
		c.username = req.Username
	}

	if _, err := c.hub.store.GetOrCreateCanvas(c.ctx, *canvasID, req.Name); err != nil {
		logging.Error("join canvas: getOrCreateCanvas failed", map[string]interface{}{"error": err.Error()})
		c.sendEnvelope(MsgJoinError, map[string]interface{}{"message": "failed to open canvas"})
		return
	}

	shapes, version, err := c.hub.store.GetCanvasState(c.ctx, *canvasID)
	if err != nil {
		logging.Error("join canvas: getCanvasState failed", map[string]interface{}{"error": err.Error()})
		c.sendEnvelope(MsgJoinError, map[string]interface{}{"message": "failed to load canvas state"})
		return
	}

	c.canvasID = req.CanvasID
	c.member = &room.Member{ConnectionID: c.connectionID, UserID: c.userID, Send: c.send}
	_, memberCount := c.hub.rooms.Join(req.CanvasID, c.member)

	c.sendEnvelope(MsgJoinSuccess, map[string]interface{}{
		"canvasId": req.CanvasID,
		"userId":   c.userID,
		"username": c.username,
	})
	c.sendEnvelope(MsgCanvasState, map[string]interface{}{
		"canvasId": req.CanvasID,
		"shapes":   shapes,
		"version":  version,
		"users":    memberCount,
	})

	if r, ok := c.hub.rooms.Get(req.CanvasID); ok {
		r.Broadcast(mustEncode(MsgUserJoined, map[string]interface{}{
			"userId":       c.userID,
			"username":     c.username,
			"connectionId": c.connectionID,
			"totalUsers":   memberCount,
		}), c.member)
	}
}

func (c *Connection) handleShapeEvent(raw json.RawMessage) {
	if c.canvasID == "" {
		c.sendError(MsgShapeEvent, "join a canvas before sending events")
		return
	}

	var req shapeEventRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.sendError(MsgShapeEvent, "malformed shape event")
		return
	}

	kind := events.Kind(req.EventType)
	if !events.IsStorable(kind) {
		if events.IsLegacy(kind) {
			c.sendError(MsgShapeEvent, "legacy event kind is read-only, translate before sending")
		} else {
			c.sendError(MsgShapeEvent, "event kind is not a storable shape event")
		}
		return
	}

	shapeID, err := parseShapeID(req.ShapeID)
	if err != nil {
		c.sendError(MsgShapeEvent, "invalid shapeId")
		return
	}

	canvasID, err := parseShapeID(c.canvasID)
	if err != nil || canvasID == nil {
		c.sendError(MsgShapeEvent, "invalid joined canvasId")
		return
	}

	result, err := c.hub.store.StoreEvent(c.ctx, *canvasID, c.userID, kind, shapeID, req.Payload, req.LocalEventID)
	if err != nil {
		logging.Error("store event failed", map[string]interface{}{
			"canvas_id":  c.canvasID,
			"event_type": req.EventType,
			"error":      err.Error(),
		})
		c.sendEnvelope(MsgEventAck, map[string]interface{}{
			"localEventId": req.LocalEventID,
			"stored":       false,
			"hadConflict":  false,
			"error":        "failed to store event",
		})
		return
	}

	c.sendEnvelope(MsgEventAck, map[string]interface{}{
		"localEventId": req.LocalEventID,
		"eventId":      result.EventID,
		"version":      result.Version,
		"stored":       result.Stored,
		"hadConflict":  result.HadConflict,
	})

	if r, ok := c.hub.rooms.Get(c.canvasID); ok {
		r.Broadcast(mustEncode(MsgShapeEvent, map[string]interface{}{
			"eventType":   req.EventType,
			"shapeId":     req.ShapeID,
			"userId":      c.userID,
			"payload":     result.Payload,
			"version":     result.Version,
			"hadConflict": result.HadConflict,
		}), c.member)
	}
}

func (c *Connection) handleBatchSync(raw json.RawMessage) {
	if c.canvasID == "" {
		c.sendError(MsgBatchSync, "join a canvas before syncing")
		return
	}

	var req batchSyncRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.sendError(MsgBatchSync, "malformed batch")
		return
	}

	canvasID, err := parseShapeID(c.canvasID)
	if err != nil || canvasID == nil {
		c.sendError(MsgBatchSync, "invalid joined canvasId")
		return
	}

	missed, err := c.hub.store.EventsSince(c.ctx, *canvasID, req.LastKnownVersion)
	if err != nil {
		logging.Error("batch sync: eventsSince failed", map[string]interface{}{"canvas_id": c.canvasID, "error": err.Error()})
		c.sendEnvelope(MsgBatchSyncResult, map[string]interface{}{"success": false, "message": "failed to load missed events"})
		return
	}

	pending := make([]store.PendingEvent, 0, len(req.Events))
	for _, be := range req.Events {
		kind := events.Kind(be.EventType)
		if !events.IsStorable(kind) {
			continue
		}
		shapeID, err := parseShapeID(be.ShapeID)
		if err != nil {
			continue
		}
		pending = append(pending, store.PendingEvent{
			LocalEventID: be.LocalEventID,
			ShapeID:      shapeID,
			UserID:       c.userID,
			Kind:         kind,
			Payload:      be.Payload,
			Timestamp:    eventTimestamp(be.Timestamp),
		})
	}

	result, err := c.hub.store.StoreBatch(c.ctx, *canvasID, pending)
	if err != nil {
		logging.Error("batch sync failed", map[string]interface{}{"canvas_id": c.canvasID, "error": err.Error()})
		c.sendEnvelope(MsgBatchSyncResult, map[string]interface{}{"success": false, "message": "failed to store batch"})
		return
	}

	shapes, version, err := c.hub.store.GetCanvasState(c.ctx, *canvasID)
	if err != nil {
		logging.Error("batch sync: getCanvasState failed", map[string]interface{}{"canvas_id": c.canvasID, "error": err.Error()})
		c.sendEnvelope(MsgBatchSyncResult, map[string]interface{}{"success": false, "message": "failed to load current state"})
		return
	}

	c.sendEnvelope(MsgBatchSyncResult, map[string]interface{}{
		"success":      true,
		"storedEvents": result.Stored,
		"missedEvents": missed,
		"currentState": map[string]interface{}{"shapes": shapes, "version": version},
		"conflicts":    result.Conflicts,
	})

	if r, ok := c.hub.rooms.Get(c.canvasID); ok {
		for i, stored := range result.Stored {
			if !stored.Stored {
				continue
			}
			r.Broadcast(mustEncode(MsgShapeEvent, map[string]interface{}{
				"eventType":   string(pending[i].Kind),
				"userId":      c.userID,
				"payload":     stored.Payload,
				"version":     stored.Version,
				"hadConflict": stored.HadConflict,
			}), c.member)
		}
	}
}

func (c *Connection) handleGetState(raw json.RawMessage) {
	if c.canvasID == "" {
		c.sendError(MsgGetState, "join a canvas before requesting state")
		return
	}

	var req getStateRequest
	_ = json.Unmarshal(raw, &req)

	canvasID, err := parseShapeID(c.canvasID)
	if err != nil || canvasID == nil {
		c.sendError(MsgGetState, "invalid joined canvasId")
		return
	}

	if req.Since > 0 {
		evs, err := c.hub.store.EventsSince(c.ctx, *canvasID, req.Since)
		if err != nil {
			c.sendError(MsgGetState, "failed to load events since version")
			return
		}
		c.sendEnvelope(MsgIncrementalUpdate, map[string]interface{}{"canvasId": c.canvasID, "events": evs})
		return
	}

	shapes, version, err := c.hub.store.GetCanvasState(c.ctx, *canvasID)
	if err != nil {
		c.sendError(MsgGetState, "failed to load canvas state")
		return
	}
	c.sendEnvelope(MsgCanvasState, map[string]interface{}{"canvasId": c.canvasID, "shapes": shapes, "version": version})
}

// handleCursorMove is ephemeral: never stored, just fanned out.
func (c *Connection) handleCursorMove(raw json.RawMessage) {
	if c.canvasID == "" {
		return
	}
	var req cursorMoveRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}
	r, ok := c.hub.rooms.Get(c.canvasID)
	if !ok {
		return
	}
	r.Broadcast(mustEncode(MsgCursorMove, map[string]interface{}{
		"userId": c.userID,
		"x":      req.X,
		"y":      req.Y,
	}), c.member)
}
