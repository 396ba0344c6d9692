package client

import (
	"sort"
	"sync"

	"canvashub/events"
)

// ShapeSnapshot is the client's last known server-confirmed view of
// one shape.
type ShapeSnapshot struct {
	ID         string
	Type       string
	Properties map[string]interface{}
	ZIndex     int
	Deleted    bool
}

// Cache is the local read model (spec §4.H): a server snapshot
// overlaid with whatever local edits haven't been acknowledged yet, so
// the UI can render optimistically without waiting on a round trip.
type Cache struct {
	mutex    sync.RWMutex
	snapshot map[string]ShapeSnapshot
	version  int64
	pending  map[string]PendingEvent // local event id -> event
}

// NewCache returns an empty local cache.
func NewCache() *Cache {
	return &Cache{
		snapshot: make(map[string]ShapeSnapshot),
		pending:  make(map[string]PendingEvent),
	}
}

// ApplySnapshot replaces the server-confirmed base state, typically
// after a JOIN_CANVAS/GET_STATE response or a full reconnect resync.
func (c *Cache) ApplySnapshot(shapes []ShapeSnapshot, version int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.snapshot = make(map[string]ShapeSnapshot, len(shapes))
	for _, s := range shapes {
		c.snapshot[s.ID] = s
	}
	c.version = version
}

// TrackPending records a locally-applied, not-yet-acknowledged edit so
// EffectiveState can keep showing it until the server confirms or
// rejects it.
func (c *Cache) TrackPending(ev PendingEvent) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.pending[ev.LocalEventID] = ev
}

// ConfirmPending drops a pending edit once the server has
// acknowledged it — the snapshot is expected to be updated separately
// from the ack's resolved payload.
func (c *Cache) ConfirmPending(localEventID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.pending, localEventID)
}

// UpsertShape folds a server-confirmed shape state into the snapshot,
// e.g. after an EVENT_ACK or an INCREMENTAL_UPDATE from another user.
func (c *Cache) UpsertShape(s ShapeSnapshot, version int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.snapshot[s.ID] = s
	if version > c.version {
		c.version = version
	}
}

// RemoveShape marks a shape deleted in the snapshot.
func (c *Cache) RemoveShape(shapeID string, version int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if s, ok := c.snapshot[shapeID]; ok {
		s.Deleted = true
		c.snapshot[shapeID] = s
	}
	if version > c.version {
		c.version = version
	}
}

// EffectiveState returns the snapshot with every pending edit folded
// in, applied in timestamp order using the same per-kind projection
// rules the server uses (spec §4.D.1), so the UI sees exactly what the
// server would have committed — a pending SHAPE_MOVED patches x/y
// rather than writing a raw "position" property, for instance.
func (c *Cache) EffectiveState() []ShapeSnapshot {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	working := make(map[string]ShapeSnapshot, len(c.snapshot))
	for id, s := range c.snapshot {
		working[id] = s
	}

	ordered := make([]PendingEvent, 0, len(c.pending))
	for _, ev := range c.pending {
		ordered = append(ordered, ev)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Timestamp.Before(ordered[j].Timestamp) })

	for _, ev := range ordered {
		applyPendingProjection(working, ev)
	}

	out := make([]ShapeSnapshot, 0, len(working))
	for _, s := range working {
		if !s.Deleted {
			out = append(out, s)
		}
	}
	return out
}

// applyPendingProjection folds one not-yet-acknowledged event into
// working, mirroring the store's projection rules (spec §4.D.1) for
// the kinds pending events can carry.
func applyPendingProjection(working map[string]ShapeSnapshot, ev PendingEvent) {
	if ev.ShapeID == "" {
		return
	}

	switch events.Kind(ev.EventType) {
	case events.ShapeCreated:
		shapeType, _ := ev.Payload["type"].(string)
		zIndex := 0
		if z, ok := ev.Payload["zIndex"].(float64); ok {
			zIndex = int(z)
		}
		working[ev.ShapeID] = ShapeSnapshot{
			ID:         ev.ShapeID,
			Type:       shapeType,
			Properties: events.NormalizePropertiesPayload(ev.Payload),
			ZIndex:     zIndex,
		}

	case events.ShapeEdited:
		s := working[ev.ShapeID]
		s.ID = ev.ShapeID
		s.Properties = mergeProperties(s.Properties, events.NormalizePropertiesPayload(ev.Payload))
		working[ev.ShapeID] = s

	case events.ShapeMoved, events.DragEnd:
		if pos, ok := pendingPosition(events.Kind(ev.EventType), ev.Payload); ok {
			s := working[ev.ShapeID]
			s.ID = ev.ShapeID
			s.Properties = mergeProperties(s.Properties, map[string]interface{}{"x": pos.X, "y": pos.Y})
			working[ev.ShapeID] = s
		}

	case events.ShapeDeleted:
		s := working[ev.ShapeID]
		s.ID = ev.ShapeID
		s.Deleted = true
		working[ev.ShapeID] = s
	}
}

// pendingPosition extracts the position patch for a pending
// SHAPE_MOVED or DRAG_END event, preferring DRAG_END's endPosition,
// falling back to startPosition, and otherwise accepting the generic
// nested-or-flat position form.
func pendingPosition(kind events.Kind, payload map[string]interface{}) (events.Position, bool) {
	if kind == events.DragEnd {
		if end, ok := payload["endPosition"].(map[string]interface{}); ok {
			if pos, ok := events.NormalizePositionPayload(map[string]interface{}{"position": end}); ok {
				return pos, true
			}
		}
		if start, ok := payload["startPosition"].(map[string]interface{}); ok {
			if pos, ok := events.NormalizePositionPayload(map[string]interface{}{"position": start}); ok {
				return pos, true
			}
		}
	}
	return events.NormalizePositionPayload(payload)
}

// Version returns the last server version the cache was synced to.
func (c *Cache) Version() int64 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.version
}

func mergeProperties(base map[string]interface{}, patch map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
