package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveStateOverlaysPendingOnSnapshot(t *testing.T) {
	c := NewCache()
	c.ApplySnapshot([]ShapeSnapshot{
		{ID: "s1", Type: "rect", Properties: map[string]interface{}{"x": float64(1), "color": "#000"}},
	}, 5)

	c.TrackPending(PendingEvent{LocalEventID: "e1", ShapeID: "s1", EventType: "SHAPE_EDITED", Payload: map[string]interface{}{"color": "#fff"}, Timestamp: time.Now()})

	state := c.EffectiveState()
	assert.Len(t, state, 1)
	assert.Equal(t, float64(1), state[0].Properties["x"])
	assert.Equal(t, "#fff", state[0].Properties["color"], "pending edit overlays the snapshot")
}

func TestEffectiveStateOmitsDeletedShapes(t *testing.T) {
	c := NewCache()
	c.ApplySnapshot([]ShapeSnapshot{{ID: "s1", Type: "rect"}}, 1)
	c.RemoveShape("s1", 2)

	assert.Empty(t, c.EffectiveState())
	assert.Equal(t, int64(2), c.Version())
}

func TestEffectiveStateAppliesPendingShapeMovedAsPositionPatch(t *testing.T) {
	c := NewCache()
	c.ApplySnapshot([]ShapeSnapshot{
		{ID: "s1", Properties: map[string]interface{}{"x": float64(0), "y": float64(0), "color": "#000"}},
	}, 1)

	c.TrackPending(PendingEvent{
		LocalEventID: "e1", ShapeID: "s1", EventType: "SHAPE_MOVED",
		Payload:   map[string]interface{}{"position": map[string]interface{}{"x": float64(10), "y": float64(20)}},
		Timestamp: time.Now(),
	})

	state := c.EffectiveState()
	require.Len(t, state, 1)
	assert.Equal(t, float64(10), state[0].Properties["x"])
	assert.Equal(t, float64(20), state[0].Properties["y"])
	assert.Equal(t, "#000", state[0].Properties["color"], "unrelated properties survive the position patch")
	_, hasPosition := state[0].Properties["position"]
	assert.False(t, hasPosition, "SHAPE_MOVED patches x/y rather than writing a raw position property")
}

func TestEffectiveStateOrdersPendingEditsByTimestamp(t *testing.T) {
	c := NewCache()
	c.ApplySnapshot([]ShapeSnapshot{{ID: "s1", Properties: map[string]interface{}{}}}, 1)

	later := time.Now()
	earlier := later.Add(-time.Second)

	c.TrackPending(PendingEvent{LocalEventID: "e2", ShapeID: "s1", EventType: "SHAPE_EDITED", Payload: map[string]interface{}{"color": "#fff"}, Timestamp: later})
	c.TrackPending(PendingEvent{LocalEventID: "e1", ShapeID: "s1", EventType: "SHAPE_EDITED", Payload: map[string]interface{}{"color": "#000"}, Timestamp: earlier})

	state := c.EffectiveState()
	require.Len(t, state, 1)
	assert.Equal(t, "#fff", state[0].Properties["color"], "the later-timestamped edit must win regardless of map iteration order")
}

func TestConfirmPendingDropsOverlay(t *testing.T) {
	c := NewCache()
	c.ApplySnapshot([]ShapeSnapshot{{ID: "s1", Properties: map[string]interface{}{"x": float64(1)}}}, 1)
	c.TrackPending(PendingEvent{LocalEventID: "e1", ShapeID: "s1", Payload: map[string]interface{}{"x": float64(2)}})

	c.ConfirmPending("e1")
	c.UpsertShape(ShapeSnapshot{ID: "s1", Properties: map[string]interface{}{"x": float64(2)}}, 2)

	state := c.EffectiveState()
	assert.Equal(t, float64(2), state[0].Properties["x"])
}
