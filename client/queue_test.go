package client

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/assert"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	q, err := OpenQueue(path)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestEnqueueAndAllOrdersByTimestamp(t *testing.T) {
	q := newTestQueue(t)

	first := PendingEvent{LocalEventID: "e1", CanvasID: "c1", ShapeID: "s1", EventType: "SHAPE_EDITED", Payload: map[string]interface{}{"x": float64(1)}, Timestamp: time.UnixMilli(1000)}
	second := PendingEvent{LocalEventID: "e2", CanvasID: "c1", ShapeID: "s1", EventType: "SHAPE_EDITED", Payload: map[string]interface{}{"x": float64(2)}, Timestamp: time.UnixMilli(2000)}

	require.NoError(t, q.Enqueue(second))
	require.NoError(t, q.Enqueue(first))

	all, err := q.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "e1", all[0].LocalEventID)
	assert.Equal(t, "e2", all[1].LocalEventID)
}

func TestEnqueueSameLocalIDReplacesNotDuplicates(t *testing.T) {
	q := newTestQueue(t)
	ev := PendingEvent{LocalEventID: "e1", CanvasID: "c1", ShapeID: "s1", EventType: "SHAPE_EDITED", Payload: map[string]interface{}{"x": float64(1)}, Timestamp: time.UnixMilli(1000)}
	require.NoError(t, q.Enqueue(ev))

	ev.Payload = map[string]interface{}{"x": float64(9)}
	ev.Attempts = 1
	require.NoError(t, q.Enqueue(ev))

	n, err := q.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := q.All()
	require.NoError(t, err)
	assert.Equal(t, float64(9), all[0].Payload["x"])
	assert.Equal(t, 1, all[0].Attempts)
}

func TestRemoveDropsEvent(t *testing.T) {
	q := newTestQueue(t)
	ev := PendingEvent{LocalEventID: "e1", CanvasID: "c1", EventType: "SHAPE_CREATED", Payload: map[string]interface{}{}, Timestamp: time.Now()}
	require.NoError(t, q.Enqueue(ev))
	require.NoError(t, q.Remove("e1"))

	n, err := q.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
