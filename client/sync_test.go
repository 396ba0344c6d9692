package client

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mutex     sync.Mutex
	sent      []PendingEvent
	failNext  bool
	cursorLog []float64
}

func (f *fakeTransport) Send(ctx context.Context, ev PendingEvent) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.failNext {
		f.failNext = false
		return context.DeadlineExceeded
	}
	f.sent = append(f.sent, ev)
	return nil
}

func (f *fakeTransport) SendCursor(ctx context.Context, canvasID string, x, y float64) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.cursorLog = append(f.cursorLog, x)
	return nil
}

func newTestSyncQueue(t *testing.T, transport Transport) *SyncQueue {
	t.Helper()
	q, err := OpenQueue(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return NewSyncQueue(q, transport, 200*time.Millisecond, 30*time.Millisecond, 20*time.Millisecond)
}

func TestSubmitShapeEventCoalescesRapidEdits(t *testing.T) {
	transport := &fakeTransport{}
	sq := newTestSyncQueue(t, transport)

	sq.SubmitShapeEvent(PendingEvent{LocalEventID: "e1", ShapeID: "s1", EventType: "SHAPE_EDITED", Payload: map[string]interface{}{"x": float64(1)}, Timestamp: time.Now()})
	sq.SubmitShapeEvent(PendingEvent{LocalEventID: "e2", ShapeID: "s1", EventType: "SHAPE_EDITED", Payload: map[string]interface{}{"y": float64(2)}, Timestamp: time.Now()})

	time.Sleep(100 * time.Millisecond)

	transport.mutex.Lock()
	defer transport.mutex.Unlock()
	require.Len(t, transport.sent, 1, "rapid edits to the same shape should coalesce into one send")
	assert.Equal(t, float64(1), transport.sent[0].Payload["x"])
	assert.Equal(t, float64(2), transport.sent[0].Payload["y"])
	assert.Equal(t, "e2", transport.sent[0].LocalEventID)
}

func TestSubmitShapeEventNonEditIsSentImmediately(t *testing.T) {
	transport := &fakeTransport{}
	sq := newTestSyncQueue(t, transport)

	sq.SubmitShapeEvent(PendingEvent{LocalEventID: "e1", ShapeID: "s1", EventType: "SHAPE_CREATED", Payload: map[string]interface{}{}, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	transport.mutex.Lock()
	defer transport.mutex.Unlock()
	require.Len(t, transport.sent, 1)
}

func TestFailedSendFallsBackToDurableQueue(t *testing.T) {
	transport := &fakeTransport{failNext: true}
	sq := newTestSyncQueue(t, transport)

	sq.attemptSend(PendingEvent{LocalEventID: "e1", ShapeID: "s1", EventType: "SHAPE_CREATED", Payload: map[string]interface{}{}, Timestamp: time.Now()})

	n, err := sq.queue.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a failed send should be persisted for later flush")
}

func TestFlushReplaysQueuedEventsAndClearsOnSuccess(t *testing.T) {
	transport := &fakeTransport{}
	sq := newTestSyncQueue(t, transport)
	require.NoError(t, sq.queue.Enqueue(PendingEvent{LocalEventID: "e1", ShapeID: "s1", EventType: "SHAPE_CREATED", Payload: map[string]interface{}{}, Timestamp: time.Now()}))

	require.NoError(t, sq.Flush(context.Background()))

	n, err := sq.queue.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	transport.mutex.Lock()
	defer transport.mutex.Unlock()
	require.Len(t, transport.sent, 1)
}

func TestCursorMoveThrottlesBursts(t *testing.T) {
	transport := &fakeTransport{}
	sq := newTestSyncQueue(t, transport)

	for i := 0; i < 10; i++ {
		sq.SubmitCursorMove("canvas-1", float64(i), 0)
	}

	transport.mutex.Lock()
	defer transport.mutex.Unlock()
	assert.Less(t, len(transport.cursorLog), 10, "throttle should drop some of a tight burst")
}
