package client

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"canvashub/logging"
)

// Transport is how the sync queue actually reaches the server. A
// real implementation wraps a live WebSocket connection; tests supply
// a fake. Send blocks until the server acks or ctx's deadline
// (ackTimeout) expires.
type Transport interface {
	Send(ctx context.Context, ev PendingEvent) error
	SendCursor(ctx context.Context, canvasID string, x, y float64) error
}

// SyncQueue is the client-side half of the sync protocol: it
// throttles cursor moves, coalesces rapid edits to the same shape,
// attempts delivery with an ack timeout, and falls back to the
// durable Queue when delivery fails or the transport is offline.
type SyncQueue struct {
	queue     *Queue
	transport Transport

	ackTimeout     time.Duration
	coalesceWindow time.Duration
	cursorLimiter  *rate.Limiter

	mutex    sync.Mutex
	pending  map[string]*coalescedEdit // shapeId -> in-flight debounce timer
	offline  bool
}

type coalescedEdit struct {
	timer *time.Timer
	event PendingEvent
}

// NewSyncQueue builds a SyncQueue. cursorThrottle bounds how often
// SubmitCursorMove will actually call the transport (spec §4.G: ~20
// moves/sec); coalesceWindow is how long a SHAPE_EDITED patch waits
// for a follow-up edit to the same shape before it is sent.
func NewSyncQueue(q *Queue, transport Transport, ackTimeout, coalesceWindow, cursorThrottle time.Duration) *SyncQueue {
	return &SyncQueue{
		queue:          q,
		transport:      transport,
		ackTimeout:     ackTimeout,
		coalesceWindow: coalesceWindow,
		cursorLimiter:  rate.NewLimiter(rate.Every(cursorThrottle), 1),
		pending:        make(map[string]*coalescedEdit),
	}
}

// SubmitShapeEvent queues ev for delivery. SHAPE_EDITED events to the
// same shape arriving within the coalesce window are merged into one
// outgoing patch rather than sent individually; every other event kind
// is sent immediately.
func (sq *SyncQueue) SubmitShapeEvent(ev PendingEvent) {
	if ev.EventType != "SHAPE_EDITED" || ev.ShapeID == "" {
		go sq.attemptSend(ev)
		return
	}

	sq.mutex.Lock()
	defer sq.mutex.Unlock()

	if existing, ok := sq.pending[ev.ShapeID]; ok {
		existing.timer.Stop()
		merged := mergeEdit(existing.event, ev)
		existing.event = merged
		existing.timer = time.AfterFunc(sq.coalesceWindow, func() { sq.flushCoalesced(ev.ShapeID) })
		return
	}

	sq.pending[ev.ShapeID] = &coalescedEdit{
		event: ev,
		timer: time.AfterFunc(sq.coalesceWindow, func() { sq.flushCoalesced(ev.ShapeID) }),
	}
}

func (sq *SyncQueue) flushCoalesced(shapeID string) {
	sq.mutex.Lock()
	edit, ok := sq.pending[shapeID]
	if ok {
		delete(sq.pending, shapeID)
	}
	sq.mutex.Unlock()

	if ok {
		sq.attemptSend(edit.event)
	}
}

func mergeEdit(base, next PendingEvent) PendingEvent {
	merged := base
	merged.LocalEventID = next.LocalEventID
	merged.Timestamp = next.Timestamp
	payload := make(map[string]interface{}, len(base.Payload)+len(next.Payload))
	for k, v := range base.Payload {
		payload[k] = v
	}
	for k, v := range next.Payload {
		payload[k] = v
	}
	merged.Payload = payload
	return merged
}

// attemptSend tries the transport once, bounded by ackTimeout.
// Failure (timeout, transport error, or the client being offline)
// falls back to the durable queue rather than dropping the edit.
func (sq *SyncQueue) attemptSend(ev PendingEvent) {
	if sq.isOffline() {
		sq.enqueueOffline(ev)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sq.ackTimeout)
	defer cancel()

	ev.Attempts++
	if err := sq.transport.Send(ctx, ev); err != nil {
		logging.Warn("shape event send failed, enqueuing for later", map[string]interface{}{
			"local_event_id": ev.LocalEventID,
			"error":          err.Error(),
		})
		sq.enqueueOffline(ev)
		return
	}

	if err := sq.queue.Remove(ev.LocalEventID); err != nil {
		logging.Warn("failed to clear acknowledged event from durable queue", map[string]interface{}{
			"local_event_id": ev.LocalEventID,
			"error":          err.Error(),
		})
	}
}

func (sq *SyncQueue) enqueueOffline(ev PendingEvent) {
	if err := sq.queue.Enqueue(ev); err != nil {
		logging.Error("failed to persist event to durable queue", map[string]interface{}{
			"local_event_id": ev.LocalEventID,
			"error":          err.Error(),
		})
	}
}

// SubmitCursorMove throttles cursor broadcasts to at most one per
// cursorThrottle interval, silently dropping intermediate moves —
// cursor position is ephemeral and never durably queued.
func (sq *SyncQueue) SubmitCursorMove(canvasID string, x, y float64) {
	if !sq.cursorLimiter.Allow() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sq.ackTimeout)
	defer cancel()
	if err := sq.transport.SendCursor(ctx, canvasID, x, y); err != nil {
		logging.Trace("client", "cursor move send failed, dropping", map[string]interface{}{"error": err.Error()})
	}
}

// SetOffline marks the transport unusable (e.g. the WebSocket
// dropped), so new submissions go straight to the durable queue
// instead of attempting a send that is certain to fail.
func (sq *SyncQueue) SetOffline(offline bool) {
	sq.mutex.Lock()
	sq.offline = offline
	sq.mutex.Unlock()
}

func (sq *SyncQueue) isOffline() bool {
	sq.mutex.Lock()
	defer sq.mutex.Unlock()
	return sq.offline
}

// Flush replays every durably queued event through the transport,
// oldest first, on reconnect (spec §4.G batch re-sync). An event that
// fails again stays queued for the next Flush.
func (sq *SyncQueue) Flush(ctx context.Context) error {
	events, err := sq.queue.All()
	if err != nil {
		return err
	}

	for _, ev := range events {
		sendCtx, cancel := context.WithTimeout(ctx, sq.ackTimeout)
		err := sq.transport.Send(sendCtx, ev)
		cancel()
		if err != nil {
			logging.Warn("flush: event still failing, leaving queued", map[string]interface{}{
				"local_event_id": ev.LocalEventID,
				"error":          err.Error(),
			})
			continue
		}
		if err := sq.queue.Remove(ev.LocalEventID); err != nil {
			logging.Warn("flush: failed to clear delivered event", map[string]interface{}{
				"local_event_id": ev.LocalEventID,
				"error":          err.Error(),
			})
		}
	}
	return nil
}
