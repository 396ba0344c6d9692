// Package client implements the browser/desktop-side half of the sync
// protocol (spec §4.G, §4.H): a throttled, debounced outgoing queue
// backed by a durable offline store, and a local cache that overlays
// not-yet-acknowledged edits on top of the last known server
// snapshot. It never touches a websocket directly — callers supply a
// Transport so the queue can be driven by a real connection or a test
// double alike.
package client

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// PendingEvent is one not-yet-confirmed shape edit, keyed by the
// client-assigned LocalEventID so the server can deduplicate a replay.
type PendingEvent struct {
	LocalEventID string
	CanvasID     string
	ShapeID      string
	EventType    string
	Payload      map[string]interface{}
	Timestamp    time.Time
	Attempts     int
}

// Queue is the durable offline store: every event that could not be
// confirmed by the server lives here until a successful Flush.
// Backed by SQLite so the queue survives a process restart while
// offline.
type Queue struct {
	db *sql.DB
}

// OpenQueue opens (creating if necessary) the on-disk durable queue.
func OpenQueue(path string) (*Queue, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("openQueue: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pending_events (
			local_event_id TEXT PRIMARY KEY,
			canvas_id      TEXT NOT NULL,
			shape_id       TEXT,
			event_type     TEXT NOT NULL,
			payload        TEXT NOT NULL,
			timestamp_ms   INTEGER NOT NULL,
			attempts       INTEGER NOT NULL DEFAULT 0
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("openQueue: create table: %w", err)
	}
	return &Queue{db: db}, nil
}

// Close releases the underlying SQLite handle.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue durably persists ev, replacing any prior attempt with the
// same LocalEventID (an event re-submitted after a failed send
// supersedes its earlier copy rather than duplicating it).
func (q *Queue) Enqueue(ev PendingEvent) error {
	payloadJSON, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("enqueue: marshal payload: %w", err)
	}
	_, err = q.db.Exec(`
		INSERT INTO pending_events (local_event_id, canvas_id, shape_id, event_type, payload, timestamp_ms, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_event_id) DO UPDATE SET
			payload = excluded.payload,
			timestamp_ms = excluded.timestamp_ms,
			attempts = excluded.attempts`,
		ev.LocalEventID, ev.CanvasID, ev.ShapeID, ev.EventType, payloadJSON, ev.Timestamp.UnixMilli(), ev.Attempts)
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// Remove drops ev from the durable queue once the server has
// acknowledged it.
func (q *Queue) Remove(localEventID string) error {
	_, err := q.db.Exec(`DELETE FROM pending_events WHERE local_event_id = ?`, localEventID)
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

// All returns every durably queued event, oldest first, for a
// reconnect batch resync.
func (q *Queue) All() ([]PendingEvent, error) {
	rows, err := q.db.Query(`
		SELECT local_event_id, canvas_id, shape_id, event_type, payload, timestamp_ms, attempts
		FROM pending_events ORDER BY timestamp_ms ASC`)
	if err != nil {
		return nil, fmt.Errorf("all: %w", err)
	}
	defer rows.Close()

	var out []PendingEvent
	for rows.Next() {
		var (
			ev          PendingEvent
			shapeID     sql.NullString
			payloadJSON []byte
			ts          int64
		)
		if err := rows.Scan(&ev.LocalEventID, &ev.CanvasID, &shapeID, &ev.EventType, &payloadJSON, &ts, &ev.Attempts); err != nil {
			return nil, fmt.Errorf("all: scan: %w", err)
		}
		ev.ShapeID = shapeID.String
		ev.Timestamp = time.UnixMilli(ts)
		if err := json.Unmarshal(payloadJSON, &ev.Payload); err != nil {
			return nil, fmt.Errorf("all: unmarshal payload: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Count reports how many events are currently queued.
func (q *Queue) Count() (int, error) {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM pending_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}
