// Package store implements the persistent, per-canvas event log and
// its materialised shape projection (spec §4.D): append-only writes
// under a per-canvas lock, dense monotonic versioning, and the
// property-timestamp conflict safety net that backstops the client's
// vector-clock resolution.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"canvashub/database"
	"canvashub/events"
	"canvashub/logging"
	"canvashub/vectorclock"
)

// Canvas is the metadata row backing a canvas (spec §3).
type Canvas struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Shape is the materialised projection row for one shape.
type Shape struct {
	ID                 uuid.UUID              `json:"id"`
	CanvasID           uuid.UUID              `json:"canvasId"`
	Type               string                 `json:"type"`
	Properties         map[string]interface{} `json:"properties"`
	ZIndex             int                    `json:"zIndex"`
	CreatedAt          time.Time              `json:"createdAt"`
	UpdatedAt          time.Time              `json:"updatedAt"`
	DeletedAt          *time.Time             `json:"deletedAt,omitempty"`
	PropertyTimestamps map[string]int64       `json:"-"`
	VectorClock        vectorclock.Clock      `json:"-"`
}

// Event is one immutable log entry.
type Event struct {
	ID           uuid.UUID              `json:"id"`
	CanvasID     uuid.UUID              `json:"canvasId"`
	ShapeID      *uuid.UUID             `json:"shapeId,omitempty"`
	UserID       string                 `json:"userId"`
	Kind         events.Kind            `json:"kind"`
	Payload      map[string]interface{} `json:"payload"`
	Version      int64                  `json:"version"`
	LocalEventID string                 `json:"localEventId,omitempty"`
	HadConflict  bool                   `json:"hadConflict"`
	CreatedAt    time.Time              `json:"createdAt"`
}

// StoreEventResult is the outcome of a single storeEvent call.
type StoreEventResult struct {
	EventID     uuid.UUID
	Version     int64
	Payload     map[string]interface{}
	Stored      bool
	HadConflict bool
}

// PendingEvent is one event submitted as part of a BATCH_SYNC.
type PendingEvent struct {
	LocalEventID string
	ShapeID      *uuid.UUID
	UserID       string
	Kind         events.Kind
	Payload      map[string]interface{}
	Timestamp    time.Time
}

// BatchResult is the outcome of storeBatch.
type BatchResult struct {
	Stored    []StoreEventResult
	Conflicts []StoreEventResult
}

// Store is the event log + projection, backed by Postgres.
type Store struct {
	db             *database.DB
	conflictWindow time.Duration
}

// New constructs a Store. conflictWindow is the §4.C server-side
// heuristic window: a shape update arriving within this long of the
// shape's last write is treated as a possible conflict.
func New(db *database.DB, conflictWindow time.Duration) *Store {
	return &Store{db: db, conflictWindow: conflictWindow}
}

// GetOrCreateCanvas is idempotent: it returns the existing canvas row,
// touching updated_at, or creates one with the given id and name.
func (s *Store) GetOrCreateCanvas(ctx context.Context, id uuid.UUID, name string) (Canvas, error) {
	var c Canvas
	err := s.db.QueryRowContext(ctx, `
		UPDATE canvases SET updated_at = NOW() WHERE id = $1
		RETURNING id, name, created_at, updated_at`, id,
	).Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		if name == "" {
			name = id.String()
		}
		err = s.db.QueryRowContext(ctx, `
			INSERT INTO canvases (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET updated_at = NOW()
			RETURNING id, name, created_at, updated_at`, id, name,
		).Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	}
	if err != nil {
		return Canvas{}, fmt.Errorf("getOrCreateCanvas: %w", err)
	}
	return c, nil
}

// GetCanvas returns the canvas row without creating one, reporting
// found=false if it doesn't exist.
func (s *Store) GetCanvas(ctx context.Context, id uuid.UUID) (Canvas, bool, error) {
	var c Canvas
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at FROM canvases WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return Canvas{}, false, nil
	}
	if err != nil {
		return Canvas{}, false, fmt.Errorf("getCanvas: %w", err)
	}
	return c, true, nil
}

// StoreEvent appends one event to the canvas's log and applies its
// projection effect, all within a single transaction locked on the
// canvas row. Non-storable kinds short-circuit: they return the
// current version and Stored=false without writing anything.
func (s *Store) StoreEvent(ctx context.Context, canvasID uuid.UUID, userID string, kind events.Kind, shapeID *uuid.UUID, payload map[string]interface{}, localEventID string) (StoreEventResult, error) {
	if !events.IsStorable(kind) {
		version, err := s.currentVersion(ctx, canvasID)
		if err != nil {
			return StoreEventResult{}, err
		}
		return StoreEventResult{Version: version, Payload: payload, Stored: false}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return StoreEventResult{}, fmt.Errorf("storeEvent: begin: %w", err)
	}
	defer tx.Rollback()

	result, err := s.storeEventTx(ctx, tx, canvasID, userID, kind, shapeID, payload, localEventID)
	if err != nil {
		return StoreEventResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return StoreEventResult{}, fmt.Errorf("storeEvent: commit: %w", err)
	}
	return result, nil
}

// storeEventTx performs the atomic write protocol (spec §4.D): lock
// the canvas row, deduplicate by (canvasId, localEventId), compute
// next = max(version)+1, insert the event, apply the projection, and
// bump the canvas's updated_at. Must run inside tx.
func (s *Store) storeEventTx(ctx context.Context, tx *sql.Tx, canvasID uuid.UUID, userID string, kind events.Kind, shapeID *uuid.UUID, payload map[string]interface{}, localEventID string) (StoreEventResult, error) {
	if _, err := tx.ExecContext(ctx, `SELECT id FROM canvases WHERE id = $1 FOR UPDATE`, canvasID); err != nil {
		return StoreEventResult{}, fmt.Errorf("storeEvent: lock canvas: %w", err)
	}

	if localEventID != "" {
		if existing, found, err := s.findByLocalEventID(ctx, tx, canvasID, localEventID); err != nil {
			return StoreEventResult{}, err
		} else if found {
			logging.Debug("duplicate local event id, skipping re-store", map[string]interface{}{
				"canvas_id":      canvasID,
				"local_event_id": localEventID,
			})
			return existing, nil
		}
	}

	var next int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM events WHERE canvas_id = $1`, canvasID).Scan(&next); err != nil {
		return StoreEventResult{}, fmt.Errorf("storeEvent: next version: %w", err)
	}

	resolvedPayload, hadConflict, err := s.applyProjection(ctx, tx, canvasID, shapeID, kind, payload)
	if err != nil {
		return StoreEventResult{}, fmt.Errorf("storeEvent: apply projection: %w", err)
	}

	payloadJSON, err := json.Marshal(resolvedPayload)
	if err != nil {
		return StoreEventResult{}, fmt.Errorf("storeEvent: marshal payload: %w", err)
	}

	eventID := uuid.New()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, canvas_id, shape_id, user_id, event_type, payload, version, local_event_id, had_conflict)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)`,
		eventID, canvasID, nullableUUID(shapeID), userID, string(kind), payloadJSON, next, localEventID, hadConflict,
	)
	if err != nil {
		return StoreEventResult{}, fmt.Errorf("storeEvent: insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE canvases SET updated_at = NOW() WHERE id = $1`, canvasID); err != nil {
		return StoreEventResult{}, fmt.Errorf("storeEvent: touch canvas: %w", err)
	}

	return StoreEventResult{
		EventID:     eventID,
		Version:     next,
		Payload:     resolvedPayload,
		Stored:      true,
		HadConflict: hadConflict,
	}, nil
}

func (s *Store) findByLocalEventID(ctx context.Context, tx *sql.Tx, canvasID uuid.UUID, localEventID string) (StoreEventResult, bool, error) {
	var (
		eventID     uuid.UUID
		version     int64
		payloadJSON []byte
		hadConflict bool
	)
	err := tx.QueryRowContext(ctx, `
		SELECT id, version, payload, had_conflict FROM events
		WHERE canvas_id = $1 AND local_event_id = $2`, canvasID, localEventID,
	).Scan(&eventID, &version, &payloadJSON, &hadConflict)
	if err == sql.ErrNoRows {
		return StoreEventResult{}, false, nil
	}
	if err != nil {
		return StoreEventResult{}, false, fmt.Errorf("findByLocalEventID: %w", err)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return StoreEventResult{}, false, fmt.Errorf("findByLocalEventID: unmarshal: %w", err)
	}

	return StoreEventResult{EventID: eventID, Version: version, Payload: payload, Stored: true, HadConflict: hadConflict}, true, nil
}

// StoreBatch applies a reconnecting client's pending events in a
// single transaction, running conflict detection per event, and
// reports the result of every stored event plus, in Conflicts, the
// subset that was flagged HadConflict.
func (s *Store) StoreBatch(ctx context.Context, canvasID uuid.UUID, pending []PendingEvent) (BatchResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return BatchResult{}, fmt.Errorf("storeBatch: begin: %w", err)
	}
	defer tx.Rollback()

	result := BatchResult{}
	for _, ev := range pending {
		if !events.IsStorable(ev.Kind) {
			continue
		}
		stored, err := s.storeEventTx(ctx, tx, canvasID, ev.UserID, ev.Kind, ev.ShapeID, ev.Payload, ev.LocalEventID)
		if err != nil {
			return BatchResult{}, fmt.Errorf("storeBatch: %w", err)
		}
		result.Stored = append(result.Stored, stored)
		if stored.HadConflict {
			result.Conflicts = append(result.Conflicts, stored)
		}
	}

	if err := tx.Commit(); err != nil {
		return BatchResult{}, fmt.Errorf("storeBatch: commit: %w", err)
	}
	return result, nil
}

// GetCanvasState returns the live (non-deleted) shapes ordered by
// zIndex ascending, plus the canvas's current max version.
func (s *Store) GetCanvasState(ctx context.Context, canvasID uuid.UUID) ([]Shape, int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, canvas_id, type, properties, z_index, created_at, updated_at, property_timestamps, vector_clock
		FROM shapes WHERE canvas_id = $1 AND deleted_at IS NULL ORDER BY z_index ASC`, canvasID)
	if err != nil {
		return nil, 0, fmt.Errorf("getCanvasState: query: %w", err)
	}
	defer rows.Close()

	var shapes []Shape
	for rows.Next() {
		shape, err := scanShape(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("getCanvasState: scan: %w", err)
		}
		shapes = append(shapes, shape)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	version, err := s.currentVersion(ctx, canvasID)
	if err != nil {
		return nil, 0, err
	}
	return shapes, version, nil
}

// EventsSince returns events strictly greater than sinceVersion,
// ordered ascending.
func (s *Store) EventsSince(ctx context.Context, canvasID uuid.UUID, sinceVersion int64) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, canvas_id, shape_id, user_id, event_type, payload, version, COALESCE(local_event_id, ''), had_conflict, created_at
		FROM events WHERE canvas_id = $1 AND version > $2 ORDER BY version ASC`, canvasID, sinceVersion)
	if err != nil {
		return nil, fmt.Errorf("eventsSince: query: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev          Event
			shapeID     sql.NullString
			payloadJSON []byte
			kind        string
		)
		if err := rows.Scan(&ev.ID, &ev.CanvasID, &shapeID, &ev.UserID, &kind, &payloadJSON, &ev.Version, &ev.LocalEventID, &ev.HadConflict, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("eventsSince: scan: %w", err)
		}
		ev.Kind = events.Kind(kind)
		if shapeID.Valid {
			if id, err := uuid.Parse(shapeID.String); err == nil {
				ev.ShapeID = &id
			}
		}
		if err := json.Unmarshal(payloadJSON, &ev.Payload); err != nil {
			return nil, fmt.Errorf("eventsSince: unmarshal: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) currentVersion(ctx context.Context, canvasID uuid.UUID) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM events WHERE canvas_id = $1`, canvasID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("currentVersion: %w", err)
	}
	return version, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanShape(row rowScanner) (Shape, error) {
	var (
		shape           Shape
		propsJSON       []byte
		propTSJSON      []byte
		vectorClockJSON []byte
	)
	if err := row.Scan(&shape.ID, &shape.CanvasID, &shape.Type, &propsJSON, &shape.ZIndex, &shape.CreatedAt, &shape.UpdatedAt, &propTSJSON, &vectorClockJSON); err != nil {
		return Shape{}, err
	}
	if err := json.Unmarshal(propsJSON, &shape.Properties); err != nil {
		return Shape{}, fmt.Errorf("unmarshal properties: %w", err)
	}
	if err := json.Unmarshal(propTSJSON, &shape.PropertyTimestamps); err != nil {
		return Shape{}, fmt.Errorf("unmarshal property timestamps: %w", err)
	}
	clock := vectorclock.New()
	if err := json.Unmarshal(vectorClockJSON, &clock); err != nil {
		return Shape{}, fmt.Errorf("unmarshal vector clock: %w", err)
	}
	shape.VectorClock = clock
	return shape, nil
}

func nullableUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return *id
}
