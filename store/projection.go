package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"canvashub/conflict"
	"canvashub/events"
	"canvashub/vectorclock"
)

// applyProjection folds one storable event into the shapes table
// (spec §4.D.1) and returns the payload the server actually committed
// (which may differ from the submitted payload after conflict
// resolution) along with whether a real conflict was navigated.
func (s *Store) applyProjection(ctx context.Context, tx *sql.Tx, canvasID uuid.UUID, shapeID *uuid.UUID, kind events.Kind, payload map[string]interface{}) (map[string]interface{}, bool, error) {
	switch kind {
	case events.ShapeCreated:
		return s.projectShapeCreated(ctx, tx, canvasID, shapeID, payload)
	case events.ShapeEdited:
		return s.projectPropertyEdit(ctx, tx, shapeID, events.NormalizePropertiesPayload(payload), payload)
	case events.ShapeMoved, events.DragEnd:
		return s.projectMove(ctx, tx, shapeID, kind, payload)
	case events.ShapeDeleted:
		return s.projectShapeDeleted(ctx, tx, shapeID, payload)
	default:
		// POINTER_DOWN, DRAG_START, USER_CONNECTED, USER_DISCONNECTED:
		// audit-only, no projection effect.
		return payload, false, nil
	}
}

func (s *Store) projectShapeCreated(ctx context.Context, tx *sql.Tx, canvasID uuid.UUID, shapeID *uuid.UUID, payload map[string]interface{}) (map[string]interface{}, bool, error) {
	if shapeID == nil {
		return nil, false, fmt.Errorf("SHAPE_CREATED requires a shape id")
	}

	shapeType, _ := payload["type"].(string)
	properties := events.NormalizePropertiesPayload(payload)
	zIndex := 0
	if z, ok := payload["zIndex"].(float64); ok {
		zIndex = int(z)
	}
	clock := extractRemoteClock(payload)
	timestamps := extractRemoteTimestamps(payload)
	if timestamps == nil {
		timestamps = map[string]int64{}
	}

	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return nil, false, fmt.Errorf("projectShapeCreated: marshal properties: %w", err)
	}
	tsJSON, err := json.Marshal(timestamps)
	if err != nil {
		return nil, false, fmt.Errorf("projectShapeCreated: marshal timestamps: %w", err)
	}
	clockJSON, err := json.Marshal(clock)
	if err != nil {
		return nil, false, fmt.Errorf("projectShapeCreated: marshal clock: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO shapes (id, canvas_id, type, properties, z_index, property_timestamps, vector_clock)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			properties = EXCLUDED.properties,
			z_index = EXCLUDED.z_index,
			property_timestamps = EXCLUDED.property_timestamps,
			vector_clock = EXCLUDED.vector_clock,
			deleted_at = NULL,
			updated_at = NOW()`,
		*shapeID, canvasID, shapeType, propsJSON, zIndex, tsJSON, clockJSON)
	if err != nil {
		return nil, false, fmt.Errorf("projectShapeCreated: insert: %w", err)
	}

	return payload, false, nil
}

// projectPropertyEdit applies a SHAPE_EDITED patch, running the
// conflict resolver when the incoming edit carries causal metadata and
// otherwise falling back to the server's time-window heuristic.
func (s *Store) projectPropertyEdit(ctx context.Context, tx *sql.Tx, shapeID *uuid.UUID, patch map[string]interface{}, payload map[string]interface{}) (map[string]interface{}, bool, error) {
	if shapeID == nil {
		return nil, false, fmt.Errorf("SHAPE_EDITED requires a shape id")
	}

	current, err := s.lockShapeForUpdate(ctx, tx, *shapeID)
	if err != nil {
		return nil, false, err
	}

	remoteClock := extractRemoteClock(payload)
	remoteTimestamps := extractRemoteTimestamps(payload)
	now := time.Now().UnixMilli()

	var (
		resolvedProps   map[string]interface{}
		resolvedTS      map[string]int64
		resolvedClock   vectorclock.Clock
		hadConflict     bool
	)

	if len(remoteClock) > 0 {
		local := conflict.ShapeState{
			Properties:         current.Properties,
			PropertyTimestamps: current.PropertyTimestamps,
			VectorClock:        current.VectorClock,
		}
		if remoteTimestamps == nil {
			remoteTimestamps = stampAll(patch, now)
		}
		result := conflict.Resolve(local, patch, remoteTimestamps, remoteClock)
		resolvedProps, resolvedTS, resolvedClock = result.Properties, result.PropertyTimestamps, result.VectorClock
		hadConflict = result.Action != conflict.ApplyRemote
	} else {
		// No causal metadata from the client: fall back to the
		// time-window heuristic (spec §4.C server-side safety net).
		resolvedProps = shallowMerge(current.Properties, patch)
		resolvedTS = mergeTimestamps(current.PropertyTimestamps, patch, now)
		resolvedClock = current.VectorClock
		hadConflict = time.Since(current.UpdatedAt) < s.conflictWindow
	}

	if err := s.writeShapeProjection(ctx, tx, *shapeID, resolvedProps, resolvedTS, resolvedClock); err != nil {
		return nil, false, err
	}

	return resolvedProps, hadConflict, nil
}

// projectMove applies a SHAPE_MOVED or DRAG_END position update. Moves
// are treated as an edit of the "x" and "y" properties so they share
// the same conflict machinery as any other property patch. SHAPE_MOVED
// carries `payload.position` (or the flat x/y form); DRAG_END carries
// `{startPosition, endPosition, timestamp}` (spec §4.A) and patches
// from `endPosition`, falling back to `startPosition` if the drag
// never produced an end position.
func (s *Store) projectMove(ctx context.Context, tx *sql.Tx, shapeID *uuid.UUID, kind events.Kind, payload map[string]interface{}) (map[string]interface{}, bool, error) {
	pos, ok := dragEndPosition(kind, payload)
	if !ok {
		pos, ok = events.NormalizePositionPayload(payload)
	}
	if !ok {
		return nil, false, fmt.Errorf("SHAPE_MOVED/DRAG_END payload missing x/y")
	}
	patch := map[string]interface{}{"x": pos.X, "y": pos.Y}
	for k, v := range payload {
		switch k {
		case "position", "x", "y", "startPosition", "endPosition", "timestamp", "vectorClock", "propertyTimestamps":
		default:
			patch[k] = v
		}
	}
	return s.projectPropertyEdit(ctx, tx, shapeID, patch, payload)
}

// dragEndPosition extracts the position patch for a DRAG_END event:
// endPosition if present, else startPosition. Returns ok=false for any
// other kind so callers fall back to the generic position normalizer.
func dragEndPosition(kind events.Kind, payload map[string]interface{}) (events.Position, bool) {
	if kind != events.DragEnd {
		return events.Position{}, false
	}
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
	return events.Position{}, false
}

func (s *Store) projectShapeDeleted(ctx context.Context, tx *sql.Tx, shapeID *uuid.UUID, payload map[string]interface{}) (map[string]interface{}, bool, error) {
	if shapeID == nil {
		return nil, false, fmt.Errorf("SHAPE_DELETED requires a shape id")
	}
	// Take the same row lock projectPropertyEdit does, so a concurrent
	// SHAPE_EDITED on this shape serializes against the delete instead
	// of racing it.
	if _, err := s.lockShapeForUpdate(ctx, tx, *shapeID); err != nil {
		return nil, false, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE shapes SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1`, *shapeID); err != nil {
		return nil, false, fmt.Errorf("projectShapeDeleted: %w", err)
	}
	return payload, false, nil
}

func (s *Store) lockShapeForUpdate(ctx context.Context, tx *sql.Tx, shapeID uuid.UUID) (Shape, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, canvas_id, type, properties, z_index, created_at, updated_at, property_timestamps, vector_clock
		FROM shapes WHERE id = $1 FOR UPDATE`, shapeID)
	shape, err := scanShape(row)
	if err != nil {
		return Shape{}, fmt.Errorf("lockShapeForUpdate: %w", err)
	}
	return shape, nil
}

func (s *Store) writeShapeProjection(ctx context.Context, tx *sql.Tx, shapeID uuid.UUID, properties map[string]interface{}, timestamps map[string]int64, clock vectorclock.Clock) error {
	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return fmt.Errorf("writeShapeProjection: marshal properties: %w", err)
	}
	tsJSON, err := json.Marshal(timestamps)
	if err != nil {
		return fmt.Errorf("writeShapeProjection: marshal timestamps: %w", err)
	}
	clockJSON, err := json.Marshal(clock)
	if err != nil {
		return fmt.Errorf("writeShapeProjection: marshal clock: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE shapes SET properties = $1, property_timestamps = $2, vector_clock = $3, updated_at = NOW()
		WHERE id = $4`, propsJSON, tsJSON, clockJSON, shapeID)
	if err != nil {
		return fmt.Errorf("writeShapeProjection: update: %w", err)
	}
	return nil
}

func extractRemoteClock(payload map[string]interface{}) vectorclock.Clock {
	raw, ok := payload["vectorClock"].(map[string]interface{})
	if !ok {
		return nil
	}
	clock := vectorclock.New()
	for k, v := range raw {
		if n, ok := v.(float64); ok {
			clock[k] = uint64(n)
		}
	}
	return clock
}

func extractRemoteTimestamps(payload map[string]interface{}) map[string]int64 {
	raw, ok := payload["propertyTimestamps"].(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		if n, ok := v.(float64); ok {
			out[k] = int64(n)
		}
	}
	return out
}

func stampAll(patch map[string]interface{}, ts int64) map[string]int64 {
	out := make(map[string]int64, len(patch))
	for k := range patch {
		out[k] = ts
	}
	return out
}

func shallowMerge(base, patch map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func mergeTimestamps(base map[string]int64, patch map[string]interface{}, ts int64) map[string]int64 {
	out := make(map[string]int64, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k := range patch {
		out[k] = ts
	}
	return out
}
