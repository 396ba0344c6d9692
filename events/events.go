// Package events defines the canvas event taxonomy: the closed set of
// kinds a canvas understands, which of them are storable (appended to
// the log and folded into the shape projection) versus ephemeral
// (broadcast only), and the payload normalization that lets a shape
// edit arrive as either the nested or flat wire shape.
package events

// Kind is one of the event kinds a canvas accepts. The zero value is
// not a valid kind; callers should reject it at the boundary.
type Kind string

// Storable kinds: appended to the event log and folded into the shape
// projection by the store's applyProjection.
const (
	UserConnected    Kind = "USER_CONNECTED"
	UserDisconnected Kind = "USER_DISCONNECTED"
	PointerDown      Kind = "POINTER_DOWN"
	DragStart        Kind = "DRAG_START"
	DragEnd          Kind = "DRAG_END"
	ShapeCreated     Kind = "SHAPE_CREATED"
	ShapeEdited      Kind = "SHAPE_EDITED"
	ShapeMoved       Kind = "SHAPE_MOVED"
	ShapeDeleted     Kind = "SHAPE_DELETED"
)

// Ephemeral kinds: never stored, broadcast-only.
const (
	CursorMove     Kind = "CURSOR_MOVE"
	DragIntraMove  Kind = "DRAG_INTRA_MOVE"
)

// Legacy kinds, accepted for backward-compatible reads (see
// IsLegacy); DESIGN.md records the decision to reject them on
// write while still recognizing them on the wire.
const (
	LegacyShapeUpdated  Kind = "SHAPE_UPDATED"
	LegacyShapeResized  Kind = "SHAPE_RESIZED"
	LegacyShapeRotated  Kind = "SHAPE_ROTATED"
	LegacyShapeRestored Kind = "SHAPE_RESTORED"
	LegacyZIndexChanged Kind = "Z_INDEX_CHANGED"
)

var storableKinds = map[Kind]bool{
	UserConnected:    true,
	UserDisconnected: true,
	PointerDown:      true,
	DragStart:        true,
	DragEnd:          true,
	ShapeCreated:     true,
	ShapeEdited:      true,
	ShapeMoved:       true,
	ShapeDeleted:     true,
}

var legacyKinds = map[Kind]bool{
	LegacyShapeUpdated:  true,
	LegacyShapeResized:  true,
	LegacyShapeRotated:  true,
	LegacyShapeRestored: true,
	LegacyZIndexChanged: true,
}

var knownKinds = func() map[Kind]bool {
	m := make(map[Kind]bool, len(storableKinds)+len(legacyKinds)+2)
	for k := range storableKinds {
		m[k] = true
	}
	for k := range legacyKinds {
		m[k] = true
	}
	m[CursorMove] = true
	m[DragIntraMove] = true
	return m
}()

// IsStorable reports whether kind is appended to the log and folded
// into the shape projection. Total and pure: every Kind value maps to
// exactly one answer. Legacy kinds are accepted for read compatibility
// (§4.D.1) but rejected here for write — callers that need to persist
// a legacy kind should translate it to its canonical equivalent first.
func IsStorable(kind Kind) bool {
	return storableKinds[kind]
}

// IsLegacy reports whether kind is one of the pre-canonical aliases
// kept around for backward-compatible reads.
func IsLegacy(kind Kind) bool {
	return legacyKinds[kind]
}

// IsKnown reports whether kind is recognized at all — storable,
// legacy, or ephemeral. Unknown kinds must be rejected at the
// protocol boundary rather than silently dropped.
func IsKnown(kind Kind) bool {
	return knownKinds[kind]
}

// Position is the canonical {x, y} shape used by SHAPE_MOVED and
// DRAG_END payloads.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NormalizePositionPayload accepts both the nested form
// ({"position": {"x":.., "y":..}}) and the flat form ({"x":.., "y":..})
// tolerated by clients, and returns the canonical nested
// representation. Returns false if neither form is present.
func NormalizePositionPayload(payload map[string]interface{}) (Position, bool) {
	if nested, ok := payload["position"].(map[string]interface{}); ok {
		return extractPosition(nested)
	}
	return extractPosition(payload)
}

func extractPosition(m map[string]interface{}) (Position, bool) {
	x, xok := toFloat(m["x"])
	y, yok := toFloat(m["y"])
	if !xok || !yok {
		return Position{}, false
	}
	return Position{X: x, Y: y}, true
}

// NormalizePropertiesPayload accepts both the nested form
// ({"properties": {...}}) and the flat form ({...}) of a property
// patch and returns the canonical flat map, ready to shallow-merge
// into a shape's properties.
func NormalizePropertiesPayload(payload map[string]interface{}) map[string]interface{} {
	if nested, ok := payload["properties"].(map[string]interface{}); ok {
		return nested
	}
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if k == "vectorClock" || k == "propertyTimestamps" {
			continue
		}
		out[k] = v
	}
	return out
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
