package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsStorableStorableVsEphemeralVsLegacy(t *testing.T) {
	assert.True(t, IsStorable(ShapeCreated))
	assert.True(t, IsStorable(ShapeEdited))
	assert.False(t, IsStorable(CursorMove))
	assert.False(t, IsStorable(LegacyShapeUpdated))
}

func TestIsLegacyAcceptedButNotStorable(t *testing.T) {
	assert.True(t, IsLegacy(LegacyShapeResized))
	assert.True(t, IsKnown(LegacyShapeResized))
	assert.False(t, IsStorable(LegacyShapeResized))
}

func TestIsKnownRejectsGarbage(t *testing.T) {
	assert.False(t, IsKnown(Kind("NOT_A_REAL_KIND")))
}

func TestNormalizePositionPayloadAcceptsNestedOrFlat(t *testing.T) {
	nested := map[string]interface{}{"position": map[string]interface{}{"x": float64(1), "y": float64(2)}}
	pos, ok := NormalizePositionPayload(nested)
	assert.True(t, ok)
	assert.Equal(t, Position{X: 1, Y: 2}, pos)

	flat := map[string]interface{}{"x": float64(3), "y": float64(4)}
	pos, ok = NormalizePositionPayload(flat)
	assert.True(t, ok)
	assert.Equal(t, Position{X: 3, Y: 4}, pos)

	_, ok = NormalizePositionPayload(map[string]interface{}{"x": float64(1)})
	assert.False(t, ok)
}

func TestNormalizePropertiesPayloadStripsClockAndTimestamps(t *testing.T) {
	flat := map[string]interface{}{
		"strokeColor":        "#fff",
		"vectorClock":        map[string]interface{}{"a": float64(1)},
		"propertyTimestamps": map[string]interface{}{"strokeColor": float64(1)},
	}
	props := NormalizePropertiesPayload(flat)
	assert.Equal(t, map[string]interface{}{"strokeColor": "#fff"}, props)

	nested := map[string]interface{}{"properties": map[string]interface{}{"strokeWidth": float64(2)}}
	props = NormalizePropertiesPayload(nested)
	assert.Equal(t, map[string]interface{}{"strokeWidth": float64(2)}, props)
}
