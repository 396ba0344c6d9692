package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"canvashub/events"
)

func TestExtractRemoteClockParsesFloatCounters(t *testing.T) {
	payload := map[string]interface{}{
		"vectorClock": map[string]interface{}{"alice": float64(3), "bob": float64(1)},
	}
	clock := extractRemoteClock(payload)
	assert.Equal(t, uint64(3), clock.Get("alice"))
	assert.Equal(t, uint64(1), clock.Get("bob"))
}

func TestExtractRemoteClockAbsent(t *testing.T) {
	assert.Nil(t, extractRemoteClock(map[string]interface{}{}))
}

func TestExtractRemoteTimestamps(t *testing.T) {
	payload := map[string]interface{}{
		"propertyTimestamps": map[string]interface{}{"strokeColor": float64(1000)},
	}
	ts := extractRemoteTimestamps(payload)
	assert.Equal(t, int64(1000), ts["strokeColor"])
}

func TestShallowMergeOverlaysPatchOntoBase(t *testing.T) {
	base := map[string]interface{}{"x": float64(1), "y": float64(2)}
	patch := map[string]interface{}{"y": float64(5)}
	merged := shallowMerge(base, patch)
	assert.Equal(t, float64(1), merged["x"])
	assert.Equal(t, float64(5), merged["y"])
}

func TestMergeTimestampsStampsOnlyPatchedKeys(t *testing.T) {
	base := map[string]int64{"x": 100}
	patch := map[string]interface{}{"y": float64(5)}
	merged := mergeTimestamps(base, patch, 200)
	assert.Equal(t, int64(100), merged["x"])
	assert.Equal(t, int64(200), merged["y"])
}

func TestStampAllUsesSingleTimestamp(t *testing.T) {
	patch := map[string]interface{}{"x": float64(1), "y": float64(2)}
	ts := stampAll(patch, 42)
	assert.Equal(t, int64(42), ts["x"])
	assert.Equal(t, int64(42), ts["y"])
}

func TestDragEndPositionPrefersEndPosition(t *testing.T) {
	payload := map[string]interface{}{
		"startPosition": map[string]interface{}{"x": float64(0), "y": float64(0)},
		"endPosition":   map[string]interface{}{"x": float64(10), "y": float64(20)},
		"timestamp":     float64(1000),
	}
	pos, ok := dragEndPosition(events.DragEnd, payload)
	assert.True(t, ok)
	assert.Equal(t, float64(10), pos.X)
	assert.Equal(t, float64(20), pos.Y)
}

func TestDragEndPositionFallsBackToStartPosition(t *testing.T) {
	payload := map[string]interface{}{
		"startPosition": map[string]interface{}{"x": float64(5), "y": float64(6)},
	}
	pos, ok := dragEndPosition(events.DragEnd, payload)
	assert.True(t, ok)
	assert.Equal(t, float64(5), pos.X)
	assert.Equal(t, float64(6), pos.Y)
}

func TestDragEndPositionIgnoresOtherKinds(t *testing.T) {
	payload := map[string]interface{}{"endPosition": map[string]interface{}{"x": float64(1), "y": float64(2)}}
	_, ok := dragEndPosition(events.ShapeMoved, payload)
	assert.False(t, ok)
}
