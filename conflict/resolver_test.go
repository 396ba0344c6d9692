package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"canvashub/vectorclock"
)

func baseShape() ShapeState {
	return ShapeState{
		Properties:         map[string]interface{}{"strokeColor": "#000", "strokeWidth": float64(2)},
		PropertyTimestamps: map[string]int64{},
		VectorClock:        vectorclock.Clock{},
	}
}

func TestResolveStaleRemoteKeepsLocal(t *testing.T) {
	local := baseShape()
	local.VectorClock = vectorclock.Clock{"A": 2}

	result := Resolve(local, map[string]interface{}{"strokeColor": "#fff"}, nil, vectorclock.Clock{"A": 1})

	assert.Equal(t, KeepLocal, result.Action)
	assert.Equal(t, "#000", result.Properties["strokeColor"])
}

func TestResolveStaleLocalAppliesRemote(t *testing.T) {
	local := baseShape()
	local.VectorClock = vectorclock.Clock{"A": 1}

	result := Resolve(local, map[string]interface{}{"strokeColor": "#fff"}, map[string]int64{"strokeColor": 10}, vectorclock.Clock{"A": 2})

	assert.Equal(t, ApplyRemote, result.Action)
	assert.Equal(t, "#fff", result.Properties["strokeColor"])
	assert.Equal(t, uint64(2), result.VectorClock.Get("A"))
}

// Mirrors spec §8 scenario 4 with B's edit arriving at A: disjoint
// concurrent edits merge to the union of both.
func TestResolveConcurrentDisjointKeysMergeToUnion(t *testing.T) {
	local := baseShape()
	local.VectorClock = vectorclock.Clock{"A": 1}
	local.Properties["strokeColor"] = "#f00"
	local.PropertyTimestamps["strokeColor"] = 1000

	result := Resolve(local, map[string]interface{}{"strokeWidth": float64(5)}, map[string]int64{"strokeWidth": 1001}, vectorclock.Clock{"B": 1})

	assert.Equal(t, Merge, result.Action)
	assert.Equal(t, "#f00", result.Properties["strokeColor"])
	assert.Equal(t, float64(5), result.Properties["strokeWidth"])
	assert.Equal(t, uint64(1), result.VectorClock.Get("A"))
	assert.Equal(t, uint64(1), result.VectorClock.Get("B"))
}

func TestResolveConcurrentSameKeyTieGoesToRemote(t *testing.T) {
	local := baseShape()
	local.VectorClock = vectorclock.Clock{"A": 1}
	local.Properties["strokeColor"] = "#f00"
	local.PropertyTimestamps["strokeColor"] = 1000

	result := Resolve(local, map[string]interface{}{"strokeColor": "#00f"}, map[string]int64{"strokeColor": 1000}, vectorclock.Clock{"B": 1})

	assert.Equal(t, Merge, result.Action)
	assert.Equal(t, "#00f", result.Properties["strokeColor"], "tie breaks to remote")
}

func TestResolveConcurrentLaterLocalTimestampWins(t *testing.T) {
	local := baseShape()
	local.VectorClock = vectorclock.Clock{"A": 1}
	local.Properties["strokeColor"] = "#f00"
	local.PropertyTimestamps["strokeColor"] = 2000

	result := Resolve(local, map[string]interface{}{"strokeColor": "#00f"}, map[string]int64{"strokeColor": 1000}, vectorclock.Clock{"B": 1})

	assert.Equal(t, "#f00", result.Properties["strokeColor"])
}
