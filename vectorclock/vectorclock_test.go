package vectorclock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSparseReadsAsZero(t *testing.T) {
	c := New()
	assert.Equal(t, uint64(0), c.Get("alice"), "missing entry reads as zero")
}

func TestIncMergeHappensBefore(t *testing.T) {
	t.Run("inc advances only the named node", func(t *testing.T) {
		c := New()
		c.Inc("alice")
		c.Inc("alice")
		assert.Equal(t, uint64(2), c.Get("alice"))
		assert.Equal(t, uint64(0), c.Get("bob"))
	})

	t.Run("merge is pointwise max", func(t *testing.T) {
		a := Clock{"alice": 2, "bob": 1}
		b := Clock{"alice": 1, "bob": 3, "carol": 1}
		merged := a.Merge(b)
		assert.Equal(t, uint64(2), merged.Get("alice"))
		assert.Equal(t, uint64(3), merged.Get("bob"))
		assert.Equal(t, uint64(1), merged.Get("carol"))
		// inputs untouched
		assert.Equal(t, uint64(1), a.Get("bob"))
	})

	t.Run("happens-before requires dominance with at least one strict advance", func(t *testing.T) {
		a := Clock{"alice": 1}
		b := Clock{"alice": 1, "bob": 1}
		assert.True(t, a.HappensBefore(b))
		assert.False(t, b.HappensBefore(a))
		assert.False(t, a.HappensBefore(a))
	})

	t.Run("concurrent clocks are neither ordering", func(t *testing.T) {
		a := Clock{"alice": 1}
		b := Clock{"bob": 1}
		assert.True(t, a.Concurrent(b))
		assert.False(t, a.HappensBefore(b))
		assert.False(t, b.HappensBefore(a))
	})
}

func TestMergeIntoAbsorbsRemote(t *testing.T) {
	local := Clock{"alice": 1}
	remote := Clock{"alice": 2, "bob": 5}
	local.MergeInto(remote)
	assert.Equal(t, uint64(2), local.Get("alice"))
	assert.Equal(t, uint64(5), local.Get("bob"))
}
