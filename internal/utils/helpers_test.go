package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRing_EvictsOldest tests that the ring keeps the most recent items in order.
func TestRing_EvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	assert.Equal(t, []int{3, 4, 5}, r.Items())
	assert.Equal(t, 3, r.Len())
}

// TestRing_PartiallyFilled tests a ring below capacity.
func TestRing_PartiallyFilled(t *testing.T) {
	r := NewRing[string](100)
	r.Push("a")
	r.Push("b")

	assert.Equal(t, []string{"a", "b"}, r.Items())
}

// TestRing_ZeroCapacity tests that a zero sized ring keeps nothing.
func TestRing_ZeroCapacity(t *testing.T) {
	r := NewRing[string](0)
	r.Push("a")

	assert.Empty(t, r.Items())
}

// TestSortedKeys tests key ordering.
func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"5K", "Finish", "Start"}, SortedKeys(map[string]int{"Start": 1, "Finish": 2, "5K": 3}))
}
