// ABOUTME: Tests for the turn selection Roster.
// ABOUTME: Verifies insertion-order preservation and move-to-end on re-add.

package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoster_PreservesInsertionOrder(t *testing.T) {
	r := NewRoster("c", "a", "b")
	assert.Equal(t, []string{"c", "a", "b"}, r.IDs())
}

func TestRoster_ReAddMovesToEnd(t *testing.T) {
	r := NewRoster("a", "b", "c")

	r.Add("a")
	assert.Equal(t, []string{"b", "c", "a"}, r.IDs())

	r.Remove("c")
	r.Add("c")
	assert.Equal(t, []string{"b", "a", "c"}, r.IDs())
}

func TestRoster_Remove(t *testing.T) {
	r := NewRoster("a", "b")
	r.Remove("a")
	assert.Equal(t, []string{"b"}, r.IDs())
	assert.False(t, r.Contains("a"))
	assert.True(t, r.Contains("b"))

	// Removing an unknown id is a no-op.
	r.Remove("zz")
	assert.Equal(t, 1, r.Len())
}

func TestRoster_IDsReturnsCopy(t *testing.T) {
	r := NewRoster("a", "b")
	ids := r.IDs()
	ids[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, r.IDs())
}

func TestRoster_Reset(t *testing.T) {
	r := NewRoster("a")
	r.Reset([]string{"x", "y"})
	assert.Equal(t, []string{"x", "y"}, r.IDs())
}
