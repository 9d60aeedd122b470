package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecentIDs(t *testing.T) {
	r := newRecentIDs(2)
	assert.False(t, r.Seen("a"))
	assert.True(t, r.Seen("a"))
	assert.False(t, r.Seen("b"))
	assert.False(t, r.Seen("c"))

	// a was evicted by c.
	assert.False(t, r.Seen("a"))
	assert.True(t, r.Seen("c"))
	assert.Len(t, r.set, 2)
}
