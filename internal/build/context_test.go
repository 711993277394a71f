package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourceName(t *testing.T) {
	c := &buildContext{uniqueID: "deadbeef"}
	assert.Equal(t, "orfmi-deadbeef", c.resourceName(""))
	assert.Equal(t, "orfmi-deadbeef-sg", c.resourceName("sg"))
}

func TestUniqueID(t *testing.T) {
	seen := make(map[string]bool)
	for range 32 {
		id := UniqueID()
		assert.Len(t, id, 8)
		assert.False(t, seen[id], "unique IDs must not repeat")
		seen[id] = true
	}
}
