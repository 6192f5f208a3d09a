package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResultCache_SetGet(t *testing.T) {
	c := newResultCache(10, time.Minute)
	c.set("a", 1)

	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestResultCache_ExpiresAfterTTL(t *testing.T) {
	c := newResultCache(10, time.Millisecond)
	c.set("a", 1)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.get("a")
	assert.False(t, ok)
}

func TestResultCache_EvictsOldestWhenOverCapacity(t *testing.T) {
	c := newResultCache(2, time.Minute)
	c.set("a", 1)
	c.set("b", 2)
	c.set("c", 3) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok)

	v, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestResultCache_GetPromotesToFront(t *testing.T) {
	c := newResultCache(2, time.Minute)
	c.set("a", 1)
	c.set("b", 2)

	_, _ = c.get("a") // "a" is now most-recently-used
	c.set("c", 3)     // should evict "b", not "a"

	_, ok := c.get("a")
	assert.True(t, ok)

	_, ok = c.get("b")
	assert.False(t, ok)
}
