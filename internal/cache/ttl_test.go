package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dyike/CortexReport/internal/ratelimit"
)

func TestTTLExpiry(t *testing.T) {
	clock := ratelimit.NewFakeClock(time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC))
	c := NewTTL[string, int](600*time.Second, clock)

	c.Put("AAPL", 1)
	v, ok := c.Get("AAPL")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	clock.Advance(599 * time.Second)
	_, ok = c.Get("AAPL")
	assert.True(t, ok, "entry should live just under the ttl")

	clock.Advance(time.Second)
	_, ok = c.Get("AAPL")
	assert.False(t, ok, "entry should expire at the ttl")
	assert.Zero(t, c.Len())
}

func TestTTLInvalidateAndPurge(t *testing.T) {
	c := NewTTL[string, string](time.Minute, nil)
	c.Put("a", "1")
	c.Put("b", "2")

	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Purge()
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestTTLNonPositiveDurationSkipsStore(t *testing.T) {
	c := NewTTL[string, int](0, nil)
	c.Put("a", 1)
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}
