package cache

import (
	"sync"
	"time"
)

// Clock supplies the current time used for expiry.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is an in-memory key/value cache whose entries expire a fixed duration
// after they were stored.
type TTL[K comparable, V any] struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock Clock
	items map[K]entry[V]
}

// NewTTL creates a cache. A nil clock uses wall time.
func NewTTL[K comparable, V any](ttl time.Duration, clock Clock) *TTL[K, V] {
	if clock == nil {
		clock = systemClock{}
	}
	return &TTL[K, V]{
		ttl:   ttl,
		clock: clock,
		items: make(map[K]entry[V]),
	}
}

// Get returns the live value for key. Expired entries are evicted.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.items, key)
		return zero, false
	}
	return e.value, true
}

func (c *TTL[K, V]) Put(key K, value V) {
	c.PutWithTTL(key, value, c.ttl)
}

func (c *TTL[K, V]) PutWithTTL(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry[V]{value: value, expiresAt: c.clock.Now().Add(ttl)}
}

func (c *TTL[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Purge drops every entry, live or expired.
func (c *TTL[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]entry[V])
}

// Len counts stored entries, including expired ones not yet evicted.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// TTL reports the default lifetime of new entries.
func (c *TTL[K, V]) TTL() time.Duration {
	return c.ttl
}
