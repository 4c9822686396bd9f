package cache

import (
	"sync"
	"time"
)

// entry stores a cached value and its absolute expiration timestamp.
type entry[V any] struct {
	value     V
	expiresAt time.Time // zero means no expiration
}

func (e entry[V]) expired(at time.Time) bool {
	return !e.expiresAt.IsZero() && at.After(e.expiresAt)
}

// SimpleCache is a lightweight map-backed cache with optional concurrency safety.
// It supports per-item TTL (no background janitor; cleanup is lazy or via PurgeExpired).
type SimpleCache[K comparable, V any] struct {
	// If muPtr is nil, the cache is NOT goroutine-safe.
	muPtr *sync.RWMutex
	clock func() time.Time

	items map[K]entry[V]
}

// Options controls construction of a SimpleCache.
type Options struct {
	// ConcurrencySafe controls whether operations are guarded by a RWMutex.
	ConcurrencySafe bool
	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
}

// NewSimpleCache constructs a new SimpleCache with the given options.
func NewSimpleCache[K comparable, V any](opts Options) *SimpleCache[K, V] {
	var mu *sync.RWMutex
	if opts.ConcurrencySafe {
		mu = &sync.RWMutex{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SimpleCache[K, V]{
		muPtr: mu,
		clock: clock,
		items: make(map[K]entry[V]),
	}
}

func (c *SimpleCache[K, V]) lockR() func() {
	if c.muPtr == nil {
		return func() {}
	}
	c.muPtr.RLock()
	return c.muPtr.RUnlock
}

func (c *SimpleCache[K, V]) lockW() func() {
	if c.muPtr == nil {
		return func() {}
	}
	c.muPtr.Lock()
	return c.muPtr.Unlock
}

func (c *SimpleCache[K, V]) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.clock().Add(ttl)
}

// Get implements Cache.Get.
func (c *SimpleCache[K, V]) Get(key K) (V, bool) {
	unlock := c.lockR()
	defer unlock()

	var zero V
	e, ok := c.items[key]
	if !ok || e.expired(c.clock()) {
		return zero, false
	}
	return e.value, true
}

// Set implements Cache.Set.
func (c *SimpleCache[K, V]) Set(key K, value V, ttl time.Duration) {
	unlock := c.lockW()
	defer unlock()
	c.items[key] = entry[V]{value: value, expiresAt: c.expiry(ttl)}
}

// Add implements Cache.Add.
func (c *SimpleCache[K, V]) Add(key K, value V, ttl time.Duration) bool {
	unlock := c.lockW()
	defer unlock()
	if e, ok := c.items[key]; ok && !e.expired(c.clock()) {
		return false
	}
	c.items[key] = entry[V]{value: value, expiresAt: c.expiry(ttl)}
	return true
}

// Delete implements Cache.Delete.
func (c *SimpleCache[K, V]) Delete(key K) {
	unlock := c.lockW()
	defer unlock()
	delete(c.items, key)
}

// Has implements Cache.Has.
func (c *SimpleCache[K, V]) Has(key K) bool {
	unlock := c.lockR()
	defer unlock()
	e, ok := c.items[key]
	return ok && !e.expired(c.clock())
}

// Len implements Cache.Len. It counts only non-expired entries.
func (c *SimpleCache[K, V]) Len() int {
	unlock := c.lockR()
	defer unlock()
	nowTs := c.clock()
	count := 0
	for _, e := range c.items {
		if !e.expired(nowTs) {
			count++
		}
	}
	return count
}

// Keys implements Cache.Keys.
func (c *SimpleCache[K, V]) Keys() []K {
	unlock := c.lockR()
	defer unlock()
	nowTs := c.clock()
	keys := make([]K, 0, len(c.items))
	for k, e := range c.items {
		if !e.expired(nowTs) {
			keys = append(keys, k)
		}
	}
	return keys
}

// PurgeExpired implements Cache.PurgeExpired.
func (c *SimpleCache[K, V]) PurgeExpired() []K {
	unlock := c.lockW()
	defer unlock()
	if len(c.items) == 0 {
		return nil
	}
	nowTs := c.clock()
	var purged []K
	for k, e := range c.items {
		if e.expired(nowTs) {
			delete(c.items, k)
			purged = append(purged, k)
		}
	}
	return purged
}

// Ensure SimpleCache implements Cache at compile time.
var _ Cache[any, any] = (*SimpleCache[any, any])(nil)
