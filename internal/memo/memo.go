// Package memo holds the last computed value for a key. A lookup with any
// other key recomputes and replaces it, so callers never clear it by hand.
package memo

import "sync"

// Cache is a single-record cache. K must capture every input that affects
// the computed value.
type Cache[K comparable, V any] struct {
	mu    sync.Mutex
	key   K
	value V
	valid bool

	hits, misses uint64
}

// Get returns the cached value when key equals the stored key, otherwise
// it calls compute and stores the result. Errors are returned but never
// cached.
func (c *Cache[K, V]) Get(key K, compute func() (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.key == key {
		c.hits++
		return c.value, nil
	}
	c.misses++

	v, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}
	c.key, c.value, c.valid = key, v, true
	return v, nil
}

// Stats reports how many lookups were served from the cache and how many
// recomputed.
func (c *Cache[K, V]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
