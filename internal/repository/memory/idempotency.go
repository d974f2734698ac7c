// Package memory provides in-process implementations of the lock and
// idempotency interfaces for single-node deployments.
package memory

import (
	"time"

	ttlworker "github.com/FloatTech/ttl"
)

// DefaultIdempotencyTTL bounds how long duplicate calls short-circuit to a
// cached result.
const DefaultIdempotencyTTL = 5 * time.Minute

// IdempotencyStore is a TTL-bounded in-memory cache.
type IdempotencyStore[V any] struct {
	cache *ttlworker.Cache[string, *V]
}

// NewIdempotencyStore creates a store whose entries expire after ttl.
func NewIdempotencyStore[V any](ttl time.Duration) *IdempotencyStore[V] {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotencyStore[V]{
		cache: ttlworker.NewCache[string, *V](ttl),
	}
}

// Get returns the cached value for key, or (zero, false) on a miss.
func (s *IdempotencyStore[V]) Get(key string) (V, bool) {
	if v := s.cache.Get(key); v != nil {
		return *v, true
	}
	var zero V
	return zero, false
}

// Put caches value under key until the TTL elapses.
func (s *IdempotencyStore[V]) Put(key string, value V) {
	s.cache.Set(key, &value)
}

// Delete evicts key immediately.
func (s *IdempotencyStore[V]) Delete(key string) {
	s.cache.Delete(key)
}
