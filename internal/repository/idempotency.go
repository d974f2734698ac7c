package repository

// IdempotencyStore absorbs retried or duplicate concurrent calls by caching
// a computed result under a deterministic key for a bounded window.
//
// Implementations must be safe for concurrent use. A store failure is never
// fatal to callers: the provisioning manager degrades to direct transactional
// execution when the cache misbehaves.
type IdempotencyStore[V any] interface {
	// Get returns the cached value for key, or (zero, false) on a miss.
	Get(key string) (V, bool)

	// Put caches value under key until the store's TTL elapses.
	Put(key string, value V)

	// Delete evicts key immediately.
	Delete(key string)
}
