package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/portalfile/portalfile/internal/repository"
)

type lockEntry struct {
	ownerID    string
	acquiredAt time.Time
	expiresAt  time.Time
}

// LockRepository implements repository.LockRepository with a process-local
// map. It provides mutual exclusion within a single application instance
// only; multi-node deployments use the PostgreSQL implementation behind the
// same interface.
type LockRepository struct {
	mu    sync.Mutex
	locks map[string]lockEntry
}

// NewLockRepository creates an in-process lock repository.
func NewLockRepository() *LockRepository {
	return &LockRepository{locks: make(map[string]lockEntry)}
}

func lockID(lockType repository.LockType, lockKey string) string {
	return string(lockType) + "\x00" + lockKey
}

// TryAcquire attempts to acquire a lock without blocking.
func (r *LockRepository) TryAcquire(ctx context.Context, lockType repository.LockType, lockKey string, ttl time.Duration, ownerID string) (bool, *repository.LockInfo, error) {
	if err := repository.ValidateLockType(lockType); err != nil {
		return false, nil, err
	}
	if err := repository.ValidateLockKey(lockKey); err != nil {
		return false, nil, err
	}
	if ownerID == "" {
		return false, nil, fmt.Errorf("owner_id cannot be empty")
	}
	if ttl <= 0 {
		return false, nil, fmt.Errorf("ttl must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	id := lockID(lockType, lockKey)

	if existing, ok := r.locks[id]; ok && existing.expiresAt.After(now) {
		if existing.ownerID != ownerID {
			return false, nil, nil
		}
		// Re-entry by the owner refreshes the TTL.
		existing.expiresAt = now.Add(ttl)
		r.locks[id] = existing
		return true, &repository.LockInfo{
			Key:        lockKey,
			Type:       lockType,
			OwnerID:    ownerID,
			AcquiredAt: existing.acquiredAt,
			ExpiresAt:  existing.expiresAt,
		}, nil
	}

	entry := lockEntry{
		ownerID:    ownerID,
		acquiredAt: now,
		expiresAt:  now.Add(ttl),
	}
	r.locks[id] = entry

	return true, &repository.LockInfo{
		Key:        lockKey,
		Type:       lockType,
		OwnerID:    ownerID,
		AcquiredAt: entry.acquiredAt,
		ExpiresAt:  entry.expiresAt,
	}, nil
}

// Acquire attempts to acquire a lock with bounded retry.
func (r *LockRepository) Acquire(ctx context.Context, lockType repository.LockType, lockKey string, ttl time.Duration, timeout time.Duration, ownerID string) (*repository.LockInfo, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive")
	}

	deadline := time.Now().Add(timeout)
	retryInterval := 10 * time.Millisecond
	maxRetryInterval := 500 * time.Millisecond

	for {
		acquired, lockInfo, err := r.TryAcquire(ctx, lockType, lockKey, ttl, ownerID)
		if err != nil {
			return nil, err
		}
		if acquired {
			return lockInfo, nil
		}

		if time.Now().After(deadline) {
			return nil, repository.ErrLockTimeout
		}

		// Jitter prevents lockstep retries from concurrent waiters.
		jitter := time.Duration(rand.Int63n(int64(retryInterval/2) + 1))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval + jitter):
		}

		retryInterval *= 2
		if retryInterval > maxRetryInterval {
			retryInterval = maxRetryInterval
		}
	}
}

// Release releases a held lock.
func (r *LockRepository) Release(ctx context.Context, lockType repository.LockType, lockKey string, ownerID string) error {
	if err := repository.ValidateLockType(lockType); err != nil {
		return err
	}
	if err := repository.ValidateLockKey(lockKey); err != nil {
		return err
	}
	if ownerID == "" {
		return fmt.Errorf("owner_id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := lockID(lockType, lockKey)
	if existing, ok := r.locks[id]; ok && existing.ownerID == ownerID {
		delete(r.locks, id)
	}
	return nil
}

// Refresh extends the TTL of a held lock.
func (r *LockRepository) Refresh(ctx context.Context, lockType repository.LockType, lockKey string, ttl time.Duration, ownerID string) error {
	if err := repository.ValidateLockType(lockType); err != nil {
		return err
	}
	if err := repository.ValidateLockKey(lockKey); err != nil {
		return err
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	id := lockID(lockType, lockKey)
	existing, ok := r.locks[id]
	if !ok || existing.ownerID != ownerID || !existing.expiresAt.After(now) {
		return repository.ErrLockNotAcquired
	}

	existing.expiresAt = now.Add(ttl)
	r.locks[id] = existing
	return nil
}

// IsHeld checks if a lock is currently held.
func (r *LockRepository) IsHeld(ctx context.Context, lockType repository.LockType, lockKey string) (bool, string, error) {
	if err := repository.ValidateLockType(lockType); err != nil {
		return false, "", err
	}
	if err := repository.ValidateLockKey(lockKey); err != nil {
		return false, "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.locks[lockID(lockType, lockKey)]; ok && existing.expiresAt.After(time.Now()) {
		return true, existing.ownerID, nil
	}
	return false, "", nil
}

// CleanupExpired removes expired locks.
func (r *LockRepository) CleanupExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var cleaned int64
	for id, entry := range r.locks {
		if !entry.expiresAt.After(now) {
			delete(r.locks, id)
			cleaned++
		}
	}
	return cleaned, nil
}

// Ensure LockRepository implements repository.LockRepository.
var _ repository.LockRepository = (*LockRepository)(nil)
