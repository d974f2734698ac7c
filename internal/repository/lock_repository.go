package repository

import (
	"context"
	"errors"
	"time"
)

// Common lock errors.
var (
	// ErrLockNotAcquired indicates the lock could not be acquired (already held).
	ErrLockNotAcquired = errors.New("lock not acquired")

	// ErrLockTimeout indicates the lock acquisition timed out.
	ErrLockTimeout = errors.New("lock timeout")

	// ErrInvalidLockKey indicates the lock key is invalid (empty or too long).
	ErrInvalidLockKey = errors.New("invalid lock key")
)

// LockType represents the type of distributed lock.
type LockType string

// Lock types for different operations.
const (
	// LockTypeStorageProvisioning guards create-or-get of a storage account
	// for one (user, provider, external account) triple.
	LockTypeStorageProvisioning LockType = "storage_provisioning"

	// LockTypeUserEnsure guards the bulk per-user ensure sweep.
	LockTypeUserEnsure LockType = "user_ensure"

	// LockTypeChunkAssembly is used when assembling chunks into a final file.
	LockTypeChunkAssembly LockType = "chunk_assembly"

	// LockTypeSessionCleanup is used when garbage-collecting abandoned sessions.
	LockTypeSessionCleanup LockType = "session_cleanup"
)

// LockInfo contains information about an acquired lock.
type LockInfo struct {
	// Key is the unique identifier for the lock.
	Key string `json:"key"`

	// Type is the lock type.
	Type LockType `json:"type"`

	// OwnerID identifies the lock owner (hostname:pid or instance ID).
	OwnerID string `json:"owner_id"`

	// AcquiredAt is when the lock was acquired.
	AcquiredAt time.Time `json:"acquired_at"`

	// ExpiresAt is when the lock will expire (for safety).
	ExpiresAt time.Time `json:"expires_at"`
}

// LockRepository defines the interface for mutual-exclusion locks.
// Implementations must be safe for concurrent use from multiple goroutines;
// the database-backed implementations are additionally safe across multiple
// application instances.
type LockRepository interface {
	// TryAcquire attempts to acquire a lock without blocking.
	// Returns (true, LockInfo, nil) if lock was acquired.
	// Returns (false, nil, nil) if lock is held by another owner.
	// Returns (false, nil, error) on unexpected errors.
	//
	// The ttl specifies how long the lock is held before auto-expiring,
	// which prevents deadlock from a crashed holder.
	TryAcquire(ctx context.Context, lockType LockType, lockKey string, ttl time.Duration, ownerID string) (bool, *LockInfo, error)

	// Acquire attempts to acquire a lock with bounded retry.
	// Returns (nil, ErrLockTimeout) if the lock could not be acquired
	// within timeout.
	Acquire(ctx context.Context, lockType LockType, lockKey string, ttl time.Duration, timeout time.Duration, ownerID string) (*LockInfo, error)

	// Release releases a held lock. Only the owner can release it.
	// Releasing a lock that is not held is not an error.
	Release(ctx context.Context, lockType LockType, lockKey string, ownerID string) error

	// Refresh extends the TTL of a held lock.
	// Returns ErrLockNotAcquired if the lock is not held by this owner.
	Refresh(ctx context.Context, lockType LockType, lockKey string, ttl time.Duration, ownerID string) error

	// IsHeld checks if a lock is currently held.
	// Returns (true, ownerID) if locked, (false, "") otherwise.
	IsHeld(ctx context.Context, lockType LockType, lockKey string) (bool, string, error)

	// CleanupExpired removes expired locks. Maintenance operation, called
	// periodically. Returns the number of locks removed.
	CleanupExpired(ctx context.Context) (int64, error)
}

// ValidLockTypes is a set of valid lock types for validation.
var ValidLockTypes = map[LockType]bool{
	LockTypeStorageProvisioning: true,
	LockTypeUserEnsure:          true,
	LockTypeChunkAssembly:       true,
	LockTypeSessionCleanup:      true,
}

// ValidateLockType validates that the lock type is valid.
func ValidateLockType(lockType LockType) error {
	if !ValidLockTypes[lockType] {
		return errors.New("invalid lock type")
	}
	return nil
}

// ValidateLockKey validates that the lock key is valid.
func ValidateLockKey(key string) error {
	if key == "" {
		return ErrInvalidLockKey
	}
	if len(key) > 255 {
		return ErrInvalidLockKey
	}
	return nil
}
