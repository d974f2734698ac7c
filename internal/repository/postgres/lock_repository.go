package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/portalfile/portalfile/internal/repository"
)

// LockRepository implements repository.LockRepository for PostgreSQL.
// This provides true distributed locking across multiple application
// instances: acquisition is a single atomic upsert that only steals a row
// whose TTL has lapsed or that the caller already owns.
type LockRepository struct {
	pool *Pool
}

// NewLockRepository creates a new PostgreSQL lock repository.
func NewLockRepository(pool *Pool) *LockRepository {
	return &LockRepository{pool: pool}
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
	if ttl > 24*time.Hour {
		ttl = 24 * time.Hour
	}

	now := time.Now()
	expiresAt := now.Add(ttl)

	// Atomic upsert: the row is only taken over when it is expired or
	// already ours, so exactly one caller wins under concurrency.
	query := `
		INSERT INTO distributed_locks (lock_type, lock_key, owner_id, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (lock_type, lock_key) DO UPDATE
		SET owner_id = EXCLUDED.owner_id,
		    acquired_at = CASE
		        WHEN distributed_locks.owner_id = EXCLUDED.owner_id THEN distributed_locks.acquired_at
		        ELSE EXCLUDED.acquired_at
		    END,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = NOW()
		WHERE distributed_locks.expires_at <= NOW()
		   OR distributed_locks.owner_id = EXCLUDED.owner_id
		RETURNING acquired_at
	`

	var acquiredAt time.Time
	err := r.pool.QueryRow(ctx, query, string(lockType), lockKey, ownerID, now, expiresAt).Scan(&acquiredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Row exists, unexpired, owned by someone else.
		return false, nil, nil
	}
	if err != nil {
		if isPgError(err, UniqueViolation) {
			// Concurrent insert raced us.
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	return true, &repository.LockInfo{
		Key:        lockKey,
		Type:       lockType,
		OwnerID:    ownerID,
		AcquiredAt: acquiredAt,
		ExpiresAt:  expiresAt,
	}, nil
}

// Acquire attempts to acquire a lock with bounded retry.
func (r *LockRepository) Acquire(ctx context.Context, lockType repository.LockType, lockKey string, ttl time.Duration, timeout time.Duration, ownerID string) (*repository.LockInfo, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive")
	}
	if timeout > 5*time.Minute {
		timeout = 5 * time.Minute
	}

	deadline := time.Now().Add(timeout)
	retryInterval := 100 * time.Millisecond
	maxRetryInterval := 2 * time.Second

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

		jitter := time.Duration(rand.Int63n(int64(retryInterval / 2)))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval + jitter):
		}

		retryInterval = retryInterval * 2
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

	query := `
		DELETE FROM distributed_locks
		WHERE lock_type = $1 AND lock_key = $2 AND owner_id = $3
	`
	if _, err := r.pool.Exec(ctx, query, string(lockType), lockKey, ownerID); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
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
	if ownerID == "" {
		return fmt.Errorf("owner_id cannot be empty")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	if ttl > 24*time.Hour {
		ttl = 24 * time.Hour
	}

	query := `
		UPDATE distributed_locks
		SET expires_at = $1, updated_at = NOW()
		WHERE lock_type = $2 AND lock_key = $3 AND owner_id = $4
		AND expires_at > NOW()
	`
	result, err := r.pool.Exec(ctx, query, time.Now().Add(ttl), string(lockType), lockKey, ownerID)
	if err != nil {
		return fmt.Errorf("failed to refresh lock: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrLockNotAcquired
	}
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

	query := `
		SELECT owner_id
		FROM distributed_locks
		WHERE lock_type = $1 AND lock_key = $2 AND expires_at > NOW()
	`
	var ownerID string
	err := r.pool.QueryRow(ctx, query, string(lockType), lockKey).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to check lock: %w", err)
	}
	return true, ownerID, nil
}

// CleanupExpired removes expired locks from the database.
func (r *LockRepository) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM distributed_locks WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired locks: %w", err)
	}
	return result.RowsAffected(), nil
}

// Ensure LockRepository implements repository.LockRepository.
var _ repository.LockRepository = (*LockRepository)(nil)
