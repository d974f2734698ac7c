package utils

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/portalfile/portalfile/internal/repository"
)

// Default lock configuration values.
const (
	// DefaultLockTTL is the default time-to-live for locks.
	DefaultLockTTL = 10 * time.Minute

	// DefaultLockTimeout is the default timeout for acquiring locks.
	DefaultLockTimeout = 30 * time.Second

	// ChunkAssemblyLockTTL covers assembly of large files.
	ChunkAssemblyLockTTL = 30 * time.Minute

	// ProvisioningLockTTL covers one create-or-get transaction.
	ProvisioningLockTTL = 30 * time.Second

	// CleanupLockTTL covers one maintenance sweep.
	CleanupLockTTL = 15 * time.Minute
)

var (
	// ownerID is cached for the lifetime of the process.
	ownerID     string
	ownerIDOnce sync.Once
)

// GetOwnerID returns a unique identifier for this process instance.
// Format: hostname:pid:nonce. The nonce keeps two instances on the same
// host distinguishable across restarts.
func GetOwnerID() string {
	ownerIDOnce.Do(func() {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		nonce := make([]byte, 8)
		if _, err := rand.Read(nonce); err != nil {
			nonce = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		ownerID = fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), hex.EncodeToString(nonce))
	})
	return ownerID
}

// DistributedLock provides a convenient wrapper for distributed locking operations.
type DistributedLock struct {
	repo     repository.LockRepository
	lockType repository.LockType
	lockKey  string
	ownerID  string
	ttl      time.Duration
	acquired bool
	mu       sync.Mutex
}

// NewDistributedLock creates a new distributed lock wrapper. Lock identity
// is per wrapper instance, not per process: two goroutines each holding a
// wrapper for the same key genuinely contend.
func NewDistributedLock(repo repository.LockRepository, lockType repository.LockType, lockKey string, ttl time.Duration) *DistributedLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &DistributedLock{
		repo:     repo,
		lockType: lockType,
		lockKey:  lockKey,
		ownerID:  fmt.Sprintf("%s:%s", GetOwnerID(), uuid.NewString()),
		ttl:      ttl,
	}
}

// TryAcquire attempts to acquire the lock without blocking.
func (l *DistributedLock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acquired, _, err := l.repo.TryAcquire(ctx, l.lockType, l.lockKey, l.ttl, l.ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	l.acquired = acquired
	return acquired, nil
}

// Acquire attempts to acquire the lock with bounded retry up to timeout.
func (l *DistributedLock) Acquire(ctx context.Context, timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}

	_, err := l.repo.Acquire(ctx, l.lockType, l.lockKey, l.ttl, timeout, l.ownerID)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	l.acquired = true
	return nil
}

// Release releases the lock if held.
func (l *DistributedLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.acquired {
		return nil
	}

	if err := l.repo.Release(ctx, l.lockType, l.lockKey, l.ownerID); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	l.acquired = false
	return nil
}

// Refresh extends the lock TTL. Call periodically during long operations.
func (l *DistributedLock) Refresh(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.acquired {
		return repository.ErrLockNotAcquired
	}

	if err := l.repo.Refresh(ctx, l.lockType, l.lockKey, l.ttl, l.ownerID); err != nil {
		return fmt.Errorf("failed to refresh lock: %w", err)
	}
	return nil
}

// IsAcquired returns whether the lock is currently held by this wrapper.
func (l *DistributedLock) IsAcquired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquired
}

// WithLock executes fn while holding the lock, releasing it afterwards.
func WithLock(ctx context.Context, repo repository.LockRepository, lockType repository.LockType, lockKey string, ttl time.Duration, timeout time.Duration, fn func() error) error {
	lock := NewDistributedLock(repo, lockType, lockKey, ttl)

	if err := lock.Acquire(ctx, timeout); err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			slog.Warn("failed to release lock", "lock_type", lockType, "lock_key", lockKey, "error", err)
		}
	}()

	return fn()
}

// TryWithLock executes fn if the lock can be taken immediately.
// Returns (false, nil) when another owner holds the lock.
func TryWithLock(ctx context.Context, repo repository.LockRepository, lockType repository.LockType, lockKey string, ttl time.Duration, fn func() error) (bool, error) {
	lock := NewDistributedLock(repo, lockType, lockKey, ttl)

	acquired, err := lock.TryAcquire(ctx)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}

	defer func() {
		if err := lock.Release(ctx); err != nil {
			slog.Warn("failed to release lock", "lock_type", lockType, "lock_key", lockKey, "error", err)
		}
	}()

	return true, fn()
}

// StartLockCleanupWorker periodically removes expired locks until ctx is done.
func StartLockCleanupWorker(ctx context.Context, repo repository.LockRepository, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("lock cleanup worker started", "interval", interval)

	cleanupExpiredLocks(ctx, repo)

	for {
		select {
		case <-ctx.Done():
			slog.Info("lock cleanup worker shutting down")
			return
		case <-ticker.C:
			cleanupExpiredLocks(ctx, repo)
		}
	}
}

func cleanupExpiredLocks(ctx context.Context, repo repository.LockRepository) {
	cleaned, err := repo.CleanupExpired(ctx)
	if err != nil {
		slog.Error("failed to cleanup expired locks", "error", err)
		return
	}
	if cleaned > 0 {
		slog.Info("cleaned up expired locks", "count", cleaned)
	}
}
