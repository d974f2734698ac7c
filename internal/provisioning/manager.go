package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/portalfile/portalfile/internal/models"
	"github.com/portalfile/portalfile/internal/repository"
	"github.com/portalfile/portalfile/internal/utils"
)

// Outcome describes what the create-or-get operation actually did.
type Outcome string

const (
	OutcomeCreated              Outcome = "CREATED"
	OutcomeExistingActive       Outcome = "EXISTING_ACTIVE"
	OutcomeExistingDisconnected Outcome = "EXISTING_DISCONNECTED"
	OutcomeReactivated          Outcome = "REACTIVATED"
)

// ErrorCode classifies structured provisioning failures.
type ErrorCode string

const (
	CodeInvalidProvider ErrorCode = "INVALID_PROVIDER"
	CodeOAuthNotFound   ErrorCode = "OAUTH_NOT_FOUND"
	CodeLockFailed      ErrorCode = "LOCK_FAILED"
	CodeInternal        ErrorCode = "INTERNAL"
)

// Retryable reports whether a failure with this code can succeed on retry.
func (c ErrorCode) Retryable() bool {
	return c == CodeLockFailed
}

// AccountRef identifies an external cloud storage identity.
type AccountRef struct {
	Provider          string
	ExternalAccountID string
}

// Options tunes the create-or-get behavior for one call.
//
// RespectDisconnected keeps a DISCONNECTED row untouched; with it unset the
// caller is explicitly opting out of stickiness and the row is reactivated.
// ForceCreate reactivates regardless.
type Options struct {
	ForceCreate         bool
	RespectDisconnected bool
}

// ProvisionResult is the structured outcome of a create-or-get call.
// Expected conditions (invalid provider, missing OAuth grant, disconnected
// account) are reported here, never as errors.
type ProvisionResult struct {
	Success bool
	Outcome Outcome
	Account *models.StorageAccount
	Cached  bool
	Code    ErrorCode
	Message string
}

// Default lock bounds for one provisioning critical section.
const (
	DefaultLockTTL     = 30 * time.Second
	DefaultLockTimeout = 10 * time.Second
)

// Manager is the single source of truth for storage-account creation. The
// per-triple lock serializes concurrent callers; the transaction plus the
// unique index on (user_id, provider_account_id, provider) is the
// consistency backstop if the lock store is ever weakened.
type Manager struct {
	store       repository.ProvisioningStore
	locks       repository.LockRepository
	users       repository.UserRepository
	cache       repository.IdempotencyStore[ProvisionResult]
	lockTTL     time.Duration
	lockTimeout time.Duration
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithLockBounds overrides the lock TTL and acquisition timeout.
func WithLockBounds(ttl, timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
		if timeout > 0 {
			m.lockTimeout = timeout
		}
	}
}

// NewManager creates a provisioning manager. The cache may be nil; calls
// then always take the transactional path.
func NewManager(store repository.ProvisioningStore, locks repository.LockRepository, users repository.UserRepository, cache repository.IdempotencyStore[ProvisionResult], opts ...ManagerOption) *Manager {
	m := &Manager{
		store:       store,
		locks:       locks,
		users:       users,
		cache:       cache,
		lockTTL:     DefaultLockTTL,
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// tripleKey is both the lock key and the idempotency key for one triple.
func tripleKey(userID int64, provider, externalAccountID string) string {
	return fmt.Sprintf("%s:%s:%d", provider, externalAccountID, userID)
}

// CreateOrGetStorageAccount creates, fetches or reactivates the storage
// account for (userID, provider, externalAccountID). Safe under arbitrary
// concurrency: of N concurrent callers for a fresh triple exactly one
// observes OutcomeCreated.
func (m *Manager) CreateOrGetStorageAccount(ctx context.Context, userID int64, ref AccountRef, email, displayName string, opts Options) ProvisionResult {
	provider := NormalizeProvider(ref.Provider)
	if !IsSupportedProvider(provider) {
		return ProvisionResult{
			Code:    CodeInvalidProvider,
			Message: fmt.Sprintf("unsupported provider %q", ref.Provider),
		}
	}

	key := tripleKey(userID, provider, ref.ExternalAccountID)

	lock := utils.NewDistributedLock(m.locks, repository.LockTypeStorageProvisioning, key, m.lockTTL)
	if err := lock.Acquire(ctx, m.lockTimeout); err != nil {
		slog.Warn("provisioning lock acquisition failed",
			"user_id", userID,
			"provider", provider,
			"error", err,
		)
		return ProvisionResult{
			Code:    CodeLockFailed,
			Message: fmt.Sprintf("could not acquire provisioning lock: %v", err),
		}
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			slog.Warn("provisioning lock release failed", "key", key, "error", err)
		}
	}()

	if m.cache != nil {
		if cached, ok := m.cache.Get(key); ok {
			cached.Cached = true
			return cached
		}
	}

	result := m.provision(ctx, userID, provider, ref.ExternalAccountID, email, displayName, opts)

	if result.Success && m.cache != nil {
		m.cache.Put(key, result)
	}

	return result
}

// provision runs the existence-check-then-create sequence. A unique-index
// violation means another writer won a race the lock did not cover; the
// loser re-reads in a fresh transaction and reports the existing row.
func (m *Manager) provision(ctx context.Context, userID int64, provider, externalAccountID, email, displayName string, opts Options) ProvisionResult {
	result, err := m.provisionTx(ctx, userID, provider, externalAccountID, email, displayName, opts)
	if errors.Is(err, repository.ErrDuplicateKey) {
		result, err = m.provisionTx(ctx, userID, provider, externalAccountID, email, displayName, opts)
	}
	if err != nil {
		slog.Error("provisioning transaction failed",
			"user_id", userID,
			"provider", provider,
			"error", err,
		)
		return ProvisionResult{
			Code:    CodeInternal,
			Message: err.Error(),
		}
	}
	return result
}

func (m *Manager) provisionTx(ctx context.Context, userID int64, provider, externalAccountID, email, displayName string, opts Options) (ProvisionResult, error) {
	var result ProvisionResult

	err := m.store.WithTx(ctx, func(tx repository.ProvisioningTx) error {
		existing, err := tx.FindStorageAccount(ctx, userID, provider, externalAccountID)
		if err != nil {
			return err
		}

		if existing != nil {
			if existing.Status == models.StorageAccountDisconnected {
				if !opts.ForceCreate && opts.RespectDisconnected {
					result = ProvisionResult{
						Success: true,
						Outcome: OutcomeExistingDisconnected,
						Account: existing,
					}
					return nil
				}

				if err := tx.ReactivateStorageAccount(ctx, existing.ID); err != nil {
					return err
				}
				now := time.Now().UTC()
				existing.Status = models.StorageAccountActive
				existing.IsActive = true
				existing.LastError = ""
				existing.LastAccessedAt = &now
				existing.UpdatedAt = now
				result = ProvisionResult{
					Success: true,
					Outcome: OutcomeReactivated,
					Account: existing,
				}
				return nil
			}

			result = ProvisionResult{
				Success: true,
				Outcome: OutcomeExistingActive,
				Account: existing,
			}
			return nil
		}

		oauth, err := tx.FindOAuthAccount(ctx, userID, provider, externalAccountID)
		if err != nil {
			return err
		}
		if oauth == nil {
			result = ProvisionResult{
				Code:    CodeOAuthNotFound,
				Message: fmt.Sprintf("no OAuth grant for user %d on %s", userID, provider),
			}
			return nil
		}

		if email == "" {
			email = oauth.Email
		}
		if displayName == "" {
			displayName = oauth.DisplayName
		}

		now := time.Now().UTC()
		account := &models.StorageAccount{
			UserID:            userID,
			Provider:          provider,
			ProviderAccountID: externalAccountID,
			DisplayName:       displayName,
			Email:             email,
			Status:            models.StorageAccountActive,
			IsActive:          true,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.CreateStorageAccount(ctx, account); err != nil {
			return err
		}

		result = ProvisionResult{
			Success: true,
			Outcome: OutcomeCreated,
			Account: account,
		}
		return nil
	})
	if err != nil {
		return ProvisionResult{}, err
	}

	if result.Outcome == OutcomeCreated {
		slog.Info("storage account created",
			"user_id", userID,
			"provider", provider,
			"account_id", result.Account.ID,
		)
	}

	return result, nil
}

// EnsureResult accumulates the per-account outcomes of a bulk ensure.
type EnsureResult struct {
	Created      int
	Reactivated  int
	AlreadyValid int
	Errors       []string
}

// EnsureStorageAccountsForUser walks the user's OAuth grants for supported
// providers and runs create-or-get for each. A failure on one grant does
// not abort the others.
func (m *Manager) EnsureStorageAccountsForUser(ctx context.Context, userID int64, opts Options) (EnsureResult, error) {
	var result EnsureResult

	err := utils.WithLock(ctx, m.locks, repository.LockTypeUserEnsure, strconv.FormatInt(userID, 10), m.lockTTL, m.lockTimeout, func() error {
		user, err := m.users.GetByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load user %d: %w", userID, err)
		}
		if user == nil {
			return fmt.Errorf("user %d not found", userID)
		}

		grants, err := m.store.ListOAuthAccounts(ctx, userID, SupportedProviders)
		if err != nil {
			return fmt.Errorf("failed to list oauth accounts for user %d: %w", userID, err)
		}

		for _, grant := range grants {
			r := m.CreateOrGetStorageAccount(ctx, userID, AccountRef{
				Provider:          grant.Provider,
				ExternalAccountID: grant.ProviderAccountID,
			}, grant.Email, grant.DisplayName, opts)

			switch {
			case r.Success && r.Outcome == OutcomeCreated && !r.Cached:
				result.Created++
			case r.Success && r.Outcome == OutcomeReactivated && !r.Cached:
				result.Reactivated++
			case r.Success:
				result.AlreadyValid++
			default:
				result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %s", grant.Provider, grant.ProviderAccountID, r.Message))
			}
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	return result, nil
}
