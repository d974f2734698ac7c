// Package repository defines interfaces for data access operations.
// This package provides abstractions for database operations, allowing
// different backend implementations (SQLite, PostgreSQL) to be swapped
// without changing application code.
package repository

import (
	"context"
	"errors"

	"github.com/portalfile/portalfile/internal/models"
)

// Common errors returned by repository operations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicateKey is returned when an insert violates a uniqueness constraint.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNilDatabase is returned when a nil database connection is provided.
	ErrNilDatabase = errors.New("nil database connection")
)

// UploadSessionRepository defines database operations for chunked upload
// sessions. All methods accept a context for cancellation and timeout support.
type UploadSessionRepository interface {
	// Create inserts a new upload session record.
	Create(ctx context.Context, session *models.UploadSession) error

	// GetByUploadID retrieves a session by upload_id.
	// Returns nil, nil if not found.
	GetByUploadID(ctx context.Context, uploadID string) (*models.UploadSession, error)

	// UpdateActivity updates the last_activity timestamp.
	UpdateActivity(ctx context.Context, uploadID string) error

	// RecordChunk increments chunks_received and received_bytes.
	RecordChunk(ctx context.Context, uploadID string, chunkBytes int64) error

	// MarkCompleted marks a session as completed and sets the file id.
	MarkCompleted(ctx context.Context, uploadID, fileID string) error

	// Delete removes a session record.
	Delete(ctx context.Context, uploadID string) error

	// GetAbandoned returns incomplete sessions with no activity for the
	// given number of hours. Used by the cleanup worker.
	GetAbandoned(ctx context.Context, expiryHours int) ([]models.UploadSession, error)
}

// UserRepository exposes the read-only user surface the provisioning core
// depends on. User CRUD lives in an external collaborator.
type UserRepository interface {
	// GetByID retrieves a user by id. Returns nil, nil if not found.
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// ListIDs returns up to limit user ids greater than afterID, ascending.
	// Keyset pagination for bulk maintenance sweeps.
	ListIDs(ctx context.Context, afterID int64, limit int) ([]int64, error)
}

// ProvisioningTx is the transactional surface the provisioning manager runs
// its existence-check-then-create sequence against. The implementation's
// unique index on (user_id, provider_account_id, provider) is the consistency
// backstop; Create must return ErrDuplicateKey on a violation.
type ProvisioningTx interface {
	// FindStorageAccount looks up a storage account by its uniqueness triple.
	// Returns nil, nil if not found.
	FindStorageAccount(ctx context.Context, userID int64, provider, providerAccountID string) (*models.StorageAccount, error)

	// FindOAuthAccount looks up the linked OAuth account for a triple.
	// Returns nil, nil if not found.
	FindOAuthAccount(ctx context.Context, userID int64, provider, providerAccountID string) (*models.OAuthAccount, error)

	// CreateStorageAccount inserts a new storage account row.
	// Returns ErrDuplicateKey if the uniqueness triple already exists.
	CreateStorageAccount(ctx context.Context, account *models.StorageAccount) error

	// ReactivateStorageAccount flips a row to ACTIVE, clears last_error and
	// stamps last_accessed_at.
	ReactivateStorageAccount(ctx context.Context, id int64) error
}

// ProvisioningStore provides transactional access to storage accounts plus
// the non-transactional reads the maintenance jobs need.
type ProvisioningStore interface {
	// WithTx runs fn inside a single database transaction. The transaction
	// commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx ProvisioningTx) error) error

	// ListOAuthAccounts returns a user's OAuth accounts for the given
	// providers.
	ListOAuthAccounts(ctx context.Context, userID int64, providers []string) ([]models.OAuthAccount, error)

	// ListStorageAccountsByStatus returns storage accounts in any of the
	// given states, up to limit, for the health-check sweep.
	ListStorageAccountsByStatus(ctx context.Context, statuses []models.StorageAccountStatus, limit int) ([]models.StorageAccount, error)

	// SetStorageAccountStatus records a status transition with an optional
	// last-error message and stamps last_accessed_at on ACTIVE.
	SetStorageAccountStatus(ctx context.Context, id int64, status models.StorageAccountStatus, lastError string) error
}

// Repositories holds all repository implementations.
// This struct provides a single point of access to all data access layers.
type Repositories struct {
	Sessions     UploadSessionRepository
	Users        UserRepository
	Provisioning ProvisioningStore
	Locks        LockRepository
}
