package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/portalfile/portalfile/internal/models"
	"github.com/portalfile/portalfile/internal/repository"
)

// ProvisioningStore implements repository.ProvisioningStore for PostgreSQL.
// Serializable transactions plus the UNIQUE(user_id, provider_account_id,
// provider) index make concurrent existence-check-then-create safe even
// without the lock layer.
type ProvisioningStore struct {
	pool *Pool
}

// NewProvisioningStore creates a new PostgreSQL provisioning store.
func NewProvisioningStore(pool *Pool) *ProvisioningStore {
	return &ProvisioningStore{pool: pool}
}

type provisioningTx struct {
	tx pgx.Tx
}

// WithTx runs fn inside a single serializable transaction.
func (s *ProvisioningStore) WithTx(ctx context.Context, fn func(tx repository.ProvisioningTx) error) error {
	tx, err := s.pool.BeginTx(ctx, TxOptions())
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&provisioningTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const storageAccountColumns = `
	id, user_id, provider, provider_account_id, display_name, email,
	status, is_active, last_accessed_at, last_error, created_at, updated_at
`

func scanStorageAccount(row pgx.Row) (*models.StorageAccount, error) {
	var a models.StorageAccount
	var status string
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Provider,
		&a.ProviderAccountID,
		&a.DisplayName,
		&a.Email,
		&status,
		&a.IsActive,
		&a.LastAccessedAt,
		&a.LastError,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = models.StorageAccountStatus(status)
	return &a, nil
}

func scanOAuthAccount(row pgx.Row) (*models.OAuthAccount, error) {
	var a models.OAuthAccount
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Provider,
		&a.ProviderAccountID,
		&a.Email,
		&a.DisplayName,
		&a.AccessToken,
		&a.RefreshToken,
		&a.TokenExpiresAt,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindStorageAccount looks up a storage account by its uniqueness triple.
func (t *provisioningTx) FindStorageAccount(ctx context.Context, userID int64, provider, providerAccountID string) (*models.StorageAccount, error) {
	query := `
		SELECT ` + storageAccountColumns + `
		FROM storage_accounts
		WHERE user_id = $1 AND provider_account_id = $2 AND provider = $3
	`
	account, err := scanStorageAccount(t.tx.QueryRow(ctx, query, userID, providerAccountID, provider))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find storage account: %w", err)
	}
	return account, nil
}

// FindOAuthAccount looks up the linked OAuth account for a triple.
func (t *provisioningTx) FindOAuthAccount(ctx context.Context, userID int64, provider, providerAccountID string) (*models.OAuthAccount, error) {
	query := `
		SELECT id, user_id, provider, provider_account_id, email, display_name,
		       access_token, refresh_token, token_expires_at, created_at
		FROM oauth_accounts
		WHERE user_id = $1 AND provider = $2 AND provider_account_id = $3
	`
	account, err := scanOAuthAccount(t.tx.QueryRow(ctx, query, userID, provider, providerAccountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find oauth account: %w", err)
	}
	return account, nil
}

// CreateStorageAccount inserts a new storage account row.
func (t *provisioningTx) CreateStorageAccount(ctx context.Context, account *models.StorageAccount) error {
	if account == nil {
		return fmt.Errorf("account cannot be nil")
	}

	query := `
		INSERT INTO storage_accounts (
			user_id, provider, provider_account_id, display_name, email,
			status, is_active, last_accessed_at, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err := t.tx.QueryRow(ctx, query,
		account.UserID,
		account.Provider,
		account.ProviderAccountID,
		account.DisplayName,
		account.Email,
		string(account.Status),
		account.IsActive,
		account.LastAccessedAt,
		account.LastError,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID)
	if err != nil {
		if isPgError(err, UniqueViolation) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create storage account: %w", err)
	}
	return nil
}

// ReactivateStorageAccount flips a row to ACTIVE, clears last_error and
// stamps last_accessed_at.
func (t *provisioningTx) ReactivateStorageAccount(ctx context.Context, id int64) error {
	query := `
		UPDATE storage_accounts
		SET status = 'ACTIVE', is_active = TRUE, last_error = '',
		    last_accessed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	result, err := t.tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to reactivate storage account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListOAuthAccounts returns a user's OAuth accounts for the given providers.
func (s *ProvisioningStore) ListOAuthAccounts(ctx context.Context, userID int64, providers []string) ([]models.OAuthAccount, error) {
	if len(providers) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, user_id, provider, provider_account_id, email, display_name,
		       access_token, refresh_token, token_expires_at, created_at
		FROM oauth_accounts
		WHERE user_id = $1 AND provider = ANY($2)
		ORDER BY id ASC
	`
	rows, err := s.pool.Query(ctx, query, userID, providers)
	if err != nil {
		return nil, fmt.Errorf("failed to query oauth accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.OAuthAccount
	for rows.Next() {
		a, err := scanOAuthAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan oauth account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating oauth accounts: %w", err)
	}
	return accounts, nil
}

// ListStorageAccountsByStatus returns storage accounts in any of the given states.
func (s *ProvisioningStore) ListStorageAccountsByStatus(ctx context.Context, statuses []models.StorageAccountStatus, limit int) ([]models.StorageAccount, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	strs := make([]string, len(statuses))
	for i, st := range statuses {
		strs[i] = string(st)
	}

	query := `
		SELECT ` + storageAccountColumns + `
		FROM storage_accounts
		WHERE status = ANY($1)
		ORDER BY id ASC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, strs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.StorageAccount
	for rows.Next() {
		a, err := scanStorageAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan storage account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating storage accounts: %w", err)
	}
	return accounts, nil
}

// SetStorageAccountStatus records a status transition.
func (s *ProvisioningStore) SetStorageAccountStatus(ctx context.Context, id int64, status models.StorageAccountStatus, lastError string) error {
	var query string
	if status == models.StorageAccountActive {
		query = `
			UPDATE storage_accounts
			SET status = $1, is_active = TRUE, last_error = $2,
			    last_accessed_at = NOW(), updated_at = NOW()
			WHERE id = $3
		`
	} else {
		query = `
			UPDATE storage_accounts
			SET status = $1, last_error = $2, updated_at = NOW()
			WHERE id = $3
		`
	}

	result, err := s.pool.Exec(ctx, query, string(status), lastError, id)
	if err != nil {
		return fmt.Errorf("failed to set storage account status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ repository.ProvisioningStore = (*ProvisioningStore)(nil)
