package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/portalfile/portalfile/internal/models"
	"github.com/portalfile/portalfile/internal/repository"
)

// ProvisioningStore implements repository.ProvisioningStore for SQLite.
// The UNIQUE(user_id, provider_account_id, provider) index on
// storage_accounts is the consistency backstop for concurrent creation.
type ProvisioningStore struct {
	db *sql.DB
}

// NewProvisioningStore creates a new SQLite provisioning store.
func NewProvisioningStore(db *sql.DB) *ProvisioningStore {
	return &ProvisioningStore{db: db}
}

// provisioningTx carries a live transaction through the manager's critical
// section.
type provisioningTx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a single serializable transaction.
func (s *ProvisioningStore) WithTx(ctx context.Context, fn func(tx repository.ProvisioningTx) error) error {
	tx, err := beginImmediateTx(ctx, s.db)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&provisioningTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const storageAccountColumns = `
	id, user_id, provider, provider_account_id, display_name, email,
	status, is_active, last_accessed_at, last_error, created_at, updated_at
`

func scanStorageAccount(row rowScanner) (*models.StorageAccount, error) {
	var a models.StorageAccount
	var status string
	var lastAccessed sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Provider,
		&a.ProviderAccountID,
		&a.DisplayName,
		&a.Email,
		&status,
		&a.IsActive,
		&lastAccessed,
		&a.LastError,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = models.StorageAccountStatus(status)
	if lastAccessed.Valid && lastAccessed.String != "" {
		t := parseTimeColumn(lastAccessed.String)
		a.LastAccessedAt = &t
	}
	a.CreatedAt = parseTimeColumn(createdAt)
	a.UpdatedAt = parseTimeColumn(updatedAt)
	return &a, nil
}

// FindStorageAccount looks up a storage account by its uniqueness triple.
func (t *provisioningTx) FindStorageAccount(ctx context.Context, userID int64, provider, providerAccountID string) (*models.StorageAccount, error) {
	query := `
		SELECT ` + storageAccountColumns + `
		FROM storage_accounts
		WHERE user_id = ? AND provider_account_id = ? AND provider = ?
	`
	account, err := scanStorageAccount(t.tx.QueryRowContext(ctx, query, userID, providerAccountID, provider))
	if err == sql.ErrNoRows {
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
		WHERE user_id = ? AND provider = ? AND provider_account_id = ?
	`
	account, err := scanOAuthAccount(t.tx.QueryRowContext(ctx, query, userID, provider, providerAccountID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find oauth account: %w", err)
	}
	return account, nil
}

func scanOAuthAccount(row rowScanner) (*models.OAuthAccount, error) {
	var a models.OAuthAccount
	var tokenExpires sql.NullString
	var createdAt string
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Provider,
		&a.ProviderAccountID,
		&a.Email,
		&a.DisplayName,
		&a.AccessToken,
		&a.RefreshToken,
		&tokenExpires,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	if tokenExpires.Valid && tokenExpires.String != "" {
		t := parseTimeColumn(tokenExpires.String)
		a.TokenExpiresAt = &t
	}
	a.CreatedAt = parseTimeColumn(createdAt)
	return &a, nil
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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := t.tx.ExecContext(ctx, query,
		account.UserID,
		account.Provider,
		account.ProviderAccountID,
		account.DisplayName,
		account.Email,
		string(account.Status),
		account.IsActive,
		nullableTime(account.LastAccessedAt),
		account.LastError,
		account.CreatedAt.Format(time.RFC3339),
		account.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create storage account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get storage account id: %w", err)
	}
	account.ID = id
	return nil
}

// ReactivateStorageAccount flips a row to ACTIVE, clears last_error and
// stamps last_accessed_at.
func (t *provisioningTx) ReactivateStorageAccount(ctx context.Context, id int64) error {
	now := time.Now().Format(time.RFC3339)
	query := `
		UPDATE storage_accounts
		SET status = 'ACTIVE', is_active = 1, last_error = '',
		    last_accessed_at = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := t.tx.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to reactivate storage account: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListOAuthAccounts returns a user's OAuth accounts for the given providers.
func (s *ProvisioningStore) ListOAuthAccounts(ctx context.Context, userID int64, providers []string) ([]models.OAuthAccount, error) {
	if len(providers) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(providers))
	placeholders = placeholders[:len(placeholders)-1]

	query := `
		SELECT id, user_id, provider, provider_account_id, email, display_name,
		       access_token, refresh_token, token_expires_at, created_at
		FROM oauth_accounts
		WHERE user_id = ? AND provider IN (` + placeholders + `)
		ORDER BY id ASC
	`

	args := make([]interface{}, 0, len(providers)+1)
	args = append(args, userID)
	for _, p := range providers {
		args = append(args, p)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
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

	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]

	query := `
		SELECT ` + storageAccountColumns + `
		FROM storage_accounts
		WHERE status IN (` + placeholders + `)
		ORDER BY id ASC
		LIMIT ?
	`

	args := make([]interface{}, 0, len(statuses)+1)
	for _, st := range statuses {
		args = append(args, string(st))
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	now := time.Now().Format(time.RFC3339)

	var query string
	var args []interface{}
	if status == models.StorageAccountActive {
		query = `
			UPDATE storage_accounts
			SET status = ?, is_active = 1, last_error = ?, last_accessed_at = ?, updated_at = ?
			WHERE id = ?
		`
		args = []interface{}{string(status), lastError, now, now, id}
	} else {
		query = `
			UPDATE storage_accounts
			SET status = ?, last_error = ?, updated_at = ?
			WHERE id = ?
		`
		args = []interface{}{string(status), lastError, now, id}
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to set storage account status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ensure ProvisioningStore implements the interface.
var _ repository.ProvisioningStore = (*ProvisioningStore)(nil)
