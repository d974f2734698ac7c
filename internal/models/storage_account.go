package models

import "time"

// StorageAccountStatus is the lifecycle state of a linked storage account
type StorageAccountStatus string

const (
	// StorageAccountActive means the account is connected and usable
	StorageAccountActive StorageAccountStatus = "ACTIVE"

	// StorageAccountDisconnected means the user unlinked the account.
	// Disconnection is sticky: only an explicit force-create reactivates it.
	StorageAccountDisconnected StorageAccountStatus = "DISCONNECTED"

	// StorageAccountError means the last access attempt failed
	StorageAccountError StorageAccountStatus = "ERROR"
)

// StorageAccount represents one cloud-storage identity belonging to one user.
// At most one row exists per (user_id, provider_account_id, provider).
type StorageAccount struct {
	ID                int64                `json:"id"`
	UserID            int64                `json:"user_id"`
	Provider          string               `json:"provider"`
	ProviderAccountID string               `json:"provider_account_id"`
	DisplayName       string               `json:"display_name"`
	Email             string               `json:"email"`
	Status            StorageAccountStatus `json:"status"`
	IsActive          bool                 `json:"is_active"`
	LastAccessedAt    *time.Time           `json:"last_accessed_at,omitempty"`
	LastError         string               `json:"last_error,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// OAuthAccount is the OAuth-linked external identity a StorageAccount is tied
// to. Rows are written by the (out of scope) OAuth callback flow; the
// provisioning manager only reads them.
type OAuthAccount struct {
	ID                int64      `json:"id"`
	UserID            int64      `json:"user_id"`
	Provider          string     `json:"provider"`
	ProviderAccountID string     `json:"provider_account_id"`
	Email             string     `json:"email"`
	DisplayName       string     `json:"display_name"`
	AccessToken       string     `json:"-"`
	RefreshToken      string     `json:"-"`
	TokenExpiresAt    *time.Time `json:"token_expires_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}
