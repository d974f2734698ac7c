package provisioning

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/portalfile/portalfile/internal/models"
	"github.com/portalfile/portalfile/internal/repository"
	"github.com/portalfile/portalfile/internal/utils"
)

// SweepResult aggregates an EnsureAllUsers run.
type SweepResult struct {
	UsersProcessed int
	Created        int
	Reactivated    int
	AlreadyValid   int
	Errors         []string
}

// EnsureAllUsers walks every active user in keyset-paginated batches and
// runs the bulk ensure for each. Per-user failures are collected, not fatal.
func (m *Manager) EnsureAllUsers(ctx context.Context, batchSize int) (SweepResult, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	var sweep SweepResult
	var afterID int64

	for {
		if err := ctx.Err(); err != nil {
			return sweep, err
		}

		ids, err := m.users.ListIDs(ctx, afterID, batchSize)
		if err != nil {
			return sweep, fmt.Errorf("failed to list user ids after %d: %w", afterID, err)
		}
		if len(ids) == 0 {
			break
		}

		for _, userID := range ids {
			result, err := m.EnsureStorageAccountsForUser(ctx, userID, Options{RespectDisconnected: true})
			if err != nil {
				sweep.Errors = append(sweep.Errors, fmt.Sprintf("user %d: %v", userID, err))
				continue
			}
			sweep.UsersProcessed++
			sweep.Created += result.Created
			sweep.Reactivated += result.Reactivated
			sweep.AlreadyValid += result.AlreadyValid
			sweep.Errors = append(sweep.Errors, result.Errors...)
		}

		afterID = ids[len(ids)-1]
	}

	return sweep, nil
}

// HealthChecker sweeps ACTIVE and ERROR accounts and probes their stored
// OAuth tokens. A failed probe marks the account ERROR with the failure
// text; a successful probe restores ACTIVE and stamps last-accessed.
type HealthChecker struct {
	store       repository.ProvisioningStore
	credentials map[string]ProviderCredentials
	batchSize   int
}

// NewHealthChecker creates a health checker. credentials maps provider name
// to its OAuth client credentials.
func NewHealthChecker(store repository.ProvisioningStore, credentials map[string]ProviderCredentials, batchSize int) *HealthChecker {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &HealthChecker{
		store:       store,
		credentials: credentials,
		batchSize:   batchSize,
	}
}

// CheckAccounts runs one sweep. Returns the number of accounts probed.
func (h *HealthChecker) CheckAccounts(ctx context.Context) (int, error) {
	accounts, err := h.store.ListStorageAccountsByStatus(ctx, []models.StorageAccountStatus{
		models.StorageAccountActive,
		models.StorageAccountError,
	}, h.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts for health check: %w", err)
	}

	checked := 0
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return checked, err
		}
		h.checkAccount(ctx, account)
		checked++
	}
	return checked, nil
}

func (h *HealthChecker) checkAccount(ctx context.Context, account models.StorageAccount) {
	grant, err := h.findGrant(ctx, account)
	if err != nil {
		slog.Error("health check grant lookup failed",
			"account_id", account.ID,
			"provider", account.Provider,
			"error", err,
		)
		return
	}
	if grant == nil {
		h.setStatus(ctx, account, models.StorageAccountError, "no OAuth grant on record")
		return
	}

	if err := h.probeToken(ctx, account.Provider, grant); err != nil {
		h.setStatus(ctx, account, models.StorageAccountError, err.Error())
		return
	}

	// Always transition on success: stamps last-accessed for ACTIVE rows
	// and recovers ERROR rows.
	h.setStatus(ctx, account, models.StorageAccountActive, "")
}

func (h *HealthChecker) findGrant(ctx context.Context, account models.StorageAccount) (*models.OAuthAccount, error) {
	grants, err := h.store.ListOAuthAccounts(ctx, account.UserID, []string{account.Provider})
	if err != nil {
		return nil, err
	}
	for i := range grants {
		if grants[i].ProviderAccountID == account.ProviderAccountID {
			return &grants[i], nil
		}
	}
	return nil, nil
}

// probeToken exercises the stored token through the provider's token
// endpoint. An unexpired access token passes without a network round trip;
// an expired one forces a refresh, which is the real probe.
func (h *HealthChecker) probeToken(ctx context.Context, provider string, grant *models.OAuthAccount) error {
	cfg := OAuthConfig(provider, h.credentials[NormalizeProvider(provider)])
	if cfg == nil {
		return fmt.Errorf("unsupported provider %q", provider)
	}

	token := &oauth2.Token{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
	}
	if grant.TokenExpiresAt != nil {
		token.Expiry = *grant.TokenExpiresAt
	}

	if _, err := cfg.TokenSource(ctx, token).Token(); err != nil {
		return fmt.Errorf("token probe failed: %w", err)
	}
	return nil
}

func (h *HealthChecker) setStatus(ctx context.Context, account models.StorageAccount, status models.StorageAccountStatus, lastError string) {
	if account.Status == status && lastError == account.LastError && status != models.StorageAccountActive {
		return
	}
	if err := h.store.SetStorageAccountStatus(ctx, account.ID, status, lastError); err != nil {
		slog.Error("failed to update account status",
			"account_id", account.ID,
			"status", status,
			"error", err,
		)
		return
	}
	if account.Status != status {
		slog.Info("storage account status changed",
			"account_id", account.ID,
			"from", account.Status,
			"to", status,
			"last_error", lastError,
		)
	}
}

// StartEnsureWorker periodically runs EnsureAllUsers until ctx is done. The
// sweep lock keeps one instance sweeping at a time across the fleet.
func StartEnsureWorker(ctx context.Context, m *Manager, interval time.Duration, batchSize int) {
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("ensure worker started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("ensure worker shutting down")
			return
		case <-ticker.C:
			ran, err := utils.TryWithLock(ctx, m.locks, repository.LockTypeUserEnsure, "sweep", utils.CleanupLockTTL, func() error {
				sweep, err := m.EnsureAllUsers(ctx, batchSize)
				if err != nil {
					return err
				}
				slog.Info("ensure sweep complete",
					"users", sweep.UsersProcessed,
					"created", sweep.Created,
					"reactivated", sweep.Reactivated,
					"already_valid", sweep.AlreadyValid,
					"errors", len(sweep.Errors),
				)
				return nil
			})
			if err != nil {
				slog.Error("ensure sweep failed", "error", err)
			} else if !ran {
				slog.Debug("ensure sweep skipped, another instance holds the lock")
			}
		}
	}
}

// StartHealthCheckWorker periodically probes account tokens until ctx is done.
func StartHealthCheckWorker(ctx context.Context, h *HealthChecker, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("health check worker started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("health check worker shutting down")
			return
		case <-ticker.C:
			checked, err := h.CheckAccounts(ctx)
			if err != nil {
				slog.Error("health check sweep failed", "error", err)
				continue
			}
			slog.Debug("health check sweep complete", "accounts", checked)
		}
	}
}
