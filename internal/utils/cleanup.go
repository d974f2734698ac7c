package utils

import (
	"context"
	"log/slog"
	"time"

	"github.com/portalfile/portalfile/internal/metrics"
	"github.com/portalfile/portalfile/internal/repository"
)

// StartSessionCleanupWorker starts a background goroutine that periodically
// garbage-collects abandoned upload sessions and their chunk directories.
// The sweep runs under a distributed lock so only one instance does the work.
func StartSessionCleanupWorker(ctx context.Context, sessions repository.UploadSessionRepository, locks repository.LockRepository, uploadDir string, expiryHours, intervalMinutes int) {
	ticker := time.NewTicker(time.Duration(intervalMinutes) * time.Minute)
	defer ticker.Stop()

	slog.Info("session cleanup worker started",
		"interval_minutes", intervalMinutes,
		"expiry_hours", expiryHours)

	// Run cleanup immediately on start
	runSessionCleanup(ctx, sessions, locks, uploadDir, expiryHours)

	for {
		select {
		case <-ctx.Done():
			slog.Info("session cleanup worker shutting down")
			return
		case <-ticker.C:
			runSessionCleanup(ctx, sessions, locks, uploadDir, expiryHours)
		}
	}
}

func runSessionCleanup(ctx context.Context, sessions repository.UploadSessionRepository, locks repository.LockRepository, uploadDir string, expiryHours int) {
	acquired, err := TryWithLock(ctx, locks, repository.LockTypeSessionCleanup, "sweep", CleanupLockTTL, func() error {
		return CleanupExpiredSessions(ctx, sessions, uploadDir, expiryHours)
	})
	if err != nil {
		slog.Error("session cleanup failed", "error", err)
		return
	}
	if !acquired {
		slog.Debug("session cleanup skipped, another instance holds the lock")
	}
}

// CleanupExpiredSessions removes abandoned sessions and their on-disk chunks.
// Completed sessions are never touched; their chunks are already gone.
func CleanupExpiredSessions(ctx context.Context, sessions repository.UploadSessionRepository, uploadDir string, expiryHours int) error {
	start := time.Now()

	abandoned, err := sessions.GetAbandoned(ctx, expiryHours)
	if err != nil {
		return err
	}

	removed := 0
	for _, session := range abandoned {
		if err := DeleteChunks(uploadDir, session.UploadID); err != nil {
			slog.Error("failed to delete chunks for expired session",
				"error", err, "upload_id", session.UploadID)
			continue
		}
		if err := sessions.Delete(ctx, session.UploadID); err != nil {
			slog.Error("failed to delete expired session",
				"error", err, "upload_id", session.UploadID)
			continue
		}
		removed++
		metrics.SessionsExpiredTotal.Inc()
	}

	if removed > 0 {
		slog.Info("session cleanup completed",
			"expired_sessions", removed,
			"duration", time.Since(start))
	} else {
		slog.Debug("session cleanup completed", "expired_sessions", 0)
	}
	return nil
}
