package utils

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/portalfile/portalfile/internal/models"
	"github.com/portalfile/portalfile/internal/repository/sqlite"
)

func TestCleanupExpiredSessions(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := sqlite.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sessions := sqlite.NewUploadSessionRepository(db)
	uploadDir := t.TempDir()
	ctx := context.Background()

	newSession := func(lastActivity time.Time) *models.UploadSession {
		return &models.UploadSession{
			UploadID:     uuid.NewString(),
			PortalID:     "portal-1",
			Filename:     "f.bin",
			TotalSize:    100,
			ChunkSize:    50,
			TotalChunks:  2,
			CreatedAt:    lastActivity,
			LastActivity: lastActivity,
		}
	}

	stale := newSession(time.Now().Add(-3 * time.Hour))
	fresh := newSession(time.Now())
	for _, s := range []*models.UploadSession{stale, fresh} {
		if err := sessions.Create(ctx, s); err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
		if _, err := SaveChunk(uploadDir, s.UploadID, 0, bytes.NewReader(make([]byte, 50))); err != nil {
			t.Fatalf("failed to save chunk: %v", err)
		}
	}

	if err := CleanupExpiredSessions(ctx, sessions, uploadDir, 1); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	got, err := sessions.GetByUploadID(ctx, stale.UploadID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got != nil {
		t.Error("stale session should have been deleted")
	}
	if exists, _, err := ChunkExists(uploadDir, stale.UploadID, 0); err != nil || exists {
		t.Errorf("stale chunks should have been deleted (exists=%v err=%v)", exists, err)
	}

	got, err = sessions.GetByUploadID(ctx, fresh.UploadID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got == nil {
		t.Error("fresh session must survive cleanup")
	}
	if exists, _, err := ChunkExists(uploadDir, fresh.UploadID, 0); err != nil || !exists {
		t.Errorf("fresh chunks must survive cleanup (exists=%v err=%v)", exists, err)
	}
}
