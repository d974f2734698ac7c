package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/portalfile/portalfile/internal/models"
)

// setupTestDB creates an in-memory SQLite database with the schema applied.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	// Force single connection: each pooled connection would otherwise get
	// its own separate :memory: database.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// insertTestUser adds a user row and returns its ID.
func insertTestUser(t *testing.T, db *sql.DB, email string, active bool) int64 {
	t.Helper()

	result, err := db.Exec(
		`INSERT INTO users (email, name, is_active, created_at) VALUES (?, ?, ?, ?)`,
		email, "Test User", active, time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("failed to insert test user: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("failed to get user id: %v", err)
	}
	return id
}

// insertTestOAuthAccount adds an oauth_accounts row and returns its ID.
func insertTestOAuthAccount(t *testing.T, db *sql.DB, userID int64, provider, providerAccountID string) int64 {
	t.Helper()

	result, err := db.Exec(
		`INSERT INTO oauth_accounts (user_id, provider, provider_account_id, email, display_name, access_token, refresh_token, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, provider, providerAccountID, "linked@example.com", "Linked Account",
		"access-token", "refresh-token", time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("failed to insert test oauth account: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("failed to get oauth account id: %v", err)
	}
	return id
}

func testUploadSession(uploadID string) *models.UploadSession {
	now := time.Now().UTC()
	return &models.UploadSession{
		UploadID:      uploadID,
		PortalID:      "portal-1",
		Filename:      "report.pdf",
		TotalSize:     10 * 1024 * 1024,
		MimeType:      "application/pdf",
		ChunkSize:     2 * 1024 * 1024,
		TotalChunks:   5,
		UploaderName:  "Ada",
		UploaderEmail: "ada@example.com",
		Message:       "Q3 report",
		CreatedAt:     now,
		LastActivity:  now,
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
