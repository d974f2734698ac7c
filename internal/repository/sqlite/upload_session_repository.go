package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/portalfile/portalfile/internal/models"
	"github.com/portalfile/portalfile/internal/repository"
)

// UploadSessionRepository implements repository.UploadSessionRepository for SQLite.
type UploadSessionRepository struct {
	db *sql.DB
}

// NewUploadSessionRepository creates a new SQLite upload session repository.
func NewUploadSessionRepository(db *sql.DB) *UploadSessionRepository {
	return &UploadSessionRepository{db: db}
}

// Create inserts a new upload session record.
func (r *UploadSessionRepository) Create(ctx context.Context, session *models.UploadSession) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}
	if session.UploadID == "" {
		return fmt.Errorf("upload_id cannot be empty")
	}

	query := `
		INSERT INTO upload_sessions (
			upload_id, portal_id, filename, total_size, mime_type, chunk_size,
			total_chunks, chunks_received, received_bytes, uploader_name,
			uploader_email, message, created_at, last_activity, completed, file_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.UploadID,
		session.PortalID,
		session.Filename,
		session.TotalSize,
		session.MimeType,
		session.ChunkSize,
		session.TotalChunks,
		session.ChunksReceived,
		session.ReceivedBytes,
		session.UploaderName,
		session.UploaderEmail,
		session.Message,
		session.CreatedAt.Format(time.RFC3339),
		session.LastActivity.Format(time.RFC3339),
		session.Completed,
		session.FileID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create upload session: %w", err)
	}
	return nil
}

// GetByUploadID retrieves a session by upload_id. Returns nil, nil if not found.
func (r *UploadSessionRepository) GetByUploadID(ctx context.Context, uploadID string) (*models.UploadSession, error) {
	query := `
		SELECT upload_id, portal_id, filename, total_size, mime_type, chunk_size,
		       total_chunks, chunks_received, received_bytes, uploader_name,
		       uploader_email, message, created_at, last_activity, completed, file_id
		FROM upload_sessions
		WHERE upload_id = ?
	`

	row := r.db.QueryRowContext(ctx, query, uploadID)
	session, err := scanUploadSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload session: %w", err)
	}
	return session, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUploadSession(row rowScanner) (*models.UploadSession, error) {
	var s models.UploadSession
	var createdAt, lastActivity string
	err := row.Scan(
		&s.UploadID,
		&s.PortalID,
		&s.Filename,
		&s.TotalSize,
		&s.MimeType,
		&s.ChunkSize,
		&s.TotalChunks,
		&s.ChunksReceived,
		&s.ReceivedBytes,
		&s.UploaderName,
		&s.UploaderEmail,
		&s.Message,
		&createdAt,
		&lastActivity,
		&s.Completed,
		&s.FileID,
	)
	if err != nil {
		return nil, err
	}
	s.CreatedAt = parseTimeColumn(createdAt)
	s.LastActivity = parseTimeColumn(lastActivity)
	return &s, nil
}

// UpdateActivity updates the last_activity timestamp.
func (r *UploadSessionRepository) UpdateActivity(ctx context.Context, uploadID string) error {
	query := `UPDATE upload_sessions SET last_activity = ? WHERE upload_id = ?`
	result, err := r.db.ExecContext(ctx, query, time.Now().Format(time.RFC3339), uploadID)
	if err != nil {
		return fmt.Errorf("failed to update session activity: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// RecordChunk increments chunks_received and received_bytes.
func (r *UploadSessionRepository) RecordChunk(ctx context.Context, uploadID string, chunkBytes int64) error {
	query := `
		UPDATE upload_sessions
		SET chunks_received = chunks_received + 1,
		    received_bytes = received_bytes + ?,
		    last_activity = ?
		WHERE upload_id = ?
	`
	result, err := r.db.ExecContext(ctx, query, chunkBytes, time.Now().Format(time.RFC3339), uploadID)
	if err != nil {
		return fmt.Errorf("failed to record chunk: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkCompleted marks a session as completed and sets the file id.
func (r *UploadSessionRepository) MarkCompleted(ctx context.Context, uploadID, fileID string) error {
	query := `
		UPDATE upload_sessions
		SET completed = 1, file_id = ?, last_activity = ?
		WHERE upload_id = ?
	`
	result, err := r.db.ExecContext(ctx, query, fileID, time.Now().Format(time.RFC3339), uploadID)
	if err != nil {
		return fmt.Errorf("failed to mark session completed: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes a session record.
func (r *UploadSessionRepository) Delete(ctx context.Context, uploadID string) error {
	query := `DELETE FROM upload_sessions WHERE upload_id = ?`
	if _, err := r.db.ExecContext(ctx, query, uploadID); err != nil {
		return fmt.Errorf("failed to delete upload session: %w", err)
	}
	return nil
}

// GetAbandoned returns incomplete sessions with no activity for expiryHours.
func (r *UploadSessionRepository) GetAbandoned(ctx context.Context, expiryHours int) ([]models.UploadSession, error) {
	cutoff := time.Now().Add(-time.Duration(expiryHours) * time.Hour)

	query := `
		SELECT upload_id, portal_id, filename, total_size, mime_type, chunk_size,
		       total_chunks, chunks_received, received_bytes, uploader_name,
		       uploader_email, message, created_at, last_activity, completed, file_id
		FROM upload_sessions
		WHERE completed = 0 AND last_activity < ?
		ORDER BY last_activity ASC
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query abandoned sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.UploadSession
	for rows.Next() {
		s, err := scanUploadSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// Ensure UploadSessionRepository implements the interface.
var _ repository.UploadSessionRepository = (*UploadSessionRepository)(nil)
