package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/portalfile/portalfile/internal/models"
	"github.com/portalfile/portalfile/internal/repository"
)

// UploadSessionRepository implements repository.UploadSessionRepository for PostgreSQL.
type UploadSessionRepository struct {
	pool *Pool
}

// NewUploadSessionRepository creates a new PostgreSQL upload session repository.
func NewUploadSessionRepository(pool *Pool) *UploadSessionRepository {
	return &UploadSessionRepository{pool: pool}
}

const uploadSessionColumns = `
	upload_id, portal_id, filename, total_size, mime_type, chunk_size,
	total_chunks, chunks_received, received_bytes, uploader_name,
	uploader_email, message, created_at, last_activity, completed, file_id
`

func scanUploadSession(row pgx.Row) (*models.UploadSession, error) {
	var s models.UploadSession
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
		&s.CreatedAt,
		&s.LastActivity,
		&s.Completed,
		&s.FileID,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create persists a new upload session.
func (r *UploadSessionRepository) Create(ctx context.Context, session *models.UploadSession) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}

	query := `
		INSERT INTO upload_sessions (
			upload_id, portal_id, filename, total_size, mime_type, chunk_size,
			total_chunks, chunks_received, received_bytes, uploader_name,
			uploader_email, message, created_at, last_activity, completed, file_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.pool.Exec(ctx, query,
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
		session.CreatedAt,
		session.LastActivity,
		session.Completed,
		session.FileID,
	)
	if err != nil {
		if isPgError(err, UniqueViolation) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create upload session: %w", err)
	}
	return nil
}

// GetByUploadID retrieves a session by upload_id. Returns nil, nil if not found.
func (r *UploadSessionRepository) GetByUploadID(ctx context.Context, uploadID string) (*models.UploadSession, error) {
	query := `
		SELECT ` + uploadSessionColumns + `
		FROM upload_sessions
		WHERE upload_id = $1
	`
	session, err := scanUploadSession(r.pool.QueryRow(ctx, query, uploadID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload session: %w", err)
	}
	return session, nil
}

// UpdateActivity bumps last_activity for an in-flight session.
func (r *UploadSessionRepository) UpdateActivity(ctx context.Context, uploadID string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE upload_sessions SET last_activity = NOW() WHERE upload_id = $1`,
		uploadID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session activity: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// RecordChunk increments receipt counters after a chunk is stored.
func (r *UploadSessionRepository) RecordChunk(ctx context.Context, uploadID string, size int64) error {
	query := `
		UPDATE upload_sessions
		SET chunks_received = chunks_received + 1,
		    received_bytes = received_bytes + $1,
		    last_activity = NOW()
		WHERE upload_id = $2
	`
	result, err := r.pool.Exec(ctx, query, size, uploadID)
	if err != nil {
		return fmt.Errorf("failed to record chunk: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkCompleted finalizes a session with the resulting file ID.
func (r *UploadSessionRepository) MarkCompleted(ctx context.Context, uploadID, fileID string) error {
	query := `
		UPDATE upload_sessions
		SET completed = TRUE, file_id = $1, last_activity = NOW()
		WHERE upload_id = $2
	`
	result, err := r.pool.Exec(ctx, query, fileID, uploadID)
	if err != nil {
		return fmt.Errorf("failed to mark session completed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes a session row.
func (r *UploadSessionRepository) Delete(ctx context.Context, uploadID string) error {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM upload_sessions WHERE upload_id = $1`,
		uploadID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete upload session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetAbandoned returns incomplete sessions with no activity for expiryHours.
func (r *UploadSessionRepository) GetAbandoned(ctx context.Context, expiryHours int) ([]models.UploadSession, error) {
	cutoff := time.Now().Add(-time.Duration(expiryHours) * time.Hour)

	query := `
		SELECT ` + uploadSessionColumns + `
		FROM upload_sessions
		WHERE completed = FALSE AND last_activity < $1
		ORDER BY last_activity ASC
	`
	rows, err := r.pool.Query(ctx, query, cutoff)
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
		return nil, fmt.Errorf("error iterating upload sessions: %w", err)
	}
	return sessions, nil
}

var _ repository.UploadSessionRepository = (*UploadSessionRepository)(nil)
