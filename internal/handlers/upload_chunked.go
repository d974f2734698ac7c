package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/portalfile/portalfile/internal/config"
	"github.com/portalfile/portalfile/internal/metrics"
	"github.com/portalfile/portalfile/internal/models"
	"github.com/portalfile/portalfile/internal/repository"
	"github.com/portalfile/portalfile/internal/storage"
	"github.com/portalfile/portalfile/internal/utils"
)

// multipart form overhead allowance on top of the chunk payload
const chunkFormOverhead = 64 * 1024

// UploadInitHandler opens a chunked upload session
func UploadInitHandler(sessions repository.UploadSessionRepository, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		var req models.UploadInitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, "Invalid JSON request body", "INVALID_JSON", http.StatusBadRequest)
			return
		}

		if err := utils.ValidatePortalID(req.PortalID); err != nil {
			sendError(w, "Invalid portal_id", "INVALID_PORTAL_ID", http.StatusBadRequest)
			return
		}

		filename, err := utils.SanitizeFilename(req.Filename)
		if err != nil {
			sendError(w, "Invalid filename", "INVALID_FILENAME", http.StatusBadRequest)
			return
		}

		if req.TotalSize <= 0 {
			sendError(w, "Total size must be positive", "INVALID_TOTAL_SIZE", http.StatusBadRequest)
			return
		}
		if req.TotalSize > cfg.MaxFileSize {
			sendError(w,
				fmt.Sprintf("File size %d exceeds maximum %d", req.TotalSize, cfg.MaxFileSize),
				"FILE_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return
		}

		expectedChunks := int((req.TotalSize + cfg.ChunkSize - 1) / cfg.ChunkSize)
		if req.TotalChunks != expectedChunks {
			sendError(w,
				fmt.Sprintf("Expected %d chunks of %d bytes for %d bytes, got %d",
					expectedChunks, cfg.ChunkSize, req.TotalSize, req.TotalChunks),
				"INVALID_CHUNK_COUNT", http.StatusBadRequest)
			return
		}
		if req.TotalChunks > cfg.MaxChunksPerFile {
			sendError(w,
				fmt.Sprintf("Chunk count %d exceeds maximum %d", req.TotalChunks, cfg.MaxChunksPerFile),
				"TOO_MANY_CHUNKS", http.StatusBadRequest)
			return
		}

		if err := utils.ValidateEmail(req.UploaderEmail); err != nil {
			sendError(w, "Invalid uploader_email", "INVALID_EMAIL", http.StatusBadRequest)
			return
		}

		now := time.Now()
		session := &models.UploadSession{
			UploadID:      uuid.NewString(),
			PortalID:      req.PortalID,
			Filename:      filename,
			TotalSize:     req.TotalSize,
			MimeType:      req.MimeType,
			ChunkSize:     cfg.ChunkSize,
			TotalChunks:   req.TotalChunks,
			UploaderName:  req.UploaderName,
			UploaderEmail: req.UploaderEmail,
			Message:       req.Message,
			CreatedAt:     now,
			LastActivity:  now,
		}

		if err := sessions.Create(r.Context(), session); err != nil {
			slog.Error("Failed to create upload session", "error", err, "portal_id", req.PortalID)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		metrics.ChunkedSessionsTotal.Inc()
		slog.Info("Chunked upload session created",
			"upload_id", session.UploadID,
			"portal_id", session.PortalID,
			"filename", session.Filename,
			"total_size", session.TotalSize,
			"total_chunks", session.TotalChunks,
			"client_ip", getClientIP(r))

		sendJSON(w, http.StatusCreated, models.UploadInitResponse{
			UploadID:    session.UploadID,
			ChunkSize:   session.ChunkSize,
			TotalChunks: session.TotalChunks,
			ExpiresAt:   now.Add(time.Duration(cfg.SessionExpiryHours) * time.Hour),
		})
	}
}

// UploadChunkHandler receives one chunk of an open session.
// Re-receipt of an identical chunk is treated as success so clients can
// retry blindly after a network failure.
func UploadChunkHandler(sessions repository.UploadSessionRepository, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, cfg.ChunkSize+chunkFormOverhead)
		if err := r.ParseMultipartForm(cfg.ChunkSize + chunkFormOverhead); err != nil {
			sendError(w, "Chunk too large or invalid form data", "CHUNK_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return
		}

		uploadID := r.FormValue("upload_id")
		if _, err := uuid.Parse(uploadID); err != nil {
			sendError(w, "Invalid upload_id format", "INVALID_UPLOAD_ID", http.StatusBadRequest)
			return
		}

		chunkIndex, err := strconv.Atoi(r.FormValue("chunk_index"))
		if err != nil {
			sendError(w, "Invalid chunk_index", "INVALID_CHUNK_INDEX", http.StatusBadRequest)
			return
		}

		session, err := sessions.GetByUploadID(r.Context(), uploadID)
		if err != nil {
			slog.Error("Failed to load upload session", "error", err, "upload_id", uploadID)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if session == nil {
			sendError(w, "Upload session not found", "UPLOAD_NOT_FOUND", http.StatusNotFound)
			return
		}
		if session.Completed {
			sendError(w, "Upload already completed", "UPLOAD_COMPLETED", http.StatusConflict)
			return
		}
		if sessionExpired(session, cfg) {
			sendError(w, "Upload session expired", "UPLOAD_EXPIRED", http.StatusGone)
			return
		}

		if tc := r.FormValue("total_chunks"); tc != "" {
			if n, err := strconv.Atoi(tc); err != nil || n != session.TotalChunks {
				sendError(w,
					fmt.Sprintf("total_chunks does not match session (expected %d)", session.TotalChunks),
					"CHUNK_COUNT_MISMATCH", http.StatusBadRequest)
				return
			}
		}

		if chunkIndex < 0 || chunkIndex >= session.TotalChunks {
			sendError(w,
				fmt.Sprintf("Chunk index %d out of range [0, %d)", chunkIndex, session.TotalChunks),
				"CHUNK_INDEX_OUT_OF_RANGE", http.StatusBadRequest)
			return
		}

		chunkFile, chunkHeader, err := r.FormFile("chunk")
		if err != nil {
			sendError(w, "No chunk file provided", "NO_CHUNK", http.StatusBadRequest)
			return
		}
		defer chunkFile.Close()

		expectedSize := expectedChunkSize(session, chunkIndex)
		if chunkHeader.Size != expectedSize {
			sendError(w,
				fmt.Sprintf("Chunk %d must be %d bytes, got %d", chunkIndex, expectedSize, chunkHeader.Size),
				"INVALID_CHUNK_SIZE", http.StatusBadRequest)
			return
		}

		exists, existingSize, err := utils.ChunkExists(cfg.UploadDir, uploadID, chunkIndex)
		if err != nil {
			slog.Error("Failed to check chunk", "error", err, "upload_id", uploadID, "chunk_index", chunkIndex)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if exists {
			if existingSize != chunkHeader.Size {
				sendError(w,
					fmt.Sprintf("Chunk %d already received with %d bytes", chunkIndex, existingSize),
					"CHUNK_SIZE_MISMATCH", http.StatusConflict)
				return
			}
			// Identical re-receipt: acknowledge without rewriting or recounting
			if err := sessions.UpdateActivity(r.Context(), uploadID); err != nil {
				slog.Warn("Failed to touch session activity", "error", err, "upload_id", uploadID)
			}
			sendJSON(w, http.StatusOK, models.UploadChunkResponse{
				UploadID:       uploadID,
				ChunkIndex:     chunkIndex,
				ChunksReceived: session.ChunksReceived,
				TotalChunks:    session.TotalChunks,
				Complete:       session.ChunksReceived == session.TotalChunks,
			})
			return
		}

		written, err := utils.SaveChunk(cfg.UploadDir, uploadID, chunkIndex, chunkFile)
		if err != nil {
			slog.Error("Failed to save chunk", "error", err, "upload_id", uploadID, "chunk_index", chunkIndex)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		if err := sessions.RecordChunk(r.Context(), uploadID, written); err != nil {
			slog.Error("Failed to record chunk", "error", err, "upload_id", uploadID, "chunk_index", chunkIndex)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		metrics.ChunksReceivedTotal.Inc()
		received := session.ChunksReceived + 1
		sendJSON(w, http.StatusOK, models.UploadChunkResponse{
			UploadID:       uploadID,
			ChunkIndex:     chunkIndex,
			ChunksReceived: received,
			TotalChunks:    session.TotalChunks,
			Complete:       received == session.TotalChunks,
		})
	}
}

// UploadCompleteHandler verifies and assembles a finished session, then
// hands the file to the blob backend.
func UploadCompleteHandler(sessions repository.UploadSessionRepository, locks repository.LockRepository, backend storage.Backend, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		var req models.UploadCompleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, "Invalid JSON request body", "INVALID_JSON", http.StatusBadRequest)
			return
		}
		if _, err := uuid.Parse(req.UploadID); err != nil {
			sendError(w, "Invalid upload_id format", "INVALID_UPLOAD_ID", http.StatusBadRequest)
			return
		}

		session, err := sessions.GetByUploadID(r.Context(), req.UploadID)
		if err != nil {
			slog.Error("Failed to load upload session", "error", err, "upload_id", req.UploadID)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if session == nil {
			sendError(w, "Upload session not found", "UPLOAD_NOT_FOUND", http.StatusNotFound)
			return
		}
		if session.Completed && session.FileID != nil {
			// Complete retried after a dropped response
			sendJSON(w, http.StatusOK, models.UploadCompleteResponse{
				FileID:      *session.FileID,
				WebViewLink: buildWebViewLink(r, cfg, *session.FileID),
			})
			return
		}
		if sessionExpired(session, cfg) {
			sendError(w, "Upload session expired", "UPLOAD_EXPIRED", http.StatusGone)
			return
		}

		if err := utils.VerifyChunks(cfg.UploadDir, session.UploadID, session.TotalChunks, session.TotalSize); err != nil {
			missing, merr := utils.GetMissingChunks(cfg.UploadDir, session.UploadID, session.TotalChunks)
			if merr != nil {
				slog.Error("Failed to list missing chunks", "error", merr, "upload_id", session.UploadID)
			}
			sendJSON(w, http.StatusConflict, models.UploadCompleteErrorResponse{
				Error:         err.Error(),
				MissingChunks: missing,
			})
			return
		}

		var resp models.UploadCompleteResponse
		lockErr := utils.WithLock(r.Context(), locks, repository.LockTypeChunkAssembly, session.UploadID,
			utils.ChunkAssemblyLockTTL, 30*time.Second, func() error {
			// Another request may have finished assembly while we waited
			current, err := sessions.GetByUploadID(r.Context(), session.UploadID)
			if err != nil {
				return err
			}
			if current == nil {
				return repository.ErrNotFound
			}
			if current.Completed && current.FileID != nil {
				resp = models.UploadCompleteResponse{
					FileID:      *current.FileID,
					WebViewLink: buildWebViewLink(r, cfg, *current.FileID),
				}
				return nil
			}

			fileID := uuid.NewString()
			assemblyStart := time.Now()

			tmpPath := filepath.Join(cfg.UploadDir, ".assembly-"+fileID)
			written, err := utils.AssembleChunks(cfg.UploadDir, session.UploadID, session.TotalChunks, tmpPath)
			if err != nil {
				return fmt.Errorf("assemble chunks: %w", err)
			}
			defer os.Remove(tmpPath)

			if written != session.TotalSize {
				return fmt.Errorf("assembled %d bytes, session declared %d", written, session.TotalSize)
			}

			// Clients can declare anything; sniff the assembled bytes
			mimeType := session.MimeType
			if detected, derr := utils.DetectFileMimeType(tmpPath); derr == nil {
				if mimeType != "" && mimeType != detected {
					slog.Debug("Declared mime type differs from content",
						"upload_id", session.UploadID,
						"declared", mimeType,
						"detected", detected)
				}
				mimeType = detected
			}

			f, err := os.Open(tmpPath)
			if err != nil {
				return fmt.Errorf("open assembled file: %w", err)
			}
			defer f.Close()

			if _, err := backend.Store(r.Context(), fileID, f, written); err != nil {
				return fmt.Errorf("store assembled file: %w", err)
			}

			if err := sessions.MarkCompleted(r.Context(), session.UploadID, fileID); err != nil {
				return fmt.Errorf("mark session completed: %w", err)
			}

			if err := utils.DeleteChunks(cfg.UploadDir, session.UploadID); err != nil {
				slog.Warn("Failed to delete chunks after assembly", "error", err, "upload_id", session.UploadID)
			}

			metrics.AssemblyDuration.Observe(time.Since(assemblyStart).Seconds())
			metrics.UploadSizeBytes.Observe(float64(written))
			metrics.ChunkedSessionsCompletedTotal.Inc()
			metrics.UploadsTotal.WithLabelValues("success").Inc()

			slog.Info("Chunked upload completed",
				"upload_id", session.UploadID,
				"file_id", fileID,
				"portal_id", session.PortalID,
				"filename", session.Filename,
				"mime_type", mimeType,
				"total_size", written)

			resp = models.UploadCompleteResponse{
				FileID:      fileID,
				WebViewLink: buildWebViewLink(r, cfg, fileID),
			}
			return nil
		})
		if lockErr != nil {
			metrics.UploadsTotal.WithLabelValues("error").Inc()
			slog.Error("Failed to complete chunked upload", "error", lockErr, "upload_id", session.UploadID)
			sendError(w, "Failed to complete upload", "COMPLETE_FAILED", http.StatusInternalServerError)
			return
		}

		sendJSON(w, http.StatusOK, resp)
	}
}

// UploadStatusHandler reports received and missing chunks so a client can
// resume an interrupted upload.
func UploadStatusHandler(sessions repository.UploadSessionRepository, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		uploadID := r.URL.Query().Get("upload_id")
		if _, err := uuid.Parse(uploadID); err != nil {
			sendError(w, "Invalid upload_id format", "INVALID_UPLOAD_ID", http.StatusBadRequest)
			return
		}

		session, err := sessions.GetByUploadID(r.Context(), uploadID)
		if err != nil {
			slog.Error("Failed to load upload session", "error", err, "upload_id", uploadID)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if session == nil {
			sendError(w, "Upload session not found", "UPLOAD_NOT_FOUND", http.StatusNotFound)
			return
		}

		var received, missing []int
		if !session.Completed {
			received, err = utils.GetReceivedChunks(cfg.UploadDir, uploadID)
			if err != nil {
				slog.Error("Failed to list received chunks", "error", err, "upload_id", uploadID)
				sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
				return
			}
			missing, err = utils.GetMissingChunks(cfg.UploadDir, uploadID, session.TotalChunks)
			if err != nil {
				slog.Error("Failed to list missing chunks", "error", err, "upload_id", uploadID)
				sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
				return
			}
		}

		sendJSON(w, http.StatusOK, models.UploadStatusResponse{
			UploadID:       session.UploadID,
			Filename:       session.Filename,
			ChunksReceived: session.ChunksReceived,
			TotalChunks:    session.TotalChunks,
			ReceivedBytes:  session.ReceivedBytes,
			ReceivedChunks: received,
			MissingChunks:  missing,
			Complete:       session.Completed,
			ExpiresAt:      session.LastActivity.Add(time.Duration(cfg.SessionExpiryHours) * time.Hour),
			FileID:         session.FileID,
		})
	}
}

// sessionExpired reports whether a session has been idle past the expiry window
func sessionExpired(session *models.UploadSession, cfg *config.Config) bool {
	expiry := time.Duration(cfg.SessionExpiryHours) * time.Hour
	return time.Since(session.LastActivity) > expiry
}

// expectedChunkSize returns the declared size of one chunk. Every chunk is
// session.ChunkSize except the final one, which carries the remainder.
func expectedChunkSize(session *models.UploadSession, chunkIndex int) int64 {
	if chunkIndex == session.TotalChunks-1 {
		remainder := session.TotalSize - int64(session.TotalChunks-1)*session.ChunkSize
		return remainder
	}
	return session.ChunkSize
}
