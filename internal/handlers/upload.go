package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/portalfile/portalfile/internal/config"
	"github.com/portalfile/portalfile/internal/metrics"
	"github.com/portalfile/portalfile/internal/models"
	"github.com/portalfile/portalfile/internal/storage"
	"github.com/portalfile/portalfile/internal/utils"
)

// UploadHandler accepts a whole file in a single multipart request.
// Files above the tier's single-upload ceiling are rejected with 413 and
// must go through the chunked endpoints instead.
func UploadHandler(backend storage.Backend, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, cfg.SingleUploadLimit+chunkFormOverhead)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			sendError(w,
				fmt.Sprintf("Request exceeds single-upload limit of %d bytes", cfg.SingleUploadLimit),
				"FILE_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return
		}

		portalID := r.FormValue("portal_id")
		if err := utils.ValidatePortalID(portalID); err != nil {
			sendError(w, "Invalid portal_id", "INVALID_PORTAL_ID", http.StatusBadRequest)
			return
		}
		if err := utils.ValidateEmail(r.FormValue("uploader_email")); err != nil {
			sendError(w, "Invalid uploader_email", "INVALID_EMAIL", http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			sendError(w, "No file provided", "NO_FILE", http.StatusBadRequest)
			return
		}
		defer file.Close()

		filename := header.Filename
		if fv := r.FormValue("filename"); fv != "" {
			filename = fv
		}
		filename, err = utils.SanitizeFilename(filename)
		if err != nil {
			sendError(w, "Invalid filename", "INVALID_FILENAME", http.StatusBadRequest)
			return
		}

		if header.Size <= 0 {
			sendError(w, "File must not be empty", "EMPTY_FILE", http.StatusBadRequest)
			return
		}
		if header.Size > cfg.SingleUploadLimit {
			sendError(w,
				fmt.Sprintf("File size %d exceeds single-upload limit %d, use chunked upload",
					header.Size, cfg.SingleUploadLimit),
				"FILE_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return
		}

		sniff := make([]byte, 512)
		n, _ := io.ReadFull(file, sniff)
		mimeType := utils.DetectMimeType(sniff[:n])
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			sendError(w, "Failed to read file", "READ_ERROR", http.StatusInternalServerError)
			return
		}

		fileID := uuid.NewString()
		if _, err := backend.Store(r.Context(), fileID, file, header.Size); err != nil {
			metrics.UploadsTotal.WithLabelValues("error").Inc()
			slog.Error("Failed to store file", "error", err, "portal_id", portalID, "filename", filename)
			sendError(w, "Failed to store file", "STORAGE_ERROR", http.StatusInternalServerError)
			return
		}

		metrics.UploadsTotal.WithLabelValues("success").Inc()
		metrics.UploadSizeBytes.Observe(float64(header.Size))
		slog.Info("Single upload completed",
			"file_id", fileID,
			"portal_id", portalID,
			"filename", filename,
			"mime_type", mimeType,
			"size", header.Size,
			"client_ip", getClientIP(r))

		sendJSON(w, http.StatusCreated, models.SingleUploadResponse{
			UploadID:    uuid.NewString(),
			FileID:      fileID,
			WebViewLink: buildWebViewLink(r, cfg, fileID),
		})
	}
}
