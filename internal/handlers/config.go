package handlers

import (
	"net/http"

	"github.com/portalfile/portalfile/internal/config"
	"github.com/portalfile/portalfile/internal/models"
)

// ConfigHandler advertises the server's upload policy so clients can pick
// the same chunking threshold the server enforces
func ConfigHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		sendJSON(w, http.StatusOK, models.PublicConfig{
			MaxFileSize:       cfg.MaxFileSize,
			SingleUploadLimit: cfg.SingleUploadLimit,
			ChunkSize:         cfg.ChunkSize,
			ChunkTimeoutSec:   cfg.ChunkTimeoutSeconds,
			FileTimeoutSec:    cfg.FileTimeoutSeconds,
		})
	}
}
