package handlers

import (
	"net/http"
	"time"

	"github.com/portalfile/portalfile/internal/models"
)

var startTime = time.Now()

// HealthHandler reports liveness and process uptime
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		sendJSON(w, http.StatusOK, models.HealthResponse{
			Status:        "ok",
			UptimeSeconds: int64(time.Since(startTime).Seconds()),
		})
	}
}
