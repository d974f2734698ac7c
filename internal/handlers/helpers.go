package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/portalfile/portalfile/internal/config"
	"github.com/portalfile/portalfile/internal/models"
)

// sendError writes a JSON error response
func sendError(w http.ResponseWriter, message string, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(models.ErrorResponse{
		Error: message,
		Code:  code,
	}); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// sendJSON writes a JSON response with the given status code
func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// buildWebViewLink constructs the full file view URL for a stored file
// Respects PUBLIC_URL config and reverse proxy headers
func buildWebViewLink(r *http.Request, cfg *config.Config, fileID string) string {
	if cfg.PublicURL != "" {
		baseURL := strings.TrimSuffix(cfg.PublicURL, "/")
		return baseURL + "/files/" + fileID
	}

	scheme := getScheme(r)
	host := getHost(r)
	return scheme + "://" + host + "/files/" + fileID
}

// getScheme returns the scheme (http/https) respecting reverse proxy headers
func getScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// getHost returns the host respecting reverse proxy headers
func getHost(r *http.Request) string {
	if host := r.Header.Get("X-Forwarded-Host"); host != "" {
		return host
	}
	return r.Host
}

// getClientIP extracts the client IP respecting reverse proxy headers
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
