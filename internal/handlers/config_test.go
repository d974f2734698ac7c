package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/portalfile/portalfile/internal/models"
)

func TestConfigHandlerAdvertisesPolicy(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rec := httptest.NewRecorder()
	ConfigHandler(env.cfg)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp models.PublicConfig
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.SingleUploadLimit != env.cfg.SingleUploadLimit {
		t.Errorf("expected single upload limit %d, got %d", env.cfg.SingleUploadLimit, resp.SingleUploadLimit)
	}
	if resp.ChunkSize != env.cfg.ChunkSize {
		t.Errorf("expected chunk size %d, got %d", env.cfg.ChunkSize, resp.ChunkSize)
	}
	if resp.ChunkTimeoutSec != env.cfg.ChunkTimeoutSeconds {
		t.Errorf("expected chunk timeout %d, got %d", env.cfg.ChunkTimeoutSeconds, resp.ChunkTimeoutSec)
	}
}

func TestConfigHandlerMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/config", nil)
	rec := httptest.NewRecorder()
	ConfigHandler(env.cfg)(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}
