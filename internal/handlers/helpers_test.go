package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/portalfile/portalfile/internal/config"
)

func TestBuildWebViewLink(t *testing.T) {
	tests := []struct {
		name      string
		publicURL string
		headers   map[string]string
		want      string
	}{
		{
			name:      "public url configured",
			publicURL: "https://files.example.com/",
			want:      "https://files.example.com/files/abc",
		},
		{
			name: "plain request",
			want: "http://example.com/files/abc",
		},
		{
			name: "reverse proxy headers",
			headers: map[string]string{
				"X-Forwarded-Proto": "https",
				"X-Forwarded-Host":  "portal.example.com",
			},
			want: "https://portal.example.com/files/abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{PublicURL: tt.publicURL}
			req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			if got := buildWebViewLink(req, cfg, "abc"); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if got := getClientIP(req); got != "10.0.0.1:1234" {
		t.Errorf("expected RemoteAddr fallback, got %q", got)
	}

	req.Header.Set("X-Real-IP", "203.0.113.9")
	if got := getClientIP(req); got != "203.0.113.9" {
		t.Errorf("expected X-Real-IP, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	if got := getClientIP(req); got != "198.51.100.7" {
		t.Errorf("expected X-Forwarded-For to win, got %q", got)
	}
}

func TestSendErrorShape(t *testing.T) {
	rec := httptest.NewRecorder()
	sendError(rec, "nope", "TEST_CODE", http.StatusTeapot)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
	if code := decodeError(t, rec); code != "TEST_CODE" {
		t.Errorf("expected TEST_CODE, got %s", code)
	}
}
