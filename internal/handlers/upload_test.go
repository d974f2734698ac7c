package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/portalfile/portalfile/internal/models"
)

// postSingleUpload builds a multipart single-upload request.
func postSingleUpload(t *testing.T, env *testEnv, portalID, filename string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("portal_id", portalID); err != nil {
		t.Fatalf("failed to write form field: %v", err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fw.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	UploadHandler(env.backend, env.cfg)(rec, req)
	return rec
}

func TestSingleUploadStoresFile(t *testing.T) {
	env := newTestEnv(t)
	payload := []byte("small enough for a single request")

	rec := postSingleUpload(t, env, "portal-1", "notes.txt", payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.SingleUploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.UploadID == "" || resp.FileID == "" || resp.WebViewLink == "" {
		t.Fatalf("incomplete response: %+v", resp)
	}

	rc, err := env.backend.Retrieve(context.Background(), resp.FileID)
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	stored, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("failed to read stored file: %v", err)
	}
	if !bytes.Equal(stored, payload) {
		t.Error("stored bytes do not match upload")
	}
}

func TestSingleUploadRejectsOversize(t *testing.T) {
	env := newTestEnv(t)
	payload := make([]byte, env.cfg.SingleUploadLimit+1)

	rec := postSingleUpload(t, env, "portal-1", "big.bin", payload)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := decodeError(t, rec); code != "FILE_TOO_LARGE" {
		t.Errorf("expected FILE_TOO_LARGE, got %s", code)
	}
}

func TestSingleUploadValidation(t *testing.T) {
	env := newTestEnv(t)

	t.Run("bad portal id", func(t *testing.T) {
		rec := postSingleUpload(t, env, "bad portal!", "a.txt", []byte("x"))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if code := decodeError(t, rec); code != "INVALID_PORTAL_ID" {
			t.Errorf("expected INVALID_PORTAL_ID, got %s", code)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		mw.WriteField("portal_id", "portal-1")
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		UploadHandler(env.backend, env.cfg)(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if code := decodeError(t, rec); code != "NO_FILE" {
			t.Errorf("expected NO_FILE, got %s", code)
		}
	})
}
