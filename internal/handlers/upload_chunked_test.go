package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/portalfile/portalfile/internal/models"
	"github.com/portalfile/portalfile/internal/utils"
)

func TestUploadInitCreatesSession(t *testing.T) {
	env := newTestEnv(t)
	uploadID := initSession(t, env, 2500)

	session, err := env.repos.Sessions.GetByUploadID(context.Background(), uploadID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if session == nil {
		t.Fatal("expected session row, got nil")
	}
	if session.TotalChunks != 3 {
		t.Errorf("expected 3 chunks for 2500 bytes at 1024 chunk size, got %d", session.TotalChunks)
	}
	if session.Filename != "report.pdf" {
		t.Errorf("unexpected filename %q", session.Filename)
	}
	if session.Completed {
		t.Error("new session must not be completed")
	}
}

func TestUploadInitValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		body     string
		wantCode string
		wantHTTP int
	}{
		{
			name:     "bad json",
			body:     `{not json`,
			wantCode: "INVALID_JSON",
			wantHTTP: http.StatusBadRequest,
		},
		{
			name:     "bad portal id",
			body:     `{"portal_id": "../x", "filename": "a.txt", "total_size": 10, "total_chunks": 1}`,
			wantCode: "INVALID_PORTAL_ID",
			wantHTTP: http.StatusBadRequest,
		},
		{
			name:     "path traversal filename",
			body:     `{"portal_id": "p1", "filename": "..", "total_size": 10, "total_chunks": 1}`,
			wantCode: "INVALID_FILENAME",
			wantHTTP: http.StatusBadRequest,
		},
		{
			name:     "zero size",
			body:     `{"portal_id": "p1", "filename": "a.txt", "total_size": 0, "total_chunks": 0}`,
			wantCode: "INVALID_TOTAL_SIZE",
			wantHTTP: http.StatusBadRequest,
		},
		{
			name:     "over max size",
			body:     `{"portal_id": "p1", "filename": "a.txt", "total_size": 2097152, "total_chunks": 2048}`,
			wantCode: "FILE_TOO_LARGE",
			wantHTTP: http.StatusRequestEntityTooLarge,
		},
		{
			name:     "wrong chunk count",
			body:     `{"portal_id": "p1", "filename": "a.txt", "total_size": 2500, "total_chunks": 5}`,
			wantCode: "INVALID_CHUNK_COUNT",
			wantHTTP: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/upload/chunked/init", bytes.NewReader([]byte(tt.body)))
			rec := httptest.NewRecorder()
			UploadInitHandler(env.repos.Sessions, env.cfg)(rec, req)

			if rec.Code != tt.wantHTTP {
				t.Fatalf("expected status %d, got %d: %s", tt.wantHTTP, rec.Code, rec.Body.String())
			}
			if code := decodeError(t, rec); code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, code)
			}
		})
	}
}

func TestUploadInitTooManyChunks(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.MaxChunksPerFile = 2

	body := `{"portal_id": "p1", "filename": "a.txt", "total_size": 4000, "total_chunks": 4}`
	req := httptest.NewRequest(http.MethodPost, "/api/upload/chunked/init", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	UploadInitHandler(env.repos.Sessions, env.cfg)(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != "TOO_MANY_CHUNKS" {
		t.Errorf("expected TOO_MANY_CHUNKS, got %s", code)
	}
}

func TestUploadChunkFlow(t *testing.T) {
	env := newTestEnv(t)
	const totalSize = 2500
	uploadID := initSession(t, env, totalSize)

	for i := 0; i < 3; i++ {
		rec := postChunk(t, env, uploadID, i, 3, chunkPayload(env, totalSize, i, 3))
		if rec.Code != http.StatusOK {
			t.Fatalf("chunk %d returned %d: %s", i, rec.Code, rec.Body.String())
		}

		var resp models.UploadChunkResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode chunk response: %v", err)
		}
		if resp.ChunksReceived != i+1 {
			t.Errorf("chunk %d: expected %d received, got %d", i, i+1, resp.ChunksReceived)
		}
		if resp.Complete != (i == 2) {
			t.Errorf("chunk %d: unexpected complete flag %v", i, resp.Complete)
		}
	}

	session, err := env.repos.Sessions.GetByUploadID(context.Background(), uploadID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if session.ChunksReceived != 3 || session.ReceivedBytes != totalSize {
		t.Errorf("expected 3 chunks / %d bytes recorded, got %d / %d",
			totalSize, session.ChunksReceived, session.ReceivedBytes)
	}
}

func TestUploadChunkIdempotentRereceipt(t *testing.T) {
	env := newTestEnv(t)
	const totalSize = 2500
	uploadID := initSession(t, env, totalSize)

	payload := chunkPayload(env, totalSize, 0, 3)
	if rec := postChunk(t, env, uploadID, 0, 3, payload); rec.Code != http.StatusOK {
		t.Fatalf("first receipt returned %d", rec.Code)
	}
	if rec := postChunk(t, env, uploadID, 0, 3, payload); rec.Code != http.StatusOK {
		t.Fatalf("re-receipt returned %d: %s", rec.Code, rec.Body.String())
	}

	session, err := env.repos.Sessions.GetByUploadID(context.Background(), uploadID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if session.ChunksReceived != 1 {
		t.Errorf("re-receipt must not double-count: got %d chunks received", session.ChunksReceived)
	}
}

func TestUploadChunkSizeMismatchConflict(t *testing.T) {
	env := newTestEnv(t)
	const totalSize = 2500
	uploadID := initSession(t, env, totalSize)

	// Simulate a truncated earlier write on disk
	if _, err := utils.SaveChunk(env.cfg.UploadDir, uploadID, 0, bytes.NewReader([]byte("short"))); err != nil {
		t.Fatalf("failed to seed truncated chunk: %v", err)
	}

	rec := postChunk(t, env, uploadID, 0, 3, chunkPayload(env, totalSize, 0, 3))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := decodeError(t, rec); code != "CHUNK_SIZE_MISMATCH" {
		t.Errorf("expected CHUNK_SIZE_MISMATCH, got %s", code)
	}
}

func TestUploadChunkErrors(t *testing.T) {
	env := newTestEnv(t)
	const totalSize = 2500
	uploadID := initSession(t, env, totalSize)

	t.Run("unknown session", func(t *testing.T) {
		rec := postChunk(t, env, uuid.NewString(), 0, 3, chunkPayload(env, totalSize, 0, 3))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("index out of range", func(t *testing.T) {
		rec := postChunk(t, env, uploadID, 3, 3, chunkPayload(env, totalSize, 0, 3))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if code := decodeError(t, rec); code != "CHUNK_INDEX_OUT_OF_RANGE" {
			t.Errorf("expected CHUNK_INDEX_OUT_OF_RANGE, got %s", code)
		}
	})

	t.Run("wrong declared size", func(t *testing.T) {
		rec := postChunk(t, env, uploadID, 1, 3, []byte("tiny"))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if code := decodeError(t, rec); code != "INVALID_CHUNK_SIZE" {
			t.Errorf("expected INVALID_CHUNK_SIZE, got %s", code)
		}
	})
}

func TestUploadChunkExpiredSession(t *testing.T) {
	env := newTestEnv(t)

	stale := time.Now().Add(-48 * time.Hour)
	session := &models.UploadSession{
		UploadID:     uuid.NewString(),
		PortalID:     "portal-1",
		Filename:     "old.bin",
		TotalSize:    2048,
		ChunkSize:    env.cfg.ChunkSize,
		TotalChunks:  2,
		CreatedAt:    stale,
		LastActivity: stale,
	}
	if err := env.repos.Sessions.Create(context.Background(), session); err != nil {
		t.Fatalf("failed to create stale session: %v", err)
	}

	rec := postChunk(t, env, session.UploadID, 0, 2, make([]byte, env.cfg.ChunkSize))
	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := decodeError(t, rec); code != "UPLOAD_EXPIRED" {
		t.Errorf("expected UPLOAD_EXPIRED, got %s", code)
	}
}

func TestUploadCompleteMissingChunks(t *testing.T) {
	env := newTestEnv(t)
	const totalSize = 2500
	uploadID := initSession(t, env, totalSize)

	// Only chunk 1 of 3 uploaded
	if rec := postChunk(t, env, uploadID, 1, 3, chunkPayload(env, totalSize, 1, 3)); rec.Code != http.StatusOK {
		t.Fatalf("chunk upload returned %d", rec.Code)
	}

	rec := postComplete(t, env, uploadID)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.UploadCompleteErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if len(resp.MissingChunks) != 2 || resp.MissingChunks[0] != 0 || resp.MissingChunks[1] != 2 {
		t.Errorf("expected missing chunks [0 2], got %v", resp.MissingChunks)
	}
}

func TestUploadCompleteAssemblesAndStores(t *testing.T) {
	env := newTestEnv(t)
	const totalSize = 2500
	uploadID := initSession(t, env, totalSize)

	var want bytes.Buffer
	for i := 0; i < 3; i++ {
		payload := chunkPayload(env, totalSize, i, 3)
		want.Write(payload)
		if rec := postChunk(t, env, uploadID, i, 3, payload); rec.Code != http.StatusOK {
			t.Fatalf("chunk %d returned %d", i, rec.Code)
		}
	}

	rec := postComplete(t, env, uploadID)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.UploadCompleteResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode complete response: %v", err)
	}
	if resp.FileID == "" || resp.WebViewLink == "" {
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
	if !bytes.Equal(stored, want.Bytes()) {
		t.Error("stored file does not match uploaded chunks in order")
	}

	session, err := env.repos.Sessions.GetByUploadID(context.Background(), uploadID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if !session.Completed || session.FileID == nil || *session.FileID != resp.FileID {
		t.Errorf("session not finalized: completed=%v file_id=%v", session.Completed, session.FileID)
	}

	// Retrying complete after a dropped response returns the same file
	rec2 := postComplete(t, env, uploadID)
	if rec2.Code != http.StatusOK {
		t.Fatalf("complete retry returned %d", rec2.Code)
	}
	var resp2 models.UploadCompleteResponse
	if err := json.NewDecoder(rec2.Body).Decode(&resp2); err != nil {
		t.Fatalf("failed to decode retry response: %v", err)
	}
	if resp2.FileID != resp.FileID {
		t.Errorf("retry produced a new file: %s != %s", resp2.FileID, resp.FileID)
	}
}

func TestUploadStatusReportsMissing(t *testing.T) {
	env := newTestEnv(t)
	const totalSize = 2500
	uploadID := initSession(t, env, totalSize)

	if rec := postChunk(t, env, uploadID, 0, 3, chunkPayload(env, totalSize, 0, 3)); rec.Code != http.StatusOK {
		t.Fatalf("chunk upload returned %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/upload/chunked/status?upload_id=%s", uploadID), nil)
	rec := httptest.NewRecorder()
	UploadStatusHandler(env.repos.Sessions, env.cfg)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.UploadStatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode status response: %v", err)
	}
	if resp.ChunksReceived != 1 || len(resp.MissingChunks) != 2 {
		t.Errorf("expected 1 received / 2 missing, got %d / %v", resp.ChunksReceived, resp.MissingChunks)
	}
	if resp.Complete {
		t.Error("session must not report complete")
	}
}

func TestUploadStatusUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/upload/chunked/status?upload_id="+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	UploadStatusHandler(env.repos.Sessions, env.cfg)(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
