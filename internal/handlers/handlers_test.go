package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/portalfile/portalfile/internal/config"
	"github.com/portalfile/portalfile/internal/repository"
	"github.com/portalfile/portalfile/internal/repository/sqlite"
	"github.com/portalfile/portalfile/internal/storage/filesystem"
)

// testEnv wires an in-memory database, a temp-dir blob backend, and a config
// with a tiny chunk size so tests stay fast.
type testEnv struct {
	cfg     *config.Config
	repos   *repository.Repositories
	backend *filesystem.Storage
	db      *sql.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := sqlite.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repos, err := sqlite.NewRepositories(db)
	if err != nil {
		t.Fatalf("failed to create repositories: %v", err)
	}

	backend, err := filesystem.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create filesystem backend: %v", err)
	}

	cfg := &config.Config{
		UploadDir:           t.TempDir(),
		MaxFileSize:         1 << 20,
		SingleUploadLimit:   4096,
		ChunkSize:           1024,
		MaxChunksPerFile:    100,
		ChunkTimeoutSeconds: 90,
		FileTimeoutSeconds:  600,
		SessionExpiryHours:  24,
	}

	return &testEnv{cfg: cfg, repos: repos, backend: backend, db: db}
}

// initSession runs the init handler for a file of totalSize bytes and
// returns the new upload_id.
func initSession(t *testing.T, env *testEnv, totalSize int64) string {
	t.Helper()

	totalChunks := int((totalSize + env.cfg.ChunkSize - 1) / env.cfg.ChunkSize)
	body := fmt.Sprintf(`{
		"portal_id": "portal-1",
		"filename": "report.pdf",
		"total_size": %d,
		"mime_type": "application/pdf",
		"total_chunks": %d
	}`, totalSize, totalChunks)

	req := httptest.NewRequest(http.MethodPost, "/api/upload/chunked/init", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	UploadInitHandler(env.repos.Sessions, env.cfg)(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("init returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		UploadID string `json:"upload_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode init response: %v", err)
	}
	return resp.UploadID
}

// postChunk builds a multipart chunk request and runs the chunk handler.
func postChunk(t *testing.T, env *testEnv, uploadID string, chunkIndex, totalChunks int, payload []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("upload_id", uploadID); err != nil {
		t.Fatalf("failed to write form field: %v", err)
	}
	if err := mw.WriteField("chunk_index", fmt.Sprintf("%d", chunkIndex)); err != nil {
		t.Fatalf("failed to write form field: %v", err)
	}
	if err := mw.WriteField("total_chunks", fmt.Sprintf("%d", totalChunks)); err != nil {
		t.Fatalf("failed to write form field: %v", err)
	}
	fw, err := mw.CreateFormFile("chunk", "chunk.bin")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fw.Write(payload); err != nil {
		t.Fatalf("failed to write chunk payload: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload/chunked/chunk", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	UploadChunkHandler(env.repos.Sessions, env.cfg)(rec, req)
	return rec
}

// postComplete runs the complete handler for the session.
func postComplete(t *testing.T, env *testEnv, uploadID string) *httptest.ResponseRecorder {
	t.Helper()

	body := fmt.Sprintf(`{"upload_id": %q}`, uploadID)
	req := httptest.NewRequest(http.MethodPost, "/api/upload/chunked/complete", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	UploadCompleteHandler(env.repos.Sessions, env.repos.Locks, env.backend, env.cfg)(rec, req)
	return rec
}

// chunkPayload produces deterministic chunk content for index i. The final
// chunk carries the remainder of totalSize.
func chunkPayload(env *testEnv, totalSize int64, i, totalChunks int) []byte {
	size := env.cfg.ChunkSize
	if i == totalChunks-1 {
		size = totalSize - int64(totalChunks-1)*env.cfg.ChunkSize
	}
	payload := make([]byte, size)
	for j := range payload {
		payload[j] = byte(i)
	}
	return payload
}

// decodeError reads an error body's code field.
func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var resp struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp.Code
}
