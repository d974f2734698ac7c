package portalfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

// fakeServer implements just enough of the upload API to exercise the
// engine: init, chunk, complete, single upload, and config. Failures are
// injected per chunk index.
type fakeServer struct {
	mu sync.Mutex

	chunkSize   int64
	totalChunks int
	chunks      map[int][]byte

	initCalls     int
	completeCalls int
	singleCalls   int
	singleBody    []byte

	// failures maps chunk index to a queue of status codes returned before
	// the chunk is accepted
	failures map[int][]int
}

func newFakeServer(chunkSize int64) *fakeServer {
	return &fakeServer{
		chunkSize: chunkSize,
		chunks:    make(map[int][]byte),
		failures:  make(map[int][]int),
	}
}

func (s *fakeServer) failChunk(index int, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[index] = append(s.failures[index], statuses...)
}

func (s *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(PublicConfig{
			MaxFileSize:       1 << 30,
			SingleUploadLimit: s.chunkSize,
			ChunkSize:         s.chunkSize,
			ChunkTimeoutSec:   5,
			FileTimeoutSec:    30,
		})
	})

	mux.HandleFunc("/api/upload/chunked/init", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.initCalls++
		s.mu.Unlock()

		var req apiInitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.totalChunks = req.TotalChunks
		s.mu.Unlock()

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(apiInitResponse{
			UploadID:    "11111111-2222-3333-4444-555555555555",
			ChunkSize:   s.chunkSize,
			TotalChunks: req.TotalChunks,
		})
	})

	mux.HandleFunc("/api/upload/chunked/chunk", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(s.chunkSize + 64*1024); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		index, _ := strconv.Atoi(r.FormValue("chunk_index"))

		s.mu.Lock()
		if queue := s.failures[index]; len(queue) > 0 {
			status := queue[0]
			s.failures[index] = queue[1:]
			s.mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]string{"error": "injected failure", "code": "INJECTED"})
			return
		}
		s.mu.Unlock()

		f, _, err := r.FormFile("chunk")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		payload, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		s.mu.Lock()
		s.chunks[index] = payload
		received := len(s.chunks)
		total := s.totalChunks
		s.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]any{
			"upload_id":       r.FormValue("upload_id"),
			"chunk_index":     index,
			"chunks_received": received,
			"total_chunks":    total,
			"complete":        received == total,
		})
	})

	mux.HandleFunc("/api/upload/chunked/complete", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.completeCalls++
		s.mu.Unlock()
		json.NewEncoder(w).Encode(apiCompleteResponse{
			FileID:      "file-1",
			WebViewLink: "http://example.com/files/file-1",
		})
	})

	mux.HandleFunc("/api/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		payload, _ := io.ReadAll(f)
		f.Close()

		s.mu.Lock()
		s.singleCalls++
		s.singleBody = payload
		s.mu.Unlock()

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(apiSingleUploadResponse{
			UploadID:    "u-1",
			FileID:      "file-single",
			WebViewLink: "http://example.com/files/file-single",
		})
	})

	return mux
}

// testFile writes size deterministic bytes into a temp file.
func testFile(t *testing.T, size int64) string {
	t.Helper()

	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func newTestClient(t *testing.T, srv *httptest.Server, policy *Policy) *Client {
	t.Helper()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL, Policy: policy})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func fastPolicy(chunkSize int64) *Policy {
	return &Policy{
		SingleUploadLimit: chunkSize,
		ChunkSize:         chunkSize,
		ChunkTimeout:      5 * time.Second,
		FileTimeout:       30 * time.Second,
		MaxParallel:       2,
		MaxRetries:        3,
		BaseBackoff:       time.Millisecond,
		FallbackLimit:     chunkSize * 2,
	}
}

func TestUploadChunkedHappyPath(t *testing.T) {
	fake := newFakeServer(1024)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(t, srv, fastPolicy(1024))
	path := testFile(t, 2500)

	var events []ProgressEvent
	var mu sync.Mutex
	result, err := client.Upload(context.Background(), path, &UploadOptions{
		PortalID: "portal-1",
		Progress: ProgressFunc(func(e ProgressEvent) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		}),
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if !result.Chunked || result.FileID != "file-1" {
		t.Errorf("unexpected result: %+v", result)
	}

	if fake.initCalls != 1 || fake.completeCalls != 1 {
		t.Errorf("expected 1 init / 1 complete, got %d / %d", fake.initCalls, fake.completeCalls)
	}
	if len(fake.chunks) != 3 {
		t.Fatalf("expected 3 chunks on server, got %d", len(fake.chunks))
	}

	// Server must be able to reassemble the original bytes
	var assembled bytes.Buffer
	for i := 0; i < 3; i++ {
		assembled.Write(fake.chunks[i])
	}
	want, _ := os.ReadFile(path)
	if !bytes.Equal(assembled.Bytes(), want) {
		t.Error("reassembled chunks do not match the file")
	}

	// Progress is monotone and finishes at the total size
	var prev int64 = -1
	for _, e := range events {
		if e.BytesUploaded < prev {
			t.Fatalf("progress went backwards: %d after %d", e.BytesUploaded, prev)
		}
		prev = e.BytesUploaded
	}
	if len(events) == 0 || events[len(events)-1].BytesUploaded != 2500 {
		t.Errorf("final progress must equal total size, got %v", events)
	}
}

func TestUploadOneChunkFileSkipsInit(t *testing.T) {
	fake := newFakeServer(1024)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(t, srv, fastPolicy(1024))
	path := testFile(t, 512)

	result, err := client.Upload(context.Background(), path, &UploadOptions{PortalID: "portal-1"})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if result.Chunked {
		t.Error("small file must use the single-request path")
	}
	if fake.initCalls != 0 {
		t.Errorf("single-request path must not open a session, saw %d init calls", fake.initCalls)
	}
	if fake.singleCalls != 1 {
		t.Errorf("expected 1 single upload, got %d", fake.singleCalls)
	}
}

func TestUploadRetriesTransientChunkFailure(t *testing.T) {
	fake := newFakeServer(1024)
	fake.failChunk(1, http.StatusServiceUnavailable, http.StatusBadGateway)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(t, srv, fastPolicy(1024))
	path := testFile(t, 2500)

	result, err := client.Upload(context.Background(), path, &UploadOptions{PortalID: "portal-1"})
	if err != nil {
		t.Fatalf("upload must survive transient chunk failures: %v", err)
	}
	if !result.Chunked {
		t.Error("expected the chunked path")
	}
	if fake.completeCalls != 1 {
		t.Errorf("expected complete to be called once, got %d", fake.completeCalls)
	}
}

func TestUploadAbortsOnTerminalChunkFailure(t *testing.T) {
	fake := newFakeServer(1024)
	// 400s never retry and the batch aborts the upload
	fake.failChunk(0, http.StatusBadRequest)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	policy := fastPolicy(1024)
	policy.FallbackLimit = 0 // keep the failure visible
	client := newTestClient(t, srv, policy)
	path := testFile(t, 2500)

	_, err := client.Upload(context.Background(), path, &UploadOptions{PortalID: "portal-1"})
	if err == nil {
		t.Fatal("expected upload to fail")
	}

	var ue *UploadError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UploadError, got %T: %v", err, err)
	}
	if len(ue.ChunkErrors) == 0 {
		t.Fatal("expected chunk failures to be aggregated")
	}
	if ue.ChunkErrors[0].Attempts != 1 {
		t.Errorf("terminal 4xx must not retry, saw %d attempts", ue.ChunkErrors[0].Attempts)
	}
	if ue.Retryable() {
		t.Error("a terminal failure makes the upload non-retryable")
	}
	if fake.completeCalls != 0 {
		t.Errorf("complete must never run after a failed batch, got %d calls", fake.completeCalls)
	}
}

func TestUploadExhaustsRetriesThenAborts(t *testing.T) {
	fake := newFakeServer(1024)
	fake.failChunk(2, http.StatusInternalServerError, http.StatusInternalServerError, http.StatusInternalServerError)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	policy := fastPolicy(1024)
	policy.FallbackLimit = 0
	client := newTestClient(t, srv, policy)
	path := testFile(t, 2500)

	_, err := client.Upload(context.Background(), path, &UploadOptions{PortalID: "portal-1"})
	if err == nil {
		t.Fatal("expected upload to fail")
	}

	var ue *UploadError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UploadError, got %T", err)
	}
	if len(ue.ChunkErrors) != 1 || ue.ChunkErrors[0].Index != 2 {
		t.Fatalf("expected chunk 2 to fail, got %+v", ue.ChunkErrors)
	}
	if ue.ChunkErrors[0].Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", ue.ChunkErrors[0].Attempts)
	}
	if !ue.Retryable() {
		t.Error("exhausted transient failures keep the upload retryable")
	}
	if fake.completeCalls != 0 {
		t.Error("complete must never run after exhausted retries")
	}
}

func TestUploadFallsBackToSingleRequest(t *testing.T) {
	fake := newFakeServer(1024)
	// Permanent failure on the chunked path for a small file
	fake.failChunk(0, http.StatusBadRequest)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(t, srv, fastPolicy(1024))
	path := testFile(t, 1500) // two chunks, within FallbackLimit

	result, err := client.Upload(context.Background(), path, &UploadOptions{PortalID: "portal-1"})
	if err != nil {
		t.Fatalf("fallback should have rescued the upload: %v", err)
	}
	if !result.Fallback {
		t.Error("result must flag the fallback path")
	}
	if fake.singleCalls != 1 {
		t.Errorf("expected 1 single-request fallback, got %d", fake.singleCalls)
	}
	if fake.completeCalls != 0 {
		t.Error("complete must not run for the failed chunked attempt")
	}

	want, _ := os.ReadFile(path)
	if !bytes.Equal(fake.singleBody, want) {
		t.Error("fallback body does not match the file")
	}
}

func TestUploadContextCancellation(t *testing.T) {
	fake := newFakeServer(1024)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(t, srv, fastPolicy(1024))
	path := testFile(t, 2500)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Upload(ctx, path, &UploadOptions{PortalID: "portal-1"})
	if err == nil {
		t.Fatal("expected cancellation to fail the upload")
	}
	if fake.completeCalls != 0 {
		t.Error("complete must not run after cancellation")
	}
	if fake.singleCalls != 0 {
		t.Error("fallback must not run after cancellation")
	}
}

func TestUploadCompressOption(t *testing.T) {
	fake := newFakeServer(64 * 1024)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(t, srv, fastPolicy(64*1024))
	path := testFile(t, 4096)

	result, err := client.Upload(context.Background(), path, &UploadOptions{
		PortalID: "portal-1",
		Compress: true,
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if result.Filename != "data.bin.gz" {
		t.Errorf("compressed upload must carry the .gz name, got %q", result.Filename)
	}

	gz, err := gzip.NewReader(bytes.NewReader(fake.singleBody))
	if err != nil {
		t.Fatalf("server did not receive a gzip stream: %v", err)
	}
	decompressed, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("failed to decompress: %v", err)
	}
	want, _ := os.ReadFile(path)
	if !bytes.Equal(decompressed, want) {
		t.Error("decompressed payload does not match the original file")
	}
}

func TestUploadMissingPortalID(t *testing.T) {
	fake := newFakeServer(1024)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(t, srv, fastPolicy(1024))
	path := testFile(t, 100)

	_, err := client.Upload(context.Background(), path, &UploadOptions{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "PortalID" {
		t.Errorf("expected PortalID validation error, got %v", err)
	}
}
