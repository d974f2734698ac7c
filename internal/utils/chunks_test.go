package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveChunkAndExists(t *testing.T) {
	dir := t.TempDir()

	written, err := SaveChunk(dir, "upload-1", 0, strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("SaveChunk() error: %v", err)
	}
	if written != 11 {
		t.Errorf("SaveChunk() wrote %d bytes, want 11", written)
	}

	exists, size, err := ChunkExists(dir, "upload-1", 0)
	if err != nil {
		t.Fatalf("ChunkExists() error: %v", err)
	}
	if !exists || size != 11 {
		t.Errorf("ChunkExists() = %v, %d, want true, 11", exists, size)
	}

	exists, _, err = ChunkExists(dir, "upload-1", 1)
	if err != nil {
		t.Fatalf("ChunkExists() error: %v", err)
	}
	if exists {
		t.Error("ChunkExists() should report false for a missing chunk")
	}
}

func TestSaveChunkOverwrite(t *testing.T) {
	dir := t.TempDir()

	if _, err := SaveChunk(dir, "upload-1", 0, strings.NewReader("first version")); err != nil {
		t.Fatalf("SaveChunk() error: %v", err)
	}
	if _, err := SaveChunk(dir, "upload-1", 0, strings.NewReader("second")); err != nil {
		t.Fatalf("SaveChunk() error: %v", err)
	}

	_, size, err := ChunkExists(dir, "upload-1", 0)
	if err != nil {
		t.Fatalf("ChunkExists() error: %v", err)
	}
	if size != 6 {
		t.Errorf("chunk size after overwrite = %d, want 6", size)
	}
}

func TestGetMissingChunks(t *testing.T) {
	dir := t.TempDir()

	for _, idx := range []int{0, 2, 4} {
		if _, err := SaveChunk(dir, "upload-1", idx, bytes.NewReader([]byte{1, 2, 3})); err != nil {
			t.Fatalf("SaveChunk() error: %v", err)
		}
	}

	missing, err := GetMissingChunks(dir, "upload-1", 5)
	if err != nil {
		t.Fatalf("GetMissingChunks() error: %v", err)
	}
	if len(missing) != 2 || missing[0] != 1 || missing[1] != 3 {
		t.Errorf("GetMissingChunks() = %v, want [1 3]", missing)
	}
}

func TestGetReceivedChunks(t *testing.T) {
	dir := t.TempDir()

	received, err := GetReceivedChunks(dir, "upload-none")
	if err != nil {
		t.Fatalf("GetReceivedChunks() error: %v", err)
	}
	if len(received) != 0 {
		t.Errorf("GetReceivedChunks() = %v, want empty", received)
	}

	for _, idx := range []int{3, 0, 7} {
		if _, err := SaveChunk(dir, "upload-1", idx, strings.NewReader("x")); err != nil {
			t.Fatalf("SaveChunk() error: %v", err)
		}
	}

	received, err = GetReceivedChunks(dir, "upload-1")
	if err != nil {
		t.Fatalf("GetReceivedChunks() error: %v", err)
	}
	want := []int{0, 3, 7}
	if len(received) != len(want) {
		t.Fatalf("GetReceivedChunks() = %v, want %v", received, want)
	}
	for i := range want {
		if received[i] != want[i] {
			t.Errorf("GetReceivedChunks()[%d] = %d, want %d", i, received[i], want[i])
		}
	}
}

func TestVerifyChunks(t *testing.T) {
	dir := t.TempDir()

	if _, err := SaveChunk(dir, "upload-1", 0, strings.NewReader("aaaa")); err != nil {
		t.Fatalf("SaveChunk() error: %v", err)
	}
	if _, err := SaveChunk(dir, "upload-1", 1, strings.NewReader("bb")); err != nil {
		t.Fatalf("SaveChunk() error: %v", err)
	}

	if err := VerifyChunks(dir, "upload-1", 2, 6); err != nil {
		t.Errorf("VerifyChunks() error: %v", err)
	}

	if err := VerifyChunks(dir, "upload-1", 2, 7); err == nil {
		t.Error("VerifyChunks() should fail on a size mismatch")
	}

	if err := VerifyChunks(dir, "upload-1", 3, 6); err == nil {
		t.Error("VerifyChunks() should fail on a missing chunk")
	}
}

func TestAssembleChunks(t *testing.T) {
	dir := t.TempDir()

	parts := []string{"the quick ", "brown fox ", "jumps"}
	for i, p := range parts {
		if _, err := SaveChunk(dir, "upload-1", i, strings.NewReader(p)); err != nil {
			t.Fatalf("SaveChunk() error: %v", err)
		}
	}

	outPath := filepath.Join(dir, "assembled.txt")
	written, err := AssembleChunks(dir, "upload-1", 3, outPath)
	if err != nil {
		t.Fatalf("AssembleChunks() error: %v", err)
	}
	if written != 25 {
		t.Errorf("AssembleChunks() wrote %d bytes, want 25", written)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(data) != "the quick brown fox jumps" {
		t.Errorf("assembled content = %q", string(data))
	}
}

func TestAssembleChunksMissing(t *testing.T) {
	dir := t.TempDir()

	if _, err := SaveChunk(dir, "upload-1", 0, strings.NewReader("only one")); err != nil {
		t.Fatalf("SaveChunk() error: %v", err)
	}

	_, err := AssembleChunks(dir, "upload-1", 2, filepath.Join(dir, "out"))
	if err == nil {
		t.Error("AssembleChunks() should fail with missing chunks")
	}
}

func TestDeleteChunks(t *testing.T) {
	dir := t.TempDir()

	if _, err := SaveChunk(dir, "upload-1", 0, strings.NewReader("data")); err != nil {
		t.Fatalf("SaveChunk() error: %v", err)
	}

	if err := DeleteChunks(dir, "upload-1"); err != nil {
		t.Fatalf("DeleteChunks() error: %v", err)
	}

	if _, err := os.Stat(GetSessionChunkDir(dir, "upload-1")); !os.IsNotExist(err) {
		t.Error("chunk directory should be removed")
	}

	// Deleting twice is not an error.
	if err := DeleteChunks(dir, "upload-1"); err != nil {
		t.Errorf("DeleteChunks() second call error: %v", err)
	}
}

func TestDetectMimeType(t *testing.T) {
	if got := DetectMimeType([]byte("%PDF-1.5\n")); got != "application/pdf" {
		t.Errorf("DetectMimeType(pdf) = %q", got)
	}
	if got := DetectMimeType([]byte("plain text content")); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("DetectMimeType(text) = %q", got)
	}
}
