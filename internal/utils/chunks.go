// Package utils provides chunk persistence, distributed lock helpers and
// request validation for PortalFile.
package utils

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// assemblyBufferSize is the buffer size for chunk assembly (8MB).
// Large enough to keep syscall overhead low on multi-GB files.
const assemblyBufferSize = 8 * 1024 * 1024

// GetChunksRoot returns the directory holding all in-flight chunk sets.
func GetChunksRoot(uploadDir string) string {
	return filepath.Join(uploadDir, ".chunks")
}

// GetSessionChunkDir returns the chunk directory for one upload session.
func GetSessionChunkDir(uploadDir, uploadID string) string {
	return filepath.Join(GetChunksRoot(uploadDir), uploadID)
}

// GetChunkPath returns the file path for a specific chunk index.
func GetChunkPath(uploadDir, uploadID string, chunkIndex int) string {
	return filepath.Join(GetSessionChunkDir(uploadDir, uploadID), fmt.Sprintf("chunk_%d", chunkIndex))
}

// SaveChunk streams one chunk to disk and returns the bytes written.
func SaveChunk(uploadDir, uploadID string, chunkIndex int, r io.Reader) (int64, error) {
	chunkDir := GetSessionChunkDir(uploadDir, uploadID)
	if err := os.MkdirAll(chunkDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create chunk directory: %w", err)
	}

	chunkPath := GetChunkPath(uploadDir, uploadID, chunkIndex)
	file, err := os.OpenFile(chunkPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create chunk file: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, r)
	if err != nil {
		return 0, fmt.Errorf("failed to write chunk data: %w", err)
	}

	// No Sync here. Chunks are resumable, the OS can flush when it likes.

	slog.Debug("chunk saved",
		"upload_id", uploadID,
		"chunk_index", chunkIndex,
		"size", written,
	)

	return written, nil
}

// ChunkExists reports whether a chunk is on disk, and its size.
func ChunkExists(uploadDir, uploadID string, chunkIndex int) (bool, int64, error) {
	info, err := os.Stat(GetChunkPath(uploadDir, uploadID, chunkIndex))
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to stat chunk file: %w", err)
	}
	return true, info.Size(), nil
}

// GetMissingChunks returns the sorted indexes in [0,totalChunks) not yet on disk.
func GetMissingChunks(uploadDir, uploadID string, totalChunks int) ([]int, error) {
	var missing []int
	for i := 0; i < totalChunks; i++ {
		exists, _, err := ChunkExists(uploadDir, uploadID, i)
		if err != nil {
			return nil, fmt.Errorf("failed to check chunk %d: %w", i, err)
		}
		if !exists {
			missing = append(missing, i)
		}
	}
	return missing, nil
}

// GetReceivedChunks returns the sorted indexes present on disk.
func GetReceivedChunks(uploadDir, uploadID string) ([]int, error) {
	chunkDir := GetSessionChunkDir(uploadDir, uploadID)

	if _, err := os.Stat(chunkDir); os.IsNotExist(err) {
		return []int{}, nil
	}

	entries, err := os.ReadDir(chunkDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk directory: %w", err)
	}

	var indexes []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var idx int
		if _, err := fmt.Sscanf(entry.Name(), "chunk_%d", &idx); err == nil {
			indexes = append(indexes, idx)
		}
	}
	sort.Ints(indexes)
	return indexes, nil
}

// VerifyChunks checks that every index in [0,totalChunks) is on disk and
// that the chunk bytes sum to the declared total size.
func VerifyChunks(uploadDir, uploadID string, totalChunks int, totalSize int64) error {
	var sum int64
	for i := 0; i < totalChunks; i++ {
		exists, size, err := ChunkExists(uploadDir, uploadID, i)
		if err != nil {
			return fmt.Errorf("failed to check chunk %d: %w", i, err)
		}
		if !exists {
			return fmt.Errorf("chunk %d is missing", i)
		}
		sum += size
	}

	if sum != totalSize {
		return fmt.Errorf("chunk bytes total %d, declared size %d", sum, totalSize)
	}
	return nil
}

// AssembleChunks concatenates the chunk files in index order into outputPath.
// Returns the total bytes written.
func AssembleChunks(uploadDir, uploadID string, totalChunks int, outputPath string) (int64, error) {
	startTime := time.Now()

	missing, err := GetMissingChunks(uploadDir, uploadID, totalChunks)
	if err != nil {
		return 0, fmt.Errorf("failed to check for missing chunks: %w", err)
	}
	if len(missing) > 0 {
		return 0, fmt.Errorf("cannot assemble: %d chunks missing (first missing: %d)", len(missing), missing[0])
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}
	defer outFile.Close()

	writer := bufio.NewWriterSize(outFile, assemblyBufferSize)

	var totalBytesWritten int64
	for i := 0; i < totalChunks; i++ {
		chunkFile, err := os.Open(GetChunkPath(uploadDir, uploadID, i))
		if err != nil {
			return 0, fmt.Errorf("failed to open chunk %d: %w", i, err)
		}

		written, err := io.Copy(writer, chunkFile)
		chunkFile.Close()
		if err != nil {
			return 0, fmt.Errorf("failed to copy chunk %d: %w", i, err)
		}
		totalBytesWritten += written
	}

	if err := writer.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush output file: %w", err)
	}

	// No Sync: assembly is retryable from the intact chunk set if the
	// process dies mid-write.

	duration := time.Since(startTime)
	slog.Info("chunk assembly complete",
		"upload_id", uploadID,
		"total_chunks", totalChunks,
		"total_bytes", totalBytesWritten,
		"duration_ms", duration.Milliseconds(),
	)

	return totalBytesWritten, nil
}

// DeleteChunks removes the chunk directory for an upload session.
func DeleteChunks(uploadDir, uploadID string) error {
	chunkDir := GetSessionChunkDir(uploadDir, uploadID)

	if _, err := os.Stat(chunkDir); os.IsNotExist(err) {
		return nil
	}

	if err := os.RemoveAll(chunkDir); err != nil {
		return fmt.Errorf("failed to delete chunk directory: %w", err)
	}

	slog.Debug("chunks deleted", "upload_id", uploadID, "path", chunkDir)
	return nil
}

// DetectMimeType detects the MIME type from file content.
func DetectMimeType(data []byte) string {
	return mimetype.Detect(data).String()
}

// DetectFileMimeType detects the MIME type of an assembled file on disk.
func DetectFileMimeType(path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to detect mime type: %w", err)
	}
	return mtype.String(), nil
}
