package portalfile

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// compressToTemp gzips the file at path into a temporary file and returns
// the temp path and compressed size. The caller removes the temp file.
func compressToTemp(path string) (string, int64, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening file: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "portalfile-gz-*")
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file: %w", err)
	}

	gz, err := gzip.NewWriterLevel(tmp, gzip.BestSpeed)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("creating gzip writer: %w", err)
	}

	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		tmp.Close()
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("compressing file: %w", err)
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("flushing gzip stream: %w", err)
	}

	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("stat temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("closing temp file: %w", err)
	}

	return tmp.Name(), info.Size(), nil
}
