package portalfile

import "time"

// Policy controls how the engine moves a file: the chunking threshold, chunk
// geometry, parallelism, and the retry posture for individual transfers.
type Policy struct {
	// SingleUploadLimit is the largest file sent in one request. Anything
	// bigger goes through the chunked endpoints.
	SingleUploadLimit int64

	// ChunkSize is the byte length of every chunk except the last.
	ChunkSize int64

	// ChunkTimeout bounds a single chunk request attempt.
	ChunkTimeout time.Duration

	// FileTimeout bounds a whole single-request transfer.
	FileTimeout time.Duration

	// MaxParallel is the number of chunks in flight per batch. The engine
	// waits for a full batch before starting the next.
	MaxParallel int

	// MaxRetries is the per-chunk retry ceiling for transient failures.
	MaxRetries int

	// BaseBackoff is the first retry delay; it doubles on each attempt.
	BaseBackoff time.Duration

	// FallbackLimit is the largest file the engine will re-send through the
	// single-request path after an irrecoverable chunked failure.
	FallbackLimit int64
}

// DefaultPolicy returns the engine defaults used when the server's advertised
// config is unavailable.
func DefaultPolicy() Policy {
	return Policy{
		SingleUploadLimit: 4 * 1024 * 1024,
		ChunkSize:         2 * 1024 * 1024,
		ChunkTimeout:      90 * time.Second,
		FileTimeout:       10 * time.Minute,
		MaxParallel:       3,
		MaxRetries:        3,
		BaseBackoff:       500 * time.Millisecond,
		FallbackLimit:     4 * 1024 * 1024,
	}
}

// PolicyFromConfig derives a policy from the server's advertised limits,
// keeping the default retry posture.
func PolicyFromConfig(cfg *PublicConfig) Policy {
	p := DefaultPolicy()
	if cfg == nil {
		return p
	}
	if cfg.SingleUploadLimit > 0 {
		p.SingleUploadLimit = cfg.SingleUploadLimit
		p.FallbackLimit = cfg.SingleUploadLimit
	}
	if cfg.ChunkSize > 0 {
		p.ChunkSize = cfg.ChunkSize
	}
	if cfg.ChunkTimeoutSec > 0 {
		p.ChunkTimeout = time.Duration(cfg.ChunkTimeoutSec) * time.Second
	}
	if cfg.FileTimeoutSec > 0 {
		p.FileTimeout = time.Duration(cfg.FileTimeoutSec) * time.Second
	}
	return p
}

// ShouldChunk reports whether a file of the given size must use the chunked
// endpoints under this policy.
func (p Policy) ShouldChunk(size int64) bool {
	return size > p.SingleUploadLimit
}

// backoff returns the delay before retry attempt n (1-based), doubling from
// BaseBackoff.
func (p Policy) backoff(attempt int) time.Duration {
	d := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
