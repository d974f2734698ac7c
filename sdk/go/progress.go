package portalfile

import (
	"io"
	"sync"
)

// ProgressEvent is one progress report during an upload.
type ProgressEvent struct {
	// BytesUploaded is the cumulative number of bytes confirmed sent.
	BytesUploaded int64
	// TotalBytes is the total file size being uploaded.
	TotalBytes int64
	// Percentage is BytesUploaded/TotalBytes rounded down, 0-100.
	Percentage int
	// CurrentChunk is the number of chunks fully transferred so far
	// (zero for single-request uploads).
	CurrentChunk int
	// TotalChunks is the chunk count (zero for single-request uploads).
	TotalChunks int
}

// ProgressListener receives progress events. Events within one upload attempt
// are monotonically non-decreasing in BytesUploaded; the final event of a
// successful upload equals the total size.
type ProgressListener interface {
	OnProgress(ProgressEvent)
}

// ProgressFunc adapts a plain function to the ProgressListener interface.
type ProgressFunc func(ProgressEvent)

// OnProgress implements ProgressListener.
func (f ProgressFunc) OnProgress(e ProgressEvent) {
	f(e)
}

// progressTracker serializes events from concurrent chunk transfers and
// enforces monotonicity.
type progressTracker struct {
	mu          sync.Mutex
	listener    ProgressListener
	totalBytes  int64
	totalChunks int
	uploaded    int64
	chunksDone  int
}

func newProgressTracker(listener ProgressListener, totalBytes int64, totalChunks int) *progressTracker {
	return &progressTracker{
		listener:    listener,
		totalBytes:  totalBytes,
		totalChunks: totalChunks,
	}
}

// chunkDone records a completed chunk and emits an event.
func (t *progressTracker) chunkDone(n int64) {
	if t == nil || t.listener == nil {
		return
	}
	t.mu.Lock()
	t.uploaded += n
	t.chunksDone++
	event := t.event()
	t.mu.Unlock()
	t.listener.OnProgress(event)
}

// set reports absolute progress, used by the single-request path.
func (t *progressTracker) set(uploaded int64) {
	if t == nil || t.listener == nil {
		return
	}
	t.mu.Lock()
	if uploaded > t.uploaded {
		t.uploaded = uploaded
	}
	event := t.event()
	t.mu.Unlock()
	t.listener.OnProgress(event)
}

func (t *progressTracker) event() ProgressEvent {
	pct := 0
	if t.totalBytes > 0 {
		pct = int(float64(t.uploaded) / float64(t.totalBytes) * 100)
	}
	return ProgressEvent{
		BytesUploaded: t.uploaded,
		TotalBytes:    t.totalBytes,
		Percentage:    pct,
		CurrentChunk:  t.chunksDone,
		TotalChunks:   t.totalChunks,
	}
}

// progressReader reports cumulative bytes as they are consumed from the
// underlying reader.
type progressReader struct {
	reader io.Reader
	read   int64
	onRead func(int64)
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.read += int64(n)
		if r.onRead != nil {
			r.onRead(r.read)
		}
	}
	return n, err
}
