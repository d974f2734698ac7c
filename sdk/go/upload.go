package portalfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Upload transfers the file at path to the server. Files above the policy's
// single-upload limit go through the chunked endpoints in parallel batches;
// everything else is sent in one multipart request. A failed chunked attempt
// for a fallback-eligible file is retried once through the single-request
// path.
//
// Example:
//
//	result, err := client.Upload(ctx, "/path/to/file.pdf", &portalfile.UploadOptions{
//	    PortalID: "acme-invoices",
//	    Progress: portalfile.ProgressFunc(func(p portalfile.ProgressEvent) {
//	        fmt.Printf("upload: %d%%\n", p.Percentage)
//	    }),
//	})
func (c *Client) Upload(ctx context.Context, path string, opts *UploadOptions) (*UploadResult, error) {
	if opts == nil {
		opts = &UploadOptions{}
	}
	if opts.PortalID == "" {
		return nil, &ValidationError{Field: "PortalID", Message: "is required"}
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("getting file info: %w", err)
	}

	filename := filepath.Base(absPath)
	uploadPath := absPath
	size := info.Size()

	if opts.Compress {
		tmpPath, compressedSize, err := compressToTemp(absPath)
		if err != nil {
			return nil, err
		}
		defer os.Remove(tmpPath)
		uploadPath = tmpPath
		size = compressedSize
		filename += ".gz"
	}

	policy, err := c.policy(ctx)
	if err != nil {
		return nil, err
	}

	ranges := SplitChunks(size, policy.ChunkSize)

	// One-chunk files skip session negotiation entirely
	if !policy.ShouldChunk(size) || len(ranges) <= 1 {
		return c.uploadSingle(ctx, uploadPath, filename, size, policy, opts)
	}

	result, err := c.uploadChunked(ctx, uploadPath, filename, size, ranges, policy, opts)
	if err == nil {
		return result, nil
	}

	// Small files get one shot at the single-request path before giving up,
	// unless the caller cancelled.
	if size <= policy.FallbackLimit && ctx.Err() == nil {
		fallbackResult, fbErr := c.uploadSingle(ctx, uploadPath, filename, size, policy, opts)
		if fbErr == nil {
			fallbackResult.Fallback = true
			return fallbackResult, nil
		}
	}
	return nil, err
}

// uploadSingle sends the whole file in one multipart request.
func (c *Client) uploadSingle(ctx context.Context, path, filename string, size int64, policy Policy, opts *UploadOptions) (*UploadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	tracker := newProgressTracker(opts.Progress, size, 0)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	writer.WriteField("portal_id", opts.PortalID)
	writer.WriteField("filename", filename)
	if opts.UploaderName != "" {
		writer.WriteField("uploader_name", opts.UploaderName)
	}
	if opts.UploaderEmail != "" {
		writer.WriteField("uploader_email", opts.UploaderEmail)
	}
	if opts.Message != "" {
		writer.WriteField("message", opts.Message)
	}

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	pr := &progressReader{reader: file, onRead: tracker.set}
	if _, err := io.Copy(part, pr); err != nil {
		return nil, fmt.Errorf("copying file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	reqCtx := ctx
	if policy.FileTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, policy.FileTimeout)
		defer cancel()
	}

	resp, err := c.request(reqCtx, http.MethodPost, "/api/upload", &buf, writer.FormDataContentType())
	if err != nil {
		return nil, err
	}
	var apiResp apiSingleUploadResponse
	if err := handleResponse(resp, &apiResp); err != nil {
		return nil, err
	}

	tracker.set(size)
	return &UploadResult{
		FileID:      apiResp.FileID,
		WebViewLink: apiResp.WebViewLink,
		Filename:    filename,
		Size:        size,
	}, nil
}

// uploadChunked negotiates a session and moves the chunks in batches of
// MaxParallel. A batch boundary is a synchronization point: no chunk from
// the next batch starts before every chunk in the current batch has
// resolved. Any terminal chunk failure aborts the upload before complete.
func (c *Client) uploadChunked(ctx context.Context, path, filename string, size int64, ranges []ChunkRange, policy Policy, opts *UploadOptions) (*UploadResult, error) {
	initBody, err := json.Marshal(apiInitRequest{
		PortalID:      opts.PortalID,
		Filename:      filename,
		TotalSize:     size,
		TotalChunks:   len(ranges),
		UploaderName:  opts.UploaderName,
		UploaderEmail: opts.UploaderEmail,
		Message:       opts.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling init body: %w", err)
	}

	resp, err := c.request(ctx, http.MethodPost, "/api/upload/chunked/init", bytes.NewReader(initBody), "application/json")
	if err != nil {
		return nil, &UploadError{Err: fmt.Errorf("creating session: %w", err)}
	}
	var session apiInitResponse
	if err := handleResponse(resp, &session); err != nil {
		return nil, &UploadError{Err: fmt.Errorf("creating session: %w", err)}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, &UploadError{UploadID: session.UploadID, Err: fmt.Errorf("opening file: %w", err)}
	}
	defer file.Close()

	tracker := newProgressTracker(opts.Progress, size, len(ranges))

	parallel := policy.MaxParallel
	if parallel < 1 {
		parallel = 1
	}

	var chunkErrs []*ChunkError
	for start := 0; start < len(ranges); start += parallel {
		end := start + parallel
		if end > len(ranges) {
			end = len(ranges)
		}

		if err := ctx.Err(); err != nil {
			return nil, &UploadError{UploadID: session.UploadID, Err: err}
		}

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			batchCh []*ChunkError
		)
		for _, cr := range ranges[start:end] {
			wg.Add(1)
			go func(cr ChunkRange) {
				defer wg.Done()
				if cerr := c.uploadChunkWithRetry(ctx, file, session.UploadID, cr, len(ranges), policy); cerr != nil {
					mu.Lock()
					batchCh = append(batchCh, cerr)
					mu.Unlock()
					return
				}
				tracker.chunkDone(cr.Length)
			}(cr)
		}
		wg.Wait()

		if len(batchCh) > 0 {
			chunkErrs = append(chunkErrs, batchCh...)
			// Batch all-or-nothing: never proceed toward complete with
			// a failed chunk behind us
			return nil, &UploadError{UploadID: session.UploadID, ChunkErrors: chunkErrs}
		}
	}

	completeBody, err := json.Marshal(apiCompleteRequest{UploadID: session.UploadID})
	if err != nil {
		return nil, &UploadError{UploadID: session.UploadID, Err: fmt.Errorf("marshaling complete body: %w", err)}
	}
	completeResp, err := c.request(ctx, http.MethodPost, "/api/upload/chunked/complete", bytes.NewReader(completeBody), "application/json")
	if err != nil {
		return nil, &UploadError{UploadID: session.UploadID, Err: fmt.Errorf("completing upload: %w", err)}
	}
	var completed apiCompleteResponse
	if err := handleResponse(completeResp, &completed); err != nil {
		return nil, &UploadError{UploadID: session.UploadID, Err: fmt.Errorf("completing upload: %w", err)}
	}

	return &UploadResult{
		FileID:      completed.FileID,
		WebViewLink: completed.WebViewLink,
		Filename:    filename,
		Size:        size,
		Chunked:     true,
	}, nil
}

// uploadChunkWithRetry sends one chunk, retrying transient failures with
// exponential backoff up to the policy ceiling.
func (c *Client) uploadChunkWithRetry(ctx context.Context, file *os.File, uploadID string, cr ChunkRange, totalChunks int, policy Policy) *ChunkError {
	attempts := policy.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &ChunkError{Index: cr.Index, Attempts: attempt - 1, Elapsed: time.Since(start), Err: err}
		}

		lastErr = c.uploadChunkOnce(ctx, file, uploadID, cr, totalChunks, policy)
		if lastErr == nil {
			return nil
		}
		retry := isRetryable(lastErr)
		if !retry && ctx.Err() == nil && errors.Is(lastErr, context.DeadlineExceeded) {
			// The parent context is live, so the deadline that fired was
			// the per-attempt chunk timeout
			retry = true
		}
		if !retry {
			return &ChunkError{Index: cr.Index, Attempts: attempt, Elapsed: time.Since(start), Err: lastErr}
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return &ChunkError{Index: cr.Index, Attempts: attempt, Elapsed: time.Since(start), Err: ctx.Err()}
		case <-time.After(policy.backoff(attempt)):
		}
	}
	return &ChunkError{Index: cr.Index, Attempts: attempts, Elapsed: time.Since(start), Err: lastErr}
}

// uploadChunkOnce performs a single chunk request attempt.
func (c *Client) uploadChunkOnce(ctx context.Context, file *os.File, uploadID string, cr ChunkRange, totalChunks int, policy Policy) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	writer.WriteField("upload_id", uploadID)
	writer.WriteField("chunk_index", fmt.Sprintf("%d", cr.Index))
	writer.WriteField("total_chunks", fmt.Sprintf("%d", totalChunks))

	part, err := writer.CreateFormFile("chunk", "chunk")
	if err != nil {
		return fmt.Errorf("creating chunk form: %w", err)
	}
	// SectionReader keeps concurrent chunk reads independent of the shared
	// file offset
	if _, err := io.Copy(part, io.NewSectionReader(file, cr.Offset, cr.Length)); err != nil {
		return fmt.Errorf("reading chunk: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing chunk writer: %w", err)
	}

	reqCtx := ctx
	if policy.ChunkTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, policy.ChunkTimeout)
		defer cancel()
	}

	resp, err := c.request(reqCtx, http.MethodPost, "/api/upload/chunked/chunk", &buf, writer.FormDataContentType())
	if err != nil {
		return err
	}
	return handleResponse(resp, nil)
}
