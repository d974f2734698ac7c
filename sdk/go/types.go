package portalfile

import "time"

// ClientConfig configures a PortalFile client.
type ClientConfig struct {
	// BaseURL is the PortalFile server URL, e.g. "https://files.example.com".
	BaseURL string
	// APIToken is an optional bearer token.
	APIToken string
	// Timeout bounds any single HTTP request. Defaults to 5 minutes.
	Timeout time.Duration
	// Policy overrides the server-advertised upload policy. When zero, the
	// engine derives a policy from GET /api/config on first use.
	Policy *Policy
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
}

// PublicConfig is the server-advertised upload policy.
type PublicConfig struct {
	MaxFileSize       int64 `json:"max_file_size"`
	SingleUploadLimit int64 `json:"single_upload_limit"`
	ChunkSize         int64 `json:"chunk_size"`
	ChunkTimeoutSec   int   `json:"chunk_timeout_sec"`
	FileTimeoutSec    int   `json:"file_timeout_sec"`
}

// UploadOptions carries per-upload settings and client metadata.
type UploadOptions struct {
	// PortalID identifies the destination portal. Required.
	PortalID string
	// UploaderName is optional uploader metadata shown to the portal owner.
	UploaderName string
	// UploaderEmail is optional uploader metadata.
	UploaderEmail string
	// Message is an optional note attached to the upload.
	Message string
	// Compress gzips the file before transfer.
	Compress bool
	// Progress receives transfer progress events.
	Progress ProgressListener
}

// UploadResult is the outcome of a successful upload.
type UploadResult struct {
	// FileID is the stored file's identifier.
	FileID string
	// WebViewLink is the browsable URL for the stored file.
	WebViewLink string
	// Filename is the name the file was stored under.
	Filename string
	// Size is the number of bytes transferred.
	Size int64
	// Chunked reports which path the engine used.
	Chunked bool
	// Fallback reports that the single-request path succeeded after a
	// failed chunked attempt.
	Fallback bool
}

// UploadStatus describes a chunked session's server-side progress.
type UploadStatus struct {
	UploadID       string
	Filename       string
	ChunksReceived int
	TotalChunks    int
	ReceivedBytes  int64
	ReceivedChunks []int
	MissingChunks  []int
	Complete       bool
	ExpiresAt      time.Time
}

// Wire shapes for the chunked endpoints.

type apiInitRequest struct {
	PortalID      string `json:"portal_id"`
	Filename      string `json:"filename"`
	TotalSize     int64  `json:"total_size"`
	MimeType      string `json:"mime_type,omitempty"`
	TotalChunks   int    `json:"total_chunks"`
	UploaderName  string `json:"uploader_name,omitempty"`
	UploaderEmail string `json:"uploader_email,omitempty"`
	Message       string `json:"message,omitempty"`
}

type apiInitResponse struct {
	UploadID    string    `json:"upload_id"`
	ChunkSize   int64     `json:"chunk_size"`
	TotalChunks int       `json:"total_chunks"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type apiCompleteRequest struct {
	UploadID string `json:"upload_id"`
}

type apiCompleteResponse struct {
	FileID      string `json:"file_id"`
	WebViewLink string `json:"web_view_link"`
}

type apiSingleUploadResponse struct {
	UploadID    string `json:"uploadId"`
	FileID      string `json:"file_id"`
	WebViewLink string `json:"web_view_link"`
}

type apiStatusResponse struct {
	UploadID       string    `json:"upload_id"`
	Filename       string    `json:"filename"`
	ChunksReceived int       `json:"chunks_received"`
	TotalChunks    int       `json:"total_chunks"`
	ReceivedBytes  int64     `json:"received_bytes"`
	ReceivedChunks []int     `json:"received_chunks"`
	MissingChunks  []int     `json:"missing_chunks"`
	Complete       bool      `json:"complete"`
	ExpiresAt      time.Time `json:"expires_at"`
}
