package models

import "time"

// UploadSession represents a chunked upload session in progress
type UploadSession struct {
	UploadID       string    `json:"upload_id"`
	PortalID       string    `json:"portal_id"`
	Filename       string    `json:"filename"`
	TotalSize      int64     `json:"total_size"`
	MimeType       string    `json:"mime_type"`
	ChunkSize      int64     `json:"chunk_size"`
	TotalChunks    int       `json:"total_chunks"`
	ChunksReceived int       `json:"chunks_received"`
	ReceivedBytes  int64     `json:"received_bytes"`
	UploaderName   string    `json:"uploader_name,omitempty"`
	UploaderEmail  string    `json:"uploader_email,omitempty"`
	Message        string    `json:"message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
	Completed      bool      `json:"completed"`
	FileID         *string   `json:"file_id,omitempty"`
}

// UploadInitRequest is the request to open a chunked upload session
type UploadInitRequest struct {
	PortalID      string `json:"portal_id"`
	Filename      string `json:"filename"`
	TotalSize     int64  `json:"total_size"`
	MimeType      string `json:"mime_type"`
	TotalChunks   int    `json:"total_chunks"`
	UploaderName  string `json:"uploader_name,omitempty"`
	UploaderEmail string `json:"uploader_email,omitempty"`
	Message       string `json:"message,omitempty"`
}

// UploadInitResponse is returned after a session is created
type UploadInitResponse struct {
	UploadID    string    `json:"upload_id"`
	ChunkSize   int64     `json:"chunk_size"`
	TotalChunks int       `json:"total_chunks"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// UploadChunkResponse is returned after a chunk is accepted
type UploadChunkResponse struct {
	UploadID       string `json:"upload_id"`
	ChunkIndex     int    `json:"chunk_index"`
	ChunksReceived int    `json:"chunks_received"`
	TotalChunks    int    `json:"total_chunks"`
	Complete       bool   `json:"complete"`
}

// UploadCompleteRequest finalizes a chunked upload session
type UploadCompleteRequest struct {
	UploadID string `json:"upload_id"`
}

// UploadCompleteResponse carries the stored file reference
type UploadCompleteResponse struct {
	FileID      string `json:"file_id"`
	WebViewLink string `json:"web_view_link"`
}

// UploadCompleteErrorResponse reports missing chunks on a failed complete
type UploadCompleteErrorResponse struct {
	Error         string `json:"error"`
	MissingChunks []int  `json:"missing_chunks,omitempty"`
}

// UploadStatusResponse reports session progress for resumable clients
type UploadStatusResponse struct {
	UploadID       string    `json:"upload_id"`
	Filename       string    `json:"filename"`
	ChunksReceived int       `json:"chunks_received"`
	TotalChunks    int       `json:"total_chunks"`
	ReceivedBytes  int64     `json:"received_bytes"`
	ReceivedChunks []int     `json:"received_chunks,omitempty"`
	MissingChunks  []int     `json:"missing_chunks,omitempty"`
	Complete       bool      `json:"complete"`
	ExpiresAt      time.Time `json:"expires_at"`
	FileID         *string   `json:"file_id,omitempty"`
}

// SingleUploadResponse is returned by the single-request upload path
type SingleUploadResponse struct {
	UploadID    string `json:"uploadId"`
	FileID      string `json:"file_id"`
	WebViewLink string `json:"web_view_link"`
}

// PublicConfig is the server-advertised upload policy surface
type PublicConfig struct {
	MaxFileSize       int64 `json:"max_file_size"`
	SingleUploadLimit int64 `json:"single_upload_limit"`
	ChunkSize         int64 `json:"chunk_size"`
	ChunkTimeoutSec   int   `json:"chunk_timeout_sec"`
	FileTimeoutSec    int   `json:"file_timeout_sec"`
}
