// Package metrics defines the Prometheus instrumentation for PortalFile.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counter metrics (monotonically increasing)
var (
	// UploadsTotal counts single-request uploads by status (success, failure)
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalfile_uploads_total",
			Help: "Total number of single-request file uploads",
		},
		[]string{"status"},
	)

	// ChunkedSessionsTotal counts chunked upload session initiations
	ChunkedSessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portalfile_chunked_sessions_total",
			Help: "Total number of chunked upload sessions initiated",
		},
	)

	// ChunkedSessionsCompletedTotal counts completed chunked uploads
	ChunkedSessionsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portalfile_chunked_sessions_completed_total",
			Help: "Total number of chunked upload sessions completed",
		},
	)

	// ChunksReceivedTotal counts individual chunks accepted
	ChunksReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portalfile_chunks_received_total",
			Help: "Total number of file chunks accepted",
		},
	)

	// SessionsExpiredTotal counts abandoned sessions garbage-collected
	SessionsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portalfile_sessions_expired_total",
			Help: "Total number of abandoned upload sessions cleaned up",
		},
	)

	// ProvisioningTotal counts provisioning calls by outcome
	// (CREATED, EXISTING_ACTIVE, EXISTING_DISCONNECTED, REACTIVATED, CACHED, FAILED)
	ProvisioningTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalfile_provisioning_total",
			Help: "Total number of storage account provisioning calls by outcome",
		},
		[]string{"outcome"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalfile_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ErrorsTotal counts application errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalfile_errors_total",
			Help: "Total number of application errors",
		},
		[]string{"type"},
	)
)

// Histogram metrics (distributions)
var (
	// HTTPRequestDuration tracks HTTP request latency by method and path
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portalfile_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	// UploadSizeBytes tracks the size distribution of completed uploads
	UploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "portalfile_upload_size_bytes",
			Help:    "Size distribution of completed uploads in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 10),
		},
	)

	// AssemblyDuration tracks chunk assembly latency
	AssemblyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "portalfile_assembly_duration_seconds",
			Help:    "Chunk assembly latency in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
		},
	)
)
