package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/portalfile/portalfile/internal/config"
	"github.com/portalfile/portalfile/internal/handlers"
	"github.com/portalfile/portalfile/internal/metrics"
	"github.com/portalfile/portalfile/internal/provisioning"
	"github.com/portalfile/portalfile/internal/repository"
	"github.com/portalfile/portalfile/internal/repository/memory"
	"github.com/portalfile/portalfile/internal/repository/postgres"
	"github.com/portalfile/portalfile/internal/repository/sqlite"
	"github.com/portalfile/portalfile/internal/storage"
	"github.com/portalfile/portalfile/internal/storage/filesystem"
	"github.com/portalfile/portalfile/internal/storage/s3"
	"github.com/portalfile/portalfile/internal/utils"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting portalfile",
		"port", cfg.Port,
		"tier", cfg.Tier,
		"single_upload_limit", cfg.SingleUploadLimit,
		"chunk_size", cfg.ChunkSize,
		"storage_backend", cfg.StorageBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize the database: postgres when DATABASE_URL is set, sqlite otherwise
	repos, closeDB, err := openRepositories(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer closeDB()

	// Blob backend
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize storage backend", "error", err)
		os.Exit(1)
	}

	// Create upload directory if it doesn't exist
	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		slog.Error("failed to create upload directory", "error", err)
		os.Exit(1)
	}

	// Provisioning manager with the in-process idempotency cache
	cache := memory.NewIdempotencyStore[provisioning.ProvisionResult](
		time.Duration(cfg.IdempotencyTTLMinutes) * time.Minute)
	manager := provisioning.NewManager(repos.Provisioning, repos.Locks, repos.Users, cache,
		provisioning.WithLockBounds(
			time.Duration(cfg.ProvisioningLockTTLSeconds)*time.Second,
			time.Duration(cfg.ProvisioningLockTimeoutSeconds)*time.Second,
		))

	checker := provisioning.NewHealthChecker(repos.Provisioning, providerCredentials(cfg), 100)

	// Background workers
	go utils.StartLockCleanupWorker(ctx, repos.Locks, 5*time.Minute)
	go utils.StartSessionCleanupWorker(ctx, repos.Sessions, repos.Locks,
		cfg.UploadDir, cfg.SessionExpiryHours, cfg.CleanupIntervalMinutes)
	go provisioning.StartEnsureWorker(ctx, manager,
		time.Duration(cfg.EnsureIntervalMinutes)*time.Minute, 500)
	go provisioning.StartHealthCheckWorker(ctx, checker,
		time.Duration(cfg.HealthCheckIntervalMinutes)*time.Minute)

	// HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("/api/upload", handlers.UploadHandler(backend, cfg))
	mux.HandleFunc("/api/upload/chunked/init", handlers.UploadInitHandler(repos.Sessions, cfg))
	mux.HandleFunc("/api/upload/chunked/chunk", handlers.UploadChunkHandler(repos.Sessions, cfg))
	mux.HandleFunc("/api/upload/chunked/complete", handlers.UploadCompleteHandler(repos.Sessions, repos.Locks, backend, cfg))
	mux.HandleFunc("/api/upload/chunked/status", handlers.UploadStatusHandler(repos.Sessions, cfg))
	mux.HandleFunc("/api/config", handlers.ConfigHandler(cfg))
	mux.HandleFunc("/api/health", handlers.HealthHandler())
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           metrics.Middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		slog.Error("server error", "error", err)
		os.Exit(1)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
		server.Close()
	}
	slog.Info("portalfile stopped")
}

// openRepositories selects the database backend from configuration.
func openRepositories(ctx context.Context, cfg *config.Config) (*repository.Repositories, func(), error) {
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, 10)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		slog.Info("database initialized", "backend", "postgres")
		return postgres.NewRepositories(pool), pool.Close, nil
	}

	db, err := sqlite.Initialize(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	repos, err := sqlite.NewRepositories(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	slog.Info("database initialized", "backend", "sqlite", "path", cfg.DBPath)
	return repos, func() { db.Close() }, nil
}

// openBackend selects the blob backend from configuration.
func openBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	if cfg.StorageBackend == "s3" {
		backend, err := s3.New(ctx, s3.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("storage backend ready", "backend", "s3", "bucket", cfg.S3Bucket)
		return backend, nil
	}

	backend, err := filesystem.New(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	slog.Info("storage backend ready", "backend", "filesystem", "dir", cfg.UploadDir)
	return backend, nil
}

// providerCredentials collects the configured OAuth app credentials per
// provider; unconfigured providers are skipped by the health checker.
func providerCredentials(cfg *config.Config) map[string]provisioning.ProviderCredentials {
	creds := make(map[string]provisioning.ProviderCredentials)
	if cfg.GoogleClientID != "" {
		creds[provisioning.ProviderGoogleDrive] = provisioning.ProviderCredentials{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
		}
	}
	if cfg.DropboxClientID != "" {
		creds[provisioning.ProviderDropbox] = provisioning.ProviderCredentials{
			ClientID:     cfg.DropboxClientID,
			ClientSecret: cfg.DropboxClientSecret,
		}
	}
	return creds
}
