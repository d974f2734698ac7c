package config

import (
	"testing"
)

// clearPortalEnv unsets every variable Load reads so tests are hermetic.
func clearPortalEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"PORT", "PUBLIC_URL", "DATABASE_URL", "DB_PATH",
		"STORAGE_BACKEND", "UPLOAD_DIR", "S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "S3_PATH_STYLE",
		"DEPLOY_TIER", "MAX_FILE_SIZE", "SINGLE_UPLOAD_LIMIT", "CHUNK_SIZE", "MAX_CHUNKS_PER_FILE",
		"CHUNK_TIMEOUT_SECONDS", "FILE_TIMEOUT_SECONDS", "SESSION_EXPIRY_HOURS", "CLEANUP_INTERVAL_MINUTES",
		"PROVISIONING_LOCK_TTL_SECONDS", "PROVISIONING_LOCK_TIMEOUT_SECONDS",
		"IDEMPOTENCY_TTL_MINUTES", "ENSURE_INTERVAL_MINUTES", "HEALTH_CHECK_INTERVAL_MINUTES",
	}
	for _, v := range vars {
		t.Setenv(v, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearPortalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Tier != TierLocal {
		t.Errorf("Tier = %q, want local", cfg.Tier)
	}
	if cfg.SingleUploadLimit != 100*1024*1024 {
		t.Errorf("SingleUploadLimit = %d, want 100MB", cfg.SingleUploadLimit)
	}
	if cfg.ChunkSize != 2*1024*1024 {
		t.Errorf("ChunkSize = %d, want 2MB", cfg.ChunkSize)
	}
	if cfg.StorageBackend != "filesystem" {
		t.Errorf("StorageBackend = %q, want filesystem", cfg.StorageBackend)
	}
	if cfg.MaxChunksPerFile != 10000 {
		t.Errorf("MaxChunksPerFile = %d, want 10000", cfg.MaxChunksPerFile)
	}
}

func TestLoadTierCeilings(t *testing.T) {
	tests := []struct {
		tier string
		want int64
	}{
		{"local", 100 * 1024 * 1024},
		{"standard", 4 * 1024 * 1024},
		{"premium", 25 * 1024 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.tier, func(t *testing.T) {
			clearPortalEnv(t)
			t.Setenv("DEPLOY_TIER", tt.tier)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if cfg.SingleUploadLimit != tt.want {
				t.Errorf("SingleUploadLimit = %d, want %d", cfg.SingleUploadLimit, tt.want)
			}
		})
	}
}

func TestLoadInvalidTier(t *testing.T) {
	clearPortalEnv(t)
	t.Setenv("DEPLOY_TIER", "enterprise")

	if _, err := Load(); err == nil {
		t.Error("Load() should reject an unknown tier")
	}
}

func TestLoadExplicitLimitOverridesTier(t *testing.T) {
	clearPortalEnv(t)
	t.Setenv("DEPLOY_TIER", "standard")
	t.Setenv("SINGLE_UPLOAD_LIMIT", "8388608")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.SingleUploadLimit != 8*1024*1024 {
		t.Errorf("SingleUploadLimit = %d, want explicit 8MB", cfg.SingleUploadLimit)
	}
}

func TestLoadSingleLimitAboveMax(t *testing.T) {
	clearPortalEnv(t)
	t.Setenv("MAX_FILE_SIZE", "1048576")

	if _, err := Load(); err == nil {
		t.Error("Load() should reject SINGLE_UPLOAD_LIMIT above MAX_FILE_SIZE")
	}
}

func TestLoadS3BackendRequiresBucket(t *testing.T) {
	clearPortalEnv(t)
	t.Setenv("STORAGE_BACKEND", "s3")

	if _, err := Load(); err == nil {
		t.Error("Load() should reject the s3 backend without S3_BUCKET")
	}

	t.Setenv("S3_BUCKET", "portalfile-uploads")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.S3Bucket != "portalfile-uploads" {
		t.Errorf("S3Bucket = %q, want portalfile-uploads", cfg.S3Bucket)
	}
}

func TestLoadUnknownStorageBackend(t *testing.T) {
	clearPortalEnv(t)
	t.Setenv("STORAGE_BACKEND", "tape")

	if _, err := Load(); err == nil {
		t.Error("Load() should reject an unknown storage backend")
	}
}

func TestLoadNegativeChunkSize(t *testing.T) {
	clearPortalEnv(t)
	t.Setenv("CHUNK_SIZE", "-1")

	if _, err := Load(); err == nil {
		t.Error("Load() should reject a negative chunk size")
	}
}
