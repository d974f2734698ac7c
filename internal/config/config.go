package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// HostingTier identifies the deployment environment. The tier decides the
// single-request upload ceiling: hosted plans sit behind proxies with small
// request caps, local deployments do not.
type HostingTier string

const (
	TierLocal    HostingTier = "local"
	TierStandard HostingTier = "standard"
	TierPremium  HostingTier = "premium"
)

// Single-request upload ceilings per hosting tier.
const (
	localSingleUploadLimit    = 100 * 1024 * 1024
	standardSingleUploadLimit = 4 * 1024 * 1024
	premiumSingleUploadLimit  = 25 * 1024 * 1024
)

// Config holds all application configuration
type Config struct {
	Port      string
	PublicURL string // Optional: override auto-detected URL for reverse proxy setups

	// Database. DatabaseURL selects postgres when set, otherwise sqlite at DBPath.
	DatabaseURL string
	DBPath      string

	// Blob storage. StorageBackend is "filesystem" or "s3".
	StorageBackend string
	UploadDir      string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string // Optional: S3-compatible stores (MinIO)
	S3PathStyle    bool

	// Upload limits.
	Tier              HostingTier
	MaxFileSize       int64 // Hard cap on any upload, chunked or not
	SingleUploadLimit int64 // Tier-derived; a request above this must chunk
	ChunkSize         int64
	MaxChunksPerFile  int

	// Timeouts and maintenance, all minutes unless named otherwise.
	ChunkTimeoutSeconds    int
	FileTimeoutSeconds     int
	SessionExpiryHours     int
	CleanupIntervalMinutes int

	// Provisioning.
	ProvisioningLockTTLSeconds     int
	ProvisioningLockTimeoutSeconds int
	IdempotencyTTLMinutes          int
	EnsureIntervalMinutes          int
	HealthCheckIntervalMinutes     int

	// OAuth app credentials used by the storage-account health checker.
	GoogleClientID      string
	GoogleClientSecret  string
	DropboxClientID     string
	DropboxClientSecret string
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	tier := HostingTier(strings.ToLower(getEnv("DEPLOY_TIER", string(TierLocal))))

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		PublicURL: getEnv("PUBLIC_URL", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBPath:      getEnv("DB_PATH", "./portalfile.db"),

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", "filesystem")),
		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		S3Bucket:       getEnv("S3_BUCKET", ""),
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3PathStyle:    getEnvBool("S3_PATH_STYLE", false),

		Tier:              tier,
		MaxFileSize:       getEnvInt64("MAX_FILE_SIZE", 5*1024*1024*1024), // 5GB default
		SingleUploadLimit: getEnvInt64("SINGLE_UPLOAD_LIMIT", singleUploadLimitForTier(tier)),
		ChunkSize:         getEnvInt64("CHUNK_SIZE", 2*1024*1024), // 2MB default
		MaxChunksPerFile:  getEnvInt("MAX_CHUNKS_PER_FILE", 10000),

		ChunkTimeoutSeconds:    getEnvInt("CHUNK_TIMEOUT_SECONDS", 90),
		FileTimeoutSeconds:     getEnvInt("FILE_TIMEOUT_SECONDS", 600),
		SessionExpiryHours:     getEnvInt("SESSION_EXPIRY_HOURS", 24),
		CleanupIntervalMinutes: getEnvInt("CLEANUP_INTERVAL_MINUTES", 60),

		ProvisioningLockTTLSeconds:     getEnvInt("PROVISIONING_LOCK_TTL_SECONDS", 30),
		ProvisioningLockTimeoutSeconds: getEnvInt("PROVISIONING_LOCK_TIMEOUT_SECONDS", 10),
		IdempotencyTTLMinutes:          getEnvInt("IDEMPOTENCY_TTL_MINUTES", 5),
		EnsureIntervalMinutes:          getEnvInt("ENSURE_INTERVAL_MINUTES", 360),
		HealthCheckIntervalMinutes:     getEnvInt("HEALTH_CHECK_INTERVAL_MINUTES", 30),

		GoogleClientID:      getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:  getEnv("GOOGLE_CLIENT_SECRET", ""),
		DropboxClientID:     getEnv("DROPBOX_CLIENT_ID", ""),
		DropboxClientSecret: getEnv("DROPBOX_CLIENT_SECRET", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func singleUploadLimitForTier(tier HostingTier) int64 {
	switch tier {
	case TierStandard:
		return standardSingleUploadLimit
	case TierPremium:
		return premiumSingleUploadLimit
	default:
		return localSingleUploadLimit
	}
}

// validate ensures configuration values are sensible
func (c *Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	switch c.Tier {
	case TierLocal, TierStandard, TierPremium:
	default:
		return fmt.Errorf("DEPLOY_TIER must be one of local, standard, premium, got %q", c.Tier)
	}

	if c.DatabaseURL == "" && c.DBPath == "" {
		return fmt.Errorf("either DATABASE_URL or DB_PATH must be set")
	}

	switch c.StorageBackend {
	case "filesystem":
		if c.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR cannot be empty with the filesystem backend")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET must be set with the s3 backend")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be filesystem or s3, got %q", c.StorageBackend)
	}

	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize)
	}

	if c.SingleUploadLimit <= 0 {
		return fmt.Errorf("SINGLE_UPLOAD_LIMIT must be positive, got %d", c.SingleUploadLimit)
	}

	if c.SingleUploadLimit > c.MaxFileSize {
		return fmt.Errorf("SINGLE_UPLOAD_LIMIT (%d) cannot exceed MAX_FILE_SIZE (%d)", c.SingleUploadLimit, c.MaxFileSize)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}

	if c.MaxChunksPerFile <= 0 {
		return fmt.Errorf("MAX_CHUNKS_PER_FILE must be positive, got %d", c.MaxChunksPerFile)
	}

	if c.ChunkTimeoutSeconds <= 0 {
		return fmt.Errorf("CHUNK_TIMEOUT_SECONDS must be positive, got %d", c.ChunkTimeoutSeconds)
	}

	if c.FileTimeoutSeconds <= 0 {
		return fmt.Errorf("FILE_TIMEOUT_SECONDS must be positive, got %d", c.FileTimeoutSeconds)
	}

	if c.SessionExpiryHours <= 0 {
		return fmt.Errorf("SESSION_EXPIRY_HOURS must be positive, got %d", c.SessionExpiryHours)
	}

	if c.CleanupIntervalMinutes <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL_MINUTES must be positive, got %d", c.CleanupIntervalMinutes)
	}

	if c.ProvisioningLockTTLSeconds <= 0 {
		return fmt.Errorf("PROVISIONING_LOCK_TTL_SECONDS must be positive, got %d", c.ProvisioningLockTTLSeconds)
	}

	if c.ProvisioningLockTimeoutSeconds <= 0 {
		return fmt.Errorf("PROVISIONING_LOCK_TIMEOUT_SECONDS must be positive, got %d", c.ProvisioningLockTimeoutSeconds)
	}

	if c.IdempotencyTTLMinutes <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL_MINUTES must be positive, got %d", c.IdempotencyTTLMinutes)
	}

	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvInt64 retrieves an int64 environment variable or returns a default value
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
