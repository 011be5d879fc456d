package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = time.Minute

// Default rate limiting for the /v1 API, per owner
const DefaultRateLimitPerMin = 60

// EncryptionKeyFile is created inside DATA_DIR with mode 0600.
const EncryptionKeyFile = ".encryption_key"

// Runner shutdown grace period
const RunnerStopTimeout = 10 * time.Second

// EnqueueTimeout bounds how long an API request waits for a free queue slot
const EnqueueTimeout = 2 * time.Second
