package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                   int    `env:"PORT" envDefault:"8080"`
	DatabaseURL            string `env:"DATABASE_URL,required"`
	RedisURL               string `env:"REDIS_URL,required"`
	APITokenHash           string `env:"API_TOKEN_HASH"`
	EncryptionKey          string `env:"ENCRYPTION_KEY"`
	DataDir                string `env:"DATA_DIR" envDefault:"data"`
	QueueCapacity          int    `env:"QUEUE_CAPACITY" envDefault:"100"`
	BotToken               string `env:"BOT_TOKEN"`
	BotAPIURL              string `env:"BOT_API_URL" envDefault:"https://api.telegram.org"`
	GatewayURL             string `env:"GATEWAY_URL" envDefault:"http://localhost:9090"`
	AnalysisAPIURL         string `env:"ANALYSIS_API_URL" envDefault:"https://api.anthropic.com"`
	AnalysisModel          string `env:"ANALYSIS_MODEL" envDefault:"claude-sonnet-4-20250514"`
	AnalysisMaxAttempts    int    `env:"ANALYSIS_MAX_ATTEMPTS" envDefault:"3"`
	AnalysisBackoffSeconds int    `env:"ANALYSIS_BACKOFF_SECONDS" envDefault:"2"`
	AnalysisDelaySeconds   int    `env:"ANALYSIS_DELAY_SECONDS" envDefault:"5"`
	QRTimeoutSeconds       int    `env:"QR_TIMEOUT_SECONDS" envDefault:"300"`
	CodeTimeoutSeconds     int    `env:"CODE_TIMEOUT_SECONDS" envDefault:"300"`
	DefaultExportLimit     int    `env:"DEFAULT_EXPORT_LIMIT" envDefault:"10000"`
	LogLevel               string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) QRTimeout() time.Duration {
	return time.Duration(c.QRTimeoutSeconds) * time.Second
}

func (c *Config) CodeTimeout() time.Duration {
	return time.Duration(c.CodeTimeoutSeconds) * time.Second
}

func (c *Config) AnalysisBackoff() time.Duration {
	return time.Duration(c.AnalysisBackoffSeconds) * time.Second
}

func (c *Config) AnalysisDelay() time.Duration {
	return time.Duration(c.AnalysisDelaySeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// EncryptionKeyPath is where the generated key lives when ENCRYPTION_KEY is unset.
func (c *Config) EncryptionKeyPath() string {
	return filepath.Join(c.DataDir, EncryptionKeyFile)
}

// OutputDir is the root of per-owner report folders.
func (c *Config) OutputDir() string {
	return filepath.Join(c.DataDir, "users")
}

func (c *Config) Validate(isProduction bool) error {
	if c.APITokenHash != "" {
		if !strings.HasPrefix(c.APITokenHash, "$2a$") &&
			!strings.HasPrefix(c.APITokenHash, "$2b$") &&
			!strings.HasPrefix(c.APITokenHash, "$2y$") {
			return fmt.Errorf("API_TOKEN_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <token>)")
		}
	}

	if c.EncryptionKey != "" && len(c.EncryptionKey) != 64 {
		return fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters (generate with: openssl rand -hex 32)")
	}

	if c.QueueCapacity <= 0 {
		return fmt.Errorf("QUEUE_CAPACITY must be positive")
	}

	if c.AnalysisMaxAttempts <= 0 {
		return fmt.Errorf("ANALYSIS_MAX_ATTEMPTS must be positive")
	}

	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required: the task worker cannot notify owners without it")
	}

	if isProduction {
		if c.APITokenHash == "" {
			return fmt.Errorf("API_TOKEN_HASH is required in production")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.EncryptionKey == "" {
			log.Warn().Str("path", c.EncryptionKeyPath()).Msg("ENCRYPTION_KEY is empty in production: using generated key file")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
