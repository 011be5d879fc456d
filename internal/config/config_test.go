package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("QRTimeout converts seconds to duration", func(t *testing.T) {
		cfg := &Config{QRTimeoutSeconds: 300}
		assert.Equal(t, 5*time.Minute, cfg.QRTimeout())
	})

	t.Run("AnalysisBackoff converts seconds to duration", func(t *testing.T) {
		cfg := &Config{AnalysisBackoffSeconds: 2}
		assert.Equal(t, 2*time.Second, cfg.AnalysisBackoff())
	})

	t.Run("key and output paths live under DATA_DIR", func(t *testing.T) {
		cfg := &Config{DataDir: "/var/lib/worker"}
		assert.Equal(t, filepath.Join("/var/lib/worker", ".encryption_key"), cfg.EncryptionKeyPath())
		assert.Equal(t, filepath.Join("/var/lib/worker", "users"), cfg.OutputDir())
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RedisURL:            "rediss://localhost:6379",
			QueueCapacity:       100,
			AnalysisMaxAttempts: 3,
			BotToken:            "123:abc",
		}
	}

	t.Run("accepts minimal development config", func(t *testing.T) {
		assert.NoError(t, valid().Validate(false))
	})

	t.Run("rejects non-bcrypt token hash", func(t *testing.T) {
		cfg := valid()
		cfg.APITokenHash = "plaintext"
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("rejects short encryption key", func(t *testing.T) {
		cfg := valid()
		cfg.EncryptionKey = "abcd"
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("requires bot token", func(t *testing.T) {
		cfg := valid()
		cfg.BotToken = ""
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("requires token hash in production", func(t *testing.T) {
		assert.Error(t, valid().Validate(true))

		cfg := valid()
		cfg.APITokenHash = "$2a$12$abcdefghijklmnopqrstuv"
		assert.NoError(t, cfg.Validate(true))
	})
}

func TestLoad(t *testing.T) {
	originalEnv := map[string]string{
		"PORT":                  os.Getenv("PORT"),
		"DATABASE_URL":          os.Getenv("DATABASE_URL"),
		"REDIS_URL":             os.Getenv("REDIS_URL"),
		"QUEUE_CAPACITY":        os.Getenv("QUEUE_CAPACITY"),
		"ANALYSIS_MAX_ATTEMPTS": os.Getenv("ANALYSIS_MAX_ATTEMPTS"),
		"LOG_LEVEL":             os.Getenv("LOG_LEVEL"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Unsetenv("PORT")
		os.Unsetenv("QUEUE_CAPACITY")
		os.Unsetenv("ANALYSIS_MAX_ATTEMPTS")
		os.Unsetenv("LOG_LEVEL")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
		assert.Equal(t, 100, cfg.QueueCapacity)
		assert.Equal(t, 3, cfg.AnalysisMaxAttempts)
		assert.Equal(t, 300, cfg.QRTimeoutSeconds)
		assert.Equal(t, 10000, cfg.DefaultExportLimit)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("loads custom values", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("PORT", "3000")
		os.Setenv("QUEUE_CAPACITY", "5")
		os.Setenv("LOG_LEVEL", "debug")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Port)
		assert.Equal(t, 5, cfg.QueueCapacity)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("fails without required DATABASE_URL", func(t *testing.T) {
		os.Unsetenv("DATABASE_URL")
		os.Setenv("REDIS_URL", "redis://localhost:6379")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("fails without required REDIS_URL", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Unsetenv("REDIS_URL")

		_, err := Load()
		assert.Error(t, err)
	})
}
