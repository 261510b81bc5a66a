package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := fromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.ServerPort)
	assert.Equal(t, "./chirp.db", cfg.DatabasePath)
	assert.Equal(t, DefaultJWTSecret, cfg.JWTSecret)
	assert.True(t, cfg.JWTSecretDefaulted)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "@every 5s", cfg.OutboxSweepSchedule)
	assert.Equal(t, 5, cfg.OutboxMaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.OutboxRetryBackoff)
	assert.Empty(t, cfg.RedisAddress)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "/tmp/test.db")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("REDIS_ADDRESS", "localhost:6379")
	t.Setenv("OUTBOX_RETRY_BACKOFF", "30s")

	cfg, err := fromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.ServerPort)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.False(t, cfg.JWTSecretDefaulted)
	assert.Equal(t, "/tmp/test.db", cfg.DatabasePath)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "localhost:6379", cfg.RedisAddress)
	assert.Equal(t, 30*time.Second, cfg.OutboxRetryBackoff)
}

func TestInvalidPort(t *testing.T) {
	t.Setenv("PORT", "70000")

	_, err := fromViper(viper.New())
	assert.Error(t, err)
}

func TestInvalidOutboxAttempts(t *testing.T) {
	t.Setenv("OUTBOX_MAX_ATTEMPTS", "0")

	_, err := fromViper(viper.New())
	assert.Error(t, err)
}

func TestInvalidOutboxRetryBackoff(t *testing.T) {
	t.Setenv("OUTBOX_RETRY_BACKOFF", "-1s")

	_, err := fromViper(viper.New())
	assert.Error(t, err)
}
