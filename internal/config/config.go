package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultJWTSecret is only suitable for local development.
const DefaultJWTSecret = "dev-secret-change-me"

// Config holds the application configuration. It is built once at startup
// and passed by pointer to the components that need it.
type Config struct {
	ServerPort   int
	DatabasePath string
	JWTSecret    string
	// JWTSecretDefaulted is true when JWT_SECRET was not provided.
	JWTSecretDefaulted bool
	TokenTTL           time.Duration

	LogLevel  string
	LogPretty bool

	CORSAllowedOrigins []string

	OutboxSweepSchedule string
	OutboxMaxAttempts   int
	OutboxRetryBackoff  time.Duration

	RedisAddress  string
	RedisPassword string
	RedisDB       int

	AuthRateLimit float64
	AuthRateBurst int
}

// Load loads configuration from an optional .env file, an optional
// config.yaml and environment variables, falling back to defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetDefault("port", 4000)
	v.SetDefault("database_url", "./chirp.db")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_ttl", 7*24*time.Hour)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", true)
	v.SetDefault("cors_allowed_origins", "http://localhost:3000")
	v.SetDefault("outbox_sweep_schedule", "@every 5s")
	v.SetDefault("outbox_max_attempts", 5)
	v.SetDefault("outbox_retry_backoff", 5*time.Second)
	v.SetDefault("redis_address", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("auth_rate_limit", 5.0)
	v.SetDefault("auth_rate_burst", 10)

	// Keys are spelled like their environment variables, lower-cased.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		ServerPort:          v.GetInt("port"),
		DatabasePath:        v.GetString("database_url"),
		JWTSecret:           v.GetString("jwt_secret"),
		TokenTTL:            v.GetDuration("token_ttl"),
		LogLevel:            v.GetString("log_level"),
		LogPretty:           v.GetBool("log_pretty"),
		CORSAllowedOrigins:  splitList(v.GetString("cors_allowed_origins")),
		OutboxSweepSchedule: v.GetString("outbox_sweep_schedule"),
		OutboxMaxAttempts:   v.GetInt("outbox_max_attempts"),
		OutboxRetryBackoff:  v.GetDuration("outbox_retry_backoff"),
		RedisAddress:        v.GetString("redis_address"),
		RedisPassword:       v.GetString("redis_password"),
		RedisDB:             v.GetInt("redis_db"),
		AuthRateLimit:       v.GetFloat64("auth_rate_limit"),
		AuthRateBurst:       v.GetInt("auth_rate_burst"),
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = DefaultJWTSecret
		cfg.JWTSecretDefaulted = true
	}
	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.ServerPort)
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("invalid token ttl %s", cfg.TokenTTL)
	}
	if cfg.OutboxMaxAttempts <= 0 {
		return nil, fmt.Errorf("invalid outbox max attempts %d", cfg.OutboxMaxAttempts)
	}
	if cfg.OutboxRetryBackoff <= 0 {
		return nil, fmt.Errorf("invalid outbox retry backoff %s", cfg.OutboxRetryBackoff)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
