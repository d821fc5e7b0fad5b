// Package config loads Taskcast's process-wide configuration from the environment, following the
// same getEnvOrDefault/parseDuration/Validate shape as the teacher's database config loader.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// StoreBackend selects the ShortTermStore implementation.
type StoreBackend string

const (
	StoreBackendMemory StoreBackend = "memory"
	StoreBackendRedis  StoreBackend = "redis"
)

// LongTermBackend selects the LongTermStore implementation.
type LongTermBackend string

const (
	LongTermBackendNone     LongTermBackend = "none"
	LongTermBackendPostgres LongTermBackend = "postgres"
)

// AuthMode selects the authorization adapter.
type AuthMode string

const (
	AuthModeNone  AuthMode = "none"
	AuthModeToken AuthMode = "jwt"
)

// Config is the full set of env-derived settings needed to bootstrap a Taskcast process.
type Config struct {
	HTTPPort int

	StoreBackend StoreBackend
	RedisURL     string
	RedisPrefix  string

	LongTermBackend LongTermBackend
	PostgresDSN     string
	PostgresPrefix  string

	AuthMode     AuthMode
	JWTAlgorithm string
	JWTSecret    string
	JWTPublicKey string // PEM-encoded RSA public key content, read from TASKCAST_JWT_PUBLIC_KEY_PATH
	JWTIssuer    string
	JWTAudience  string

	DefaultTTLSeconds int64

	CleanupInterval time.Duration
}

// LoadFromEnv reads Config from the process environment, applying Taskcast's documented defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		HTTPPort:          getEnvIntOrDefault("TASKCAST_HTTP_PORT", 8080),
		StoreBackend:      StoreBackend(getEnvOrDefault("TASKCAST_STORE_BACKEND", string(StoreBackendMemory))),
		RedisURL:          os.Getenv("TASKCAST_REDIS_URL"),
		RedisPrefix:       getEnvOrDefault("TASKCAST_REDIS_PREFIX", "taskcast"),
		LongTermBackend:   LongTermBackend(getEnvOrDefault("TASKCAST_LONG_TERM_BACKEND", string(LongTermBackendNone))),
		PostgresDSN:       os.Getenv("TASKCAST_PG_DSN"),
		PostgresPrefix:    getEnvOrDefault("TASKCAST_PG_PREFIX", "taskcast"),
		AuthMode:          AuthMode(getEnvOrDefault("TASKCAST_AUTH_MODE", string(AuthModeNone))),
		JWTAlgorithm:      getEnvOrDefault("TASKCAST_JWT_ALGORITHM", "HS256"),
		JWTSecret:         os.Getenv("TASKCAST_JWT_SECRET"),
		JWTIssuer:         os.Getenv("TASKCAST_JWT_ISSUER"),
		JWTAudience:       os.Getenv("TASKCAST_JWT_AUDIENCE"),
		DefaultTTLSeconds: getEnvInt64OrDefault("TASKCAST_DEFAULT_TTL_SECONDS", 0),
	}

	intervalSeconds := getEnvIntOrDefault("TASKCAST_CLEANUP_INTERVAL_SECONDS", 60)
	cfg.CleanupInterval = time.Duration(intervalSeconds) * time.Second

	if path := os.Getenv("TASKCAST_JWT_PUBLIC_KEY_PATH"); path != "" {
		key, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading TASKCAST_JWT_PUBLIC_KEY_PATH: %w", err)
		}
		cfg.JWTPublicKey = string(key)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the combination of settings is internally consistent.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("config: invalid TASKCAST_HTTP_PORT %d", c.HTTPPort)
	}
	switch c.StoreBackend {
	case StoreBackendMemory, StoreBackendRedis:
	default:
		return fmt.Errorf("config: unknown TASKCAST_STORE_BACKEND %q", c.StoreBackend)
	}
	if c.StoreBackend == StoreBackendRedis && c.RedisURL == "" {
		return fmt.Errorf("config: TASKCAST_REDIS_URL required when TASKCAST_STORE_BACKEND=redis")
	}
	switch c.LongTermBackend {
	case LongTermBackendNone, LongTermBackendPostgres:
	default:
		return fmt.Errorf("config: unknown TASKCAST_LONG_TERM_BACKEND %q", c.LongTermBackend)
	}
	if c.LongTermBackend == LongTermBackendPostgres && c.PostgresDSN == "" {
		return fmt.Errorf("config: TASKCAST_PG_DSN required when TASKCAST_LONG_TERM_BACKEND=postgres")
	}
	switch c.AuthMode {
	case AuthModeNone, AuthModeToken:
	default:
		return fmt.Errorf("config: unknown TASKCAST_AUTH_MODE %q", c.AuthMode)
	}
	if c.AuthMode == AuthModeToken {
		switch c.JWTAlgorithm {
		case "HS256":
			if c.JWTSecret == "" {
				return fmt.Errorf("config: TASKCAST_JWT_SECRET required when TASKCAST_JWT_ALGORITHM=HS256")
			}
		case "RS256":
			if c.JWTPublicKey == "" {
				return fmt.Errorf("config: TASKCAST_JWT_PUBLIC_KEY_PATH required when TASKCAST_JWT_ALGORITHM=RS256")
			}
		default:
			return fmt.Errorf("config: unknown TASKCAST_JWT_ALGORITHM %q", c.JWTAlgorithm)
		}
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("config: TASKCAST_CLEANUP_INTERVAL_SECONDS must be positive")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvInt64OrDefault(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}
