package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App         AppConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Logger      LoggerConfig
	Auth        AuthConfig
	Pipeline    PipelineConfig
	Outbox      OutboxConfig
	RateLimit   RateLimitConfig
	Idempotency IdempotencyConfig
	Cache       CacheConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// PipelineConfig bounds the concurrency coordinator.
type PipelineConfig struct {
	MaxAttempts int
	BaseDelayMS int
}

// OutboxConfig controls the relay loop.
type OutboxConfig struct {
	PollIntervalSeconds int
	BatchSize           int
	RetryCeiling        int
}

// RateLimitConfig holds per-operation-class sliding window limits.
type RateLimitConfig struct {
	WriteMax            int
	WriteWindowSeconds  int
	SubmitMax           int
	SubmitWindowSeconds int
}

// IdempotencyConfig controls replay-entry expiry.
type IdempotencyConfig struct {
	TTLHours int
}

// CacheConfig controls the read cache.
type CacheConfig struct {
	TTLSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticketd"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Pipeline: PipelineConfig{
			MaxAttempts: getEnvAsInt("PIPELINE_MAX_ATTEMPTS", 3),
			BaseDelayMS: getEnvAsInt("PIPELINE_RETRY_BASE_DELAY_MS", 50),
		},
		Outbox: OutboxConfig{
			PollIntervalSeconds: getEnvAsInt("OUTBOX_POLL_INTERVAL_SECONDS", 5),
			BatchSize:           getEnvAsInt("OUTBOX_BATCH_SIZE", 100),
			RetryCeiling:        getEnvAsInt("OUTBOX_RETRY_CEILING", 5),
		},
		RateLimit: RateLimitConfig{
			WriteMax:            getEnvAsInt("RATE_LIMIT_WRITE_MAX", 30),
			WriteWindowSeconds:  getEnvAsInt("RATE_LIMIT_WRITE_WINDOW_SECONDS", 60),
			SubmitMax:           getEnvAsInt("RATE_LIMIT_SUBMIT_MAX", 10),
			SubmitWindowSeconds: getEnvAsInt("RATE_LIMIT_SUBMIT_WINDOW_SECONDS", 300),
		},
		Idempotency: IdempotencyConfig{
			TTLHours: getEnvAsInt("IDEMPOTENCY_TTL_HOURS", 24),
		},
		Cache: CacheConfig{
			TTLSeconds: getEnvAsInt("CACHE_TTL_SECONDS", 120),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// BaseDelay returns the first-retry backoff delay.
func (p PipelineConfig) BaseDelay() time.Duration {
	if p.BaseDelayMS <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(p.BaseDelayMS) * time.Millisecond
}

// PollInterval returns the relay poll cadence.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(o.PollIntervalSeconds) * time.Second
}

// TTL returns the idempotency-entry lifetime.
func (i IdempotencyConfig) TTL() time.Duration {
	if i.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(i.TTLHours) * time.Hour
}

// TTL returns the read-cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
