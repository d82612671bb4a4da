package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage drivers for the cache and the rate limiter.
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Identity resolver modes.
const (
	IdentityRemote = "remote"
	IdentityJWT    = "jwt"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr      string        `env:"SERVER_ADDR" envDefault:"0.0.0.0"`
	ServerPort      int           `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxRequestBody  int64         `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Identity
	BackendURL      string        `env:"BACKEND_URL,required,notEmpty"`
	BackendAnonKey  string        `env:"BACKEND_ANON_KEY,required,notEmpty"`
	IdentityMode    string        `env:"IDENTITY_MODE" envDefault:"remote"`
	IdentityTimeout time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"10s"`
	JWTSecret       string        `env:"JWT_SECRET"`
	JWTIssuer       string        `env:"JWT_ISSUER"`

	// Database
	DatabaseURL       string        `env:"DATABASE_URL,required,notEmpty"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBRetryAttempts   int           `env:"DB_RETRY_ATTEMPTS" envDefault:"3"`
	DBRetryInterval   time.Duration `env:"DB_RETRY_INTERVAL" envDefault:"2s"`
	AutoMigrate       bool          `env:"AUTO_MIGRATE" envDefault:"true"`

	// Redis
	RedisURL            string        `env:"REDIS_URL"`
	RedisRetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RedisRetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"2s"`
	RedisConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`

	// Tenant context
	RateLimitDriver string        `env:"RATE_LIMIT_DRIVER" envDefault:"postgres"`
	RateLimit       int           `env:"RATE_LIMIT" envDefault:"1000"`
	RateWindow      time.Duration `env:"RATE_WINDOW" envDefault:"60m"`
	CacheDriver     string        `env:"CACHE_DRIVER" envDefault:"postgres"`
	CacheTTL        time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"10m"`

	// HTTP edge
	CORS        CORSConfig
	IPRateLimit IPRateLimitConfig

	// Assistant
	Assistant AssistantConfig

	// Tracing
	TracingEnabled bool `env:"TRACING_ENABLED" envDefault:"false"`
}

// CORSConfig holds the headers added to every response.
type CORSConfig struct {
	AllowOrigin  string `env:"CORS_ALLOW_ORIGIN" envDefault:"*"`
	AllowHeaders string `env:"CORS_ALLOW_HEADERS" envDefault:"authorization, x-client-info, apikey, content-type"`
}

// IPRateLimitConfig holds the per-IP throttle applied in front of the
// per-tenant limits.
type IPRateLimitConfig struct {
	Enabled           bool          `env:"IP_RATE_LIMIT_ENABLED" envDefault:"true"`
	TenantRequests    int           `env:"IP_RATE_LIMIT_TENANT_REQUESTS" envDefault:"300"`
	TenantWindow      time.Duration `env:"IP_RATE_LIMIT_TENANT_WINDOW" envDefault:"1m"`
	AssistantRequests int           `env:"IP_RATE_LIMIT_ASSISTANT_REQUESTS" envDefault:"30"`
	AssistantWindow   time.Duration `env:"IP_RATE_LIMIT_ASSISTANT_WINDOW" envDefault:"1m"`
}

// AssistantConfig configures the chat proxy. The route is disabled when
// APIKey is empty.
type AssistantConfig struct {
	APIKey       string        `env:"ASSISTANT_API_KEY"`
	BaseURL      string        `env:"ASSISTANT_BASE_URL" envDefault:"https://api.openai.com/v1"`
	Model        string        `env:"ASSISTANT_MODEL" envDefault:"gpt-4o-mini"`
	SystemPrompt string        `env:"ASSISTANT_SYSTEM_PROMPT" envDefault:"You are a helpful assistant for the agency platform. Answer concisely."`
	MaxTokens    int           `env:"ASSISTANT_MAX_TOKENS" envDefault:"1024"`
	Timeout      time.Duration `env:"ASSISTANT_TIMEOUT" envDefault:"60s"`
	RateLimit    int           `env:"ASSISTANT_RATE_LIMIT" envDefault:"100"`
	RateWindow   time.Duration `env:"ASSISTANT_RATE_WINDOW" envDefault:"60m"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.IdentityMode != IdentityRemote && c.IdentityMode != IdentityJWT {
		errs = append(errs, fmt.Errorf("IDENTITY_MODE must be %q or %q, got %q", IdentityRemote, IdentityJWT, c.IdentityMode))
	}
	if c.IdentityMode == IdentityJWT && c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required when IDENTITY_MODE=jwt"))
	}

	for name, driver := range map[string]string{
		"RATE_LIMIT_DRIVER": c.RateLimitDriver,
		"CACHE_DRIVER":      c.CacheDriver,
	} {
		switch driver {
		case DriverPostgres, DriverMemory:
		case DriverRedis:
			if c.RedisURL == "" {
				errs = append(errs, fmt.Errorf("REDIS_URL is required when %s=redis", name))
			}
		default:
			errs = append(errs, fmt.Errorf("%s must be one of postgres, redis, memory, got %q", name, driver))
		}
	}

	if c.RateLimit <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT must be positive"))
	}
	if c.RateWindow <= 0 {
		errs = append(errs, errors.New("RATE_WINDOW must be positive"))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be positive"))
	}
	if c.HasAssistant() && (c.Assistant.RateLimit <= 0 || c.Assistant.RateWindow <= 0) {
		errs = append(errs, errors.New("ASSISTANT_RATE_LIMIT and ASSISTANT_RATE_WINDOW must be positive"))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServerAddr, c.ServerPort)
}

// UsesRedis returns true if either store is backed by redis.
func (c *Config) UsesRedis() bool {
	return c.RateLimitDriver == DriverRedis || c.CacheDriver == DriverRedis
}

// HasAssistant returns true if the chat proxy is configured.
func (c *Config) HasAssistant() bool {
	return c.Assistant.APIKey != ""
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
