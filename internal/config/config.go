// Package config loads and validates Inkwell configuration from layered
// sources: built-in defaults, an optional YAML file, and environment
// variables (highest priority).
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the generation core.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
	Backend BackendConfig `koanf:"backend"`
	Cache   CacheConfig   `koanf:"cache"`
	Storage StorageConfig `koanf:"storage"`
	Audit   AuditConfig   `koanf:"audit"`
	Auth    AuthConfig    `koanf:"auth"`
	Shared  SharedConfig  `koanf:"shared"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// BackendConfig holds generation backend (Ollama-compatible) settings,
// including the retry policy applied to transient failures.
type BackendConfig struct {
	URL     string        `koanf:"url" validate:"required,url"`
	Model   string        `koanf:"model" validate:"required"`
	Timeout time.Duration `koanf:"timeout"`

	// Retry policy for transient failures. Total resolve latency is bounded
	// by MaxAttempts and CapDelay; keep them aligned with client timeouts.
	MaxAttempts int           `koanf:"max_attempts" validate:"min=1"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	CapDelay    time.Duration `koanf:"cap_delay"`
	Jitter      bool          `koanf:"jitter"`

	// Client-side pacing protects a small local model from bursts.
	// RequestsPerSecond of 0 disables pacing.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// CacheConfig holds generation cache settings.
type CacheConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	MaxEntries    int           `koanf:"max_entries"`
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// Durable persists entries to the BadgerDB storage tier so cached
	// generations survive restarts. Requires storage.enabled.
	Durable bool `koanf:"durable"`
}

// StorageConfig holds the local BadgerDB used by the durable cache tier
// and the audit spill.
type StorageConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// AuditConfig holds audit relay settings.
type AuditConfig struct {
	Enabled     bool          `koanf:"enabled"`
	BufferSize  int           `koanf:"buffer_size" validate:"min=1"`
	MaxAttempts int           `koanf:"max_attempts" validate:"min=1"`
	RetryDelay  time.Duration `koanf:"retry_delay"`
}

// AuthConfig holds authorization gate settings. The remote timeout and
// retry count are deliberately small: authorization fails fast rather
// than degrading gracefully.
type AuthConfig struct {
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// NegativeCacheTTL caches failed validations for a very short window
	// to blunt brute-force retries. 0 disables negative caching (failures
	// are otherwise never cached).
	NegativeCacheTTL time.Duration `koanf:"negative_cache_ttl"`

	Timeout       time.Duration `koanf:"timeout"`
	RetryAttempts int           `koanf:"retry_attempts" validate:"min=1"`
}

// SharedConfig holds the shared identity/logging collaborator endpoint.
type SharedConfig struct {
	URL     string        `koanf:"url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout"`
}

// defaultConfig returns a Config with all sensible default values.
// Defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8085,
			Timeout:         3 * time.Minute, // must exceed the backend retry ceiling
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Backend: BackendConfig{
			URL:               "http://localhost:11434",
			Model:             "llama3",
			Timeout:           60 * time.Second,
			MaxAttempts:       5,
			BaseDelay:         2 * time.Second,
			CapDelay:          30 * time.Second,
			Jitter:            true,
			RequestsPerSecond: 4,
			Burst:             8,
		},
		Cache: CacheConfig{
			TTL:           24 * time.Hour,
			MaxEntries:    10000,
			SweepInterval: 5 * time.Minute,
			Durable:       false,
		},
		Storage: StorageConfig{
			Enabled: false,
			Path:    "/data/inkwell",
		},
		Audit: AuditConfig{
			Enabled:     true,
			BufferSize:  1000,
			MaxAttempts: 3,
			RetryDelay:  time.Second,
		},
		Auth: AuthConfig{
			CacheTTL:         30 * time.Second,
			NegativeCacheTTL: 0,
			Timeout:          3 * time.Second,
			RetryAttempts:    2,
		},
		Shared: SharedConfig{
			URL:     "http://localhost:8000",
			Timeout: 5 * time.Second,
		},
	}
}

// Validate checks structural constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Backend.BaseDelay <= 0 {
		return fmt.Errorf("backend.base_delay must be positive")
	}
	if c.Backend.CapDelay < c.Backend.BaseDelay {
		return fmt.Errorf("backend.cap_delay must be >= backend.base_delay")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if c.Cache.Durable && !c.Storage.Enabled {
		return fmt.Errorf("cache.durable requires storage.enabled")
	}
	if c.Storage.Enabled && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required when storage is enabled")
	}
	if c.Auth.CacheTTL <= 0 {
		return fmt.Errorf("auth.cache_ttl must be positive")
	}

	return nil
}
