package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/inkwell/config.yaml",
	"/etc/inkwell/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration from layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: override any setting
//
// Precedence is ENV > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Comma-separated env values for slice fields
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file, honoring CONFIG_PATH first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as
// comma-separated slices when they arrive as env var strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML file)
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - INKWELL_BACKEND_URL -> backend.url
//   - INKWELL_CACHE_TTL -> cache.ttl
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_host":                 "server.host",
		"http_port":                 "server.port",
		"inkwell_server_timeout":    "server.timeout",
		"inkwell_rate_limit_reqs":   "server.rate_limit_reqs",
		"inkwell_rate_limit_window": "server.rate_limit_window",
		"inkwell_cors_origins":      "server.cors_origins",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Generation backend
		"inkwell_backend_url":          "backend.url",
		"inkwell_backend_model":        "backend.model",
		"inkwell_backend_timeout":      "backend.timeout",
		"inkwell_backend_max_attempts": "backend.max_attempts",
		"inkwell_backend_base_delay":   "backend.base_delay",
		"inkwell_backend_cap_delay":    "backend.cap_delay",
		"inkwell_backend_jitter":       "backend.jitter",
		"inkwell_backend_rps":          "backend.requests_per_second",
		"inkwell_backend_burst":        "backend.burst",

		// Generation cache
		"inkwell_cache_ttl":            "cache.ttl",
		"inkwell_cache_max_entries":    "cache.max_entries",
		"inkwell_cache_sweep_interval": "cache.sweep_interval",
		"inkwell_cache_durable":        "cache.durable",

		// Local storage
		"inkwell_storage_enabled": "storage.enabled",
		"inkwell_storage_path":    "storage.path",

		// Audit relay
		"inkwell_audit_enabled":      "audit.enabled",
		"inkwell_audit_buffer_size":  "audit.buffer_size",
		"inkwell_audit_max_attempts": "audit.max_attempts",
		"inkwell_audit_retry_delay":  "audit.retry_delay",

		// Authorization gate
		"inkwell_auth_cache_ttl":          "auth.cache_ttl",
		"inkwell_auth_negative_cache_ttl": "auth.negative_cache_ttl",
		"inkwell_auth_timeout":            "auth.timeout",
		"inkwell_auth_retry_attempts":     "auth.retry_attempts",

		// Shared collaborator service
		"inkwell_shared_url":     "shared.url",
		"inkwell_shared_timeout": "shared.timeout",
	}

	if path, ok := envMappings[key]; ok {
		return path
	}

	// Unknown env vars are ignored rather than guessed into paths.
	return ""
}
