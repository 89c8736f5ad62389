package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8085 {
		t.Errorf("Server.Port = %d, want 8085", cfg.Server.Port)
	}
	if cfg.Backend.Model != "llama3" {
		t.Errorf("Backend.Model = %q", cfg.Backend.Model)
	}
	if cfg.Backend.MaxAttempts != 5 {
		t.Errorf("Backend.MaxAttempts = %d, want 5", cfg.Backend.MaxAttempts)
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("Cache.TTL = %v, want 24h", cfg.Cache.TTL)
	}
	if cfg.Auth.CacheTTL != 30*time.Second {
		t.Errorf("Auth.CacheTTL = %v, want 30s", cfg.Auth.CacheTTL)
	}
	if !cfg.Audit.Enabled {
		t.Error("Audit.Enabled should default to true")
	}
	if cfg.Storage.Enabled {
		t.Error("Storage.Enabled should default to false")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("INKWELL_BACKEND_MODEL", "mistral")
	t.Setenv("INKWELL_BACKEND_MAX_ATTEMPTS", "3")
	t.Setenv("INKWELL_CACHE_TTL", "1h")
	t.Setenv("INKWELL_AUTH_CACHE_TTL", "45s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	if cfg.Backend.Model != "mistral" {
		t.Errorf("Backend.Model = %q", cfg.Backend.Model)
	}
	if cfg.Backend.MaxAttempts != 3 {
		t.Errorf("Backend.MaxAttempts = %d", cfg.Backend.MaxAttempts)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("Cache.TTL = %v", cfg.Cache.TTL)
	}
	if cfg.Auth.CacheTTL != 45*time.Second {
		t.Errorf("Auth.CacheTTL = %v", cfg.Auth.CacheTTL)
	}
}

func TestLoadCORSOriginsFromEnv(t *testing.T) {
	t.Setenv("INKWELL_CORS_ORIGINS", "https://books.example.com, https://admin.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []string{"https://books.example.com", "https://admin.example.com"}
	if len(cfg.Server.CORSOrigins) != len(want) {
		t.Fatalf("CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Server.CORSOrigins[i] != want[i] {
			t.Errorf("CORSOrigins[%d] = %q, want %q", i, cfg.Server.CORSOrigins[i], want[i])
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 7001
backend:
  model: phi3
cache:
  ttl: 2h
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 7001 {
		t.Errorf("Server.Port = %d, want 7001", cfg.Server.Port)
	}
	if cfg.Backend.Model != "phi3" {
		t.Errorf("Backend.Model = %q", cfg.Backend.Model)
	}
	if cfg.Cache.TTL != 2*time.Hour {
		t.Errorf("Cache.TTL = %v", cfg.Cache.TTL)
	}
	// File values that are not overridden keep their defaults.
	if cfg.Shared.URL != "http://localhost:8000" {
		t.Errorf("Shared.URL = %q", cfg.Shared.URL)
	}
}

func TestLoadEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7001\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("HTTP_PORT", "7002")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7002 {
		t.Errorf("Server.Port = %d, env must beat file", cfg.Server.Port)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }, "invalid configuration"},
		{"missing backend url", func(c *Config) { c.Backend.URL = "" }, "invalid configuration"},
		{"cap below base", func(c *Config) { c.Backend.CapDelay = time.Second; c.Backend.BaseDelay = 2 * time.Second }, "cap_delay"},
		{"zero cache ttl", func(c *Config) { c.Cache.TTL = 0 }, "cache.ttl"},
		{"durable without storage", func(c *Config) { c.Cache.Durable = true; c.Storage.Enabled = false }, "storage.enabled"},
		{"storage without path", func(c *Config) { c.Storage.Enabled = true; c.Storage.Path = "" }, "storage.path"},
		{"zero auth ttl", func(c *Config) { c.Auth.CacheTTL = 0 }, "auth.cache_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := defaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestEnvTransformIgnoresUnknownVars(t *testing.T) {
	// Arbitrary environment variables must not leak into config paths.
	if got := envTransformFunc("PATH"); got != "" {
		t.Errorf("PATH mapped to %q", got)
	}
	if got := envTransformFunc("HOME"); got != "" {
		t.Errorf("HOME mapped to %q", got)
	}
	if got := envTransformFunc("INKWELL_BACKEND_URL"); got != "backend.url" {
		t.Errorf("INKWELL_BACKEND_URL mapped to %q", got)
	}
}
