package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies the defaults a bare deployment runs with.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Pipeline.AlertThreshold != 0.85 {
		t.Errorf("expected alert threshold 0.85, got %v", cfg.Pipeline.AlertThreshold)
	}
	if cfg.Redis.Enabled || cfg.NATS.Enabled {
		t.Error("external systems must default to disabled")
	}
	if cfg.NATS.Subject != "fleet.telemetry" {
		t.Errorf("unexpected NATS subject %q", cfg.NATS.Subject)
	}
}

// TestLoad verifies YAML values override defaults while unset keys keep
// theirs.
func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
  stream_interval: 5000000000
pipeline:
  alert_threshold: 0.7
redis:
  enabled: true
  addr: "redis:6379"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.StreamInterval != 5*time.Second {
		t.Errorf("expected stream interval 5s, got %v", cfg.Server.StreamInterval)
	}
	if cfg.Pipeline.AlertThreshold != 0.7 {
		t.Errorf("expected threshold 0.7, got %v", cfg.Pipeline.AlertThreshold)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("redis overrides not applied: %+v", cfg.Redis)
	}
	// Unset keys keep defaults.
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("unset read timeout should keep default, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.NATS.Subject != "fleet.telemetry" {
		t.Errorf("unset NATS subject should keep default, got %q", cfg.NATS.Subject)
	}
}

// TestLoad_MissingFile verifies a missing file errors rather than silently
// returning defaults.
func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("does/not/exist.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

// TestRedisPassword verifies the env indirection.
func TestRedisPassword(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Redis.PasswordEnv = "FLEETSENTRY_TEST_REDIS_PW"

	os.Setenv("FLEETSENTRY_TEST_REDIS_PW", "s3cret")
	defer os.Unsetenv("FLEETSENTRY_TEST_REDIS_PW")

	if got := cfg.RedisPassword(); got != "s3cret" {
		t.Errorf("expected resolved password, got %q", got)
	}

	cfg.Redis.PasswordEnv = ""
	if got := cfg.RedisPassword(); got != "" {
		t.Errorf("empty env name should yield empty password, got %q", got)
	}
}
