package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/crawlfabric/crawlfabric/internal/config"
)

func TestWithDefaultBuilds(t *testing.T) {
	cfg, err := config.WithDefault().Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxConcurrentRequests() != 64 {
		t.Errorf("expected default maxConcurrentRequests=64, got %d", cfg.MaxConcurrentRequests())
	}
	if cfg.DefaultQPSPerDomain() != 1.0 {
		t.Errorf("expected default defaultQPSPerDomain=1.0, got %v", cfg.DefaultQPSPerDomain())
	}
	if cfg.UserAgent() == "" {
		t.Error("expected a non-empty default user agent")
	}
	if cfg.StateStoreBackend() != "dynamodb" {
		t.Errorf("expected default state store backend dynamodb, got %s", cfg.StateStoreBackend())
	}
}

func TestBuildRejectsHeartbeatNotLessThanHalfTTL(t *testing.T) {
	_, err := config.WithDefault().
		WithAcquisitionTTL(10 * time.Second).
		WithHeartbeatInterval(6 * time.Second).
		Build()
	if err == nil {
		t.Fatal("expected error when heartbeat_interval >= acquisition_ttl/2")
	}
}

func TestBuildAcceptsValidHeartbeatRatio(t *testing.T) {
	_, err := config.WithDefault().
		WithAcquisitionTTL(10 * time.Second).
		WithHeartbeatInterval(4 * time.Second).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	_, err := config.WithDefault().WithQueueBackend("carrier-pigeon").Build()
	if err == nil {
		t.Fatal("expected error for unknown queue backend")
	}
}

func TestWithConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	payload := map[string]interface{}{
		"maxConcurrentRequests": 128,
		"userAgent":             "crawlfabric-test/9.9",
		"domainQpsOverrides":    map[string]float64{"slow.example.com": 0.2},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal fixture: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	cfg, err := config.WithConfigFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxConcurrentRequests() != 128 {
		t.Errorf("expected overridden maxConcurrentRequests=128, got %d", cfg.MaxConcurrentRequests())
	}
	if cfg.UserAgent() != "crawlfabric-test/9.9" {
		t.Errorf("expected overridden user agent, got %s", cfg.UserAgent())
	}
	if got := cfg.DomainQPSOverrides()["slow.example.com"]; got != 0.2 {
		t.Errorf("expected domain override 0.2 for slow.example.com, got %v", got)
	}
}

func TestWithConfigFileMissingFile(t *testing.T) {
	_, err := config.WithConfigFile("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestWithConfigFileInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	_, err := config.WithConfigFile(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestWithEnvOverridesBuilder(t *testing.T) {
	t.Setenv("CRAWLER_USER_AGENT", "crawlfabric-env/1.0")
	t.Setenv("CRAWLER_MAX_RETRIES", "9")
	t.Setenv("CRAWLER_REQUEST_TIMEOUT", "15s")

	cfg, err := config.WithDefault().WithEnv().Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.UserAgent() != "crawlfabric-env/1.0" {
		t.Errorf("expected env-overridden user agent, got %s", cfg.UserAgent())
	}
	if cfg.MaxRetries() != 9 {
		t.Errorf("expected env-overridden maxRetries=9, got %d", cfg.MaxRetries())
	}
	if cfg.RequestTimeout() != 15*time.Second {
		t.Errorf("expected env-overridden requestTimeout=15s, got %v", cfg.RequestTimeout())
	}
}

func TestDomainQPSOverridesIsCopyNotAlias(t *testing.T) {
	cfg, err := config.WithDefault().
		WithDomainQPSOverrides(map[string]float64{"example.com": 2.5}).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := cfg.DomainQPSOverrides()
	out["example.com"] = 999
	if cfg.DomainQPSOverrides()["example.com"] != 2.5 {
		t.Error("expected DomainQPSOverrides() to return a defensive copy")
	}
}
