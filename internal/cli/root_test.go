package cli_test

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/crawlfabric/crawlfabric/internal/cli"
)

func newTestCommand() (*cobra.Command, *cli.Flags) {
	cmd := &cobra.Command{Use: "testcmd"}
	flags := cli.BindPersistentFlags(cmd)
	return cmd, flags
}

func TestLoadWithNoFlagsReturnsDefaults(t *testing.T) {
	_, flags := newTestCommand()

	cfg, err := flags.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxConcurrentRequests() != 64 {
		t.Errorf("expected default maxConcurrentRequests=64, got %d", cfg.MaxConcurrentRequests())
	}
}

func TestLoadAppliesExplicitFlags(t *testing.T) {
	cmd, flags := newTestCommand()
	if err := cmd.ParseFlags([]string{
		"--max-concurrent-requests=200",
		"--user-agent=crawlfabric-flagtest/1.0",
		"--request-timeout=30s",
		"--queue-backend=file",
	}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	cfg, err := flags.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxConcurrentRequests() != 200 {
		t.Errorf("expected flag-overridden maxConcurrentRequests=200, got %d", cfg.MaxConcurrentRequests())
	}
	if cfg.UserAgent() != "crawlfabric-flagtest/1.0" {
		t.Errorf("expected flag-overridden user agent, got %s", cfg.UserAgent())
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Errorf("expected flag-overridden requestTimeout=30s, got %v", cfg.RequestTimeout())
	}
	if cfg.QueueBackend() != "file" {
		t.Errorf("expected flag-overridden queue backend=file, got %s", cfg.QueueBackend())
	}
}

func TestLoadRejectsUnknownBackendFlag(t *testing.T) {
	cmd, flags := newTestCommand()
	if err := cmd.ParseFlags([]string{"--lease-backend=smoke-signal"}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	if _, err := flags.Load(); err == nil {
		t.Fatal("expected error for unknown lease backend")
	}
}

func TestLoadFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.json"
	content := `{"userAgent": "crawlfabric-filetest/1.0", "maxRetries": 7}`
	if err := writeFile(path, content); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	cmd, flags := newTestCommand()
	if err := cmd.ParseFlags([]string{"--config-file=" + path}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	cfg, err := flags.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.UserAgent() != "crawlfabric-filetest/1.0" {
		t.Errorf("expected config-file user agent, got %s", cfg.UserAgent())
	}
	if cfg.MaxRetries() != 7 {
		t.Errorf("expected config-file maxRetries=7, got %d", cfg.MaxRetries())
	}
}

func TestFlagOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.json"
	content := `{"userAgent": "crawlfabric-filetest/1.0"}`
	if err := writeFile(path, content); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	cmd, flags := newTestCommand()
	if err := cmd.ParseFlags([]string{
		"--config-file=" + path,
		"--user-agent=crawlfabric-flagwins/1.0",
	}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	cfg, err := flags.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.UserAgent() != "crawlfabric-flagwins/1.0" {
		t.Errorf("expected flag to win over config file, got %s", cfg.UserAgent())
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
