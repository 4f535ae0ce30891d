package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"LISTEN_ADDR", "AUTH_MODE", "RESULTS_MODE", "TABLE_IDLE_TTL", "ORIGIN_ALLOWLIST", "OUTBOX_SIZE"} {
		t.Setenv(key, "")
	}
	cfg, err := FromEnv(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.AuthMode != ModeMemory || cfg.ResultsMode != ModeMemory {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.TableIdleTTL != 10*time.Minute || cfg.OutboxSize != 256 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !cfg.OriginAllowed("https://anywhere.example") {
		t.Fatalf("empty allowlist should admit any origin")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("AUTH_MODE", "local")
	t.Setenv("RESULTS_MODE", "postgresql")
	t.Setenv("RESULTS_DATABASE_DSN", "postgres://localhost/results")
	t.Setenv("TABLE_IDLE_TTL", "90s")
	t.Setenv("OUTBOX_SIZE", "nope")
	t.Setenv("ORIGIN_ALLOWLIST", "https://a.example, https://b.example")
	t.Setenv("AUTH_REQUIRED", "true")

	cfg, err := FromEnv(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.AuthMode != ModeSQLite || cfg.ResultsMode != ModePostgres || !cfg.AuthRequired {
		t.Fatalf("modes not parsed: %+v", cfg)
	}
	if cfg.TableIdleTTL != 90*time.Second {
		t.Fatalf("ttl %v", cfg.TableIdleTTL)
	}
	if cfg.OutboxSize != 256 {
		t.Fatalf("bad OUTBOX_SIZE should fall back, got %d", cfg.OutboxSize)
	}
	if !cfg.OriginAllowed("https://b.example") || cfg.OriginAllowed("https://c.example") {
		t.Fatalf("allowlist not applied: %v", cfg.OriginAllowlist)
	}
}

func TestFromEnv_DotEnvFile(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "")
	os.Unsetenv("LISTEN_ADDR")
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("LISTEN_ADDR=:9999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := FromEnv(path)
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Fatalf("listen addr from file, got %q", cfg.ListenAddr)
	}
	os.Unsetenv("LISTEN_ADDR")
}

func TestValidate_RejectsUnknownMode(t *testing.T) {
	t.Setenv("RESULTS_MODE", "redis")
	if _, err := FromEnv(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatalf("expected an error for RESULTS_MODE=redis")
	}
	t.Setenv("RESULTS_MODE", "postgres")
	t.Setenv("RESULTS_DATABASE_DSN", "")
	t.Setenv("DATABASE_DSN", "")
	if _, err := FromEnv(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatalf("expected an error for postgres without a DSN")
	}
}
