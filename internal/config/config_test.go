package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("unexpected port: %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "memory" {
		t.Fatalf("unexpected driver: %s", cfg.Database.Driver)
	}
	if cfg.Rewards.IntervalSeconds != 10 || cfg.Rewards.CoinsPerInterval != 1 {
		t.Fatalf("unexpected reward defaults: %+v", cfg.Rewards)
	}
}

func TestLoadFileAndEnvLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	data := []byte("server:\n  port: 9090\nrewards:\n  interval_seconds: 5\nauth:\n  audit_path: /var/log/engine/audit.jsonl\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("COIN_ENGINE_CONFIG", path)
	t.Setenv("REWARD_INTERVAL_SECONDS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("file value not applied: %d", cfg.Server.Port)
	}
	if cfg.Rewards.IntervalSeconds != 7 {
		t.Fatalf("env override not applied: %d", cfg.Rewards.IntervalSeconds)
	}
	if cfg.Rewards.CoinsPerInterval != 1 {
		t.Fatalf("default lost in layering: %d", cfg.Rewards.CoinsPerInterval)
	}
	if cfg.Auth.AuditPath != "/var/log/engine/audit.jsonl" {
		t.Fatalf("audit path not applied: %q", cfg.Auth.AuditPath)
	}
}

func TestLoadRejectsPostgresWithoutDSN(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for postgres driver without dsn")
	}
}

func TestLoadRejectsMissingExplicitFile(t *testing.T) {
	t.Setenv("COIN_ENGINE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}
