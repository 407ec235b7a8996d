package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"server": {"port": 9090, "base_url": "https://ingestor.example.com"},
		"storage": {"type": "file", "file_path": "/tmp/state.json", "sync_interval_seconds": 10},
		"cron": {"window_seconds": 120},
		"run_log": {"enabled": true, "dir": "/tmp/runs"}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Type != "file" || cfg.Storage.FilePath != "/tmp/state.json" {
		t.Errorf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.CronWindow() != 2*time.Minute {
		t.Errorf("expected 2m cron window, got %v", cfg.CronWindow())
	}
	if !cfg.RunLog.Enabled || cfg.RunLog.Dir != "/tmp/runs" {
		t.Errorf("unexpected run log config: %+v", cfg.RunLog)
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("expected default memory storage, got %q", cfg.Storage.Type)
	}
	if cfg.CronWindow() != 65*time.Second {
		t.Errorf("expected default 65s window, got %v", cfg.CronWindow())
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Server.Port != 8080 || cfg.Storage.Type != "memory" || cfg.Cron.WindowSeconds != 65 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
