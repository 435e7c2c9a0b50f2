package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.Offline.CacheName != DefaultCacheName {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "milkdiary.toml")
	data := `
port = "9000"
daily_variant = "single"

[source]
url = "https://example.com/exec"
refresh_interval = "15m"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MILKDIARY_PORT", "9100")
	t.Setenv("MILKDIARY_SOURCE_RETRIES", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9100" {
		t.Errorf("port = %q, want env override 9100", cfg.Port)
	}
	if cfg.DailyVariant != "single" {
		t.Errorf("daily_variant = %q, want single", cfg.DailyVariant)
	}
	if cfg.Source.URL != "https://example.com/exec" {
		t.Errorf("source.url = %q", cfg.Source.URL)
	}
	if cfg.Source.Retries != 5 {
		t.Errorf("retries = %d, want 5", cfg.Source.Retries)
	}
	if cfg.Source.DailySheet != "daily_OCT" {
		t.Errorf("daily_sheet = %q, want default kept", cfg.Source.DailySheet)
	}
	d, _ := cfg.Source.RefreshDuration()
	if d != 15*time.Minute {
		t.Errorf("refresh = %v, want 15m", d)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	os.WriteFile(path, []byte(`timezone = "Mars/Olympus"`), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown timezone")
	}

	os.WriteFile(path, []byte("[source]\ntimeout = \"soon\""), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.toml")
	cfg := Default()
	cfg.Port = "7070"
	if err := Write(path, cfg); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Port != "7070" {
		t.Errorf("port = %q, want 7070", got.Port)
	}
}

func TestBackupSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "milkdiary.toml")
	data := `
[backup]
bucket = "diary"
interval = "6h"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backup.Enabled() {
		t.Error("backup enabled without a passphrase")
	}
	if cfg.Backup.Prefix != "milkdiary" || cfg.Backup.RetentionDays != 30 {
		t.Errorf("defaults lost: %+v", cfg.Backup)
	}

	t.Setenv("MILKDIARY_BACKUP_PASSPHRASE", "hunter2")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Backup.Enabled() {
		t.Error("backup should be enabled with bucket and passphrase")
	}
	if d, _ := cfg.Backup.IntervalDuration(); d != 6*time.Hour {
		t.Errorf("interval = %v, want 6h", d)
	}
}
