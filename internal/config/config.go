// Package config loads milkdiary settings from an optional TOML file, with
// MILKDIARY_* environment variables taking precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	DefaultConfigFileName = "milkdiary.toml"
	DefaultCacheName      = "milk-diary-v1"
)

type Source struct {
	// URL is the upstream web app returning the sheet payload.
	URL string `toml:"url"`
	// File is a local .json/.yaml payload used instead of URL.
	File            string `toml:"file"`
	DailySheet      string `toml:"daily_sheet"`
	MonthlySheet    string `toml:"monthly_sheet"`
	Timeout         string `toml:"timeout"`
	Retries         int    `toml:"retries"`
	RefreshInterval string `toml:"refresh_interval"`
}

type Offline struct {
	CacheName string `toml:"cache_name"`
	Listen    string `toml:"listen"`
	Upstream  string `toml:"upstream"`
}

type Client struct {
	ServerURL string `toml:"server_url"`
	LogFile   string `toml:"log_file"`
}

// Backup configures encrypted snapshots to S3-compatible storage. Backups
// are disabled while Bucket or Passphrase is empty.
type Backup struct {
	Endpoint      string `toml:"endpoint"`
	Bucket        string `toml:"bucket"`
	Region        string `toml:"region"`
	AccessKey     string `toml:"access_key"`
	SecretKey     string `toml:"secret_key"`
	Prefix        string `toml:"prefix"`
	Passphrase    string `toml:"passphrase"`
	Interval      string `toml:"interval"`
	RetentionDays int    `toml:"retention_days"`
}

func (b Backup) Enabled() bool {
	return b.Bucket != "" && b.Passphrase != ""
}

// IntervalDuration is zero when scheduled backups are off.
func (b Backup) IntervalDuration() (time.Duration, error) {
	return parseDuration("backup.interval", b.Interval)
}

type Config struct {
	Port         string  `toml:"port"`
	DBPath       string  `toml:"db_path"`
	LogLevel     string  `toml:"log_level"`
	LogFormat    string  `toml:"log_format"`
	Timezone     string  `toml:"timezone"`
	DailyVariant string  `toml:"daily_variant"`
	Source       Source  `toml:"source"`
	Offline      Offline `toml:"offline"`
	Client       Client  `toml:"client"`
	Backup       Backup  `toml:"backup"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:         "8080",
		DBPath:       "milkdiary.db",
		LogLevel:     "info",
		LogFormat:    "text",
		Timezone:     "Asia/Kolkata",
		DailyVariant: "three_stage",
		Source: Source{
			DailySheet:      "daily_OCT",
			MonthlySheet:    "Monthly",
			Timeout:         "20s",
			Retries:         3,
			RefreshInterval: "1h",
		},
		Offline: Offline{
			CacheName: DefaultCacheName,
			Listen:    ":8081",
			Upstream:  "http://localhost:8080",
		},
		Client: Client{
			ServerURL: "http://localhost:8080",
		},
		Backup: Backup{
			Region:        "auto",
			Prefix:        "milkdiary",
			Interval:      "24h",
			RetentionDays: 30,
		},
	}
}

// Load reads path (if it exists) over the defaults, then applies the
// environment. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg, os.Getenv)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Write saves cfg as TOML.
func Write(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func applyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Port, "MILKDIARY_PORT")
	set(&cfg.DBPath, "MILKDIARY_DB_PATH")
	set(&cfg.LogLevel, "MILKDIARY_LOG_LEVEL")
	set(&cfg.LogFormat, "MILKDIARY_LOG_FORMAT")
	set(&cfg.Timezone, "MILKDIARY_TIMEZONE")
	set(&cfg.DailyVariant, "MILKDIARY_DAILY_VARIANT")
	set(&cfg.Source.URL, "MILKDIARY_SOURCE_URL")
	set(&cfg.Source.File, "MILKDIARY_SOURCE_FILE")
	set(&cfg.Source.RefreshInterval, "MILKDIARY_REFRESH_INTERVAL")
	set(&cfg.Offline.CacheName, "MILKDIARY_CACHE_NAME")
	set(&cfg.Offline.Upstream, "MILKDIARY_OFFLINE_UPSTREAM")
	set(&cfg.Client.ServerURL, "MILKDIARY_SERVER_URL")
	set(&cfg.Backup.Endpoint, "MILKDIARY_BACKUP_ENDPOINT")
	set(&cfg.Backup.Bucket, "MILKDIARY_BACKUP_BUCKET")
	set(&cfg.Backup.Region, "MILKDIARY_BACKUP_REGION")
	set(&cfg.Backup.AccessKey, "MILKDIARY_BACKUP_ACCESS_KEY")
	set(&cfg.Backup.SecretKey, "MILKDIARY_BACKUP_SECRET_KEY")
	set(&cfg.Backup.Passphrase, "MILKDIARY_BACKUP_PASSPHRASE")
	set(&cfg.Backup.Interval, "MILKDIARY_BACKUP_INTERVAL")
	if v := getenv("MILKDIARY_SOURCE_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Source.Retries = n
		}
	}
}

// Validate checks values that would otherwise fail later at runtime.
func (c Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Source.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.Source.RefreshDuration(); err != nil {
		return err
	}
	if _, err := c.Backup.IntervalDuration(); err != nil {
		return err
	}
	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("backup.retention_days must not be negative")
	}
	if c.Source.Retries < 0 {
		return fmt.Errorf("source.retries must not be negative")
	}
	return nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (s Source) TimeoutDuration() (time.Duration, error) {
	return parseDuration("source.timeout", s.Timeout)
}

// RefreshDuration is zero when periodic refresh is disabled.
func (s Source) RefreshDuration() (time.Duration, error) {
	return parseDuration("source.refresh_interval", s.RefreshInterval)
}

func parseDuration(name, v string) (time.Duration, error) {
	if v == "" || v == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return d, nil
}
