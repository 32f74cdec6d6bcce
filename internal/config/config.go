package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"list-manager/internal/backup"
	"list-manager/internal/repository"
)

// Config keeps runtime settings for the bot and the CLI.
type Config struct {
	TelegramToken  string
	DatabaseURL    string
	ReportInterval time.Duration
	Schema         string
	SlotQuota      int

	BackupAt string
	Backup   backup.Options

	SuggestURL    string
	SuggestAPIKey string
	SuggestModel  string

	MetricsAddr string
}

// Load reads configuration from environment variables with sane defaults.
// The Telegram token is only checked by RequireTelegram.
func Load() (Config, error) {
	cfg := Config{
		TelegramToken:  env("TELEGRAM_TOKEN"),
		DatabaseURL:    env("DATABASE_URL"),
		ReportInterval: parseInterval(env("REPORT_INTERVAL_HOURS")),
		Schema:         env("APP_SCHEMA"),
		BackupAt:       env("BACKUP_AT"),
		Backup: backup.Options{
			Driver: strings.ToLower(env("BACKUP_DRIVER")),
			Dir:    env("BACKUP_DIR"),
			S3: backup.S3Config{
				Bucket:    env("BACKUP_S3_BUCKET"),
				Region:    env("BACKUP_S3_REGION"),
				Endpoint:  env("BACKUP_S3_ENDPOINT"),
				PathStyle: strings.EqualFold(env("BACKUP_S3_PATH_STYLE"), "true"),
				Prefix:    env("BACKUP_S3_PREFIX"),
			},
		},
		SuggestURL:    env("SUGGEST_URL"),
		SuggestAPIKey: env("SUGGEST_API_KEY"),
		SuggestModel:  env("SUGGEST_MODEL"),
		MetricsAddr:   env("METRICS_ADDR"),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "list_manager.db"
	}

	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 5 * time.Hour
	}

	if cfg.Schema == "" {
		cfg.Schema = "todo"
	}

	if cfg.Backup.Driver == "" {
		cfg.Backup.Driver = "fs"
	}
	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = "backups"
	}

	if cfg.SuggestModel == "" {
		cfg.SuggestModel = "gpt-4o-mini"
	}

	quota, err := SlotQuota()
	if err != nil {
		return cfg, err
	}
	cfg.SlotQuota = quota

	switch cfg.Backup.Driver {
	case "fs":
	case "s3":
		if cfg.BackupAt != "" && cfg.Backup.S3.Bucket == "" {
			return cfg, fmt.Errorf("BACKUP_S3_BUCKET is required for the s3 backup driver")
		}
	default:
		return cfg, fmt.Errorf("BACKUP_DRIVER must be fs or s3, got %q", cfg.Backup.Driver)
	}

	return cfg, nil
}

// RequireTelegram fails when no bot token is configured.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	return nil
}

// SlotQuota reads SLOT_QUOTA_BYTES on its own, for commands that need the
// storage limit but none of the bot settings.
func SlotQuota() (int, error) {
	raw := env("SLOT_QUOTA_BYTES")
	if raw == "" {
		return repository.DefaultQuotaBytes, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("SLOT_QUOTA_BYTES must be a non-negative integer, got %q", raw)
	}
	return n, nil
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}
