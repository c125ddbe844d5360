package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Scheduler.Interval != 300*time.Millisecond {
		t.Errorf("Expected default interval to be 300ms, got %v", config.Scheduler.Interval)
	}
	if config.Scheduler.PauseThreshold != 50 {
		t.Errorf("Expected default pause threshold to be 50, got %d", config.Scheduler.PauseThreshold)
	}
	if config.Scheduler.PauseDuration != 8*time.Second {
		t.Errorf("Expected default pause to be 8s, got %v", config.Scheduler.PauseDuration)
	}
	if config.Cache.LockStaleAfter != 30*time.Second {
		t.Errorf("Expected lock staleness window to be 30s, got %v", config.Cache.LockStaleAfter)
	}
	if config.Download.RetryFailed {
		t.Error("Expected retry_failed to default to false")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PIXIVRANK_COOKIE", "PHPSESSID=abc")
	t.Setenv("PIXIVRANK_MAX", "30")
	t.Setenv("PIXIVRANK_OUTPUT_DIR", "/tmp/test-picture")
	t.Setenv("PIXIVRANK_RETRY_FAILED", "true")
	t.Setenv("PIXIVRANK_INTERVAL", "1s")
	t.Setenv("PIXIVRANK_LOG_LEVEL", "debug")

	config := DefaultConfig()
	if err := config.LoadFromEnv(); err != nil {
		t.Fatalf("Failed to load from environment: %v", err)
	}

	if config.Pixiv.Cookie != "PHPSESSID=abc" {
		t.Errorf("Expected cookie from env, got %s", config.Pixiv.Cookie)
	}
	if config.Filter.Max != 30 {
		t.Errorf("Expected max to be 30, got %d", config.Filter.Max)
	}
	if config.Output.BaseDirectory != "/tmp/test-picture" {
		t.Errorf("Expected output directory to be /tmp/test-picture, got %s", config.Output.BaseDirectory)
	}
	if !config.Download.RetryFailed {
		t.Error("Expected retry_failed to be true")
	}
	if config.Scheduler.Interval != time.Second {
		t.Errorf("Expected interval to be 1s, got %v", config.Scheduler.Interval)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Expected log level to be debug, got %s", config.Logging.Level)
	}
}

func TestLoadFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv("PIXIVRANK_MAX", "lots")

	if err := DefaultConfig().LoadFromEnv(); err == nil {
		t.Error("Expected an error for a non-numeric PIXIVRANK_MAX")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"valid date", func(c *Config) { c.Ranking.Date = "20240101" }, false},
		{"bad date", func(c *Config) { c.Ranking.Date = "2024-01-01" }, true},
		{"impossible date", func(c *Config) { c.Ranking.Date = "20241332" }, true},
		{"bad month", func(c *Config) { c.Ranking.Month = "202413" }, true},
		{"bad year", func(c *Config) { c.Ranking.Year = "24" }, true},
		{"unknown orientation", func(c *Config) { c.Filter.Orientation = "diagonal" }, true},
		{"square orientation", func(c *Config) { c.Filter.Orientation = "square" }, false},
		{"unknown type", func(c *Config) { c.Filter.Type = "novel" }, true},
		{"block groups", func(c *Config) { c.Filter.BlockGroups = "[VOCALOID,ボカロ][R-18,safe)" }, false},
		{"braced block group", func(c *Config) { c.Filter.BlockGroups = "{VOCALOID,ボカロ}" }, true},
		{"mixed bracket block group", func(c *Config) { c.Filter.BlockGroups = "[a](b,c)" }, true},
		{"single tag block group", func(c *Config) { c.Filter.BlockGroups = "[a]" }, true},
		{"zero workers", func(c *Config) { c.Download.Workers = 0 }, true},
		{"zero pause threshold", func(c *Config) { c.Scheduler.PauseThreshold = 0 }, true},
		{"invalid log level", func(c *Config) { c.Logging.Level = "invalid" }, true},
		{"invalid notification type", func(c *Config) { c.Notifications.NotificationType = "pager" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	config := DefaultConfig()
	config.Filter.Tags = []string{"from-file"}

	config.MergeCommandLineFlags(map[string]interface{}{
		"date":         "20240101",
		"tag":          []string{"miku"},
		"block-group":  "[a,b]",
		"output":       "/flag/output",
		"workers":      4,
		"retry-failed": true,
		"log-level":    "error",
	})

	if config.Ranking.Date != "20240101" {
		t.Errorf("Expected date to be 20240101, got %s", config.Ranking.Date)
	}
	if len(config.Filter.Tags) != 2 || config.Filter.Tags[1] != "miku" {
		t.Errorf("Expected flag tags to be appended, got %v", config.Filter.Tags)
	}
	if config.Filter.BlockGroups != "[a,b]" {
		t.Errorf("Expected block groups to be [a,b], got %s", config.Filter.BlockGroups)
	}
	if config.Output.BaseDirectory != "/flag/output" {
		t.Errorf("Expected output directory to be /flag/output, got %s", config.Output.BaseDirectory)
	}
	if config.Download.Workers != 4 {
		t.Errorf("Expected workers to be 4, got %d", config.Download.Workers)
	}
	if !config.Download.RetryFailed {
		t.Error("Expected retry_failed from flag")
	}
	if config.Logging.Level != "error" {
		t.Errorf("Expected log level to be error, got %s", config.Logging.Level)
	}
}

func TestSaveAndLoadFromFile(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), name)

			config := DefaultConfig()
			config.Ranking.Mode = "weekly"
			config.Filter.Tags = []string{"miku"}
			config.Scheduler.PauseDuration = 12 * time.Second

			if err := config.Save(configPath); err != nil {
				t.Fatalf("Failed to save config: %v", err)
			}

			loaded := DefaultConfig()
			if err := loaded.LoadFromFile(configPath); err != nil {
				t.Fatalf("Failed to load config: %v", err)
			}

			if loaded.Ranking.Mode != "weekly" {
				t.Errorf("Expected mode weekly, got %s", loaded.Ranking.Mode)
			}
			if len(loaded.Filter.Tags) != 1 || loaded.Filter.Tags[0] != "miku" {
				t.Errorf("Expected tags [miku], got %v", loaded.Filter.Tags)
			}
			if loaded.Scheduler.PauseDuration != 12*time.Second {
				t.Errorf("Expected pause 12s, got %v", loaded.Scheduler.PauseDuration)
			}
		})
	}
}
