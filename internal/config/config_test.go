package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
)

func noEnv(string) (string, bool) { return "", false }

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *cfg != *DefaultConfig() {
		t.Fatalf("Load() = %+v, want defaults", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"max_segment_days": 90, "report_role": "client"}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxSegmentDays != 90 {
		t.Fatalf("MaxSegmentDays = %d, want 90", cfg.MaxSegmentDays)
	}
	if cfg.MaxSegment() != 90*24*time.Hour {
		t.Fatalf("MaxSegment() = %v", cfg.MaxSegment())
	}
	if cfg.ReportRole != "client" {
		t.Fatalf("ReportRole = %q, want client", cfg.ReportRole)
	}
	if cfg.BatchLimit != 500 {
		t.Fatalf("BatchLimit = %d, want default 500", cfg.BatchLimit)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := Load(tmpDir, "")
	if !errors.Is(err, errors.ErrConfig) {
		t.Fatalf("Load() error = %v, want CONFIG", err)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env")
	if err := os.WriteFile(envPath, []byte("TICKTACK_APP_ID=from-dotenv\nTICKTACK_BATCH_LIMIT=50\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("TICKTACK_APP_ID", "from-env")

	cfg, err := Load(tmpDir, envPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AppID != "from-env" {
		t.Errorf("AppID = %q, want process env to win", cfg.AppID)
	}
	if cfg.BatchLimit != 50 {
		t.Errorf("BatchLimit = %d, want 50 from .env", cfg.BatchLimit)
	}
}

func TestLoad_MissingDotEnvIgnored(t *testing.T) {
	if _, err := Load(t.TempDir(), filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestApplyEnv_BadInteger(t *testing.T) {
	cfg := DefaultConfig()
	lookup := func(k string) (string, bool) {
		if k == "TICKTACK_MAX_SEGMENT_DAYS" {
			return "forever", true
		}
		return "", false
	}
	if err := ApplyEnv(cfg, lookup); !errors.Is(err, errors.ErrConfig) {
		t.Fatalf("ApplyEnv() error = %v, want CONFIG", err)
	}
}

func TestApplyEnv_Empty(t *testing.T) {
	cfg := DefaultConfig()
	if err := ApplyEnv(cfg, noEnv); err != nil {
		t.Fatal(err)
	}
	if *cfg != *DefaultConfig() {
		t.Fatalf("ApplyEnv with no variables changed config: %+v", cfg)
	}
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	got := Merge(base, &Config{Listen: ":9000", Timezone: "UTC"})
	if got.Listen != ":9000" || got.Timezone != "UTC" {
		t.Fatalf("Merge() = %+v", got)
	}
	if got.AppID != base.AppID {
		t.Fatalf("AppID = %q, want base value", got.AppID)
	}
	if base.Listen == ":9000" {
		t.Fatal("Merge mutated base")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty app id", func(c *Config) { c.AppID = " " }},
		{"slash in app id", func(c *Config) { c.AppID = "a/b" }},
		{"zero segment", func(c *Config) { c.MaxSegmentDays = -1 }},
		{"zero batch", func(c *Config) { c.BatchLimit = -5 }},
		{"zero timeout", func(c *Config) { c.StartupTimeoutSeconds = -1 }},
		{"user without token", func(c *Config) { c.UserID = "alice" }},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if !errors.Is(err, errors.ErrConfig) {
				t.Fatalf("Validate() = %v, want CONFIG error", err)
			}
			if errors.CategoryOf(err) != errors.CategoryConfiguration {
				t.Fatalf("category = %v", errors.CategoryOf(err))
			}
		})
	}
}

func TestLevelAndTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "DEBUG"
	if cfg.Level() != slog.LevelDebug {
		t.Fatalf("Level() = %v", cfg.Level())
	}
	cfg.LogLevel = "nope"
	if cfg.Level() != slog.LevelInfo {
		t.Fatalf("Level() fallback = %v", cfg.Level())
	}
	if DefaultConfig().StartupTimeout() != 10*time.Second {
		t.Fatalf("StartupTimeout() = %v", DefaultConfig().StartupTimeout())
	}
}
