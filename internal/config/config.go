package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TICKTACK_"

// Config holds application configuration.
type Config struct {
	// AppID is the per-deployment application id that scopes both collections.
	AppID string `json:"app_id"`

	// DBPath is the SQLite document store file. Empty means the default path
	// under the user config dir.
	DBPath string `json:"db_path,omitempty"`

	// UserID and AuthToken identify a federated user. When either is missing
	// the anonymous identity is used.
	UserID    string `json:"user_id,omitempty"`
	AuthToken string `json:"auth_token,omitempty"`

	// MaxSegmentDays bounds one run segment; longer pause/stop deltas are
	// rejected as invalid.
	MaxSegmentDays int `json:"max_segment_days"`

	// BatchLimit is the largest number of writes committed atomically.
	BatchLimit int `json:"batch_limit"`

	StartupTimeoutSeconds int `json:"startup_timeout_seconds"`

	// ReportRole is who the report draft is addressed to.
	ReportRole string `json:"report_role,omitempty"`

	// Listen is the address of the web server.
	Listen string `json:"listen"`

	LogLevel string `json:"log_level"`

	// Timezone names the IANA zone for dates; empty means local time.
	Timezone string `json:"timezone,omitempty"`

	// ExportDir is where exports are written; empty means the working dir.
	ExportDir string `json:"export_dir,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		AppID:                 "ticktack",
		MaxSegmentDays:        30,
		BatchLimit:            500,
		StartupTimeoutSeconds: 10,
		Listen:                "127.0.0.1:8787",
		LogLevel:              "info",
	}
}

// DefaultDir returns ~/.config/ticktack (or the platform equivalent).
func DefaultDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ticktack"), nil
}

// Load reads baseDir/config.json over the defaults, then applies the .env
// file in envFile (if present) and the process environment, in that order.
func Load(baseDir, envFile string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, errors.NewConfig(fmt.Sprintf("read config: %v", err))
	}

	env, err := readDotEnv(envFile)
	if err != nil {
		return nil, errors.NewConfig(fmt.Sprintf("read %s: %v", envFile, err))
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := env[key]
		return v, ok
	}
	if err := ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return env, nil
}

// loadFileRaw returns a zero config when the file doesn't exist.
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs. Non-zero overlay values win.
func Merge(base, overlay *Config) *Config {
	result := *base

	str := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	num := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}

	str(&result.AppID, overlay.AppID)
	str(&result.DBPath, overlay.DBPath)
	str(&result.UserID, overlay.UserID)
	str(&result.AuthToken, overlay.AuthToken)
	num(&result.MaxSegmentDays, overlay.MaxSegmentDays)
	num(&result.BatchLimit, overlay.BatchLimit)
	num(&result.StartupTimeoutSeconds, overlay.StartupTimeoutSeconds)
	str(&result.ReportRole, overlay.ReportRole)
	str(&result.Listen, overlay.Listen)
	str(&result.LogLevel, overlay.LogLevel)
	str(&result.Timezone, overlay.Timezone)
	str(&result.ExportDir, overlay.ExportDir)

	return &result
}

// ApplyEnv overrides cfg from TICKTACK_* variables found by lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"APP_ID":      &cfg.AppID,
		"DB_PATH":     &cfg.DBPath,
		"USER_ID":     &cfg.UserID,
		"AUTH_TOKEN":  &cfg.AuthToken,
		"REPORT_ROLE": &cfg.ReportRole,
		"LISTEN":      &cfg.Listen,
		"LOG_LEVEL":   &cfg.LogLevel,
		"TIMEZONE":    &cfg.Timezone,
		"EXPORT_DIR":  &cfg.ExportDir,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"MAX_SEGMENT_DAYS":        &cfg.MaxSegmentDays,
		"BATCH_LIMIT":             &cfg.BatchLimit,
		"STARTUP_TIMEOUT_SECONDS": &cfg.StartupTimeoutSeconds,
	}
	for name, dst := range ints {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errors.NewConfig(fmt.Sprintf("%s%s must be an integer, got %q", EnvPrefix, name, v))
		}
		*dst = n
	}
	return nil
}

// Validate reports the first invalid setting as a configuration error.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AppID) == "" {
		return errors.NewConfig("app_id is required")
	}
	if strings.Contains(c.AppID, "/") {
		return errors.NewConfig("app_id must not contain '/'")
	}
	if c.MaxSegmentDays <= 0 {
		return errors.NewConfig("max_segment_days must be positive")
	}
	if c.BatchLimit <= 0 {
		return errors.NewConfig("batch_limit must be positive")
	}
	if c.StartupTimeoutSeconds <= 0 {
		return errors.NewConfig("startup_timeout_seconds must be positive")
	}
	if (c.UserID == "") != (c.AuthToken == "") {
		return errors.NewConfig("user_id and auth_token must be set together")
	}
	if _, err := c.Location(); err != nil {
		return errors.NewConfig(fmt.Sprintf("unknown timezone %q", c.Timezone))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return errors.NewConfig(err.Error())
	}
	return nil
}

// MaxSegment is MaxSegmentDays as a duration.
func (c *Config) MaxSegment() time.Duration {
	return time.Duration(c.MaxSegmentDays) * 24 * time.Hour
}

// StartupTimeout is StartupTimeoutSeconds as a duration.
func (c *Config) StartupTimeout() time.Duration {
	return time.Duration(c.StartupTimeoutSeconds) * time.Second
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Level resolves LogLevel, falling back to info.
func (c *Config) Level() slog.Level {
	lvl, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s)
}
