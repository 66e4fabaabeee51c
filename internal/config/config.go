// Package config handles configuration loading, validation, and management for vr369ime.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Version is the current configuration schema version.
const Version = 1

// Commit failure policies for the startup defaults write.
const (
	CommitFailureLog  = "log"
	CommitFailureFail = "fail"
)

// Config holds the complete process configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// DataDir is the root for every derived path. Empty means DataDir().
	DataDir string `toml:"data_dir" json:"data_dir" yaml:"data_dir"`

	// Preferences selects the preference store backend.
	Preferences PreferencesConfig `toml:"preferences" json:"preferences" yaml:"preferences"`

	// Bootstrap configures the startup sequence.
	Bootstrap BootstrapConfig `toml:"bootstrap" json:"bootstrap" yaml:"bootstrap"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// PreferencesConfig holds preference store configuration.
type PreferencesConfig struct {
	// Backend is "sqlite", "file" or "memory".
	Backend string `toml:"backend" json:"backend" yaml:"backend"`

	// Path is the database file (sqlite) or directory (file).
	// Empty derives a path under DataDir.
	Path string `toml:"path" json:"path" yaml:"path"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// BootstrapConfig holds startup sequence configuration.
type BootstrapConfig struct {
	// CommitFailure decides what a failed defaults commit does:
	// "log" logs and continues startup, "fail" aborts startup.
	CommitFailure string `toml:"commit_failure" json:"commit_failure" yaml:"commit_failure"`

	// CrashDir is where fatal startup failures are reported.
	// Empty derives a path under DataDir.
	CrashDir string `toml:"crash_dir" json:"crash_dir" yaml:"crash_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file. Empty derives a path under DataDir.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Preferences: PreferencesConfig{
			Backend:       "sqlite",
			BusyTimeoutMs: 5000,
		},
		Bootstrap: BootstrapConfig{
			CommitFailure: CommitFailureLog,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
	}
}

// DataDir returns the base data directory.
// VR369IME_DATA_DIR overrides the platform default.
func DataDir() string {
	if envDir := os.Getenv("VR369IME_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from the given .env files into the
// process environment without overriding variables that are already set.
// Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with VR369IME_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("VR369IME_DATA_DIR"); v != "" {
		c.DataDir = v
	}

	if v := os.Getenv("VR369IME_PREFS_BACKEND"); v != "" {
		c.Preferences.Backend = v
	}
	if v := os.Getenv("VR369IME_PREFS_PATH"); v != "" {
		c.Preferences.Path = v
	}
	if v := os.Getenv("VR369IME_PREFS_BUSY_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Preferences.BusyTimeoutMs = n
		}
	}

	if v := os.Getenv("VR369IME_COMMIT_FAILURE"); v != "" {
		c.Bootstrap.CommitFailure = v
	}

	if v := os.Getenv("VR369IME_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("VR369IME_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("VR369IME_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
}

// BaseDir returns DataDir, falling back to the process-wide default.
func (c *Config) BaseDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return DataDir()
}

// PreferencesPath returns the backend path, derived under BaseDir when unset.
func (c *Config) PreferencesPath() string {
	if c.Preferences.Path != "" {
		return c.Preferences.Path
	}
	if c.Preferences.Backend == "file" {
		return filepath.Join(c.BaseDir(), "shared_prefs")
	}
	return filepath.Join(c.BaseDir(), "shared_prefs.db")
}

// BusyTimeout returns the SQLite busy timeout.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.Preferences.BusyTimeoutMs) * time.Millisecond
}

// CrashDir returns the crash report directory.
func (c *Config) CrashDir() string {
	if c.Bootstrap.CrashDir != "" {
		return c.Bootstrap.CrashDir
	}
	return filepath.Join(c.BaseDir(), "crashes")
}

// LogFilePath returns the log file path.
func (c *Config) LogFilePath() string {
	if c.Logging.FilePath != "" {
		return c.Logging.FilePath
	}
	return filepath.Join(c.BaseDir(), "logs", "vr369ime.log")
}

// FailOnCommitError reports whether a failed defaults commit aborts startup.
func (c *Config) FailOnCommitError() bool {
	return c.Bootstrap.CommitFailure == CommitFailureFail
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
