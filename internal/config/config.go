// Package config loads and persists monpro settings.
//
// Settings come from three layers, later winning: built-in defaults, the
// config file (~/.monpro/config.yaml), and MONPRO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all monpro settings.
type Config struct {
	// DatabaseURL is the Postgres DSN for the remote backend.
	DatabaseURL string `mapstructure:"database_url"`

	// UserID scopes every project operation to one account.
	UserID string `mapstructure:"user_id"`

	// StateDir holds the local store database and daemon logs.
	StateDir string `mapstructure:"state_dir"`

	// ProbeInterval is how often the daemon probes connectivity.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`

	// ForceOffline pins the client offline for testing queue behavior.
	ForceOffline bool `mapstructure:"force_offline"`

	// DropFailedReplays restores the legacy behavior of discarding
	// failed operations instead of requeueing them.
	DropFailedReplays bool `mapstructure:"drop_failed_replays"`

	// DashboardPort is the WebSocket dashboard listen port.
	DashboardPort int `mapstructure:"dashboard_port"`

	// DaemonLogMaxSizeMB caps the daemon log file before rotation.
	DaemonLogMaxSizeMB int `mapstructure:"daemon_log_max_size_mb"`

	// DaemonLogMaxBackups is how many rotated log files to keep.
	DaemonLogMaxBackups int `mapstructure:"daemon_log_max_backups"`
}

// DefaultStateDir returns ~/.monpro, or a relative fallback when the home
// directory cannot be resolved.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".monpro"
	}
	return filepath.Join(home, ".monpro")
}

// StorePath returns the local store database path under the state dir.
func (c *Config) StorePath() string {
	return filepath.Join(c.StateDir, "monpro.db")
}

// DaemonLogPath returns the daemon log file path under the state dir.
func (c *Config) DaemonLogPath() string {
	return filepath.Join(c.StateDir, "daemon.log")
}

// Validate checks that the settings needed for remote operation are set.
func (c *Config) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user_id is not set; run 'monpro login' first")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is not set; run 'monpro login' first")
	}
	return nil
}

func newViper(stateDir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(stateDir)

	v.SetEnvPrefix("MONPRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so environment-only values survive
	// Unmarshal.
	v.SetDefault("database_url", "")
	v.SetDefault("user_id", "")
	v.SetDefault("state_dir", stateDir)
	v.SetDefault("probe_interval", 15*time.Second)
	v.SetDefault("force_offline", false)
	v.SetDefault("drop_failed_replays", false)
	v.SetDefault("dashboard_port", 8990)
	v.SetDefault("daemon_log_max_size_mb", 10)
	v.SetDefault("daemon_log_max_backups", 3)

	return v
}

// Load reads the configuration from the default state directory. A missing
// config file is not an error; defaults and environment variables still
// apply.
func Load() (*Config, error) {
	return LoadFrom(DefaultStateDir())
}

// LoadFrom reads the configuration rooted at stateDir.
func LoadFrom(stateDir string) (*Config, error) {
	v := newViper(stateDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.StateDir == "" {
		cfg.StateDir = stateDir
	}
	return &cfg, nil
}

// Save writes the configuration to <state_dir>/config.yaml, creating the
// state directory if needed.
func Save(cfg *Config) error {
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir()
	}
	if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	v := newViper(cfg.StateDir)
	v.Set("database_url", cfg.DatabaseURL)
	v.Set("user_id", cfg.UserID)
	v.Set("state_dir", cfg.StateDir)
	v.Set("probe_interval", cfg.ProbeInterval)
	v.Set("force_offline", cfg.ForceOffline)
	v.Set("drop_failed_replays", cfg.DropFailedReplays)
	v.Set("dashboard_port", cfg.DashboardPort)
	v.Set("daemon_log_max_size_mb", cfg.DaemonLogMaxSizeMB)
	v.Set("daemon_log_max_backups", cfg.DaemonLogMaxBackups)

	path := filepath.Join(cfg.StateDir, "config.yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
