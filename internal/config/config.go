// Package config loads gitfs settings from gitfs.toml, GITFS_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/mschirtzinger/gitfs/internal/repo"
)

// FileName is the config file looked up in the repository root and in
// the user config directory.
const FileName = "gitfs.toml"

// EnvPrefix prefixes environment overrides: GITFS_SYNC_STRATEGY=ours.
const EnvPrefix = "GITFS"

// Config is the full gitfs configuration.
type Config struct {
	Identity   IdentityConfig   `mapstructure:"identity"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	History    HistoryConfig    `mapstructure:"history"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"`
	Log        LogConfig        `mapstructure:"log"`
}

// IdentityConfig is the author recorded on sync commits. Empty values
// fall back to git's own user configuration.
type IdentityConfig struct {
	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email"`
}

// SyncConfig controls the worker and its producers.
type SyncConfig struct {
	Strategy       string        `mapstructure:"strategy"`
	Remote         string        `mapstructure:"remote"`
	Branch         string        `mapstructure:"branch"`
	MessagePrefix  string        `mapstructure:"message_prefix"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Debounce       time.Duration `mapstructure:"debounce"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	DisableCommits bool          `mapstructure:"disable_commits"`
	DisableMerges  bool          `mapstructure:"disable_merges"`
	NoVerify       bool          `mapstructure:"no_verify"`
}

type SupervisorConfig struct {
	RestartDelay    time.Duration `mapstructure:"restart_delay"`
	MaxRestartDelay time.Duration `mapstructure:"max_restart_delay"`
	MaxRestarts     int           `mapstructure:"max_restarts"`
}

type HistoryConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Retention time.Duration `mapstructure:"retention"`
}

type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	Verbose    bool   `mapstructure:"verbose"`
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		Sync: SyncConfig{
			Strategy:      "default",
			MessagePrefix: repo.DefaultMessagePrefix,
			Timeout:       2 * time.Second,
			Debounce:      100 * time.Millisecond,
			PollInterval:  30 * time.Second,
		},
		Supervisor: SupervisorConfig{
			RestartDelay:    5 * time.Second,
			MaxRestartDelay: 5 * time.Minute,
		},
		History: HistoryConfig{
			Enabled:   true,
			Retention: 30 * 24 * time.Hour,
		},
		Dashboard: DashboardConfig{
			Addr: "127.0.0.1:7420",
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// setDefaults registers every key so that environment variables are
// honoured by Unmarshal even when no file sets them.
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("identity.name", c.Identity.Name)
	v.SetDefault("identity.email", c.Identity.Email)

	v.SetDefault("sync.strategy", c.Sync.Strategy)
	v.SetDefault("sync.remote", c.Sync.Remote)
	v.SetDefault("sync.branch", c.Sync.Branch)
	v.SetDefault("sync.message_prefix", c.Sync.MessagePrefix)
	v.SetDefault("sync.timeout", c.Sync.Timeout)
	v.SetDefault("sync.debounce", c.Sync.Debounce)
	v.SetDefault("sync.poll_interval", c.Sync.PollInterval)
	v.SetDefault("sync.disable_commits", c.Sync.DisableCommits)
	v.SetDefault("sync.disable_merges", c.Sync.DisableMerges)
	v.SetDefault("sync.no_verify", c.Sync.NoVerify)

	v.SetDefault("supervisor.restart_delay", c.Supervisor.RestartDelay)
	v.SetDefault("supervisor.max_restart_delay", c.Supervisor.MaxRestartDelay)
	v.SetDefault("supervisor.max_restarts", c.Supervisor.MaxRestarts)

	v.SetDefault("history.enabled", c.History.Enabled)
	v.SetDefault("history.retention", c.History.Retention)

	v.SetDefault("dashboard.enabled", c.Dashboard.Enabled)
	v.SetDefault("dashboard.addr", c.Dashboard.Addr)

	v.SetDefault("log.file", c.Log.File)
	v.SetDefault("log.max_size_mb", c.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", c.Log.MaxBackups)
	v.SetDefault("log.verbose", c.Log.Verbose)
}

// NewViper returns a viper instance with defaults, environment binding
// and, if one exists, the config file. An explicit path must exist;
// otherwise gitfs.toml is searched in repoDir and then in the user config
// directory, and a missing file is not an error.
func NewViper(path, repoDir string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("toml")
		if repoDir != "" {
			v.AddConfigPath(repoDir)
		}
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "gitfs"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load is NewViper followed by FromViper.
func Load(path, repoDir string) (*Config, error) {
	v, err := NewViper(path, repoDir)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// Validate reports settings the daemon cannot run with.
func (c *Config) Validate() error {
	if _, err := repo.ParseStrategy(c.Sync.Strategy); err != nil {
		return fmt.Errorf("sync.strategy: %w", err)
	}
	if c.Sync.Timeout <= 0 {
		return fmt.Errorf("sync.timeout must be positive, got %v", c.Sync.Timeout)
	}
	if c.Sync.Debounce < 0 {
		return fmt.Errorf("sync.debounce must not be negative, got %v", c.Sync.Debounce)
	}
	if c.Supervisor.MaxRestarts < 0 {
		return fmt.Errorf("supervisor.max_restarts must not be negative, got %d", c.Supervisor.MaxRestarts)
	}
	if c.Dashboard.Enabled && c.Dashboard.Addr == "" {
		return errors.New("dashboard.addr is required when the dashboard is enabled")
	}
	return nil
}

// WriteDefault writes the default configuration as TOML to path. An
// existing file is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	v := viper.New()
	setDefaults(v, Default())

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "# gitfs configuration. Environment variables %s_<SECTION>_<KEY> override these.\n\n", EnvPrefix)
	if err := toml.NewEncoder(f).Encode(stringifyDurations(v.AllSettings())); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return f.Close()
}

// stringifyDurations renders durations as "2s" so the file reads the way
// viper parses it back.
func stringifyDurations(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, val := range m {
		switch val := val.(type) {
		case time.Duration:
			out[k] = val.String()
		case map[string]interface{}:
			out[k] = stringifyDurations(val)
		default:
			out[k] = val
		}
	}
	return out
}
