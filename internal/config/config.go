// Package config loads the optional .modelsync.yaml file of a project.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the project root.
const FileName = ".modelsync.yaml"

// Defaults.
const (
	DefaultConfigDir       = ".idea"
	DefaultGlobalLoadDelay = 2 * time.Second
)

// Config is the project configuration.
type Config struct {
	// ConfigDir is the configuration directory relative to the project root.
	ConfigDir string `yaml:"config_dir,omitempty"`
	// ExternalStorage enables the external/ subtree for imported entities.
	ExternalStorage bool `yaml:"external_storage,omitempty"`

	// UnloadedModules names modules kept in the unloaded partition.
	UnloadedModules []string `yaml:"unloaded_modules,omitempty"`
	// UnloadedRule is a Risor expression over the global name.
	UnloadedRule string `yaml:"unloaded_rule,omitempty"`

	// Cache is the path of the SQLite snapshot cache, relative to the
	// project root. Empty disables caching.
	Cache string `yaml:"cache,omitempty"`

	// GlobalDir holds the shared SDK and application library tables.
	GlobalDir string `yaml:"global_dir,omitempty"`
	// GlobalLoadDelay is the minimum delay before the shared tables load.
	// Format: Go duration string (e.g. "2s").
	GlobalLoadDelay string `yaml:"global_load_delay,omitempty"`

	// VolatileComponents are ignored by the round-trip verifier.
	VolatileComponents []string `yaml:"volatile_components,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{ConfigDir: DefaultConfigDir}
}

// Load reads path. A directory is searched for FileName; a missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}
	if info.IsDir() {
		path = filepath.Join(path, FileName)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a configuration document and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = DefaultConfigDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields that have a fixed format.
func (c *Config) Validate() error {
	if filepath.IsAbs(c.ConfigDir) || strings.HasPrefix(filepath.ToSlash(c.ConfigDir), "../") {
		return fmt.Errorf("config_dir %q must be inside the project", c.ConfigDir)
	}
	if c.GlobalLoadDelay != "" {
		if _, err := time.ParseDuration(c.GlobalLoadDelay); err != nil {
			return fmt.Errorf("global_load_delay: %w", err)
		}
	}
	if c.LogLevel != "" {
		if _, err := ParseLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// GetGlobalLoadDelay returns the configured delay or the default.
func (c *Config) GetGlobalLoadDelay() time.Duration {
	if c == nil || c.GlobalLoadDelay == "" {
		return DefaultGlobalLoadDelay
	}
	d, err := time.ParseDuration(c.GlobalLoadDelay)
	if err != nil {
		return DefaultGlobalLoadDelay
	}
	return d
}

// CachePath resolves Cache against root. It is empty when caching is off.
func (c *Config) CachePath(root string) string {
	if c == nil || c.Cache == "" {
		return ""
	}
	if filepath.IsAbs(c.Cache) {
		return c.Cache
	}
	return filepath.Join(root, c.Cache)
}

// GetLogLevel returns the configured level, Info when unset.
func (c *Config) GetLogLevel() slog.Level {
	if c == nil || c.LogLevel == "" {
		return slog.LevelInfo
	}
	lvl, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", s, err)
	}
	return lvl, nil
}
