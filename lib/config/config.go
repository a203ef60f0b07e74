// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the Updraft server.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Paths configures directory and file locations.
	Paths PathsConfig `yaml:"paths"`

	// Server configures the acquisition HTTP server.
	Server ServerConfig `yaml:"server"`

	// Metrics configures the deployment metrics recorder.
	Metrics MetricsConfig `yaml:"metrics"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths   *PathsConfig   `yaml:"paths,omitempty"`
	Server  *ServerConfig  `yaml:"server,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// PathsConfig configures directory and file locations.
type PathsConfig struct {
	// Root is the base directory for Updraft data.
	Root string `yaml:"root"`

	// State is where runtime state is stored (store snapshots, the
	// metrics database).
	State string `yaml:"state"`

	// Snapshot is the store snapshot file loaded at startup and saved
	// at shutdown. Empty disables snapshot persistence.
	Snapshot string `yaml:"snapshot"`

	// Seed is a JSONC fixture file loaded into an empty store at
	// startup. Empty disables seeding.
	Seed string `yaml:"seed"`
}

// ServerConfig configures the acquisition HTTP server.
type ServerConfig struct {
	// Address is the listen address.
	// Default: :3000
	Address string `yaml:"address"`

	// ShutdownTimeout bounds graceful shutdown, as a Go duration string.
	// Default: 10s
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// MetricsConfig configures the deployment metrics recorder.
type MetricsConfig struct {
	// Enabled turns the SQLite metrics recorder on. When false the
	// server acknowledges status reports without counting them.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the metrics database file.
	// Default: ${UPDRAFT_ROOT}/state/metrics.db
	Path string `yaml:"path"`

	// PoolSize is the SQLite connection pool size.
	// Default: 4
	PoolSize int `yaml:"pool_size"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "updraft")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:  defaultRoot,
			State: filepath.Join(defaultRoot, "state"),
		},
		Server: ServerConfig{
			Address:         ":3000",
			ShutdownTimeout: "10s",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Path:     filepath.Join(defaultRoot, "state", "metrics.db"),
			PoolSize: 4,
		},
	}
}

// Load loads configuration from the UPDRAFT_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if UPDRAFT_CONFIG is not set, this fails.
// This ensures deterministic, auditable configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("UPDRAFT_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("UPDRAFT_CONFIG environment variable not set; " +
			"set it to the path of your updraft.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values - this ensures deterministic, auditable configuration.
// The only expansion performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.State != "" {
			c.Paths.State = overrides.Paths.State
		}
		if overrides.Paths.Snapshot != "" {
			c.Paths.Snapshot = overrides.Paths.Snapshot
		}
		if overrides.Paths.Seed != "" {
			c.Paths.Seed = overrides.Paths.Seed
		}
	}

	if overrides.Server != nil {
		if overrides.Server.Address != "" {
			c.Server.Address = overrides.Server.Address
		}
		if overrides.Server.ShutdownTimeout != "" {
			c.Server.ShutdownTimeout = overrides.Server.ShutdownTimeout
		}
	}

	if overrides.Metrics != nil {
		// Enabled is a bool, so we always apply it from overrides.
		c.Metrics.Enabled = overrides.Metrics.Enabled
		if overrides.Metrics.Path != "" {
			c.Metrics.Path = overrides.Metrics.Path
		}
		if overrides.Metrics.PoolSize != 0 {
			c.Metrics.PoolSize = overrides.Metrics.PoolSize
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"UPDRAFT_ROOT": c.Paths.Root,
		"HOME":         os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["UPDRAFT_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Snapshot = expandVars(c.Paths.Snapshot, vars)
	c.Paths.Seed = expandVars(c.Paths.Seed, vars)
	c.Metrics.Path = expandVars(c.Metrics.Path, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	if c.Server.Address == "" {
		errs = append(errs, fmt.Errorf("server.address is required"))
	}

	if c.Server.ShutdownTimeout != "" {
		if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
			errs = append(errs, fmt.Errorf("server.shutdown_timeout: %w", err))
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Path == "" {
			errs = append(errs, fmt.Errorf("metrics.path is required when metrics are enabled"))
		}
		if c.Metrics.PoolSize < 1 {
			errs = append(errs, fmt.Errorf("metrics.pool_size must be at least 1"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.State,
	}
	if c.Paths.Snapshot != "" {
		paths = append(paths, filepath.Dir(c.Paths.Snapshot))
	}
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		paths = append(paths, filepath.Dir(c.Metrics.Path))
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
