// Package appconfig loads daemon and client configuration from a YAML
// file, layered over built-in defaults, with $VAR expansion in path
// fields.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// Config is the top-level application configuration shared by the
// daemon and the client binaries.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	ShmDir        string        `mapstructure:"shm_dir" yaml:"shm_dir"`
	Daemon        DaemonConfig  `mapstructure:"daemon" yaml:"daemon"`
	Session       SessionConfig `mapstructure:"session" yaml:"session"`
	Logging       LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// DaemonConfig controls the daemon's control channel and housekeeping.
type DaemonConfig struct {
	MaxSessions         int `mapstructure:"max_sessions" yaml:"max_sessions"`
	ScrollbackBytes     int `mapstructure:"scrollback_bytes" yaml:"scrollback_bytes"`
	HeartbeatIntervalMS int `mapstructure:"heartbeat_interval_ms" yaml:"heartbeat_interval_ms"`
	SweepIntervalSec    int `mapstructure:"sweep_interval_seconds" yaml:"sweep_interval_seconds"`
	SweepMaxAgeMin      int `mapstructure:"sweep_max_age_minutes" yaml:"sweep_max_age_minutes"`
}

// SessionConfig holds defaults for new sessions.
type SessionConfig struct {
	Shell string `mapstructure:"shell" yaml:"shell"`
	Term  string `mapstructure:"term" yaml:"term"`
	Cols  int    `mapstructure:"cols" yaml:"cols"`
	Rows  int    `mapstructure:"rows" yaml:"rows"`
}

// LoggingConfig controls daemon log output.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// DefaultStateDir returns $DRIFTTERM_HOME, falling back to ~/.driftterm.
func DefaultStateDir() string {
	if d := os.Getenv("DRIFTTERM_HOME"); d != "" {
		return d
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".driftterm")
}

// DefaultConfigPath returns the config file location inside the state dir.
func DefaultConfigPath() string {
	return filepath.Join(DefaultStateDir(), "config.yaml")
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      DefaultStateDir(),
		ShmDir:        "", // empty: pick /dev/shm or the temp dir at runtime
		Daemon: DaemonConfig{
			MaxSessions:         64,
			ScrollbackBytes:     1024 * 1024,
			HeartbeatIntervalMS: 1000,
			SweepIntervalSec:    60,
			SweepMaxAgeMin:      5,
		},
		Session: SessionConfig{
			Shell: shell,
			Term:  "xterm-256color",
			Cols:  80,
			Rows:  24,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// SocketPath returns the control socket location.
func (c Config) SocketPath() string { return filepath.Join(c.StateDir, "driftd.sock") }

// PidPath returns the daemon pidfile location.
func (c Config) PidPath() string { return filepath.Join(c.StateDir, "driftd.pid") }

// LogPath returns the daemon log file location.
func (c Config) LogPath() string { return filepath.Join(c.StateDir, "driftd.log") }

// WriteDefault writes the built-in configuration to path, creating
// parent directories. It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
