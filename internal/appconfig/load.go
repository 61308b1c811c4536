package appconfig

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Load reads configuration from the provided path layered over the
// defaults. If path is empty, DefaultConfigPath is used. A missing
// file is not an error; the defaults apply.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("shm_dir", cfg.ShmDir)
	v.SetDefault("daemon.max_sessions", cfg.Daemon.MaxSessions)
	v.SetDefault("daemon.scrollback_bytes", cfg.Daemon.ScrollbackBytes)
	v.SetDefault("daemon.heartbeat_interval_ms", cfg.Daemon.HeartbeatIntervalMS)
	v.SetDefault("daemon.sweep_interval_seconds", cfg.Daemon.SweepIntervalSec)
	v.SetDefault("daemon.sweep_max_age_minutes", cfg.Daemon.SweepMaxAgeMin)
	v.SetDefault("session.shell", cfg.Session.Shell)
	v.SetDefault("session.term", cfg.Session.Term)
	v.SetDefault("session.cols", cfg.Session.Cols)
	v.SetDefault("session.rows", cfg.Session.Rows)
	v.SetDefault("logging.level", cfg.Logging.Level)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		// With an explicit config file viper reports a missing file as
		// a plain path error rather than ConfigFileNotFoundError.
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d",
				v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Session.Cols < 1 || cfg.Session.Rows < 1 {
		return fmt.Errorf("session.cols and session.rows must be positive")
	}
	if cfg.Daemon.ScrollbackBytes < 1 {
		return fmt.Errorf("daemon.scrollback_bytes must be positive")
	}
	if cfg.Daemon.HeartbeatIntervalMS < 1 {
		return fmt.Errorf("daemon.heartbeat_interval_ms must be positive")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.ShmDir = expandEnv(cfg.ShmDir)
	cfg.Session.Shell = expandEnv(cfg.Session.Shell)
}

// expandEnv substitutes $VAR references, leaving unknown variables
// intact so errors surface as literal text rather than empty paths.
func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}
