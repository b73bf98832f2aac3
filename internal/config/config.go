// Package config loads rbrename.toml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultFile is the configuration file looked up in the working
// directory when no path is given.
const DefaultFile = "rbrename.toml"

type Config struct {
	Rename Rename `toml:"rename"`
	Log    Log    `toml:"log"`
	Server Server `toml:"server"`
}

type Rename struct {
	// ConflictsFatal refuses renames that would change the meaning of
	// other code instead of reporting a warning.
	ConflictsFatal bool `toml:"conflicts_fatal"`
}

type Log struct {
	Level string `toml:"level"` // debug, info, warn or error
}

type Server struct {
	// MetricsAddr is the host:port to serve Prometheus metrics on.
	// Empty disables the metrics endpoint.
	MetricsAddr string `toml:"metrics_addr"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the configuration at path. A missing DefaultFile is not an
// error; any other missing path is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a configuration document.
func Parse(data string) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
}

func validate(cfg *Config) error {
	if _, err := parseLevel(cfg.Log.Level); err != nil {
		return err
	}
	if err := CheckMetricsAddr(cfg.Server.MetricsAddr); err != nil {
		return fmt.Errorf("server.metrics_addr %w", err)
	}
	return nil
}

// CheckMetricsAddr reports whether addr is a usable metrics address:
// empty, or host:port.
func CheckMetricsAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(strings.TrimSpace(addr)); err != nil {
		return fmt.Errorf("must be host:port, got %q", addr)
	}
	return nil
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log.level must be one of: debug, info, warn, error, got %q", s)
	}
	return level, nil
}
