package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" default:"error"`

	// ScanDuration bounds a scan, and the search for a peripheral before exploring it.
	ScanDuration time.Duration `yaml:"scan_duration" default:"10s"`

	// IdleTimeout is how long discovery must stay quiet before the attribute tree is considered complete.
	IdleTimeout time.Duration `yaml:"idle_timeout" default:"2s"`

	AllowDuplicates bool   `yaml:"allow_duplicates" default:"false"`
	OutputFormat    string `yaml:"output_format" default:"text"` // text, json
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// DefaultPath returns ~/.config/blescan/config.yaml, or "" when the home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "blescan", "config.yaml")
}

// Load reads a YAML config file over the defaults. When optional is set, a missing
// file yields the defaults.
func Load(path string, optional bool) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.ScanDuration <= 0 {
		return fmt.Errorf("scan_duration must be > 0, got %s", c.ScanDuration)
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be > 0, got %s", c.IdleTimeout)
	}
	switch c.OutputFormat {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("output_format must be %q or %q, got %q", FormatText, FormatJSON, c.OutputFormat)
	}
	return nil
}

// Level returns the configured log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
