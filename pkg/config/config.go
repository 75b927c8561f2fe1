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

	"github.com/srg/bleprint/internal/session"
	"github.com/srg/bleprint/internal/transport"
)

// Config holds application configuration
type Config struct {
	LogLevel       string        `yaml:"log_level" default:"info"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	ChunkSize      int           `yaml:"chunk_size" default:"20"`
	ChunkInterval  time.Duration `yaml:"chunk_interval" default:"20ms"`
	QueueSize      int           `yaml:"queue_size" default:"16"`
	AutoConnect    bool          `yaml:"auto_connect" default:"true"`
	OutputFormat   string        `yaml:"output_format" default:"table"` // table, json
	StorePath      string        `yaml:"store_path"`                    // empty: DefaultStorePath()
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkInterval < 0 {
		errs = append(errs, fmt.Errorf("chunk_interval must not be negative, got %s", c.ChunkInterval))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue_size must be positive, got %d", c.QueueSize))
	}
	if c.OutputFormat != "table" && c.OutputFormat != "json" {
		errs = append(errs, fmt.Errorf("output_format must be table or json, got %q", c.OutputFormat))
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level, InfoLevel when unparsable
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// ResolvedStorePath returns StorePath, or DefaultStorePath when unset
func (c *Config) ResolvedStorePath() string {
	if c.StorePath != "" {
		return c.StorePath
	}
	return DefaultStorePath()
}

// DefaultStorePath is store.yaml under the user configuration directory,
// falling back to the working directory.
func DefaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".bleprint", "store.yaml")
	}
	return filepath.Join(dir, "bleprint", "store.yaml")
}

// TransportOptions maps the chunking settings onto transport.Options
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		ChunkSize:     c.ChunkSize,
		ChunkInterval: c.ChunkInterval,
		QueueSize:     c.QueueSize,
	}
}

// SessionOptions maps the connection settings onto session.Options
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		ConnectTimeout: c.ConnectTimeout,
		Transport:      c.TransportOptions(),
	}
}
