// Package config loads tapkeeper's configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in Dir.
const FileName = "config.yaml"

// Dir returns the tapkeeper config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/tapkeeper if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "tapkeeper"), nil
}

// DataDir returns ~/.tapkeeper, where the ledger and daemon files live.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tapkeeper"), nil
}

// Config is the contents of config.yaml. Every key is optional.
type Config struct {
	// Tap is the tap directory; defaults to the working directory.
	Tap      string   `yaml:"tap"`
	Database string   `yaml:"database"`
	Download Download `yaml:"download"`
	Serve    Serve    `yaml:"serve"`
}

// Download configures artifact fetching.
type Download struct {
	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"`
	Workers   int           `yaml:"workers"`
	CacheSize int           `yaml:"cache_size"`
}

// Serve configures the HTTP index.
type Serve struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Tap: ".",
		Download: Download{
			Timeout:   5 * time.Minute,
			Retries:   3,
			Workers:   4,
			CacheSize: 128,
		},
		Serve: Serve{Addr: "127.0.0.1:8742"},
	}
}

// DefaultPath returns Dir()/config.yaml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads the config at path over the defaults. A missing file is not
// an error. The database path defaults to DataDir()/ledger.db.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	if cfg.Database == "" {
		dir, err := DataDir()
		if err != nil {
			return nil, err
		}
		cfg.Database = filepath.Join(dir, "ledger.db")
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Download.Timeout < 0:
		return fmt.Errorf("download.timeout must not be negative")
	case c.Download.Retries < 0:
		return fmt.Errorf("download.retries must not be negative")
	case c.Download.Workers < 1:
		return fmt.Errorf("download.workers must be at least 1")
	case c.Download.CacheSize < 1:
		return fmt.Errorf("download.cache_size must be at least 1")
	}
	return nil
}
