// Package config loads the optional .gitcmd YAML file that tunes the host,
// and decodes the launch configuration handed to each execution.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the host configuration file looked up from the workspace upward.
const FileName = ".gitcmd"

// Default values for host configuration.
const (
	DefaultDeadline      = 10 * time.Minute
	DefaultStoreCapacity = 16
)

// Clock names accepted by the clock setting.
const (
	ClockSystem = "system"
	ClockNone   = "none"
)

// Config holds the parsed .gitcmd configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version            int         `yaml:"version"`
	RawDeadline        string      `yaml:"deadline"`   // e.g. "10m"; host gives up after this
	RawMaxOutput       int         `yaml:"max_output"` // bytes per stream, 0 = unlimited
	ValidateRepository bool        `yaml:"validate_repository"`
	RawClock           string      `yaml:"clock"` // system or none
	Log                LogConfig   `yaml:"log"`
	Store              StoreConfig `yaml:"store"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Format string `yaml:"format"` // text or json
	Level  string `yaml:"level"`  // debug, info, warn, error
}

// Store backends accepted by store.backend.
const (
	StoreDisk   = "disk"
	StoreSQLite = "sqlite"
)

// StoreConfig controls where run results are kept for inspection.
type StoreConfig struct {
	Backend  string `yaml:"backend"`  // disk or sqlite
	Capacity int    `yaml:"capacity"` // in-memory LRU entries
	Dir      string `yaml:"dir"`      // defaults to a temp directory
}

// Deadline returns the configured host deadline or the default.
func (c *Config) Deadline() time.Duration {
	if c.RawDeadline != "" {
		d, err := time.ParseDuration(c.RawDeadline)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultDeadline
}

// MaxOutputBytes returns the per-stream output cap. Zero means unlimited.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return 0
}

// StoreCapacity returns the configured LRU capacity or the default.
func (c *Config) StoreCapacity() int {
	if c.Store.Capacity > 0 {
		return c.Store.Capacity
	}
	return DefaultStoreCapacity
}

// StoreBackend returns the configured store backend, falling back to disk.
func (c *Config) StoreBackend() string {
	if c.Store.Backend == StoreSQLite {
		return StoreSQLite
	}
	return StoreDisk
}

// Clock returns the configured clock name, falling back to system.
func (c *Config) Clock() string {
	if c.RawClock == ClockNone {
		return ClockNone
	}
	return ClockSystem
}

// LoadResult holds the parsed config and the file it came from.
type LoadResult struct {
	Config *Config
	Path   string // empty when no .gitcmd file was found
}

// Load looks for a .gitcmd file starting at workspace and walking upward.
// If none exists, a default Config is returned.
func Load(workspace string) (*LoadResult, error) {
	path, err := findConfig(workspace)
	if err != nil {
		return &LoadResult{Config: &Config{}}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	return &LoadResult{Config: cfg, Path: path}, nil
}

// findConfig walks upward from dir looking for a .gitcmd file.
func findConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, FileName)
		if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found", FileName)
		}
		dir = parent
	}
}
