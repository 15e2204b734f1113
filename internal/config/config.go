// Package config loads the dcon.yaml configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"dcon/internal/logging"
	"dcon/internal/markup"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for configuration.
const DefaultPath = "dcon.yaml"

// Config holds all dcon configuration.
type Config struct {
	Name   string `yaml:"name"`
	Slogan string `yaml:"slogan"`

	Database DatabaseConfig `yaml:"database"`
	Markup   MarkupConfig   `yaml:"markup"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig selects the SQLite driver and file backing the timeline.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite3 (mattn, cgo) or sqlite (modernc, pure Go)
	Path   string `yaml:"path"`
}

// MarkupConfig configures commentary rendering.
type MarkupConfig struct {
	// Quote lines in untrusted text. Off by default.
	SafeGreentext bool `yaml:"safe_greentext"`
	// Filter trusted output through the tag whitelist.
	SanitizeTrusted bool `yaml:"sanitize_trusted"`
	// Length of commentary excerpts in listings.
	ExcerptLength int `yaml:"excerpt_length"`
	// Untrusted text longer than this many bytes is rendered without
	// decorations. 0 disables the limit.
	MaxInput int `yaml:"max_input"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, console
	File       string          `yaml:"file"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:   "DCoN",
		Slogan: "Slogan goes here",
		Database: DatabaseConfig{
			Driver: "sqlite3",
			Path:   "data/dcon.db",
		},
		Markup: MarkupConfig{
			ExcerptLength: 60,
			MaxInput:      markup.DefaultMaxInput,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		logging.Get(logging.CategoryConfig).Debug("loaded %s", path)
	} else {
		logging.Get(logging.CategoryConfig).Debug("%s not found, using defaults", path)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadDotenv reads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotenv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	logging.Get(logging.CategoryConfig).Info("saved configuration to %s", path)
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	log := logging.Get(logging.CategoryConfig)
	if path := os.Getenv("DCON_DATABASE"); path != "" {
		log.Debug("DCON_DATABASE overrides database.path")
		c.Database.Path = path
	}
	if driver := os.Getenv("DCON_DB_DRIVER"); driver != "" {
		log.Debug("DCON_DB_DRIVER overrides database.driver")
		c.Database.Driver = driver
	}
	if level := os.Getenv("DCON_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks the configuration for values the rest of dcon cannot use.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("database.driver must be sqlite3 or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format %q is not json or console", c.Logging.Format)
	}
	if c.Markup.MaxInput < 0 {
		return fmt.Errorf("markup.max_input must not be negative")
	}
	if c.Markup.ExcerptLength < 0 {
		return fmt.Errorf("markup.excerpt_length must not be negative")
	}
	return nil
}

// RendererOptions returns the markup options for trusted or untrusted text.
func (c *Config) RendererOptions(safe bool) markup.Options {
	if safe {
		return markup.Options{Safe: true, Greentext: c.Markup.SafeGreentext, MaxInput: c.Markup.MaxInput}
	}
	return markup.Options{Greentext: true, Sanitize: c.Markup.SanitizeTrusted}
}

// LoggingOptions converts the logging section for the logging package.
func (c *Config) LoggingOptions() logging.Config {
	return logging.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		Categories: c.Logging.Categories,
	}
}
