// Package config provides configuration management for karidf.
// It loads the YAML configuration file, fills in defaults and validates the result.
// Command line flags override individual values after loading.
package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	"github.com/benzinger-icl/karidf-scripts/pkg/fsutil"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	// Archive connection
	Archive ArchiveConfig `yaml:"archive"`

	// General settings
	Settings Settings `yaml:"settings"`

	// Hook scripts
	Hooks HooksConfig `yaml:"hooks,omitempty"`
}

// ArchiveConfig describes the archive to retrieve from.
type ArchiveConfig struct {
	SiteURL     string        `yaml:"site_url"`
	User        string        `yaml:"user,omitempty"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	// OpenAttempts bounds the retries of session acquisition on transient failures.
	OpenAttempts uint `yaml:"open_attempts"`
}

// Settings represents general application settings.
type Settings struct {
	DestinationDir string `yaml:"destination_dir,omitempty"`
	LogDir         string `yaml:"log_dir,omitempty"`
	StateDir       string `yaml:"state_dir,omitempty"`
	CreateLogs     bool   `yaml:"create_logs"`
	Concurrency    int    `yaml:"concurrency"`
	MetricsFile    string `yaml:"metrics_file,omitempty"`

	// Output settings
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json
}

// HooksConfig points at optional Tengo scripts.
type HooksConfig struct {
	PostResource string `yaml:"post_resource,omitempty"`
	PostRun      string `yaml:"post_run,omitempty"`
}

// Default configuration values.
const (
	// DefaultSiteURL is the archive the original download tools target.
	DefaultSiteURL = "https://cnda.wustl.edu"

	// DefaultHTTPTimeout is the default timeout for HTTP requests. Downloads of whole
	// scans can take long, so it is generous.
	DefaultHTTPTimeout = 30 * time.Minute

	// DefaultOpenAttempts is the default number of session acquisition attempts.
	DefaultOpenAttempts = 3

	// DefaultConcurrency processes subjects one after the other.
	DefaultConcurrency = 1

	// MaxConcurrency bounds the subject-level parallelism.
	MaxConcurrency = 16

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	stateDir, err := fsutil.GetStateDir()
	if err != nil {
		stateDir = filepath.Join(os.TempDir(), fsutil.AppName)
	}

	return &Config{
		Archive: ArchiveConfig{
			SiteURL:      DefaultSiteURL,
			HTTPTimeout:  DefaultHTTPTimeout,
			OpenAttempts: DefaultOpenAttempts,
		},
		Settings: Settings{
			LogDir:      ".",
			StateDir:    stateDir,
			Concurrency: DefaultConcurrency,
			LogLevel:    "info",
			LogFormat:   "text",
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, pkgerrors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, pkgerrors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %s", pkgerrors.ErrConfigParse, err.Error())
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// SaveConfig writes the configuration to path, replacing the file atomically.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return pkgerrors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrInvalidConfigPath, err.Error())
	}

	if err := fsutil.EnsureFileDir(absPath); err != nil {
		return err
	}

	tempPath := absPath + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.FileModePrivate)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create temp config file")
	}

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(YAMLIndent)

	if err := encoder.Encode(c); err != nil {
		_ = file.Close()
		_ = os.Remove(tempPath)
		return pkgerrors.Wrap(err, "failed to encode config")
	}

	_ = encoder.Close()
	_ = file.Close()

	if err := os.Rename(tempPath, absPath); err != nil {
		_ = os.Remove(tempPath)
		return pkgerrors.Wrap(err, "failed to replace config file")
	}

	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to marshal config")
	}
	return data, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return pkgerrors.ErrConfigValidation
	}
	if err := validateArchive(c.Archive); err != nil {
		return fmt.Errorf("%w: %w", pkgerrors.ErrConfigValidation, err)
	}
	if err := validateSettings(c.Settings); err != nil {
		return fmt.Errorf("%w: %w", pkgerrors.ErrConfigValidation, err)
	}
	return nil
}

func validateArchive(a ArchiveConfig) error {
	if a.SiteURL != "" {
		u, err := url.Parse(a.SiteURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid site_url %q, must be an http(s) URL", a.SiteURL)
		}
	}
	if a.HTTPTimeout < 0 {
		return fmt.Errorf("http_timeout cannot be negative")
	}
	if a.OpenAttempts < 1 {
		return fmt.Errorf("open_attempts must be at least 1")
	}
	return nil
}

func validateSettings(s Settings) error {
	if s.Concurrency < 1 || s.Concurrency > MaxConcurrency {
		return fmt.Errorf("concurrency must be between 1 and %d", MaxConcurrency)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[s.LogFormat] {
		return fmt.Errorf("invalid log_format '%s', must be one of: text, json", s.LogFormat)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(s.LogLevel)] {
		return fmt.Errorf("invalid log_level '%s', must be one of: debug, info, warn, error", s.LogLevel)
	}
	return nil
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Archive.SiteURL == "" {
		c.Archive.SiteURL = defaults.Archive.SiteURL
	}
	if c.Archive.HTTPTimeout == 0 {
		c.Archive.HTTPTimeout = defaults.Archive.HTTPTimeout
	}
	if c.Archive.OpenAttempts == 0 {
		c.Archive.OpenAttempts = defaults.Archive.OpenAttempts
	}
	if c.Settings.LogDir == "" {
		c.Settings.LogDir = defaults.Settings.LogDir
	}
	if c.Settings.StateDir == "" {
		c.Settings.StateDir = defaults.Settings.StateDir
	}
	if c.Settings.Concurrency == 0 {
		c.Settings.Concurrency = defaults.Settings.Concurrency
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.Settings.LogLevel
	}
	if c.Settings.LogFormat == "" {
		c.Settings.LogFormat = defaults.Settings.LogFormat
	}
}
