// Package config loads and watches the client configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultMaxWallClock = 15 * time.Minute
	defaultHTTPTimeout  = 15 * time.Second
)

var (
	validNameRe  = regexp.MustCompile(`^[a-z0-9][a-z0-9 _-]{0,63}$`)
	invalidChars = regexp.MustCompile(`[^a-z0-9 _-]+`)
)

// PollConfig tunes the status polling engines.
type PollConfig struct {
	IntervalMS     int `yaml:"interval_ms"`
	MaxWallClockMS int `yaml:"max_wall_clock_ms"`
}

// Config is the client configuration.
type Config struct {
	ServerURL     string     `yaml:"server_url"`
	DeviceName    string     `yaml:"device_name"`
	DataDir       string     `yaml:"data_dir"`
	SealKey       string     `yaml:"seal_key"`     // passphrase sealing the refresh token at rest
	UseKeyring    bool       `yaml:"use_keyring"`  // prefer the OS keyring for the refresh token
	HTTPTimeoutMS int        `yaml:"http_timeout_ms"`
	Poll          PollConfig `yaml:"poll"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the config file at path and fills in defaults. A missing file
// yields the defaults rather than an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DeviceName == "" {
		hostname, _ := os.Hostname()
		c.DeviceName = NormalizeDeviceName(hostname)
	} else {
		c.DeviceName = NormalizeDeviceName(c.DeviceName)
	}
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.DataDir = filepath.Join(home, ".papersync")
	}
	if c.HTTPTimeoutMS <= 0 {
		c.HTTPTimeoutMS = int(defaultHTTPTimeout.Milliseconds())
	}
	if c.Poll.IntervalMS <= 0 {
		c.Poll.IntervalMS = int(defaultPollInterval.Milliseconds())
	}
	if c.Poll.MaxWallClockMS <= 0 {
		c.Poll.MaxWallClockMS = int(defaultMaxWallClock.Milliseconds())
	}
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalMS) * time.Millisecond
}

// MaxWallClock returns the polling wall-clock cap as a duration.
func (c *Config) MaxWallClock() time.Duration {
	return time.Duration(c.Poll.MaxWallClockMS) * time.Millisecond
}

// HTTPTimeout returns the per-request HTTP timeout as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

// CredentialPath is where the credential store lives under DataDir.
func (c *Config) CredentialPath() string {
	return filepath.Join(c.DataDir, "credential.json")
}

// HistoryPath is where the job history database lives under DataDir.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// NormalizeDeviceName converts a user-provided device name into the form
// the server accepts:
//   - lowercase, max 64 chars
//   - only [a-z0-9 _-]
//   - invalid chars replaced with "-", leading/trailing dashes stripped
//   - empty result falls back to "companion"
func NormalizeDeviceName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "companion"
	}

	lower := strings.ToLower(trimmed)
	if validNameRe.MatchString(lower) {
		return lower
	}

	result := invalidChars.ReplaceAllString(lower, "-")
	result = strings.Trim(result, "-")
	if len(result) > 64 {
		result = result[:64]
	}
	if result == "" {
		return "companion"
	}
	return result
}
