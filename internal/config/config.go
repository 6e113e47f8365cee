// ABOUTME: Configuration loading and parsing for parley.
// ABOUTME: YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete parley configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Sync    SyncConfig    `yaml:"sync"`
	Session SessionConfig `yaml:"session"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig points at the conversation service.
type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
}

// SyncConfig holds the poll cadence configuration.
type SyncConfig struct {
	ReplyWaitInterval      time.Duration `yaml:"-"`
	PassiveRefreshInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ReplyWaitIntervalRaw      string `yaml:"reply_wait_interval"`
	PassiveRefreshIntervalRaw string `yaml:"passive_refresh_interval"`

	// PushEnabled controls whether the SSE channel is opened at all.
	PushEnabled bool `yaml:"push_enabled"`
}

// SessionConfig holds voice-session defaults.
type SessionConfig struct {
	DefaultTTLSeconds int `yaml:"default_ttl_seconds"`
}

// CacheConfig holds the local snapshot cache configuration.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with all optional fields filled in.
func Default() *Config {
	return &Config{
		Sync: SyncConfig{
			ReplyWaitInterval:      2 * time.Second,
			PassiveRefreshInterval: 3 * time.Second,
			PushEnabled:            true,
		},
		Session: SessionConfig{DefaultTTLSeconds: 600},
		Cache:   CacheConfig{Path: defaultCachePath()},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file and returns a parsed Config. Environment
// variables in the format ${VAR_NAME} are expanded. Duration strings are
// parsed into time.Duration values; omitted fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable
// values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that required fields are present and sane.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Sync.ReplyWaitInterval <= 0 {
		return fmt.Errorf("sync.reply_wait_interval must be positive")
	}
	if c.Sync.PassiveRefreshInterval <= 0 {
		return fmt.Errorf("sync.passive_refresh_interval must be positive")
	}
	if c.Session.DefaultTTLSeconds <= 0 {
		return fmt.Errorf("session.default_ttl_seconds must be positive")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Sync.ReplyWaitIntervalRaw != "" {
		cfg.Sync.ReplyWaitInterval, err = time.ParseDuration(cfg.Sync.ReplyWaitIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing reply_wait_interval %q: %w", cfg.Sync.ReplyWaitIntervalRaw, err)
		}
	}

	if cfg.Sync.PassiveRefreshIntervalRaw != "" {
		cfg.Sync.PassiveRefreshInterval, err = time.ParseDuration(cfg.Sync.PassiveRefreshIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing passive_refresh_interval %q: %w", cfg.Sync.PassiveRefreshIntervalRaw, err)
		}
	}

	return nil
}

func defaultCachePath() string {
	configDir := os.Getenv("XDG_DATA_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "parley.db"
		}
		configDir = home + "/.local/share"
	}
	return configDir + "/parley/cache.db"
}
