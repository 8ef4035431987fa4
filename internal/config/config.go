package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Area matching policies
const (
	AreaMatchExact  = "exact"
	AreaMatchNoCase = "nocase"
)

// Config holds the application configuration
type Config struct {
	Listen             string           `yaml:"listen,omitempty"`
	Timezone           string           `yaml:"timezone,omitempty"`   // Defines "today" (fallback: Africa/Johannesburg)
	Dataset            string           `yaml:"dataset,omitempty"`    // Record dataset served by the API
	AreaMatch          string           `yaml:"area_match,omitempty"` // "exact" (default) or "nocase"
	RefreshCron        string           `yaml:"refresh,omitempty"`    // Cron spec for re-fetching sources; empty disables
	RateLimitPerSec    int              `yaml:"rate_limit_per_sec,omitempty"`
	MachineFriendlyURL string           `yaml:"machine_friendly_url,omitempty"`
	Calendars          []CalendarSource `yaml:"calendars,omitempty"`
	Log                LogConfig        `yaml:"log,omitempty"`
	MQTT               MQTTConfig       `yaml:"mqtt,omitempty"`
}

// CalendarSource is an ICS file fetched by the fetch command
type CalendarSource struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// LogConfig controls structured logging
type LogConfig struct {
	Level   string `yaml:"level,omitempty"` // debug, info, warn, error
	Console bool   `yaml:"console,omitempty"`
}

// MQTTConfig holds MQTT broker configuration for the publish command
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
	Area        string `yaml:"area,omitempty"` // area whose schedule is published
	Days        int    `yaml:"days,omitempty"` // days ahead to publish (fallback: 2)
}

// Load reads the config file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Default returns a starter configuration with every default spelled out
func Default() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Africa/Johannesburg",
		Dataset:     "machine_friendly",
		AreaMatch:   AreaMatchExact,
		RefreshCron: "0 */6 * * *",
		Log:         LogConfig{Level: "info", Console: true},
		MQTT:        MQTTConfig{TopicPrefix: "loadshedding", Days: 2},
	}
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// Validate checks values that have no safe fallback
func (c *Config) Validate() error {
	switch c.AreaMatch {
	case "", AreaMatchExact, AreaMatchNoCase:
	default:
		return fmt.Errorf("invalid area_match %q (expected %s or %s)", c.AreaMatch, AreaMatchExact, AreaMatchNoCase)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}
	for i, src := range c.Calendars {
		if src.Name == "" || src.URL == "" {
			return fmt.Errorf("calendars[%d]: name and url are required", i)
		}
	}
	return nil
}

// GetListen returns the HTTP listen address
func (c *Config) GetListen() string {
	if c.Listen == "" {
		return "127.0.0.1:8080"
	}
	return c.Listen
}

// GetLocation returns the zone that defines calendar days
func (c *Config) GetLocation() *time.Location {
	name := c.Timezone
	if name == "" {
		name = "Africa/Johannesburg"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// GetDataset returns the record dataset name
func (c *Config) GetDataset() string {
	if c.Dataset == "" {
		return "machine_friendly"
	}
	return c.Dataset
}

// FoldAreaCase reports whether area names match case-insensitively
func (c *Config) FoldAreaCase() bool {
	return c.AreaMatch == AreaMatchNoCase
}

// GetRateLimit returns allowed API requests per second, 0 meaning unlimited
func (c *Config) GetRateLimit() int {
	if c.RateLimitPerSec < 0 {
		return 0
	}
	return c.RateLimitPerSec
}

// GetLogLevel returns the configured log level
func (c *Config) GetLogLevel() string {
	if c.Log.Level == "" {
		return "info"
	}
	return c.Log.Level
}

// GetTopicPrefix returns the MQTT topic prefix
func (m MQTTConfig) GetTopicPrefix() string {
	if m.TopicPrefix == "" {
		return "loadshedding"
	}
	return m.TopicPrefix
}

// GetDays returns the number of days ahead to publish
func (m MQTTConfig) GetDays() int {
	if m.Days <= 0 {
		return 2
	}
	return m.Days
}
