// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "2s" or "200ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the master configuration for Parley.
type Config struct {
	// Service configures the chat service endpoint.
	Service ServiceConfig `yaml:"service"`

	// Credentials configures the account to sign in as.
	Credentials CredentialsConfig `yaml:"credentials"`

	// Reconnect configures the connection state machine.
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// Request configures the correlated request engine.
	Request RequestConfig `yaml:"request"`

	// Discovery configures the room discovery retry loop.
	Discovery DiscoveryConfig `yaml:"discovery"`

	// Loader configures the history loader queue.
	Loader LoaderConfig `yaml:"loader"`
}

// ServiceConfig locates the chat service.
type ServiceConfig struct {
	// URL is the websocket endpoint, e.g. wss://chat.example.com/ws.
	URL string `yaml:"url"`

	// ConferenceDomain hosts the rooms. Empty derives
	// "conference." + the account domain.
	ConferenceDomain string `yaml:"conference_domain"`
}

// CredentialsConfig identifies the account.
type CredentialsConfig struct {
	// JID is the full account address, e.g. alice@example.com.
	JID string `yaml:"jid"`

	// PasswordFile is the path to the password, or "-" for stdin.
	PasswordFile string `yaml:"password_file"`
}

// ReconnectConfig tunes the connection state machine.
type ReconnectConfig struct {
	// MaxAttempts is the reconnect ceiling for retry loops.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is doubled after each consecutive failure.
	BaseDelay Duration `yaml:"base_delay"`
}

// RequestConfig tunes the correlated request engine.
type RequestConfig struct {
	// Timeout bounds each correlated request.
	Timeout Duration `yaml:"timeout"`
}

// DiscoveryConfig tunes the room discovery retry loop.
type DiscoveryConfig struct {
	// MaxRetries bounds the listing attempts.
	MaxRetries int `yaml:"max_retries"`

	// DelayBetweenRetries separates consecutive attempts.
	DelayBetweenRetries Duration `yaml:"delay_between_retries"`
}

// LoaderConfig tunes the history loader queue.
type LoaderConfig struct {
	// BatchSize bounds concurrent history fetches.
	BatchSize int `yaml:"batch_size"`

	// PageSize is the history page requested per fetch.
	PageSize int `yaml:"page_size"`

	// PollInterval separates scheduling ticks.
	PollInterval Duration `yaml:"poll_interval"`

	// HistoryThreshold is the per-room loaded-message target.
	HistoryThreshold int `yaml:"history_threshold"`

	// ThrottleDelay spaces requests within a batch.
	ThrottleDelay Duration `yaml:"throttle_delay"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Reconnect: ReconnectConfig{
			MaxAttempts: 5,
			BaseDelay:   Duration(2 * time.Second),
		},
		Request: RequestConfig{
			Timeout: Duration(10 * time.Second),
		},
		Discovery: DiscoveryConfig{
			MaxRetries:          10,
			DelayBetweenRetries: Duration(5 * time.Second),
		},
		Loader: LoaderConfig{
			BatchSize:        5,
			PageSize:         10,
			PollInterval:     Duration(time.Second),
			HistoryThreshold: 20,
			ThrottleDelay:    Duration(200 * time.Millisecond),
		},
	}
}

// Load loads configuration from the file named by PARLEY_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv("PARLEY_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("PARLEY_CONFIG environment variable not set; " +
			"set it to the path of your parley.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging
// over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Reconnect.MaxAttempts < 1 {
		return fmt.Errorf("reconnect.max_attempts must be at least 1, got %d", c.Reconnect.MaxAttempts)
	}
	if c.Reconnect.BaseDelay <= 0 {
		return fmt.Errorf("reconnect.base_delay must be positive, got %s", c.Reconnect.BaseDelay.Std())
	}
	if c.Request.Timeout <= 0 {
		return fmt.Errorf("request.timeout must be positive, got %s", c.Request.Timeout.Std())
	}
	if c.Discovery.MaxRetries < 1 {
		return fmt.Errorf("discovery.max_retries must be at least 1, got %d", c.Discovery.MaxRetries)
	}
	if c.Discovery.DelayBetweenRetries < 0 {
		return fmt.Errorf("discovery.delay_between_retries must not be negative, got %s",
			c.Discovery.DelayBetweenRetries.Std())
	}
	if c.Loader.BatchSize < 1 {
		return fmt.Errorf("loader.batch_size must be at least 1, got %d", c.Loader.BatchSize)
	}
	if c.Loader.PageSize < 1 {
		return fmt.Errorf("loader.page_size must be at least 1, got %d", c.Loader.PageSize)
	}
	if c.Loader.PollInterval <= 0 {
		return fmt.Errorf("loader.poll_interval must be positive, got %s", c.Loader.PollInterval.Std())
	}
	if c.Loader.HistoryThreshold < 1 {
		return fmt.Errorf("loader.history_threshold must be at least 1, got %d", c.Loader.HistoryThreshold)
	}
	return nil
}
