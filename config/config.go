// Package config handles loading and validation of SDK configuration from
// environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/dropwing/dropwing-go/logger"
	"github.com/spf13/viper"
)

// Environment represents the running environment (development or production).
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// APIConfig holds REST API connection details.
type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	PageSize       int           `mapstructure:"page_size" yaml:"page_size"`
}

// RealtimeConfig holds the realtime channel address and reconnection policy.
// Reconnection is bounded: after MaxReconnectAttempts the connection is
// surfaced as failed and the client continues in pull-only mode.
type RealtimeConfig struct {
	URL                  string        `mapstructure:"url" yaml:"url"`
	PollURL              string        `mapstructure:"poll_url" yaml:"poll_url"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
	SendBuffer           int           `mapstructure:"send_buffer" yaml:"send_buffer"`
}

// LanguageConfig holds localization settings.
type LanguageConfig struct {
	Default   string `mapstructure:"default" yaml:"default"`
	BundleDir string `mapstructure:"bundle_dir" yaml:"bundle_dir"`
}

// StoreConfig holds file paths for the on-device credential store.
type StoreConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// SessionPath returns the path of the encrypted session file.
func (c StoreConfig) SessionPath() string { return filepath.Join(c.Dir, "session") }

// KeyPath returns the path of the local encryption key.
func (c StoreConfig) KeyPath() string { return filepath.Join(c.Dir, "session.key") }

// LanguagePath returns the path of the persisted language preference.
func (c StoreConfig) LanguagePath() string { return filepath.Join(c.Dir, "language") }

// SyncConfig controls background reconciliation of optimistic local state
// against the authoritative server state.
type SyncConfig struct {
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval" yaml:"reconcile_interval"`
}

// Config is the root configuration object.
type Config struct {
	Environment Environment    `mapstructure:"environment" yaml:"environment"`
	API         APIConfig      `mapstructure:"api" yaml:"api"`
	Realtime    RealtimeConfig `mapstructure:"realtime" yaml:"realtime"`
	Language    LanguageConfig `mapstructure:"language" yaml:"language"`
	Store       StoreConfig    `mapstructure:"store" yaml:"store"`
	Sync        SyncConfig     `mapstructure:"sync" yaml:"sync"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", string(EnvDevelopment))
	v.SetDefault("api.request_timeout", 10*time.Second)
	v.SetDefault("api.page_size", 20)
	v.SetDefault("realtime.handshake_timeout", 20*time.Second)
	v.SetDefault("realtime.reconnect_delay", time.Second)
	v.SetDefault("realtime.max_reconnect_attempts", 5)
	v.SetDefault("realtime.send_buffer", 256)
	v.SetDefault("language.default", "en")
	v.SetDefault("sync.reconcile_interval", 5*time.Minute)

	if home, err := os.UserHomeDir(); err == nil {
		v.SetDefault("store.dir", filepath.Join(home, ".dropwing"))
	} else {
		v.SetDefault("store.dir", ".dropwing")
	}
}

// LoadConfig reads configuration from DROPWING_* environment variables,
// applies defaults, and validates the result.
func LoadConfig() (*Config, error) {
	log := logger.GetLogger()

	v := viper.New()
	v.SetEnvPrefix("DROPWING")
	v.AutomaticEnv()
	setDefaults(v)

	// AutomaticEnv alone does not surface nested keys through Unmarshal, so
	// bind each key explicitly.
	for _, key := range []string{
		"environment",
		"api.base_url", "api.request_timeout", "api.page_size",
		"realtime.url", "realtime.poll_url", "realtime.handshake_timeout",
		"realtime.reconnect_delay", "realtime.max_reconnect_attempts", "realtime.send_buffer",
		"language.default", "language.bundle_dir",
		"store.dir",
		"sync.reconcile_interval",
	} {
		envKey := "DROPWING_" + envName(key)
		if err := v.BindEnv(key, envKey); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", envKey, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Infow("Configuration loaded",
		"environment", cfg.Environment,
		"apiBaseURL", cfg.API.BaseURL,
		"realtimeURL", cfg.Realtime.URL)

	return &cfg, nil
}

func envName(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c == '.' {
			c = '_'
		}
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// Validate checks required fields and derives dependent defaults (the poll
// URL falls back to the REST base URL's realtime poll endpoint).
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required (DROPWING_API_BASE_URL)")
	}
	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		return fmt.Errorf("api.base_url is not a valid URL: %w", err)
	}

	if c.Realtime.URL == "" {
		return fmt.Errorf("realtime.url is required (DROPWING_REALTIME_URL)")
	}
	if c.Realtime.PollURL == "" {
		c.Realtime.PollURL = c.API.BaseURL + "/api/realtime/poll"
	}

	if c.Realtime.MaxReconnectAttempts < 1 {
		return fmt.Errorf("realtime.max_reconnect_attempts must be at least 1")
	}
	if c.Realtime.ReconnectDelay <= 0 {
		return fmt.Errorf("realtime.reconnect_delay must be positive")
	}
	if c.API.PageSize < 1 {
		return fmt.Errorf("api.page_size must be at least 1")
	}

	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}

	return nil
}

// IsProduction reports whether the config targets production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
