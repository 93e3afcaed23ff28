package config

import (
	"testing"
	"time"

	"github.com/dropwing/dropwing-go/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.IsTest = true
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DROPWING_API_BASE_URL", "https://api.dropwing.example")
	t.Setenv("DROPWING_REALTIME_URL", "wss://realtime.dropwing.example/socket")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 10*time.Second, cfg.API.RequestTimeout)
	assert.Equal(t, 20, cfg.API.PageSize)
	assert.Equal(t, 20*time.Second, cfg.Realtime.HandshakeTimeout)
	assert.Equal(t, time.Second, cfg.Realtime.ReconnectDelay)
	assert.Equal(t, 5, cfg.Realtime.MaxReconnectAttempts)
	assert.Equal(t, "en", cfg.Language.Default)
	assert.Equal(t, 5*time.Minute, cfg.Sync.ReconcileInterval)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DROPWING_ENVIRONMENT", "production")
	t.Setenv("DROPWING_REALTIME_MAX_RECONNECT_ATTEMPTS", "3")
	t.Setenv("DROPWING_REALTIME_RECONNECT_DELAY", "2s")
	t.Setenv("DROPWING_LANGUAGE_DEFAULT", "ar")
	t.Setenv("DROPWING_STORE_DIR", "/tmp/dropwing-test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 3, cfg.Realtime.MaxReconnectAttempts)
	assert.Equal(t, 2*time.Second, cfg.Realtime.ReconnectDelay)
	assert.Equal(t, "ar", cfg.Language.Default)
	assert.Equal(t, "/tmp/dropwing-test/session", cfg.Store.SessionPath())
	assert.Equal(t, "/tmp/dropwing-test/session.key", cfg.Store.KeyPath())
	assert.Equal(t, "/tmp/dropwing-test/language", cfg.Store.LanguagePath())
}

func TestLoadConfig_DerivesPollURL(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://api.dropwing.example/api/realtime/poll", cfg.Realtime.PollURL)
}

func TestLoadConfig_ExplicitPollURLWins(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DROPWING_REALTIME_POLL_URL", "https://poll.dropwing.example/events")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://poll.dropwing.example/events", cfg.Realtime.PollURL)
}

func TestLoadConfig_MissingBaseURL(t *testing.T) {
	t.Setenv("DROPWING_API_BASE_URL", "")
	t.Setenv("DROPWING_REALTIME_URL", "wss://realtime.dropwing.example/socket")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_MissingRealtimeURL(t *testing.T) {
	t.Setenv("DROPWING_API_BASE_URL", "https://api.dropwing.example")
	t.Setenv("DROPWING_REALTIME_URL", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Environment: EnvDevelopment,
			API: APIConfig{
				BaseURL:        "https://api.dropwing.example",
				RequestTimeout: 10 * time.Second,
				PageSize:       20,
			},
			Realtime: RealtimeConfig{
				URL:                  "wss://realtime.dropwing.example/socket",
				ReconnectDelay:       time.Second,
				MaxReconnectAttempts: 5,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad base url", func(c *Config) { c.API.BaseURL = "::notaurl" }, true},
		{"zero reconnect attempts", func(c *Config) { c.Realtime.MaxReconnectAttempts = 0 }, true},
		{"negative delay", func(c *Config) { c.Realtime.ReconnectDelay = -time.Second }, true},
		{"zero page size", func(c *Config) { c.API.PageSize = 0 }, true},
		{"unknown environment", func(c *Config) { c.Environment = "staging" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
