package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slonopotamus/Atto/internal/protocol"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, protocol.DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultReceiveBufferSize, cfg.Server.ReceiveBufferSize)
	assert.Equal(t, time.Second, cfg.Matchmaker.TickInterval())
	assert.Equal(t, 30*time.Second, cfg.Matchmaker.SessionCooldown())
	assert.Equal(t, DefaultMaxFindResults, cfg.Matchmaker.MaxFindSessionsResults)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, DefaultAPIPort, cfg.API.Port)
	assert.False(t, cfg.MQTT.Enabled)
	assert.True(t, cfg.History.Enabled)

	validation := Validate(cfg)
	assert.True(t, validation.IsValid(), "defaults must validate cleanly: %+v", validation.Errors)
}

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, protocol.DefaultPort, cfg.Server.Port)

	_, err = os.Stat(filepath.Join(dir, DefaultConfigFile))
	assert.NoError(t, err, "a default config file should have been written")
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()

	// A partial file: unspecified fields keep their defaults.
	partial := `{"server": {"port": 12345}, "mqtt": {"enabled": true, "broker_url": "broker.local"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(partial), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Server.Port)
	assert.Equal(t, DefaultReceiveBufferSize, cfg.Server.ReceiveBufferSize)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "broker.local", cfg.MQTT.BrokerURL)
	assert.Equal(t, "atto", cfg.MQTT.TopicPrefix)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{not json"), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	cfg.Server.BuildUniqueID = 77
	cfg.Logging.Level = "debug"
	require.NoError(t, cfg.Save())

	reloaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, int32(77), reloaded.Server.BuildUniqueID)
	assert.Equal(t, "debug", reloaded.Logging.Level)
}

func TestSavedConfigOmitsInternalFields(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	data, err := os.ReadFile(cfg.Path())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"server", "matchmaker", "auth", "api", "mqtt", "history", "logging"} {
		assert.Contains(t, raw, key)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"receive buffer", func(c *Config) { c.Server.ReceiveBufferSize = 0 }, "server.receive_buffer_size"},
		{"tick interval", func(c *Config) { c.Matchmaker.TickIntervalMS = 0 }, "matchmaker.tick_interval_ms"},
		{"find results", func(c *Config) { c.Matchmaker.MaxFindSessionsResults = -1 }, "matchmaker.max_find_sessions_results"},
		{"negative cooldown", func(c *Config) { c.Matchmaker.SessionCooldownSec = -1 }, "matchmaker.session_cooldown_sec"},
		{"api port clash", func(c *Config) { c.API.Port = c.Server.Port }, "api.port"},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.BrokerURL = "" }, "mqtt.broker_url"},
		{"history without path", func(c *Config) { c.History.Path = "" }, "history.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			result := Validate(cfg)
			require.False(t, result.IsValid())

			found := false
			for _, e := range result.Errors {
				if e.Field == tt.field {
					found = true
				}
			}
			assert.True(t, found, "expected an error on field %s, got %+v", tt.field, result.Errors)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Matchmaker.SessionCooldownSec = 0

	result := Validate(cfg)
	assert.True(t, result.IsValid(), "warnings must not block startup")

	fields := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		fields = append(fields, w.Field)
	}
	assert.Contains(t, fields, "matchmaker.session_cooldown_sec")
	assert.Contains(t, fields, "auth.verify_url")
}
