// Package config handles configuration loading, validation, and
// persistence for the Atto matchmaking server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/slonopotamus/Atto/internal/protocol"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"

	DefaultAPIPort           = 5000
	DefaultReceiveBufferSize = 1 << 20
	DefaultTickIntervalMS    = 1000
	DefaultCooldownSec       = 30
	DefaultMaxFindResults    = 100
)

// Config is the root configuration structure for Atto.
type Config struct {
	mu   sync.RWMutex
	path string

	Server     ServerConfig     `json:"server"`
	Matchmaker MatchmakerConfig `json:"matchmaker"`
	Auth       AuthConfig       `json:"auth"`
	API        APIConfig        `json:"api"`
	MQTT       MQTTConfig       `json:"mqtt"`
	History    HistoryConfig    `json:"history"`
	Logging    LoggingConfig    `json:"logging"`
}

// ServerConfig holds the WebSocket listener settings.
type ServerConfig struct {
	BindAddress       string `json:"bind_address"`
	Port              int    `json:"port"`
	ReceiveBufferSize int    `json:"receive_buffer_size"`
	BuildUniqueID     int32  `json:"build_unique_id"`
}

// MatchmakerConfig holds scheduler tuning.
type MatchmakerConfig struct {
	TickIntervalMS         int `json:"tick_interval_ms"`
	SessionCooldownSec     int `json:"session_cooldown_sec"`
	MaxFindSessionsResults int `json:"max_find_sessions_results"`
}

// TickInterval returns the scheduler tick cadence.
func (m MatchmakerConfig) TickInterval() time.Duration {
	return time.Duration(m.TickIntervalMS) * time.Millisecond
}

// SessionCooldown returns the grace period applied to a session after it
// is matched.
func (m MatchmakerConfig) SessionCooldown() time.Duration {
	return time.Duration(m.SessionCooldownSec) * time.Second
}

// AuthConfig holds the external platform-ticket verifier settings. When
// VerifyURL is empty, platform-ticket logins are rejected.
type AuthConfig struct {
	VerifyURL  string `json:"verify_url"`
	TimeoutSec int    `json:"timeout_sec"`
}

// APIConfig holds the admin/status REST API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`
	Port        int    `json:"port"`
	UseTLS      bool   `json:"use_tls"`
	CertFile    string `json:"cert_file"`
	KeyFile     string `json:"key_file"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// HistoryConfig holds the match-history audit log settings.
type HistoryConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
	Console    bool   `json:"console"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:       "",
			Port:              protocol.DefaultPort,
			ReceiveBufferSize: DefaultReceiveBufferSize,
		},
		Matchmaker: MatchmakerConfig{
			TickIntervalMS:         DefaultTickIntervalMS,
			SessionCooldownSec:     DefaultCooldownSec,
			MaxFindSessionsResults: DefaultMaxFindResults,
		},
		Auth: AuthConfig{
			TimeoutSec: 10,
		},
		API: APIConfig{
			Enabled:      true,
			Port:         DefaultAPIPort,
			RateLimitRPS: 20,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Port:        8883,
			UseTLS:      true,
			TopicPrefix: "atto",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "data/history.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxBackups: 5,
			Console:    true,
		},
	}
}

// Load reads configuration from a JSON file, creating a default one when
// none exists. Defaults are applied first and overlaid by the file so new
// fields pick up their defaults automatically.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")
	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}
