package config

import "fmt"

// ValidationIssue is a single problem found in a configuration.
type ValidationIssue struct {
	Field   string
	Message string
}

// ValidationResult aggregates configuration problems. Warnings do not
// prevent startup; errors do.
type ValidationResult struct {
	Errors   []ValidationIssue
	Warnings []ValidationIssue
}

// IsValid reports whether the configuration can be used.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validate checks a configuration for impossible or suspicious values.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d is out of range 1-65535", cfg.Server.Port),
		})
	}
	if cfg.Server.ReceiveBufferSize <= 0 {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "server.receive_buffer_size",
			Message: "receive buffer size must be positive",
		})
	}
	if cfg.Matchmaker.TickIntervalMS <= 0 {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "matchmaker.tick_interval_ms",
			Message: "tick interval must be positive",
		})
	}
	if cfg.Matchmaker.MaxFindSessionsResults <= 0 {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "matchmaker.max_find_sessions_results",
			Message: "max find-sessions results must be positive",
		})
	}
	if cfg.Matchmaker.SessionCooldownSec < 0 {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "matchmaker.session_cooldown_sec",
			Message: "session cooldown cannot be negative",
		})
	}
	if cfg.API.Enabled && (cfg.API.Port < 1 || cfg.API.Port > 65535) {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "api.port",
			Message: fmt.Sprintf("port %d is out of range 1-65535", cfg.API.Port),
		})
	}
	if cfg.API.Enabled && cfg.API.Port == cfg.Server.Port {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "api.port",
			Message: "API port must differ from the matchmaking listen port",
		})
	}
	if cfg.MQTT.Enabled && cfg.MQTT.BrokerURL == "" {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "mqtt.broker_url",
			Message: "MQTT is enabled but no broker URL is configured",
		})
	}
	if cfg.History.Enabled && cfg.History.Path == "" {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "history.path",
			Message: "history is enabled but no database path is configured",
		})
	}
	if cfg.Matchmaker.SessionCooldownSec == 0 {
		result.Warnings = append(result.Warnings, ValidationIssue{
			Field:   "matchmaker.session_cooldown_sec",
			Message: "zero cooldown lets the scheduler re-offer a session before matched players connect",
		})
	}
	if cfg.Auth.VerifyURL == "" {
		result.Warnings = append(result.Warnings, ValidationIssue{
			Field:   "auth.verify_url",
			Message: "no verifier URL configured, platform-ticket logins will be rejected",
		})
	}

	return result
}
