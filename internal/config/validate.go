package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secrets
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 characters")
	}
	if c.JWT.AccessSecret != "" && c.JWT.RefreshSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Context engine invariants
	if c.Engine.ContextMaxLength < 1 {
		errs = append(errs, fmt.Sprintf("ENGINE_CONTEXT_MAX_LENGTH must be at least 1, got %d", c.Engine.ContextMaxLength))
	}
	if c.Engine.ContextMaxAge <= 0 {
		errs = append(errs, "ENGINE_CONTEXT_MAX_AGE must be positive")
	}
	if c.Engine.DecayRate <= 0 || c.Engine.DecayRate >= 1 {
		errs = append(errs, fmt.Sprintf("ENGINE_DECAY_RATE must be in (0, 1), got %g", c.Engine.DecayRate))
	}
	if c.Engine.HistoryRetention <= 0 {
		errs = append(errs, "ENGINE_HISTORY_RETENTION must be positive")
	}
	if c.Engine.SweepInterval <= 0 {
		errs = append(errs, "ENGINE_SWEEP_INTERVAL must be positive")
	}

	if c.LLM.BaseURL == "" {
		errs = append(errs, "LLM_BASE_URL is required")
	}

	// API key is optional for local model servers: warn only
	if c.LLM.APIKey == "" {
		slog.Warn("LLM_API_KEY is empty; completion requests are unauthenticated")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
