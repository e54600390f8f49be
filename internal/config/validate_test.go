package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "kindred",
			Password: "secret", Name: "kindred", SSLMode: "disable", MaxConns: 25,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		JWT: JWTConfig{
			AccessSecret:  "access-secret-that-is-at-least-32-chars!",
			RefreshSecret: "refresh-secret-that-is-at-least-32-chr!",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 168 * time.Hour,
		},
		LLM: LLMConfig{
			BaseURL:     "http://localhost:1234/v1",
			Model:       "local-model",
			Temperature: 0.7,
			MaxTokens:   500,
			Timeout:     5 * time.Minute,
		},
		Engine: EngineConfig{
			ContextMaxLength: 100,
			ContextMaxAge:    15 * time.Minute,
			DecayRate:        0.05,
			ContextLimit:     10,
			HistoryRetention: 24 * time.Hour,
			SweepInterval:    time.Hour,
			GenerateTimeout:  2 * time.Minute,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_JWTAccessSecretTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.AccessSecret = "short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "JWT_ACCESS_SECRET") {
		t.Fatalf("expected JWT_ACCESS_SECRET error, got: %v", err)
	}
}

func TestValidate_JWTRefreshSecretTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.RefreshSecret = "short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "JWT_REFRESH_SECRET") {
		t.Fatalf("expected JWT_REFRESH_SECRET error, got: %v", err)
	}
}

func TestValidate_JWTSecretsMustDiffer(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.AccessSecret = "the-same-secret-that-is-at-least-32-chars!"
	cfg.JWT.RefreshSecret = "the-same-secret-that-is-at-least-32-chars!"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("expected 'must differ' error, got: %v", err)
	}
}

func TestValidate_DBPasswordRequired(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got: %v", err)
	}
}

func TestValidate_InvalidPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.DB.Port = 99999
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected port validation errors")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("expected SERVER_PORT error in: %v", err)
	}
	if !strings.Contains(err.Error(), "DB_PORT") {
		t.Errorf("expected DB_PORT error in: %v", err)
	}
}

func TestValidate_EngineInvariants(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.ContextMaxLength = 0
	cfg.Engine.ContextMaxAge = 0
	cfg.Engine.DecayRate = 1.5
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected engine validation errors")
	}
	for _, substr := range []string{"ENGINE_CONTEXT_MAX_LENGTH", "ENGINE_CONTEXT_MAX_AGE", "ENGINE_DECAY_RATE"} {
		if !strings.Contains(err.Error(), substr) {
			t.Errorf("expected %q in error: %v", substr, err)
		}
	}
}

func TestValidate_DecayRateBoundaries(t *testing.T) {
	for _, rate := range []float64{0, 1} {
		cfg := validConfig()
		cfg.Engine.DecayRate = rate
		if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "ENGINE_DECAY_RATE") {
			t.Errorf("rate %g: expected ENGINE_DECAY_RATE error, got: %v", rate, err)
		}
	}
}

func TestValidate_LLMBaseURLRequired(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.BaseURL = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "LLM_BASE_URL") {
		t.Fatalf("expected LLM_BASE_URL error, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 0},
		DB:     DBConfig{Port: 5432},
		Redis:  RedisConfig{Port: 6379},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}
	errStr := err.Error()
	for _, substr := range []string{"JWT_ACCESS_SECRET", "JWT_REFRESH_SECRET", "DB_PASSWORD", "SERVER_PORT", "ENGINE_DECAY_RATE"} {
		if !strings.Contains(errStr, substr) {
			t.Errorf("expected %q in error: %s", substr, errStr)
		}
	}
}
