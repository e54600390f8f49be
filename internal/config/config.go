package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Redis   RedisConfig
	NATS    NATSConfig
	JWT     JWTConfig
	LLM     LLMConfig
	ComfyUI ComfyUIConfig
	Engine  EngineConfig
	Quota   QuotaConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL     string
	Enabled bool
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// LLMConfig points at an OpenAI-compatible completion endpoint.
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type ComfyUIConfig struct {
	BaseURL string
	Enabled bool
}

// EngineConfig tunes the conversation context window and the adaptive loop.
type EngineConfig struct {
	ContextMaxLength int
	ContextMaxAge    time.Duration
	DecayRate        float64
	ContextLimit     int
	HistoryRetention time.Duration
	SweepInterval    time.Duration
	GenerateTimeout  time.Duration
}

// QuotaConfig bounds per-user chat message volume.
type QuotaConfig struct {
	Enabled           bool
	MessagesPerMinute int
	MessagesPerDay    int
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        k.String("server.host"),
			Port:        k.Int("server.port"),
			CORSOrigins: splitList(k.String("server.cors.origins")),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL:     k.String("nats.url"),
			Enabled: k.Bool("nats.enabled"),
		},
		JWT: JWTConfig{
			AccessSecret:  k.String("jwt.access.secret"),
			RefreshSecret: k.String("jwt.refresh.secret"),
		},
		LLM: LLMConfig{
			BaseURL:     k.String("llm.base.url"),
			APIKey:      k.String("llm.api.key"),
			Model:       k.String("llm.model"),
			Temperature: k.Float64("llm.temperature"),
			MaxTokens:   k.Int("llm.max.tokens"),
		},
		ComfyUI: ComfyUIConfig{
			BaseURL: k.String("comfyui.base.url"),
			Enabled: k.Bool("comfyui.enabled"),
		},
		Engine: EngineConfig{
			ContextMaxLength: k.Int("engine.context.max.length"),
			DecayRate:        k.Float64("engine.decay.rate"),
			ContextLimit:     k.Int("engine.context.limit"),
		},
		Quota: QuotaConfig{
			Enabled:           !k.Exists("quota.enabled") || k.Bool("quota.enabled"),
			MessagesPerMinute: k.Int("quota.messages.per.minute"),
			MessagesPerDay:    k.Int("quota.messages.per.day"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "kindred"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "kindred"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:1234/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "local-model"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 500
	}
	if cfg.ComfyUI.BaseURL == "" {
		cfg.ComfyUI.BaseURL = "http://localhost:8188"
	}
	if cfg.Engine.ContextMaxLength == 0 {
		cfg.Engine.ContextMaxLength = 100
	}
	if cfg.Engine.DecayRate == 0 {
		cfg.Engine.DecayRate = 0.05
	}
	if cfg.Engine.ContextLimit == 0 {
		cfg.Engine.ContextLimit = 10
	}
	if cfg.Quota.MessagesPerMinute == 0 {
		cfg.Quota.MessagesPerMinute = 20
	}
	if cfg.Quota.MessagesPerDay == 0 {
		cfg.Quota.MessagesPerDay = 500
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	cfg.JWT.AccessExpiry, err = duration(k, "jwt.access.expiry", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.JWT.RefreshExpiry, err = duration(k, "jwt.refresh.expiry", 168*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.LLM.Timeout, err = duration(k, "llm.timeout", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.Engine.ContextMaxAge, err = duration(k, "engine.context.max.age", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.Engine.HistoryRetention, err = duration(k, "engine.history.retention", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.Engine.SweepInterval, err = duration(k, "engine.sweep.interval", time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.Engine.GenerateTimeout, err = duration(k, "engine.generate.timeout", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func duration(k *koanf.Koanf, key string, fallback time.Duration) (time.Duration, error) {
	raw := k.String(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}
