package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/kindred-platform/kindred/internal/analytics"
	"github.com/kindred-platform/kindred/internal/api"
	"github.com/kindred-platform/kindred/internal/auth"
	"github.com/kindred-platform/kindred/internal/characters"
	"github.com/kindred-platform/kindred/internal/chat"
	"github.com/kindred-platform/kindred/internal/config"
	"github.com/kindred-platform/kindred/internal/database"
	"github.com/kindred-platform/kindred/internal/engine"
	"github.com/kindred-platform/kindred/internal/events"
	"github.com/kindred-platform/kindred/internal/feedback"
	"github.com/kindred-platform/kindred/internal/images"
	"github.com/kindred-platform/kindred/internal/llm"
	"github.com/kindred-platform/kindred/internal/middleware"
	"github.com/kindred-platform/kindred/internal/nlp"
	"github.com/kindred-platform/kindred/internal/quota"
	iredis "github.com/kindred-platform/kindred/internal/redis"
	"github.com/kindred-platform/kindred/internal/server"
	"github.com/kindred-platform/kindred/internal/sessions"
	"github.com/kindred-platform/kindred/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS JetStream (optional)
	var publisher *events.Publisher
	var natsJS jetstream.JetStream
	if cfg.NATS.Enabled {
		natsClient, err := events.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = events.NewPublisher(natsClient)
		natsJS = natsClient.JetStream()
	}

	// Turn analytics: consumes the event stream back into Postgres
	analyticsRepo := analytics.NewRepository(pool)
	analyticsHandler := analytics.NewHandler(analyticsRepo)
	if cfg.NATS.Enabled && publisher != nil {
		consumer := analytics.NewConsumer(analyticsRepo, events.NewConsumerManager(natsJS))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("turn event consumer stopped", "error", err)
			}
		}()
	}

	// Auth
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(jwtManager, redisClient)
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo)
	authHandler := auth.NewHandler(authSvc, userSvc)

	// Language model
	llmClient := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: cfg.LLM.Timeout,
	})
	analyzer := nlp.NewAnalyzer(llmClient, cfg.LLM.Model)

	// Conversation engine
	store, err := engine.NewContextStore(engine.StoreConfig{
		MaxLength: cfg.Engine.ContextMaxLength,
		MaxAge:    cfg.Engine.ContextMaxAge,
		DecayRate: cfg.Engine.DecayRate,
	})
	if err != nil {
		slog.Error("building context store", "error", err)
		os.Exit(1)
	}

	var sink engine.EventSink
	if publisher != nil {
		sink = publisher
	}
	orch, err := engine.NewOrchestrator(store, engine.NewTriggerMatcher(), llmClient, analyzer, sink, engine.Options{
		Generation: engine.GenerationOptions{
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		},
		ContextLimit:      cfg.Engine.ContextLimit,
		GenerateTimeout:   cfg.Engine.GenerateTimeout,
		AdjustTemperature: nlp.TemperatureFor,
	})
	if err != nil {
		slog.Error("building orchestrator", "error", err)
		os.Exit(1)
	}

	sweeper, err := engine.NewSweeper(store, engine.SweeperConfig{
		Interval:  cfg.Engine.SweepInterval,
		Retention: cfg.Engine.HistoryRetention,
	})
	if err != nil {
		slog.Error("building sweeper", "error", err)
		os.Exit(1)
	}
	go sweeper.Run(ctx)

	// Characters
	characterRepo := characters.NewRepository(pool)
	characterSvc := characters.NewService(characterRepo)
	if err := characterSvc.Seed(ctx); err != nil {
		slog.Error("seeding characters", "error", err)
		os.Exit(1)
	}
	characterHandler := characters.NewHandler(characterSvc)

	// Sessions
	sessionRepo := sessions.NewRepository(pool)
	sessionSvc := sessions.NewService(sessionRepo)
	sessionHandler := sessions.NewHandler(sessionSvc)

	// Images (optional)
	var imageSvc *images.Service
	var imageHandler *images.Handler
	if cfg.ComfyUI.Enabled {
		comfy := images.NewComfyClient(cfg.ComfyUI.BaseURL)
		imageRepo := images.NewRepository(pool)
		imageSvc = images.NewService(comfy, imageRepo, publisher)
		imageHandler = images.NewHandler(imageSvc)

		poller := images.NewPoller(comfy, imageRepo, publisher, 15*time.Second)
		go poller.Run(ctx)
	}

	// Feedback
	feedbackRepo := feedback.NewRepository(pool)
	feedbackSvc := feedback.NewService(feedbackRepo, sessionSvc, publisher)
	feedbackHandler := feedback.NewHandler(feedbackSvc)

	// Quotas (optional)
	var quotaSvc *quota.Service
	if cfg.Quota.Enabled {
		quotaSvc = quota.NewService(quota.NewRepository(pool), quota.NewLimiter(redisClient), quota.Limits{
			PerMinute: cfg.Quota.MessagesPerMinute,
			PerDay:    cfg.Quota.MessagesPerDay,
		})
	}

	// Chat
	chatHandler := chat.NewHandler(orch, characterSvc, sessionSvc, imageSvc, quotaSvc, llmClient, cfg.LLM.Model)

	authLimiter := middleware.NewRateLimiter(redisClient, 10, 60)

	handlers := api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,

		CreateCharacter:  characterHandler.Create,
		ListCharacters:   characterHandler.List,
		GetCharacter:     characterHandler.Get,
		UpdateCharacter:  characterHandler.Update,
		DeleteCharacter:  characterHandler.Delete,
		CharacterDetails: characterHandler.Details,

		ChatCompletions: chatHandler.Completions,
		ChatWebSocket:   chatHandler.WebSocket,
		AdaptiveTraits:  chatHandler.AdaptiveTraits,
		ChatContext:     chatHandler.Context,
		ChatHistory:     chatHandler.History,
		ClearHistory:    chatHandler.ClearHistory,
		ListModels:      chatHandler.Models,
		ChatQuota:       chatHandler.Quota,

		CreateSession:       sessionHandler.Create,
		ListSessions:        sessionHandler.List,
		GetSession:          sessionHandler.Get,
		DeleteSession:       sessionHandler.Delete,
		ListSessionMessages: sessionHandler.ListMessages,
		SessionOwnership:    sessionHandler.OwnershipMiddleware,

		CreateFeedback: feedbackHandler.Create,
		ListFeedback:   feedbackHandler.List,

		ListTurnEvents: analyticsHandler.ListTurns,

		AuthMiddleware: auth.Middleware(authSvc),

		LLMHealthy: llmHealthCheck(llmClient),
	}
	if imageHandler != nil {
		handlers.GenerateImage = imageHandler.Generate
		handlers.ListImages = imageHandler.List
		handlers.GetImage = imageHandler.Get
	}

	router := api.NewRouter(pool, publisher, api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		AuthRateLimiter:    authLimiter.Middleware,
	}, handlers)

	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// llmHealthCheck probes the completion service's model list with a short
// deadline. Failures degrade readiness output without failing the probe.
func llmHealthCheck(client *llm.Client) func() bool {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := client.Models(ctx)
		return err == nil
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
