package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kindred-platform/kindred/internal/database"
	"github.com/kindred-platform/kindred/internal/events"
	mw "github.com/kindred-platform/kindred/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Auth handlers
	Register http.HandlerFunc
	Login    http.HandlerFunc
	Refresh  http.HandlerFunc
	Logout   http.HandlerFunc

	// Character handlers
	CreateCharacter  http.HandlerFunc
	ListCharacters   http.HandlerFunc
	GetCharacter     http.HandlerFunc
	UpdateCharacter  http.HandlerFunc
	DeleteCharacter  http.HandlerFunc
	CharacterDetails http.HandlerFunc

	// Chat handlers
	ChatCompletions http.HandlerFunc
	ChatWebSocket   http.HandlerFunc
	AdaptiveTraits  http.HandlerFunc
	ChatContext     http.HandlerFunc
	ChatHistory     http.HandlerFunc
	ClearHistory    http.HandlerFunc
	ListModels      http.HandlerFunc
	ChatQuota       http.HandlerFunc

	// Session handlers
	CreateSession       http.HandlerFunc
	ListSessions        http.HandlerFunc
	GetSession          http.HandlerFunc
	DeleteSession       http.HandlerFunc
	ListSessionMessages http.HandlerFunc
	SessionOwnership    func(http.Handler) http.Handler

	// Feedback handlers
	CreateFeedback http.HandlerFunc
	ListFeedback   http.HandlerFunc

	// Analytics handlers
	ListTurnEvents http.HandlerFunc

	// Image handlers
	GenerateImage http.HandlerFunc
	ListImages    http.HandlerFunc
	GetImage      http.HandlerFunc

	// Auth middleware
	AuthMiddleware func(http.Handler) http.Handler

	// LLM reachability for readiness
	LLMHealthy func() bool
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	AuthRateLimiter    func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, publisher *events.Publisher, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe: always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe checks DB, NATS, and the model endpoint
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"nats":     "healthy",
			"llm":      "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if publisher != nil && !publisher.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if publisher == nil {
			health["nats"] = "not configured"
		}

		// A dead model endpoint degrades responses but the API stays up,
		// so it never flips readiness.
		if h.LLMHealthy != nil && !h.LLMHealthy() {
			health["llm"] = "unreachable"
			health["status"] = "degraded"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes (public), optionally rate-limited
		r.Route("/auth", func(r chi.Router) {
			if cfg.AuthRateLimiter != nil {
				r.Use(cfg.AuthRateLimiter)
			}
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)

			// Protected auth routes
			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/logout", h.Logout)
			})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			// Character catalog
			r.Route("/characters", func(r chi.Router) {
				r.Post("/", h.CreateCharacter)
				r.Get("/", h.ListCharacters)
				r.Get("/details/{characterType}", h.CharacterDetails)

				r.Route("/{characterID}", func(r chi.Router) {
					r.Get("/", h.GetCharacter)
					r.Put("/", h.UpdateCharacter)
					r.Delete("/", h.DeleteCharacter)
				})
			})

			// Chat
			r.Route("/chat", func(r chi.Router) {
				r.Post("/completions", h.ChatCompletions)
				r.Get("/ws", h.ChatWebSocket)
				r.Get("/models", h.ListModels)
				r.Get("/adaptive-traits", h.AdaptiveTraits)
				r.Get("/context", h.ChatContext)
				r.Get("/history", h.ChatHistory)
				r.Delete("/history", h.ClearHistory)
				if h.ChatQuota != nil {
					r.Get("/quota", h.ChatQuota)
				}
			})

			// Sessions
			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", h.CreateSession)
				r.Get("/", h.ListSessions)

				r.Route("/{sessionID}", func(r chi.Router) {
					r.Use(h.SessionOwnership)
					r.Get("/", h.GetSession)
					r.Delete("/", h.DeleteSession)
					r.Get("/messages", h.ListSessionMessages)
				})
			})

			// Feedback
			r.Route("/feedback", func(r chi.Router) {
				r.Post("/", h.CreateFeedback)
				r.Get("/", h.ListFeedback)
			})

			// Turn analytics
			r.Get("/analytics/turns", h.ListTurnEvents)

			// Generated images are registered only when the render backend
			// is configured
			if h.GenerateImage != nil {
				r.Route("/images", func(r chi.Router) {
					r.Post("/generate", h.GenerateImage)
					r.Get("/", h.ListImages)
					r.Get("/{imageID}", h.GetImage)
				})
			} else {
				r.HandleFunc("/images/*", imagesNotConfigured)
				r.HandleFunc("/images", imagesNotConfigured)
			}
		})
	})

	return r
}

func imagesNotConfigured(w http.ResponseWriter, _ *http.Request) {
	HandleError(w, NewBadRequestError("image generation is not configured"))
}
