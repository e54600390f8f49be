//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kindred-platform/kindred/internal/analytics"
	"github.com/kindred-platform/kindred/internal/api"
	"github.com/kindred-platform/kindred/internal/auth"
	"github.com/kindred-platform/kindred/internal/characters"
	"github.com/kindred-platform/kindred/internal/chat"
	"github.com/kindred-platform/kindred/internal/engine"
	"github.com/kindred-platform/kindred/internal/feedback"
	"github.com/kindred-platform/kindred/internal/llm"
	"github.com/kindred-platform/kindred/internal/quota"
	"github.com/kindred-platform/kindred/internal/sessions"
	"github.com/kindred-platform/kindred/internal/users"
)

// TestEnv boots the full HTTP stack once per test binary: real Postgres and
// Redis in containers, a stub OpenAI-compatible completion server, and the
// production router on top.
type TestEnv struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Server      *httptest.Server
	LLMServer   *httptest.Server
}

var testEnv *TestEnv

const stubReply = "It sounds like you had quite a day. Tell me more about it."

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "kindred_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/kindred_test?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	m, err := migrate.New(fmt.Sprintf("file://%s", getMigrationsPath()), dsn)
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("running migrations: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	t.Cleanup(func() { redisClient.Close() })

	llmServer := newStubLLMServer()
	t.Cleanup(llmServer.Close)

	// Auth
	jwtManager := auth.NewJWTManager("test-access-secret-32-chars-long!!", "test-refresh-secret-32-chars-long!!", 15*time.Minute, 7*24*time.Hour)
	authSvc := auth.NewService(jwtManager, redisClient)
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo)
	authHandler := auth.NewHandler(authSvc, userSvc)

	// Conversation engine backed by the stub completion server
	llmClient := llm.NewClient(llm.Config{BaseURL: llmServer.URL, Timeout: 5 * time.Second})
	store, err := engine.NewContextStore(engine.DefaultStoreConfig())
	if err != nil {
		t.Fatalf("building context store: %v", err)
	}
	orch, err := engine.NewOrchestrator(store, engine.NewTriggerMatcher(), llmClient, nil, nil, engine.Options{
		Generation: engine.GenerationOptions{
			Model:       "test-model",
			Temperature: 0.7,
			MaxTokens:   256,
		},
		ContextLimit:    20,
		GenerateTimeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("building orchestrator: %v", err)
	}

	// Characters
	characterRepo := characters.NewRepository(pool)
	characterSvc := characters.NewService(characterRepo)
	if err := characterSvc.Seed(ctx); err != nil {
		t.Fatalf("seeding characters: %v", err)
	}
	characterHandler := characters.NewHandler(characterSvc)

	// Sessions
	sessionRepo := sessions.NewRepository(pool)
	sessionSvc := sessions.NewService(sessionRepo)
	sessionHandler := sessions.NewHandler(sessionSvc)

	// Feedback
	feedbackRepo := feedback.NewRepository(pool)
	feedbackSvc := feedback.NewService(feedbackRepo, sessionSvc, nil)
	feedbackHandler := feedback.NewHandler(feedbackSvc)

	// Quotas, with limits high enough that ordinary tests never trip them
	quotaSvc := quota.NewService(quota.NewRepository(pool), quota.NewLimiter(redisClient), quota.Limits{
		PerMinute: 1000,
		PerDay:    10000,
	})

	// Analytics read side (no consumer; the event stream is not running here)
	analyticsHandler := analytics.NewHandler(analytics.NewRepository(pool))

	chatHandler := chat.NewHandler(orch, characterSvc, sessionSvc, nil, quotaSvc, llmClient, "test-model")

	router := api.NewRouter(pool, nil, api.RouterConfig{}, api.HandlerSet{
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
	})

	server := httptest.NewServer(router)
	t.Cleanup(func() { server.Close() })

	testEnv = &TestEnv{
		Pool:        pool,
		RedisClient: redisClient,
		Server:      server,
		LLMServer:   llmServer,
	}

	return testEnv
}

// newStubLLMServer mimics the two endpoints the engine touches.
func newStubLLMServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"id": "test-model", "object": "model"}},
		})
	})
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": stubReply}},
			},
		})
	})
	return httptest.NewServer(mux)
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

// Helper functions

func RegisterUser(t *testing.T, env *TestEnv, username, email, password string) map[string]any {
	t.Helper()
	body := map[string]string{"username": username, "email": email, "password": password}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/register", body, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed: status %d", resp.StatusCode)
	}
	return ParseResponse(t, resp)
}

func LoginUser(t *testing.T, env *TestEnv, email, password string) string {
	t.Helper()
	body := map[string]string{"email": email, "password": password}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/login", body, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: status %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	return data["access_token"].(string)
}

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}
