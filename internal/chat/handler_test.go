package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindred-platform/kindred/internal/auth"
	"github.com/kindred-platform/kindred/internal/characters"
	"github.com/kindred-platform/kindred/internal/engine"
	"github.com/kindred-platform/kindred/internal/llm"
)

type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, _ []engine.Message, _ engine.GenerationOptions) (engine.Message, error) {
	if f.err != nil {
		return engine.Message{}, f.err
	}
	return engine.Message{Role: "assistant", Content: f.reply}, nil
}

type fakeLister struct {
	list *llm.ModelList
	err  error
}

func (f *fakeLister) Models(context.Context) (*llm.ModelList, error) {
	return f.list, f.err
}

type fakeCharacterRepo struct {
	byID   map[uuid.UUID]*characters.Character
	byType map[string]*characters.Character
}

func newFakeCharacterRepo() *fakeCharacterRepo {
	return &fakeCharacterRepo{
		byID:   make(map[uuid.UUID]*characters.Character),
		byType: make(map[string]*characters.Character),
	}
}

func (r *fakeCharacterRepo) Create(_ context.Context, c *characters.Character) error {
	r.byID[c.ID] = c
	r.byType[c.CharacterType] = c
	return nil
}

func (r *fakeCharacterRepo) GetByID(_ context.Context, id uuid.UUID) (*characters.Character, error) {
	return r.byID[id], nil
}

func (r *fakeCharacterRepo) GetByType(_ context.Context, characterType string) (*characters.Character, error) {
	return r.byType[characterType], nil
}

func (r *fakeCharacterRepo) List(_ context.Context, _ characters.ListCharactersParams) ([]*characters.Character, error) {
	out := make([]*characters.Character, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out, nil
}

func (r *fakeCharacterRepo) Count(_ context.Context, _ bool) (int64, error) {
	return int64(len(r.byID)), nil
}

func (r *fakeCharacterRepo) Update(_ context.Context, c *characters.Character) error {
	r.byID[c.ID] = c
	return nil
}

func (r *fakeCharacterRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	delete(r.byID, id)
	return nil
}

func newTestHandler(t *testing.T, completer engine.Completer, lister ModelLister) *Handler {
	t.Helper()

	store, err := engine.NewContextStore(engine.DefaultStoreConfig())
	require.NoError(t, err)
	orch, err := engine.NewOrchestrator(store, engine.NewTriggerMatcher(), completer, nil, nil, engine.Options{})
	require.NoError(t, err)

	characterSvc := characters.NewService(newFakeCharacterRepo())
	require.NoError(t, characterSvc.Seed(context.Background()))

	return NewHandler(orch, characterSvc, nil, nil, nil, lister, "local-model")
}

func authedRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	claims := &auth.AccessClaims{UserID: uuid.New().String()}
	return req.WithContext(context.WithValue(req.Context(), auth.UserClaimsKey, claims))
}

func TestCompletions_ReturnsAssistantReply(t *testing.T) {
	h := newTestHandler(t, &fakeCompleter{reply: "Hello there!"}, nil)

	req := authedRequest(t, http.MethodPost, "/api/v1/chat/completions", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "tell me about your day"}},
	})
	rec := httptest.NewRecorder()
	h.Completions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp CompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "local-model", resp.Model)
	assert.Contains(t, resp.ID, "chatcmpl-")
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Hello there!", resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.False(t, resp.Degraded)
	// default character is adaptive, so a snapshot rides along
	assert.NotNil(t, resp.AdaptiveTraits)
}

func TestCompletions_DegradedWhenCompleterFails(t *testing.T) {
	h := newTestHandler(t, &fakeCompleter{err: context.DeadlineExceeded}, nil)

	req := authedRequest(t, http.MethodPost, "/api/v1/chat/completions", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "tell me about your day"}},
	})
	rec := httptest.NewRecorder()
	h.Completions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp CompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Degraded)
	assert.Equal(t, "I apologize, but I am unable to generate a response at the moment.", resp.Choices[0].Message.Content)
}

func TestCompletions_RejectsUnloadedModel(t *testing.T) {
	lister := &fakeLister{list: &llm.ModelList{Data: []llm.ModelInfo{{ID: "other-model"}}}}
	h := newTestHandler(t, &fakeCompleter{reply: "hi"}, lister)

	req := authedRequest(t, http.MethodPost, "/api/v1/chat/completions", map[string]any{
		"model":    "local-model",
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})
	rec := httptest.NewRecorder()
	h.Completions(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompletions_SkipsModelValidationWhenListerFails(t *testing.T) {
	lister := &fakeLister{err: context.DeadlineExceeded}
	h := newTestHandler(t, &fakeCompleter{reply: "hi"}, lister)

	req := authedRequest(t, http.MethodPost, "/api/v1/chat/completions", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})
	rec := httptest.NewRecorder()
	h.Completions(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCompletions_UnknownCharacter(t *testing.T) {
	h := newTestHandler(t, &fakeCompleter{reply: "hi"}, nil)

	req := authedRequest(t, http.MethodPost, "/api/v1/chat/completions", map[string]any{
		"character_id": uuid.New().String(),
		"messages":     []map[string]string{{"role": "user", "content": "hello"}},
	})
	rec := httptest.NewRecorder()
	h.Completions(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompletions_EmptyMessagesRejected(t *testing.T) {
	h := newTestHandler(t, &fakeCompleter{reply: "hi"}, nil)

	req := authedRequest(t, http.MethodPost, "/api/v1/chat/completions", map[string]any{
		"messages": []map[string]string{},
	})
	rec := httptest.NewRecorder()
	h.Completions(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompletions_RequiresAuth(t *testing.T) {
	h := newTestHandler(t, &fakeCompleter{reply: "hi"}, nil)

	body := bytes.NewBufferString(`{"messages":[{"role":"user","content":"hello"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/completions", body)
	rec := httptest.NewRecorder()
	h.Completions(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCompletions_GenerateImageWithoutServiceRejected(t *testing.T) {
	h := newTestHandler(t, &fakeCompleter{reply: "hi"}, nil)

	req := authedRequest(t, http.MethodPost, "/api/v1/chat/completions", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "generate image a cat in space"}},
	})
	rec := httptest.NewRecorder()
	h.Completions(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractImagePrompt(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"generate image a sunset over the ocean", "a sunset over the ocean"},
		{"Generate Image A Castle", "a castle"},
		{"please generate image a cat", "please  a cat"},
		{"generate image", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractImagePrompt(tt.in))
	}
}

func TestAdaptiveTraits_NeutralBeforeFirstTurn(t *testing.T) {
	h := newTestHandler(t, &fakeCompleter{reply: "hi"}, nil)

	req := authedRequest(t, http.MethodGet, "/api/v1/chat/adaptive-traits", nil)
	rec := httptest.NewRecorder()
	h.AdaptiveTraits(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data engine.TraitSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Zero(t, envelope.Data.Humor)
	assert.Zero(t, envelope.Data.Empathy)
}

func TestContextAndHistoryReflectTurns(t *testing.T) {
	h := newTestHandler(t, &fakeCompleter{reply: "nice to meet you"}, nil)

	req := authedRequest(t, http.MethodPost, "/api/v1/chat/completions", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "good evening, I am new here"}},
	})
	rec := httptest.NewRecorder()
	h.Completions(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// same user, so rebuild the context request with the same claims
	ctxReq := httptest.NewRequest(http.MethodGet, "/api/v1/chat/context", nil).
		WithContext(req.Context())
	ctxRec := httptest.NewRecorder()
	h.Context(ctxRec, ctxReq)
	require.Equal(t, http.StatusOK, ctxRec.Code)

	var ctxEnvelope struct {
		Data []engine.Turn `json:"data"`
	}
	require.NoError(t, json.Unmarshal(ctxRec.Body.Bytes(), &ctxEnvelope))
	require.Len(t, ctxEnvelope.Data, 2)
	assert.Equal(t, "good evening, I am new here", ctxEnvelope.Data[0].Content)
	assert.Equal(t, "nice to meet you", ctxEnvelope.Data[1].Content)

	histReq := httptest.NewRequest(http.MethodGet, "/api/v1/chat/history", nil).
		WithContext(req.Context())
	histRec := httptest.NewRecorder()
	h.History(histRec, histReq)
	require.Equal(t, http.StatusOK, histRec.Code)

	var histEnvelope struct {
		Data []engine.HistoryEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(histRec.Body.Bytes(), &histEnvelope))
	assert.Len(t, histEnvelope.Data, 2)

	clearReq := httptest.NewRequest(http.MethodDelete, "/api/v1/chat/history", nil).
		WithContext(req.Context())
	clearRec := httptest.NewRecorder()
	h.ClearHistory(clearRec, clearReq)
	require.Equal(t, http.StatusOK, clearRec.Code)

	histRec = httptest.NewRecorder()
	h.History(histRec, histReq)
	histEnvelope.Data = nil
	require.NoError(t, json.Unmarshal(histRec.Body.Bytes(), &histEnvelope))
	assert.Empty(t, histEnvelope.Data)
}

func TestHistory_RejectsBadSince(t *testing.T) {
	h := newTestHandler(t, &fakeCompleter{reply: "hi"}, nil)

	req := authedRequest(t, http.MethodGet, "/api/v1/chat/history?since=yesterday", nil)
	rec := httptest.NewRecorder()
	h.History(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory_SinceFilters(t *testing.T) {
	h := newTestHandler(t, &fakeCompleter{reply: "hi"}, nil)

	req := authedRequest(t, http.MethodPost, "/api/v1/chat/completions", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})
	rec := httptest.NewRecorder()
	h.Completions(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	histReq := httptest.NewRequest(http.MethodGet, "/api/v1/chat/history?since="+future, nil).
		WithContext(req.Context())
	histRec := httptest.NewRecorder()
	h.History(histRec, histReq)
	require.Equal(t, http.StatusOK, histRec.Code)

	var envelope struct {
		Data []engine.HistoryEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(histRec.Body.Bytes(), &envelope))
	assert.Empty(t, envelope.Data)
}

func TestModels_ProxiesList(t *testing.T) {
	lister := &fakeLister{list: &llm.ModelList{Data: []llm.ModelInfo{{ID: "local-model", Object: "model"}}}}
	h := newTestHandler(t, &fakeCompleter{reply: "hi"}, lister)

	req := authedRequest(t, http.MethodGet, "/api/v1/chat/models", nil)
	rec := httptest.NewRecorder()
	h.Models(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data llm.ModelList `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data.Data, 1)
	assert.Equal(t, "local-model", envelope.Data.Data[0].ID)
}
