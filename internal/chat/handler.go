// Package chat is the HTTP surface of the conversation engine.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kindred-platform/kindred/internal/api"
	"github.com/kindred-platform/kindred/internal/auth"
	"github.com/kindred-platform/kindred/internal/characters"
	"github.com/kindred-platform/kindred/internal/engine"
	"github.com/kindred-platform/kindred/internal/images"
	"github.com/kindred-platform/kindred/internal/llm"
	"github.com/kindred-platform/kindred/internal/quota"
	"github.com/kindred-platform/kindred/internal/sessions"
)

// generateImagePrefix routes a chat message to image generation instead of
// text completion.
const generateImagePrefix = "generate image"

// ModelLister reports which models the completion service has loaded.
type ModelLister interface {
	Models(ctx context.Context) (*llm.ModelList, error)
}

type Handler struct {
	orch         *engine.Orchestrator
	characterSvc *characters.Service
	sessionSvc   *sessions.Service
	imageSvc     *images.Service
	quotaSvc     *quota.Service
	models       ModelLister
	defaultModel string
	validate     *validator.Validate
}

// NewHandler wires the chat surface. sessionSvc, imageSvc, quotaSvc, and
// models may be nil; the matching features then answer with an explicit
// error or are skipped.
func NewHandler(orch *engine.Orchestrator, characterSvc *characters.Service, sessionSvc *sessions.Service, imageSvc *images.Service, quotaSvc *quota.Service, models ModelLister, defaultModel string) *Handler {
	return &Handler{
		orch:         orch,
		characterSvc: characterSvc,
		sessionSvc:   sessionSvc,
		imageSvc:     imageSvc,
		quotaSvc:     quotaSvc,
		models:       models,
		defaultModel: defaultModel,
		validate:     validator.New(),
	}
}

type CompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []engine.Message `json:"messages" validate:"required,min=1"`
	CharacterID *uuid.UUID       `json:"character_id"`
	SessionID   *uuid.UUID       `json:"session_id"`
}

// CompletionResponse mirrors the OpenAI chat completion shape, with the
// adaptive traits snapshot appended.
type CompletionResponse struct {
	ID      string  `json:"id"`
	Object  string  `json:"object"`
	Created int64   `json:"created"`
	Model   string  `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage   `json:"usage"`

	AdaptiveTraits *engine.TraitSnapshot `json:"adaptive_traits,omitempty"`
	Degraded       bool                  `json:"degraded,omitempty"`
}

type Choice struct {
	Index        int            `json:"index"`
	Message      engine.Message `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (h *Handler) Completions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(w, r)
	if !ok {
		return
	}

	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	model := req.Model
	if model == "" {
		model = h.defaultModel
	}
	if !h.modelLoaded(r.Context(), model) {
		api.HandleError(w, api.NewBadRequestError(fmt.Sprintf("model %q is not loaded", model)))
		return
	}

	userText := req.Messages[len(req.Messages)-1].Content
	if strings.TrimSpace(userText) == "" {
		api.HandleError(w, api.NewBadRequestError("message content is empty"))
		return
	}

	character, ok := h.resolveCharacter(w, r, req.CharacterID)
	if !ok {
		return
	}

	if !h.withinQuota(w, r.Context(), userID) {
		return
	}

	if strings.Contains(strings.ToLower(userText), generateImagePrefix) {
		h.completeWithImage(w, r, userID, character, model, userText)
		return
	}

	binding := h.characterSvc.Binding(character)
	outcome := h.orch.HandleTurn(r.Context(), userID.String(), binding, userText)

	if !outcome.Degraded && outcome.Trigger == "" {
		outcome.Text = h.characterSvc.Embellish(character, outcome.Text)
	}

	if req.SessionID != nil && h.sessionSvc != nil {
		assistantText := outcome.Text
		if outcome.Degraded {
			assistantText = ""
		}
		if err := h.sessionSvc.RecordTurn(r.Context(), *req.SessionID, userID, userText, assistantText); err != nil {
			slog.Warn("recording session turn", "session_id", req.SessionID, "error", err)
		}
	}

	if h.quotaSvc != nil && !outcome.Degraded {
		h.quotaSvc.Record(r.Context(), userID)
	}

	api.JSONRaw(w, http.StatusOK, formatCompletion(model, outcome.Text, outcome.Traits, outcome.Degraded))
}

// withinQuota enforces the per-user message allowance. Quota denials answer
// 429; the service fails open on infrastructure errors.
func (h *Handler) withinQuota(w http.ResponseWriter, ctx context.Context, userID uuid.UUID) bool {
	if h.quotaSvc == nil {
		return true
	}
	if err := h.quotaSvc.Check(ctx, userID); err != nil {
		var exceeded *quota.ErrQuotaExceeded
		if errors.As(err, &exceeded) {
			api.HandleError(w, &api.AppError{Code: http.StatusTooManyRequests, Message: exceeded.Detail})
			return false
		}
		slog.Warn("quota check failed, allowing message", "error", err)
	}
	return true
}

// Quota reports the caller's current message usage against the limits.
func (h *Handler) Quota(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(w, r)
	if !ok {
		return
	}
	if h.quotaSvc == nil {
		api.HandleError(w, api.NewNotFoundError("quota tracking is not configured"))
		return
	}

	status, err := h.quotaSvc.Usage(r.Context(), userID)
	if err != nil {
		slog.Error("fetching quota usage", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, status)
}

// completeWithImage answers a "generate image ..." message by queueing the
// render and replying with the retrieval ID in the assistant's voice.
func (h *Handler) completeWithImage(w http.ResponseWriter, r *http.Request, userID uuid.UUID, character *characters.Character, model, userText string) {
	if h.imageSvc == nil {
		api.HandleError(w, api.NewBadRequestError("image generation is not configured"))
		return
	}

	prompt := extractImagePrompt(userText)
	if prompt == "" {
		api.HandleError(w, api.NewBadRequestError("image prompt is empty"))
		return
	}

	img, err := h.imageSvc.Generate(r.Context(), userID, &character.ID, prompt)
	if err != nil {
		slog.Error("generating image from chat", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	text := fmt.Sprintf("I'm generating an image for you based on: '%s'. You can retrieve the image using this ID: %s", prompt, img.PromptID)
	api.JSONRaw(w, http.StatusOK, formatCompletion(model, text, nil, false))
}

func extractImagePrompt(message string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.ToLower(message), generateImagePrefix, ""))
}

func formatCompletion(model, content string, traits *engine.TraitSnapshot, degraded bool) CompletionResponse {
	now := time.Now().Unix()
	return CompletionResponse{
		ID:      fmt.Sprintf("chatcmpl-%d", now),
		Object:  "chat.completion",
		Created: now,
		Model:   model,
		Choices: []Choice{{
			Message:      engine.Message{Role: string(engine.RoleAssistant), Content: content},
			FinishReason: "stop",
		}},
		AdaptiveTraits: traits,
		Degraded:       degraded,
	}
}

// modelLoaded checks the requested model against the completion service. An
// unreachable service skips validation; generation degrades on its own.
func (h *Handler) modelLoaded(ctx context.Context, model string) bool {
	if h.models == nil {
		return true
	}
	list, err := h.models.Models(ctx)
	if err != nil {
		slog.Warn("listing models, skipping validation", "error", err)
		return true
	}
	for _, m := range list.Data {
		if m.ID == model {
			return true
		}
	}
	return false
}

func (h *Handler) AdaptiveTraits(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(w, r)
	if !ok {
		return
	}

	var characterID *uuid.UUID
	if raw := r.URL.Query().Get("character_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid character ID"))
			return
		}
		characterID = &id
	}

	character, ok := h.resolveCharacter(w, r, characterID)
	if !ok {
		return
	}

	snap, _ := h.orch.TraitSnapshot(userID.String(), character.ID.String())
	api.JSON(w, http.StatusOK, snap)
}

func (h *Handler) Context(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(w, r)
	if !ok {
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}

	api.JSON(w, http.StatusOK, h.orch.Context(userID.String(), limit))
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(w, r)
	if !ok {
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid since timestamp, want RFC3339"))
			return
		}
		since = t
	}

	api.JSON(w, http.StatusOK, h.orch.History(userID.String(), since))
}

func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(w, r)
	if !ok {
		return
	}

	h.orch.ClearHistory(userID.String())
	api.JSONMessage(w, http.StatusOK, "history cleared")
}

func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	if h.models == nil {
		api.HandleError(w, api.NewNotFoundError("model listing is not configured"))
		return
	}

	list, err := h.models.Models(r.Context())
	if err != nil {
		slog.Error("listing models", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, list)
}

// resolveCharacter fetches the requested character or falls back to the
// adaptive default, translating failures to API errors.
func (h *Handler) resolveCharacter(w http.ResponseWriter, r *http.Request, id *uuid.UUID) (*characters.Character, bool) {
	character, err := h.lookupCharacter(r, id)
	if err != nil {
		switch {
		case errors.Is(err, errCharacterNotFound):
			api.HandleError(w, api.NewNotFoundError("character not found"))
		case errors.Is(err, errCharacterUnavailable):
			api.HandleError(w, api.NewBadRequestError("character is not available"))
		default:
			slog.Error("resolving character", "error", err)
			api.HandleError(w, api.ErrInternalServer)
		}
		return nil, false
	}
	return character, true
}

var (
	errCharacterNotFound    = errors.New("character not found")
	errCharacterUnavailable = errors.New("character is not available")
)

func (h *Handler) lookupCharacter(r *http.Request, id *uuid.UUID) (*characters.Character, error) {
	if id == nil {
		return h.characterSvc.DefaultCharacter(r.Context())
	}

	character, err := h.characterSvc.GetByID(r.Context(), *id)
	if err != nil {
		return nil, err
	}
	if character == nil {
		return nil, errCharacterNotFound
	}
	if !character.Available {
		return nil, errCharacterUnavailable
	}
	return character, nil
}

func requesterID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrUnauthorized)
		return uuid.Nil, false
	}
	return id, true
}
