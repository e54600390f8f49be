package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kindred-platform/kindred/internal/metrics"
)

// degradedResponse is the fixed, character-agnostic apology returned when
// generation fails. The user's own turn is still recorded so the
// conversation stays continuous on retry.
const degradedResponse = "I apologize, but I am unable to generate a response at the moment."

// Message is one entry of an LLM conversation payload.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationOptions parameterize the external completion call.
type GenerationOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Completer is the external language-model collaborator. Implementations may
// fail on network, timeout, or HTTP-status errors; the orchestrator catches
// and degrades instead of propagating.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts GenerationOptions) (Message, error)
}

// Analysis is the black-box sentiment/intent result for one user turn.
type Analysis struct {
	Compound      float64 `json:"compound"`
	Positive      float64 `json:"positive"`
	PrimaryIntent string  `json:"primary_intent"`
}

// Analyzer extracts sentiment and intent from raw text. A failing analyzer
// only skips the profile update for that turn; it is never fatal.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (Analysis, error)
}

// TurnEvent describes one handled turn for analytics consumers.
type TurnEvent struct {
	AuthorID    string         `json:"author_id"`
	CharacterID string         `json:"character_id"`
	Trigger     string         `json:"trigger,omitempty"`
	SmallTalk   bool           `json:"small_talk"`
	Degraded    bool           `json:"degraded"`
	Traits      *TraitSnapshot `json:"traits,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// EventSink receives turn events. A nil sink disables publishing.
type EventSink interface {
	PublishTurn(ctx context.Context, ev TurnEvent) error
}

// Binding ties a conversation to the character answering it.
type Binding struct {
	CharacterID string
	Card        CharacterCard
	// Adaptive characters carry a mutable trait profile; non-adaptive ones
	// have none and are excluded from prompt adaptation.
	Adaptive bool
}

// Outcome is the explicit result of handling one turn. Transient external
// failures surface as Degraded outcomes, never as errors, so callers cannot
// accidentally let them propagate as a crash.
type Outcome struct {
	Text     string         `json:"text"`
	Degraded bool           `json:"degraded"`
	Reason   string         `json:"reason,omitempty"`
	Trigger  string         `json:"trigger,omitempty"`
	Traits   *TraitSnapshot `json:"adaptive_traits,omitempty"`
}

// Options tune the orchestrator.
type Options struct {
	Generation GenerationOptions
	// ContextLimit caps how many resident turns are read back into the
	// prompt; zero means the whole window.
	ContextLimit int
	// GenerateTimeout bounds the external completion call. Zero disables
	// the orchestrator-side deadline.
	GenerateTimeout time.Duration
	// AdjustTemperature, when set, rewrites the generation temperature per
	// turn from the user's text (calmer for negative sentiment, livelier
	// for positive). Nil keeps the configured temperature.
	AdjustTemperature func(userText string, temperature float64) float64
}

// Orchestrator is the façade behind the chat endpoint. Each inbound turn
// runs trigger check, context read, prompt composition, external generation,
// context write, and (for adaptive characters) a profile update. The
// external generation call is the only suspension point.
type Orchestrator struct {
	store     *ContextStore
	triggers  *TriggerMatcher
	completer Completer
	analyzer  Analyzer
	events    EventSink
	opts      Options

	canned map[string]string

	profileMu sync.Mutex
	profiles  map[string]*Profile
}

// NewOrchestrator wires the façade. The completer is required; analyzer and
// events may be nil.
func NewOrchestrator(store *ContextStore, triggers *TriggerMatcher, completer Completer, analyzer Analyzer, events EventSink, opts Options) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("orchestrator: nil context store")
	}
	if completer == nil {
		return nil, errors.New("orchestrator: nil completer")
	}
	if triggers == nil {
		triggers = NewTriggerMatcher()
	}
	return &Orchestrator{
		store:     store,
		triggers:  triggers,
		completer: completer,
		analyzer:  analyzer,
		events:    events,
		opts:      opts,
		canned: map[string]string{
			"greeting": "Hello! How can I assist you today?",
			"help":     "Sure, I'm here to help. What do you need assistance with?",
			"farewell": "Goodbye! Have a great day!",
			"thanks":   "You're welcome! It's my pleasure to help.",
		},
		profiles: make(map[string]*Profile),
	}, nil
}

// Triggers exposes the canned-context registry for caller extension.
func (o *Orchestrator) Triggers() *TriggerMatcher {
	return o.triggers
}

// HandleTurn processes one inbound user message end to end and returns the
// assistant text as an explicit outcome.
func (o *Orchestrator) HandleTurn(ctx context.Context, authorID string, binding Binding, userText string) Outcome {
	userTurn := NewTurn(RoleUser, userText, authorID)

	// Fast path: a canned-context trigger answers without generation.
	if label, ok := o.triggers.Match(userText); ok {
		if canned, found := o.canned[label]; found {
			metrics.TriggerMatchesTotal.WithLabelValues(label).Inc()
			assistant := NewTurn(RoleAssistant, canned, authorID)
			o.store.Update(authorID, []Turn{userTurn, assistant})
			o.publish(ctx, authorID, binding, label, false, false)
			return Outcome{Text: canned, Trigger: label}
		}
	}

	window := o.store.Context(authorID, o.opts.ContextLimit)
	casual := IsSmallTalk(userText)

	var promptTraits *TraitSnapshot
	systemPrompt := casualSystemPrompt
	if !casual {
		if binding.Adaptive {
			snap := o.profile(authorID, binding.CharacterID).Snapshot()
			promptTraits = &snap
		}
		systemPrompt = ComposePrompt(binding.Card, promptTraits)
	}

	messages := make([]Message, 0, len(window)+2)
	messages = append(messages, Message{Role: string(RoleSystem), Content: systemPrompt})
	for _, t := range window {
		messages = append(messages, Message{Role: string(t.Role), Content: t.Content})
	}
	messages = append(messages, Message{Role: string(RoleUser), Content: userText})

	genCtx := ctx
	if o.opts.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, o.opts.GenerateTimeout)
		defer cancel()
	}

	gen := o.opts.Generation
	if o.opts.AdjustTemperature != nil {
		gen.Temperature = o.opts.AdjustTemperature(userText, gen.Temperature)
	}

	reply, err := o.completer.Complete(genCtx, messages, gen)
	if err != nil {
		slog.Error("completion failed, degrading", "author_id", authorID, "character_id", binding.CharacterID, "error", err)
		metrics.DegradedResponsesTotal.Inc()
		o.store.Update(authorID, []Turn{userTurn})
		o.observe(ctx, authorID, binding, userText)
		o.publish(ctx, authorID, binding, "", casual, true)
		return Outcome{Text: degradedResponse, Degraded: true, Reason: err.Error()}
	}

	assistant := NewTurn(RoleAssistant, reply.Content, authorID)
	assistant.Traits = promptTraits
	o.store.Update(authorID, []Turn{userTurn, assistant})

	o.observe(ctx, authorID, binding, userText)

	var outTraits *TraitSnapshot
	if binding.Adaptive {
		snap := o.profile(authorID, binding.CharacterID).Snapshot()
		outTraits = &snap
	}

	metrics.TurnsHandledTotal.Inc()
	o.publish(ctx, authorID, binding, "", casual, false)
	return Outcome{Text: reply.Content, Traits: outTraits}
}

// observe runs the analyzer over the user's text and folds the result into
// the binding's profile. Analyzer failures skip the update.
func (o *Orchestrator) observe(ctx context.Context, authorID string, binding Binding, userText string) {
	if !binding.Adaptive || o.analyzer == nil {
		return
	}
	analysis, err := o.analyzer.Analyze(ctx, userText)
	if err != nil {
		slog.Warn("analyzer failed, skipping profile update", "author_id", authorID, "error", err)
		return
	}
	o.profile(authorID, binding.CharacterID).Observe(analysis.Compound, analysis.Positive, analysis.PrimaryIntent)
}

func (o *Orchestrator) publish(ctx context.Context, authorID string, binding Binding, trigger string, casual, degraded bool) {
	if o.events == nil {
		return
	}
	ev := TurnEvent{
		AuthorID:    authorID,
		CharacterID: binding.CharacterID,
		Trigger:     trigger,
		SmallTalk:   casual,
		Degraded:    degraded,
		Timestamp:   time.Now().UTC(),
	}
	if binding.Adaptive {
		snap := o.profile(authorID, binding.CharacterID).Snapshot()
		ev.Traits = &snap
	}
	if err := o.events.PublishTurn(ctx, ev); err != nil {
		slog.Warn("publishing turn event", "error", err)
	}
}

// profile returns the trait profile for an author+character binding,
// creating a neutral one on first access. Windows and profiles are keyed
// independently: losing one never corrupts the other.
func (o *Orchestrator) profile(authorID, characterID string) *Profile {
	key := fmt.Sprintf("%s|%s", authorID, characterID)
	o.profileMu.Lock()
	defer o.profileMu.Unlock()
	p := o.profiles[key]
	if p == nil {
		p = NewProfile()
		o.profiles[key] = p
	}
	return p
}

// Context exposes the author's resident window to the API layer.
func (o *Orchestrator) Context(authorID string, limit int) []Turn {
	return o.store.Context(authorID, limit)
}

// History exposes the author's history log to the API layer.
func (o *Orchestrator) History(authorID string, since time.Time) []HistoryEntry {
	return o.store.History(authorID, since)
}

// ClearHistory clears the author's history log.
func (o *Orchestrator) ClearHistory(authorID string) {
	o.store.ClearHistory(authorID)
}

// TraitSnapshot returns the current traits for an adaptive binding. The
// second return is false when no profile exists yet.
func (o *Orchestrator) TraitSnapshot(authorID, characterID string) (TraitSnapshot, bool) {
	key := fmt.Sprintf("%s|%s", authorID, characterID)
	o.profileMu.Lock()
	p := o.profiles[key]
	o.profileMu.Unlock()
	if p == nil {
		return TraitSnapshot{}, false
	}
	return p.Snapshot(), true
}
