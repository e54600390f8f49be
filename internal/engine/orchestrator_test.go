package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests [][]Message
	opts     []GenerationOptions
}

func (f *fakeCompleter) Complete(_ context.Context, messages []Message, opts GenerationOptions) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, messages)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return Message{}, f.err
	}
	return Message{Role: "assistant", Content: f.reply}, nil
}

func (f *fakeCompleter) lastOpts() GenerationOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.opts) == 0 {
		return GenerationOptions{}
	}
	return f.opts[len(f.opts)-1]
}

func (f *fakeCompleter) lastSystemPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return ""
	}
	return f.requests[len(f.requests)-1][0].Content
}

type fakeAnalyzer struct {
	analysis Analysis
	err      error
	calls    int
}

func (f *fakeAnalyzer) Analyze(context.Context, string) (Analysis, error) {
	f.calls++
	if f.err != nil {
		return Analysis{}, f.err
	}
	return f.analysis, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []TurnEvent
}

func (s *recordingSink) PublishTurn(_ context.Context, ev TurnEvent) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func adaptiveBinding() Binding {
	return Binding{
		CharacterID: "adaptive-1",
		Adaptive:    true,
		Card: CharacterCard{
			Name:           "Adaptive AI Friend",
			Description:    "An AI friend that adapts to the conversation.",
			BaseTraits:     "adaptive, observant",
			Backstory:      "Starts neutral and develops traits while chatting.",
			SpeechStyle:    "neutral",
			KnowledgeAreas: []string{"general knowledge"},
		},
	}
}

func newTestOrchestrator(t *testing.T, completer Completer, analyzer Analyzer, sink EventSink) *Orchestrator {
	t.Helper()
	store, err := NewContextStore(DefaultStoreConfig())
	require.NoError(t, err)
	orch, err := NewOrchestrator(store, NewTriggerMatcher(), completer, analyzer, sink, Options{
		Generation: GenerationOptions{Model: "test-model", Temperature: 0.7, MaxTokens: 150},
	})
	require.NoError(t, err)
	return orch
}

func TestOrchestrator_RequiresCompleter(t *testing.T) {
	store, err := NewContextStore(DefaultStoreConfig())
	require.NoError(t, err)
	_, err = NewOrchestrator(store, nil, nil, nil, nil, Options{})
	assert.Error(t, err)
}

func TestOrchestrator_GenerationPath(t *testing.T) {
	completer := &fakeCompleter{reply: "The strategy is sound."}
	orch := newTestOrchestrator(t, completer, &fakeAnalyzer{}, nil)

	out := orch.HandleTurn(context.Background(), "alice", adaptiveBinding(), "explain your plan for the mission")
	assert.False(t, out.Degraded)
	assert.Equal(t, "The strategy is sound.", out.Text)
	require.NotNil(t, out.Traits)

	window := orch.Context("alice", 0)
	require.Len(t, window, 2)
	assert.Equal(t, RoleUser, window[0].Role)
	assert.Equal(t, "explain your plan for the mission", window[0].Content)
	assert.Equal(t, RoleAssistant, window[1].Role)
	assert.Equal(t, "The strategy is sound.", window[1].Content)
}

func TestOrchestrator_TriggerFastPathSkipsGeneration(t *testing.T) {
	completer := &fakeCompleter{reply: "should not be used"}
	orch := newTestOrchestrator(t, completer, &fakeAnalyzer{}, nil)

	out := orch.HandleTurn(context.Background(), "alice", adaptiveBinding(), "thanks so much")
	assert.Equal(t, "thanks", out.Trigger)
	assert.Equal(t, "You're welcome! It's my pleasure to help.", out.Text)
	assert.Empty(t, completer.requests)

	// Both the user's turn and the canned reply land in context.
	require.Len(t, orch.Context("alice", 0), 2)
}

func TestOrchestrator_CasualPathBypassesPersonality(t *testing.T) {
	completer := &fakeCompleter{reply: "Doing great!"}
	orch := newTestOrchestrator(t, completer, &fakeAnalyzer{}, nil)

	out := orch.HandleTurn(context.Background(), "alice", adaptiveBinding(), "how are you doing today friend")
	assert.False(t, out.Degraded)
	assert.Equal(t, casualSystemPrompt, completer.lastSystemPrompt())
}

func TestOrchestrator_PersonalityPathUsesCharacterPrompt(t *testing.T) {
	completer := &fakeCompleter{reply: "Certainly."}
	orch := newTestOrchestrator(t, completer, &fakeAnalyzer{}, nil)

	orch.HandleTurn(context.Background(), "alice", adaptiveBinding(), "walk me through your mission planning")
	assert.Contains(t, completer.lastSystemPrompt(), "You are Adaptive AI Friend.")
}

func TestOrchestrator_ContextFlowsIntoPrompt(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	orch := newTestOrchestrator(t, completer, &fakeAnalyzer{}, nil)
	binding := adaptiveBinding()

	orch.HandleTurn(context.Background(), "alice", binding, "remember the number 42 for later")
	orch.HandleTurn(context.Background(), "alice", binding, "what number did I mention")

	last := completer.requests[len(completer.requests)-1]
	// system + two prior turns + new user turn
	require.Len(t, last, 4)
	assert.Equal(t, "remember the number 42 for later", last[1].Content)
	assert.Equal(t, "ok", last[2].Content)
	assert.Equal(t, "what number did I mention", last[3].Content)
}

func TestOrchestrator_DegradesOnCompletionFailure(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("connection refused")}
	orch := newTestOrchestrator(t, completer, &fakeAnalyzer{}, nil)

	out := orch.HandleTurn(context.Background(), "alice", adaptiveBinding(), "tell me something profound")
	assert.True(t, out.Degraded)
	assert.Equal(t, degradedResponse, out.Text)
	assert.Contains(t, out.Reason, "connection refused")

	// The user's turn is preserved; the failed assistant turn is not.
	window := orch.Context("alice", 0)
	require.Len(t, window, 1)
	assert.Equal(t, RoleUser, window[0].Role)
}

func TestOrchestrator_ProfileUpdatesFromAnalysis(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: Analysis{Compound: 0.8, Positive: 0.5, PrimaryIntent: "joke"}}
	orch := newTestOrchestrator(t, &fakeCompleter{reply: "ha"}, analyzer, nil)

	orch.HandleTurn(context.Background(), "alice", adaptiveBinding(), "describe a funny situation")

	snap, ok := orch.TraitSnapshot("alice", "adaptive-1")
	require.True(t, ok)
	assert.InDelta(t, 0.08, snap.Enthusiasm, 1e-9)
	assert.InDelta(t, 0.05, snap.Empathy, 1e-9)
	assert.InDelta(t, 0.1, snap.Humor, 1e-9)
}

func TestOrchestrator_AnalyzerFailureSkipsProfileUpdate(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("analyzer down")}
	orch := newTestOrchestrator(t, &fakeCompleter{reply: "sure"}, analyzer, nil)

	out := orch.HandleTurn(context.Background(), "alice", adaptiveBinding(), "summarize the news")
	assert.False(t, out.Degraded)

	snap, ok := orch.TraitSnapshot("alice", "adaptive-1")
	require.True(t, ok)
	assert.Equal(t, TraitSnapshot{}, snap)
}

func TestOrchestrator_NonAdaptiveSkipsAnalyzer(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: Analysis{Compound: 1.0}}
	orch := newTestOrchestrator(t, &fakeCompleter{reply: "hm"}, analyzer, nil)

	binding := adaptiveBinding()
	binding.Adaptive = false
	out := orch.HandleTurn(context.Background(), "alice", binding, "recite a poem about autumn")

	assert.Zero(t, analyzer.calls)
	assert.Nil(t, out.Traits)
	_, ok := orch.TraitSnapshot("alice", binding.CharacterID)
	assert.False(t, ok)
}

func TestOrchestrator_BindingsKeepSeparateProfiles(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: Analysis{Compound: 1.0, Positive: 1.0, PrimaryIntent: "joke"}}
	orch := newTestOrchestrator(t, &fakeCompleter{reply: "ok"}, analyzer, nil)

	first := adaptiveBinding()
	second := adaptiveBinding()
	second.CharacterID = "adaptive-2"

	orch.HandleTurn(context.Background(), "alice", first, "describe something amusing")

	snap, ok := orch.TraitSnapshot("alice", first.CharacterID)
	require.True(t, ok)
	assert.InDelta(t, 0.1, snap.Humor, 1e-9)

	_, ok = orch.TraitSnapshot("alice", second.CharacterID)
	assert.False(t, ok)
}

func TestOrchestrator_PublishesTurnEvents(t *testing.T) {
	sink := &recordingSink{}
	orch := newTestOrchestrator(t, &fakeCompleter{reply: "done"}, &fakeAnalyzer{}, sink)

	orch.HandleTurn(context.Background(), "alice", adaptiveBinding(), "draft an itinerary for rome")

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, "alice", ev.AuthorID)
	assert.Equal(t, "adaptive-1", ev.CharacterID)
	assert.False(t, ev.Degraded)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestOrchestrator_GenerateTimeoutIsApplied(t *testing.T) {
	store, err := NewContextStore(DefaultStoreConfig())
	require.NoError(t, err)

	var sawDeadline bool
	completer := completerFunc(func(ctx context.Context, _ []Message, _ GenerationOptions) (Message, error) {
		_, sawDeadline = ctx.Deadline()
		return Message{Role: "assistant", Content: "fast"}, nil
	})

	orch, err := NewOrchestrator(store, NewTriggerMatcher(), completer, nil, nil, Options{
		GenerateTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	orch.HandleTurn(context.Background(), "alice", adaptiveBinding(), "quick question about go routines")
	assert.True(t, sawDeadline)
}

func TestOrchestrator_AdjustTemperaturePerTurn(t *testing.T) {
	store, err := NewContextStore(DefaultStoreConfig())
	require.NoError(t, err)

	completer := &fakeCompleter{reply: "ok"}
	orch, err := NewOrchestrator(store, NewTriggerMatcher(), completer, nil, nil, Options{
		Generation: GenerationOptions{Model: "test-model", Temperature: 0.7},
		AdjustTemperature: func(text string, temperature float64) float64 {
			assert.Equal(t, "today was really stressful for me", text)
			return 0.3
		},
	})
	require.NoError(t, err)

	orch.HandleTurn(context.Background(), "alice", adaptiveBinding(), "today was really stressful for me")
	assert.InDelta(t, 0.3, completer.lastOpts().Temperature, 1e-9)

	// The configured baseline is untouched for later turns.
	assert.InDelta(t, 0.7, orch.opts.Generation.Temperature, 1e-9)
}

type completerFunc func(context.Context, []Message, GenerationOptions) (Message, error)

func (f completerFunc) Complete(ctx context.Context, msgs []Message, opts GenerationOptions) (Message, error) {
	return f(ctx, msgs, opts)
}
