package nlp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindred-platform/kindred/internal/engine"
)

type completerFunc func(ctx context.Context, messages []engine.Message, opts engine.GenerationOptions) (engine.Message, error)

func (f completerFunc) Complete(ctx context.Context, messages []engine.Message, opts engine.GenerationOptions) (engine.Message, error) {
	return f(ctx, messages, opts)
}

func TestAnalyzer_CombinesSentimentAndIntent(t *testing.T) {
	var gotPrompt string
	completer := completerFunc(func(_ context.Context, messages []engine.Message, opts engine.GenerationOptions) (engine.Message, error) {
		require.Len(t, messages, 1)
		gotPrompt = messages[0].Content
		assert.Equal(t, 0.3, opts.Temperature)
		assert.Equal(t, 50, opts.MaxTokens)
		return engine.Message{Role: "assistant", Content: "  joke  "}, nil
	})

	a := NewAnalyzer(completer, "local-model")
	analysis, err := a.Analyze(context.Background(), "tell me a really funny story, I love those")
	require.NoError(t, err)

	assert.Equal(t, "joke", analysis.PrimaryIntent)
	assert.Greater(t, analysis.Compound, 0.0)
	assert.Contains(t, gotPrompt, "Recognize the intent of the following user input:")
	assert.Contains(t, gotPrompt, "tell me a really funny story")
}

func TestAnalyzer_IntentFallsBackToUnknown(t *testing.T) {
	completer := completerFunc(func(context.Context, []engine.Message, engine.GenerationOptions) (engine.Message, error) {
		return engine.Message{}, errors.New("model unavailable")
	})

	a := NewAnalyzer(completer, "local-model")
	analysis, err := a.Analyze(context.Background(), "I hate waiting")
	require.NoError(t, err)

	assert.Equal(t, "unknown", analysis.PrimaryIntent)
	assert.Less(t, analysis.Compound, 0.0)
}

func TestAnalyzer_EmptyIntentIsUnknown(t *testing.T) {
	completer := completerFunc(func(context.Context, []engine.Message, engine.GenerationOptions) (engine.Message, error) {
		return engine.Message{Role: "assistant", Content: "   "}, nil
	})

	a := NewAnalyzer(completer, "local-model")
	analysis, err := a.Analyze(context.Background(), "hello there")
	require.NoError(t, err)
	assert.Equal(t, "unknown", analysis.PrimaryIntent)
}

func TestAnalyzer_NilCompleter(t *testing.T) {
	a := NewAnalyzer(nil, "")
	analysis, err := a.Analyze(context.Background(), "what a wonderful day")
	require.NoError(t, err)
	assert.Equal(t, "unknown", analysis.PrimaryIntent)
	assert.Greater(t, analysis.Compound, 0.0)
}
