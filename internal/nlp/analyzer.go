package nlp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kindred-platform/kindred/internal/engine"
)

// Analyzer combines lexicon sentiment with model-backed intent labels.
// It implements engine.Analyzer.
type Analyzer struct {
	completer engine.Completer
	model     string
}

// NewAnalyzer builds an analyzer. The completer may be nil; intent then
// always resolves to "unknown" and only sentiment drives the profile.
func NewAnalyzer(completer engine.Completer, model string) *Analyzer {
	return &Analyzer{completer: completer, model: model}
}

// Analyze scores sentiment locally and asks the model for the intent label.
func (a *Analyzer) Analyze(ctx context.Context, text string) (engine.Analysis, error) {
	s := ScoreSentiment(text)
	return engine.Analysis{
		Compound:      s.Compound,
		Positive:      s.Positive,
		PrimaryIntent: a.recognizeIntent(ctx, text),
	}, nil
}

// recognizeIntent never fails the analysis: any model error degrades to
// "unknown", which the personality rules ignore.
func (a *Analyzer) recognizeIntent(ctx context.Context, text string) string {
	if a.completer == nil {
		return "unknown"
	}

	prompt := fmt.Sprintf("Recognize the intent of the following user input: '%s'\nIntent:", text)
	msg, err := a.completer.Complete(ctx, []engine.Message{
		{Role: "user", Content: prompt},
	}, engine.GenerationOptions{Model: a.model, Temperature: 0.3, MaxTokens: 50})
	if err != nil {
		slog.Error("intent recognition failed", "error", err)
		return "unknown"
	}

	intent := strings.TrimSpace(msg.Content)
	if intent == "" {
		return "unknown"
	}
	slog.Debug("recognized intent", "intent", intent)
	return intent
}
