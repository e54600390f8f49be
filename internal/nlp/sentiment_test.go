package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreSentiment_Polarity(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		overall string
	}{
		{"positive", "I love this, it is really great", "positive"},
		{"negative", "this is terrible and I hate it", "negative"},
		{"neutral", "the meeting starts at noon tomorrow", "neutral"},
		{"empty", "", "neutral"},
		{"case insensitive", "LOVE IT, AWESOME", "positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ScoreSentiment(tt.text)
			assert.Equal(t, tt.overall, s.Overall)
		})
	}
}

func TestScoreSentiment_CompoundBounded(t *testing.T) {
	s := ScoreSentiment("love love love amazing wonderful best awesome great happy perfect")
	assert.Greater(t, s.Compound, 0.9)
	assert.LessOrEqual(t, s.Compound, 1.0)

	s = ScoreSentiment("hate hate terrible horrible worst awful sad angry")
	assert.Less(t, s.Compound, -0.9)
	assert.GreaterOrEqual(t, s.Compound, -1.0)
}

func TestScoreSentiment_Negation(t *testing.T) {
	plain := ScoreSentiment("I like this")
	negated := ScoreSentiment("I do not like this")

	assert.Greater(t, plain.Compound, 0.0)
	assert.Less(t, negated.Compound, plain.Compound)
	assert.Less(t, negated.Compound, 0.0)
}

func TestScoreSentiment_BoosterIntensifies(t *testing.T) {
	plain := ScoreSentiment("this is good")
	boosted := ScoreSentiment("this is really good")

	assert.Greater(t, boosted.Compound, plain.Compound)
}

func TestScoreSentiment_PositiveShare(t *testing.T) {
	s := ScoreSentiment("happy happy happy")
	assert.Greater(t, s.Positive, 0.9)
	assert.Zero(t, s.Negative)

	s = ScoreSentiment("just some ordinary words here")
	assert.Zero(t, s.Positive)
	assert.Equal(t, 1.0, s.Neutral)
}

func TestAdjustTemperature(t *testing.T) {
	tests := []struct {
		name     string
		compound float64
		in, out  float64
	}{
		{"strongly negative pins low", -0.8, 0.7, 0.3},
		{"boundary strongly negative", -0.5, 0.7, 0.3},
		{"mildly negative steps down", -0.4, 0.7, 0.5},
		{"mildly negative floors at 0.3", -0.4, 0.35, 0.3},
		{"strongly positive pins high", 0.8, 0.5, 0.9},
		{"mildly positive steps up", 0.4, 0.5, 0.7},
		{"mildly positive caps at 0.9", 0.4, 0.85, 0.9},
		{"neutral unchanged", 0.1, 0.7, 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.out, AdjustTemperature(tt.compound, tt.in), 1e-9)
		})
	}
}

func TestTemperatureFor(t *testing.T) {
	// Strongly negative text calms generation all the way down.
	got := TemperatureFor("I hated today, everything was terrible and awful", 0.7)
	assert.InDelta(t, 0.3, got, 1e-9)

	// Neutral text leaves the configured temperature alone.
	got = TemperatureFor("the meeting is at three on tuesday", 0.7)
	assert.InDelta(t, 0.7, got, 1e-9)
}
