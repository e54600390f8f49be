package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var testCard = CharacterCard{
	Name:           "Leonardo",
	Description:    "Leader of the team.",
	BaseTraits:     "responsible, disciplined",
	Backstory:      "Trained in ninjutsu since childhood.",
	SpeechStyle:    "calm and authoritative",
	KnowledgeAreas: []string{"leadership", "strategy"},
}

func TestComposePrompt_BaseTemplate(t *testing.T) {
	prompt := ComposePrompt(testCard, nil)

	assert.Contains(t, prompt, "You are Leonardo. Leader of the team.")
	assert.Contains(t, prompt, "Your personality traits are: responsible, disciplined.")
	assert.Contains(t, prompt, "Backstory: Trained in ninjutsu since childhood.")
	assert.Contains(t, prompt, "Speak in a calm and authoritative manner.")
	assert.Contains(t, prompt, "You have expertise in: leadership, strategy.")
}

func TestComposePrompt_Deterministic(t *testing.T) {
	snap := &TraitSnapshot{Formality: 0.7, Enthusiasm: -0.9, Humor: 0.6, Empathy: 0.2}
	first := ComposePrompt(testCard, snap)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ComposePrompt(testCard, snap))
	}
}

func TestComposePrompt_NeutralBandEmitsNothing(t *testing.T) {
	neutral := ComposePrompt(testCard, &TraitSnapshot{Formality: 0.5, Enthusiasm: -0.5, Humor: 0.4, Empathy: -0.3})
	assert.Equal(t, ComposePrompt(testCard, nil), neutral)
}

func TestComposePrompt_HighAndLowDirectives(t *testing.T) {
	high := ComposePrompt(testCard, &TraitSnapshot{Formality: 0.6, Enthusiasm: 0.6, Humor: 0.6, Empathy: 0.6})
	assert.Contains(t, high, "Speak formally and professionally.")
	assert.Contains(t, high, "Be very enthusiastic and energetic in your responses.")
	assert.Contains(t, high, "Incorporate humor and light-heartedness in your responses.")
	assert.Contains(t, high, "Show strong empathy and emotional understanding.")

	low := ComposePrompt(testCard, &TraitSnapshot{Formality: -0.6, Enthusiasm: -0.6, Humor: -0.6, Empathy: -0.6})
	assert.Contains(t, low, "Speak casually and informally.")
	assert.Contains(t, low, "Remain calm and composed in your responses.")
	assert.Contains(t, low, "Maintain a serious and straightforward tone.")
	assert.Contains(t, low, "Focus on facts and logic rather than emotions.")
}

func TestComposePrompt_DirectiveOrderIsFixed(t *testing.T) {
	prompt := ComposePrompt(testCard, &TraitSnapshot{Formality: 0.9, Enthusiasm: 0.9, Humor: 0.9, Empathy: 0.9})

	iFormality := strings.Index(prompt, "Speak formally")
	iEnthusiasm := strings.Index(prompt, "Be very enthusiastic")
	iHumor := strings.Index(prompt, "Incorporate humor")
	iEmpathy := strings.Index(prompt, "Show strong empathy")

	assert.Less(t, iFormality, iEnthusiasm)
	assert.Less(t, iEnthusiasm, iHumor)
	assert.Less(t, iHumor, iEmpathy)
}

func TestComposePrompt_DirectivesJoinedWithSingleSpaces(t *testing.T) {
	prompt := ComposePrompt(testCard, &TraitSnapshot{Formality: 0.9, Humor: 0.9})
	assert.Contains(t, prompt, "Speak formally and professionally. Incorporate humor and light-heartedness in your responses.")
}

func TestIsSmallTalk(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"hey, how are you doing", true},
		{"Good morning!", true},
		{"what's up", true},
		{"explain the theory of relativity", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSmallTalk(tt.text))
		})
	}
}
