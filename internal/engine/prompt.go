package engine

import (
	"fmt"
	"strings"
)

// CharacterCard is the prompt-facing description of a character. It is
// deliberately decoupled from the persistence model so the composer stays a
// pure function of its inputs.
type CharacterCard struct {
	Name           string
	Description    string
	BaseTraits     string
	Backstory      string
	SpeechStyle    string
	KnowledgeAreas []string
}

// adaptiveDirectives lists, in fixed order, each trait's accessor and its
// high/low directive. The composition order (formality, enthusiasm, humor,
// empathy) is part of the output contract.
var adaptiveDirectives = []struct {
	value func(TraitSnapshot) float64
	high  string
	low   string
}{
	{func(s TraitSnapshot) float64 { return s.Formality },
		"Speak formally and professionally.",
		"Speak casually and informally."},
	{func(s TraitSnapshot) float64 { return s.Enthusiasm },
		"Be very enthusiastic and energetic in your responses.",
		"Remain calm and composed in your responses."},
	{func(s TraitSnapshot) float64 { return s.Humor },
		"Incorporate humor and light-heartedness in your responses.",
		"Maintain a serious and straightforward tone."},
	{func(s TraitSnapshot) float64 { return s.Empathy },
		"Show strong empathy and emotional understanding.",
		"Focus on facts and logic rather than emotions."},
}

// ComposePrompt builds the system prompt for a character. When a trait
// snapshot is supplied, trait-conditioned directives are appended: values
// above 0.5 emit the high directive, below -0.5 the low one, and the band in
// between emits nothing. Identical inputs produce byte-identical output.
func ComposePrompt(card CharacterCard, traits *TraitSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. %s\n", card.Name, card.Description)
	fmt.Fprintf(&b, "Your personality traits are: %s.\n", card.BaseTraits)
	fmt.Fprintf(&b, "Backstory: %s\n", card.Backstory)
	fmt.Fprintf(&b, "Speak in a %s manner.\n", card.SpeechStyle)
	fmt.Fprintf(&b, "You have expertise in: %s.", strings.Join(card.KnowledgeAreas, ", "))

	if traits != nil {
		if directives := composeDirectives(*traits); directives != "" {
			b.WriteString("\n")
			b.WriteString(directives)
		}
	}
	return b.String()
}

func composeDirectives(snap TraitSnapshot) string {
	var parts []string
	for _, d := range adaptiveDirectives {
		switch v := d.value(snap); {
		case v > 0.5:
			parts = append(parts, d.high)
		case v < -0.5:
			parts = append(parts, d.low)
		}
	}
	return strings.Join(parts, " ")
}

// casualSystemPrompt steers the small-talk path; it deliberately carries no
// character personality.
const casualSystemPrompt = "You are a friendly conversational partner. " +
	"Engage in natural dialogue without mentioning that you're an AI or a language model. " +
	"Focus on the topic at hand and respond as a knowledgeable human would."
