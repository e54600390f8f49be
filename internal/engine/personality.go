package engine

import (
	"strings"
	"sync"
)

const (
	traitMin  = -1.0
	traitMax  = 1.0
	traitStep = 0.1
)

// Intent categories that steer humor and formality. Matching is
// case-insensitive and exact per category entry.
var (
	humorIntents  = []string{"joke", "humor"}
	formalIntents = []string{"formal_request", "professional_inquiry"}
)

// TraitSnapshot is an immutable copy of a profile's traits, suitable for
// embedding in a turn or an API response.
type TraitSnapshot struct {
	Formality  float64 `json:"formality"`
	Enthusiasm float64 `json:"enthusiasm"`
	Humor      float64 `json:"humor"`
	Empathy    float64 `json:"empathy"`
}

// Profile is the mutable personality-trait vector of one adaptive character
// binding. Traits accumulate from observed sentiment and intent and never
// decay back toward neutral on their own: they represent the cumulative
// impression of the conversation, not a momentary mood.
type Profile struct {
	mu         sync.Mutex
	formality  float64
	enthusiasm float64
	humor      float64
	empathy    float64
}

// NewProfile returns a neutral profile with all traits at zero.
func NewProfile() *Profile {
	return &Profile{}
}

// Observe folds one analyzed user turn into the trait vector. Out-of-range
// sentiment inputs are clamped to their documented domains rather than
// rejected.
func (p *Profile) Observe(compound, positive float64, primaryIntent string) {
	compound = clamp(compound, -1, 1)
	positive = clamp(positive, 0, 1)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.enthusiasm += compound * traitStep
	p.empathy += positive * traitStep

	intent := strings.ToLower(strings.TrimSpace(primaryIntent))
	switch {
	case containsIntent(humorIntents, intent):
		p.humor += traitStep
	case containsIntent(formalIntents, intent):
		p.formality += traitStep
	}

	p.formality = clamp(p.formality, traitMin, traitMax)
	p.enthusiasm = clamp(p.enthusiasm, traitMin, traitMax)
	p.humor = clamp(p.humor, traitMin, traitMax)
	p.empathy = clamp(p.empathy, traitMin, traitMax)
}

// Snapshot returns a copy of the current traits.
func (p *Profile) Snapshot() TraitSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return TraitSnapshot{
		Formality:  p.formality,
		Enthusiasm: p.enthusiasm,
		Humor:      p.humor,
		Empathy:    p.empathy,
	}
}

func containsIntent(categories []string, intent string) bool {
	for _, c := range categories {
		if intent == c {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
