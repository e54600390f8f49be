package engine

import (
	"fmt"
	"regexp"
	"sync"
)

// TriggerMatcher maps raw user text to a small closed set of canned-context
// labels via case-insensitive word-boundary patterns. Registry iteration
// order is unspecified: registrants must keep overlapping patterns mutually
// exclusive, since the first matching pattern wins.
type TriggerMatcher struct {
	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

// NewTriggerMatcher returns a matcher preloaded with the default registry.
func NewTriggerMatcher() *TriggerMatcher {
	m := &TriggerMatcher{patterns: make(map[string]*regexp.Regexp)}
	defaults := map[string]string{
		"greeting": `\b(hello|hi|hey)\b`,
		"farewell": `\b(bye|goodbye|see you)\b`,
		"thanks":   `\b(thank you|thanks|appreciate)\b`,
		"help":     `\b(help|assistance|support)\b`,
	}
	for label, pattern := range defaults {
		if err := m.Add(label, pattern); err != nil {
			panic(fmt.Sprintf("engine: default trigger %q: %v", label, err))
		}
	}
	return m
}

// Match returns the label of the first pattern found in text, or "" when
// nothing matches. Matching has no side effects.
func (m *TriggerMatcher) Match(text string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for label, re := range m.patterns {
		if re.MatchString(text) {
			return label, true
		}
	}
	return "", false
}

// Add registers (or replaces) a label with the given pattern. The pattern is
// compiled case-insensitively.
func (m *TriggerMatcher) Add(label, pattern string) error {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("compiling trigger pattern for %q: %w", label, err)
	}
	m.mu.Lock()
	m.patterns[label] = re
	m.mu.Unlock()
	return nil
}

// Remove deletes a label from the registry. Removing an unknown label is a
// no-op.
func (m *TriggerMatcher) Remove(label string) {
	m.mu.Lock()
	delete(m.patterns, label)
	m.mu.Unlock()
}

// Labels returns the currently registered labels.
func (m *TriggerMatcher) Labels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	labels := make([]string, 0, len(m.patterns))
	for label := range m.patterns {
		labels = append(labels, label)
	}
	return labels
}
