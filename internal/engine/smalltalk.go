package engine

import "strings"

// smallTalkPhrases is the lightweight casual-conversation classifier. It is
// an independent keyword list, not tied to the TriggerMatcher registry.
var smallTalkPhrases = []string{
	"hello", "hi", "hey", "how are you", "how's it going", "what's up",
	"how's your day", "nice to meet you", "good morning", "good afternoon",
	"good evening", "goodbye", "bye", "see you later",
}

// IsSmallTalk reports whether text reads as casual conversation. Matching is
// a case-insensitive substring check against the phrase list.
func IsSmallTalk(text string) bool {
	lowered := strings.ToLower(text)
	for _, phrase := range smallTalkPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}
