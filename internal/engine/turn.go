package engine

import "time"

// Role identifies the speaker of a conversational turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is a single conversational message with a decaying relevance weight.
// Relevance starts at 1.0 and is recomputed by the ContextStore on every
// update pass; a turn whose relevance falls to the eviction threshold is
// dropped from the active window but survives in the history log.
type Turn struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	AuthorID  string         `json:"author_id"`
	CreatedAt time.Time      `json:"created_at"`
	Relevance float64        `json:"relevance"`
	Traits    *TraitSnapshot `json:"adaptive_traits,omitempty"`

	// touchedAt records when relevance was last recomputed, so decay
	// applies only elapsed time instead of compounding the full age on
	// every pass. Zero means the turn has not been through a decay pass.
	touchedAt time.Time
}

// NewTurn builds a turn timestamped now with full relevance.
func NewTurn(role Role, content, authorID string) Turn {
	return Turn{
		Role:      role,
		Content:   content,
		AuthorID:  authorID,
		CreatedAt: time.Now().UTC(),
		Relevance: 1.0,
	}
}

// HistoryEntry pairs a frozen copy of a turn with the time the store
// observed it. History copies are never re-decayed.
type HistoryEntry struct {
	Turn       Turn      `json:"turn"`
	ObservedAt time.Time `json:"observed_at"`
}
