// Package analytics persists conversation turn events from the NATS stream
// so usage can be queried after the in-memory context has decayed away.
package analytics

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TurnLog matches the turn_events table schema.
type TurnLog struct {
	ID          uuid.UUID       `json:"id"`
	AuthorID    uuid.UUID       `json:"author_id"`
	CharacterID string          `json:"character_id"`
	Trigger     string          `json:"trigger,omitempty"`
	SmallTalk   bool            `json:"small_talk"`
	Degraded    bool            `json:"degraded"`
	Traits      json.RawMessage `json:"traits,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ListParams filter and paginate turn log queries.
type ListParams struct {
	Page     int
	PageSize int
	Degraded *bool
	From     *time.Time
	To       *time.Time
}
