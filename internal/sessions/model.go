// Package sessions persists chat sessions and their message log.
package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session statuses.
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

type Session struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	CharacterID *uuid.UUID `json:"character_id,omitempty"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Message struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Relevance float64   `json:"relevance"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateSessionRequest struct {
	CharacterID *uuid.UUID `json:"character_id"`
}

type ListSessionsParams struct {
	Page     int
	PageSize int
}

func DefaultListParams() ListSessionsParams {
	return ListSessionsParams{Page: 1, PageSize: 20}
}

type sessionContextKey struct{}

// SetSessionInContext stores the session for downstream handlers.
func SetSessionInContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// GetSessionFromContext returns the session placed by the ownership middleware.
func GetSessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionContextKey{}).(*Session)
	return s
}
