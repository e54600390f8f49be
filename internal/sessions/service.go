package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kindred-platform/kindred/internal/engine"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, characterID *uuid.UUID) (*Session, error) {
	now := time.Now()
	session := &Session{
		ID:          uuid.New(),
		UserID:      userID,
		CharacterID: characterID,
		Status:      StatusActive,
		StartedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, params ListSessionsParams) ([]*Session, int64, error) {
	offset := (params.Page - 1) * params.PageSize

	rows, err := s.repo.ListByUser(ctx, userID, params.PageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return rows, count, nil
}

func (s *Service) End(ctx context.Context, id uuid.UUID) error {
	return s.repo.End(ctx, id)
}

// RecordTurn persists both sides of a handled turn. Persistence is the
// durable log; the in-memory context window remains the generation source.
func (s *Service) RecordTurn(ctx context.Context, sessionID, userID uuid.UUID, userText, assistantText string) error {
	now := time.Now()

	user := &Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    userID,
		Role:      string(engine.RoleUser),
		Content:   userText,
		Relevance: 1.0,
		CreatedAt: now,
	}
	if err := s.repo.InsertMessage(ctx, user); err != nil {
		return err
	}

	if assistantText == "" {
		return nil
	}

	assistant := &Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    userID,
		Role:      string(engine.RoleAssistant),
		Content:   assistantText,
		Relevance: 1.0,
		CreatedAt: now.Add(time.Millisecond),
	}
	return s.repo.InsertMessage(ctx, assistant)
}

func (s *Service) Messages(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*Message, error) {
	return s.repo.ListMessages(ctx, sessionID, limit, offset)
}

func (s *Service) GetMessage(ctx context.Context, id uuid.UUID) (*Message, error) {
	return s.repo.GetMessage(ctx, id)
}

// MessageSession resolves which session a message belongs to. It backs the
// feedback flow's message validation.
func (s *Service) MessageSession(ctx context.Context, messageID uuid.UUID) (uuid.UUID, bool, error) {
	m, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return uuid.Nil, false, err
	}
	if m == nil {
		return uuid.Nil, false, nil
	}
	return m.SessionID, true, nil
}
