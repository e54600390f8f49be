// Package feedback stores user ratings of assistant responses.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kindred-platform/kindred/internal/events"
)

type Feedback struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	SessionID uuid.UUID `json:"session_id"`
	MessageID uuid.UUID `json:"message_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateFeedbackRequest struct {
	SessionID uuid.UUID `json:"session_id" validate:"required"`
	MessageID uuid.UUID `json:"message_id" validate:"required"`
	Rating    int       `json:"rating" validate:"required,min=1,max=5"`
	Comment   string    `json:"comment" validate:"max=2000"`
}

type Repository interface {
	Create(ctx context.Context, f *Feedback) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Feedback, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Create(ctx context.Context, f *Feedback) error {
	query := `
		INSERT INTO feedbacks (id, user_id, session_id, message_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		f.ID, f.UserID, f.SessionID, f.MessageID, f.Rating, f.Comment, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting feedback: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Feedback, error) {
	query := `
		SELECT id, user_id, session_id, message_id, rating, comment, created_at
		FROM feedbacks
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing feedback: %w", err)
	}
	defer rows.Close()

	var out []*Feedback
	for rows.Next() {
		f := &Feedback{}
		err := rows.Scan(&f.ID, &f.UserID, &f.SessionID, &f.MessageID, &f.Rating, &f.Comment, &f.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning feedback row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *postgresRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM feedbacks WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting feedback: %w", err)
	}
	return count, nil
}

// ErrMessageNotFound is returned when the rated message does not exist in
// the given session.
var ErrMessageNotFound = errors.New("message not found in session")

// MessageLookup resolves a message to the session it belongs to.
type MessageLookup interface {
	MessageSession(ctx context.Context, messageID uuid.UUID) (sessionID uuid.UUID, found bool, err error)
}

type Service struct {
	repo      Repository
	lookup    MessageLookup
	publisher *events.Publisher
}

func NewService(repo Repository, lookup MessageLookup, publisher *events.Publisher) *Service {
	return &Service{repo: repo, lookup: lookup, publisher: publisher}
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, req *CreateFeedbackRequest) (*Feedback, error) {
	sessionID, found, err := s.lookup.MessageSession(ctx, req.MessageID)
	if err != nil {
		return nil, err
	}
	if !found || sessionID != req.SessionID {
		return nil, ErrMessageNotFound
	}

	f := &Feedback{
		ID:        uuid.New(),
		UserID:    userID,
		SessionID: req.SessionID,
		MessageID: req.MessageID,
		Rating:    req.Rating,
		Comment:   req.Comment,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		ev := events.FeedbackEvent{
			FeedbackID: f.ID,
			UserID:     f.UserID,
			Rating:     f.Rating,
			OccurredAt: f.CreatedAt,
		}
		if err := s.publisher.PublishFeedback(ctx, ev); err != nil {
			slog.Warn("publishing feedback event", "error", err)
		}
	}
	return f, nil
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Feedback, int64, error) {
	rows, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return rows, count, nil
}
