package sessions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Session, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	End(ctx context.Context, id uuid.UUID) error

	InsertMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*Message, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Create(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO sessions (id, user_id, character_id, status, started_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		s.ID, s.UserID, s.CharacterID, s.Status, s.StartedAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `
		SELECT id, user_id, character_id, status, started_at, ended_at, created_at, updated_at
		FROM sessions
		WHERE id = $1`

	s := &Session{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.CharacterID, &s.Status,
		&s.StartedAt, &s.EndedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying session by id: %w", err)
	}
	return s, nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Session, error) {
	query := `
		SELECT id, user_id, character_id, status, started_at, ended_at, created_at, updated_at
		FROM sessions
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s := &Session{}
		err := rows.Scan(
			&s.ID, &s.UserID, &s.CharacterID, &s.Status,
			&s.StartedAt, &s.EndedAt, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *postgresRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) End(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE sessions
		SET status = $2, ended_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $3`

	result, err := r.pool.Exec(ctx, query, id, StatusEnded, StatusActive)
	if err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("session not found or already ended")
	}
	return nil
}

func (r *postgresRepository) InsertMessage(ctx context.Context, m *Message) error {
	query := `
		INSERT INTO messages (id, session_id, user_id, role, content, relevance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.SessionID, m.UserID, m.Role, m.Content, m.Relevance, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListMessages(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*Message, error) {
	query := `
		SELECT id, session_id, user_id, role, content, relevance, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m := &Message{}
		err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Role, &m.Content, &m.Relevance, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *postgresRepository) GetMessage(ctx context.Context, id uuid.UUID) (*Message, error) {
	query := `
		SELECT id, session_id, user_id, role, content, relevance, created_at
		FROM messages
		WHERE id = $1`

	m := &Message{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.SessionID, &m.UserID, &m.Role, &m.Content, &m.Relevance, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying message by id: %w", err)
	}
	return m, nil
}
