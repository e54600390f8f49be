package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles turn_events PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists a single turn log entry.
func (r *Repository) Insert(ctx context.Context, log *TurnLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}

	traits := log.Traits
	if len(traits) == 0 {
		traits = json.RawMessage(`null`)
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO turn_events (id, author_id, character_id, trigger_label, small_talk, degraded, traits, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.ID, log.AuthorID, log.CharacterID, log.Trigger, log.SmallTalk, log.Degraded, traits, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting turn event: %w", err)
	}
	return nil
}

// ListByAuthor returns paginated turn logs for a user with optional filters.
func (r *Repository) ListByAuthor(ctx context.Context, authorID uuid.UUID, params ListParams) ([]TurnLog, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	conditions := []string{"author_id = $1"}
	args := []any{authorID}
	argIdx := 2

	if params.Degraded != nil {
		conditions = append(conditions, fmt.Sprintf("degraded = $%d", argIdx))
		args = append(args, *params.Degraded)
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int64
	err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM turn_events WHERE %s`, where), args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting turn events: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	query := fmt.Sprintf(
		`SELECT id, author_id, character_id, trigger_label, small_talk, degraded, traits, created_at
		 FROM turn_events WHERE %s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing turn events: %w", err)
	}
	defer rows.Close()

	var logs []TurnLog
	for rows.Next() {
		var l TurnLog
		if err := rows.Scan(&l.ID, &l.AuthorID, &l.CharacterID, &l.Trigger, &l.SmallTalk, &l.Degraded, &l.Traits, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning turn event: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, total, rows.Err()
}
