package quota

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles user_quotas PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetOrCreate returns the user's quota row, creating one if it doesn't exist.
func (r *Repository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*UserQuota, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_quotas (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, fmt.Errorf("ensuring user quota: %w", err)
	}

	var q UserQuota
	err = r.pool.QueryRow(ctx,
		`SELECT user_id, messages_today, last_daily_reset, updated_at
		 FROM user_quotas WHERE user_id = $1`, userID,
	).Scan(&q.UserID, &q.MessagesToday, &q.LastDailyReset, &q.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("fetching user quota: %w", err)
	}
	return &q, nil
}

// IncrementDaily counts one message against the user's daily allowance.
func (r *Repository) IncrementDaily(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE user_quotas
		 SET messages_today = messages_today + 1,
		     updated_at = NOW()
		 WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("incrementing daily quota: %w", err)
	}
	return nil
}

// ResetDailyIfStale resets the daily counter if the last reset was more than
// 24h ago. Returns true if a reset was performed.
func (r *Repository) ResetDailyIfStale(ctx context.Context, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_quotas
		 SET messages_today = 0,
		     last_daily_reset = NOW(),
		     updated_at = NOW()
		 WHERE user_id = $1 AND last_daily_reset < NOW() - INTERVAL '24 hours'`, userID)
	if err != nil {
		return false, fmt.Errorf("resetting daily quota: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
