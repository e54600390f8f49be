package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ErrQuotaExceeded marks a denial so callers can answer 429 instead of 500.
type ErrQuotaExceeded struct {
	Detail string
}

func (e *ErrQuotaExceeded) Error() string {
	return e.Detail
}

// Service combines the Redis sliding window with the PostgreSQL daily
// counter.
type Service struct {
	repo    *Repository
	limiter *Limiter
	limits  Limits
}

func NewService(repo *Repository, limiter *Limiter, limits Limits) *Service {
	return &Service{repo: repo, limiter: limiter, limits: limits}
}

// Check verifies that the user has not exceeded the per-minute or daily
// message limits. Returns *ErrQuotaExceeded on denial; infrastructure
// failures are logged and allowed through.
func (s *Service) Check(ctx context.Context, userID uuid.UUID) error {
	allowed, err := s.limiter.CheckAndIncrement(ctx, userID, s.limits.PerMinute)
	if err != nil {
		slog.Warn("quota: minute window check failed, allowing message", "error", err)
	} else if !allowed {
		return &ErrQuotaExceeded{Detail: fmt.Sprintf("rate limit exceeded: max %d messages per minute", s.limits.PerMinute)}
	}

	if _, err := s.repo.ResetDailyIfStale(ctx, userID); err != nil {
		slog.Warn("quota: daily reset check failed", "error", err)
	}

	q, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		slog.Warn("quota: fetching quota failed, allowing message", "error", err)
		return nil
	}

	if q.MessagesToday >= s.limits.PerDay {
		return &ErrQuotaExceeded{Detail: fmt.Sprintf("daily message limit exceeded: %d/%d messages used", q.MessagesToday, s.limits.PerDay)}
	}

	return nil
}

// Record counts one completed message against the daily allowance.
func (s *Service) Record(ctx context.Context, userID uuid.UUID) {
	if err := s.repo.IncrementDaily(ctx, userID); err != nil {
		slog.Warn("quota: recording message failed", "user_id", userID, "error", err)
	}
}

// Usage reports current consumption against the configured limits.
func (s *Service) Usage(ctx context.Context, userID uuid.UUID) (*Status, error) {
	q, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	minute, err := s.limiter.MinuteUsage(ctx, userID)
	if err != nil {
		slog.Warn("quota: minute usage lookup failed", "error", err)
		minute = 0
	}

	return &Status{
		MessagesToday:      q.MessagesToday,
		MessagesLimitDay:   s.limits.PerDay,
		MessagesThisMinute: minute,
		MessagesLimitMin:   s.limits.PerMinute,
	}, nil
}
