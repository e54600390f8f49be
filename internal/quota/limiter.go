package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	minuteKeyPrefix = "quota:chat:minute:"
	windowDuration  = 60 * time.Second
	keyTTL          = 90 * time.Second
)

// Limiter implements a Redis sorted-set sliding window for per-minute
// message limiting.
type Limiter struct {
	rdb redis.Cmdable
}

func NewLimiter(rdb redis.Cmdable) *Limiter {
	return &Limiter{rdb: rdb}
}

// CheckAndIncrement checks whether the user is under the per-minute limit.
// If under limit, it records the message and returns true (allowed).
func (l *Limiter) CheckAndIncrement(ctx context.Context, userID uuid.UUID, maxPerMinute int) (bool, error) {
	key := minuteKeyPrefix + userID.String()
	now := time.Now()
	nowMs := float64(now.UnixMilli())
	windowStart := float64(now.Add(-windowDuration).UnixMilli())

	pipe := l.rdb.Pipeline()

	// Drop entries older than the window, then count what remains
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatFloat(windowStart, 'f', 0, 64))
	countCmd := pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("quota limiter pipeline (clean+count): %w", err)
	}

	count := countCmd.Val()
	if count >= int64(maxPerMinute) {
		return false, nil
	}

	pipe2 := l.rdb.Pipeline()
	member := fmt.Sprintf("%d:%d", now.UnixNano(), count)
	pipe2.ZAdd(ctx, key, redis.Z{Score: nowMs, Member: member})
	pipe2.Expire(ctx, key, keyTTL)

	if _, err := pipe2.Exec(ctx); err != nil {
		return false, fmt.Errorf("quota limiter pipeline (add): %w", err)
	}

	return true, nil
}

// MinuteUsage returns the number of messages in the current sliding window.
func (l *Limiter) MinuteUsage(ctx context.Context, userID uuid.UUID) (int, error) {
	key := minuteKeyPrefix + userID.String()
	now := time.Now()
	windowStart := strconv.FormatFloat(float64(now.Add(-windowDuration).UnixMilli()), 'f', 0, 64)
	nowMs := strconv.FormatFloat(float64(now.UnixMilli()), 'f', 0, 64)

	count, err := l.rdb.ZCount(ctx, key, windowStart, nowMs).Result()
	if err != nil {
		return 0, fmt.Errorf("getting minute usage: %w", err)
	}
	return int(count), nil
}
