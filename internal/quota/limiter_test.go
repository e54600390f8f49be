package quota

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) *redis.Client {
	t.Helper()
	s := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: s.Addr()})
}

func TestLimiter_UnderLimit(t *testing.T) {
	rdb := setupMiniredis(t)
	l := NewLimiter(rdb)
	ctx := context.Background()
	userID := uuid.New()

	allowed, err := l.CheckAndIncrement(ctx, userID, 10)
	require.NoError(t, err)
	assert.True(t, allowed)

	usage, err := l.MinuteUsage(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, usage)
}

func TestLimiter_AtLimit(t *testing.T) {
	rdb := setupMiniredis(t)
	l := NewLimiter(rdb)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 5; i++ {
		allowed, err := l.CheckAndIncrement(ctx, userID, 5)
		require.NoError(t, err)
		assert.True(t, allowed, "message %d should be allowed", i+1)
	}

	allowed, err := l.CheckAndIncrement(ctx, userID, 5)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestLimiter_DifferentUsersIndependent(t *testing.T) {
	rdb := setupMiniredis(t)
	l := NewLimiter(rdb)
	ctx := context.Background()

	first := uuid.New()
	for i := 0; i < 3; i++ {
		allowed, err := l.CheckAndIncrement(ctx, first, 3)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := l.CheckAndIncrement(ctx, first, 3)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = l.CheckAndIncrement(ctx, uuid.New(), 3)
	require.NoError(t, err)
	assert.True(t, allowed)
}
