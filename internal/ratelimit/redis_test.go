package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledLimiterAlwaysAllows(t *testing.T) {
	l := NewRedisLimiter(nil, 0, time.Minute)
	for i := 0; i < 5; i++ {
		ok, err := l.Allow(context.Background(), 1)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestRedisLimiterSlidingWindow(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("redis not available")
	}

	const userID = 424242
	key := keyPrefix + "424242"
	client.Del(ctx, key)
	t.Cleanup(func() { client.Del(ctx, key) })

	l := NewRedisLimiter(client, 3, time.Minute)
	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, userID)
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i+1)
	}
	ok, err := l.Allow(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok)

	l.nowFn = func() time.Time { return time.Now().Add(2 * time.Minute) }
	ok, err = l.Allow(ctx, userID)
	require.NoError(t, err)
	assert.True(t, ok)
}
