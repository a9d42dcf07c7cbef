package rate

import (
	"context"
	"os"
	"testing"
	"time"

	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(3, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		require.True(t, res.Allowed, "hit %d", i)
	}
	res, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfter, time.Duration(0))

	// otra clave no comparte bucket
	res, _ = l.Allow(ctx, "5.6.7.8")
	require.True(t, res.Allowed)

	now = now.Add(30 * time.Second)
	res, _ = l.Allow(ctx, "1.2.3.4")
	require.True(t, res.Allowed)
}

func TestMemoryLimiter_PurgesIdleKeys(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "a")
	_, _ = l.Allow(context.Background(), "b")
	require.Equal(t, 2, l.Len())

	now = now.Add(time.Hour)
	_, _ = l.Allow(context.Background(), "c")
	require.Equal(t, 1, l.Len())
}

func TestRedisLimiter_Result(t *testing.T) {
	l := NewRedisLimiter(nil, "", 2, time.Minute)

	r := l.result(2, 30*time.Second)
	require.True(t, r.Allowed)
	require.Zero(t, r.Remaining)

	r = l.result(3, -1)
	require.False(t, r.Allowed)
	require.Equal(t, time.Minute, r.RetryAfter)
}

func TestRedisLimiter_Integration(t *testing.T) {
	addr := os.Getenv("POSGATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("POSGATE_TEST_REDIS_ADDR no definido")
	}
	client := rdb.NewClient(&rdb.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, "posgate:test:rl:", 2, time.Minute)
	key := "k-" + time.Now().Format("150405.000000000")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, key)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, err := l.Allow(ctx, key)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfter, time.Duration(0))
}
