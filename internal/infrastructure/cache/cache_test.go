package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client, err := Connect(context.Background(), RedisOptions{Addr: s.Addr()}, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return s, client
}

func TestConnect_Unreachable(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()

	_, err := Connect(context.Background(), RedisOptions{Addr: addr}, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	s, client := newRedis(t)
	c := NewRedisCache(client, "coop:metrics:", time.Minute, zap.NewNop())
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "status:||")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "status:||", map[string]int{"PENDING": 2, "APPROVED": 1}))
	got, ok, err := c.Get(ctx, "status:||")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"PENDING": 2, "APPROVED": 1}, got)

	assert.True(t, s.Exists("coop:metrics:status:||"))
	assert.Equal(t, time.Minute, s.TTL("coop:metrics:status:||"))

	s.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "status:||")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	s, client := newRedis(t)
	c := NewRedisCache(client, "m:", 0, zap.NewNop())

	require.NoError(t, s.Set("m:level:||", "not json"))
	_, ok, err := c.Get(context.Background(), "level:||")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_InvalidateKeepsOtherKeys(t *testing.T) {
	s, client := newRedis(t)
	c := NewRedisCache(client, "coop:metrics:", 0, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "status:||", map[string]int{"PENDING": 1}))
	require.NoError(t, c.Set(ctx, "level:||", map[string]int{"1": 1}))
	require.NoError(t, s.Set("unrelated", "x"))

	require.NoError(t, c.Invalidate(ctx))
	assert.False(t, s.Exists("coop:metrics:status:||"))
	assert.False(t, s.Exists("coop:metrics:level:||"))
	assert.True(t, s.Exists("unrelated"))

	// nothing left to delete
	require.NoError(t, c.Invalidate(ctx))
}

func TestRedisCache_ServerDown(t *testing.T) {
	s, client := newRedis(t)
	c := NewRedisCache(client, "m:", 0, zap.NewNop())
	s.Close()

	_, _, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, c.Set(context.Background(), "k", map[string]int{}))
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Minute)
	c.now = func() time.Time { return now }

	in := map[string]int{"PENDING": 4}
	require.NoError(t, c.Set(ctx, "status:||", in))
	in["PENDING"] = 99

	got, ok, err := c.Get(ctx, "status:||")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, got["PENDING"])

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, "status:||")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "a", map[string]int{}))
	require.NoError(t, c.Invalidate(ctx))
	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok)
}
