package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(context.Background(), Config{
		RedisURL: "redis://" + mr.Addr(),
		Prefix:   "qa:",
		TTL:      time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

// caches runs fn against both implementations.
func caches(t *testing.T, fn func(t *testing.T, c Cache)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryCache(100, time.Minute))
	})
	t.Run("redis", func(t *testing.T) {
		c, _ := setupRedisCache(t)
		fn(t, c)
	})
}

func TestGetSetDelete(t *testing.T) {
	caches(t, func(t *testing.T, c Cache) {
		ctx := context.Background()

		_, ok, err := c.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
		v, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("v"), v)

		require.NoError(t, c.Delete(ctx, "k", "never-set"))
		_, ok, err = c.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)

		s := c.Stats()
		assert.Equal(t, int64(1), s.Hits)
		assert.Equal(t, int64(2), s.Misses)
	})
}

func TestDeletePrefix(t *testing.T) {
	caches(t, func(t *testing.T, c Cache) {
		ctx := context.Background()
		for _, k := range []string{"rbac:user:1:permissions", "rbac:user:1:roles", "rbac:user:2:permissions", "rbac:roles:all"} {
			require.NoError(t, c.Set(ctx, k, []byte("x"), time.Minute))
		}

		n, err := c.DeletePrefix(ctx, "rbac:user:1:")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, ok, _ := c.Get(ctx, "rbac:user:2:permissions")
		assert.True(t, ok)

		n, err = c.DeletePrefix(ctx, "rbac:")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestMemoryCacheEntryExpiry(t *testing.T) {
	c := NewMemoryCache(10, time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("1"), time.Second))
	_, ok, _ := c.Get(ctx, "short")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = c.Get(ctx, "short")
	assert.False(t, ok, "entry expires at its own ttl")
}

func TestMemoryCacheCopiesValues(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	ctx := context.Background()
	buf := []byte("abc")

	require.NoError(t, c.Set(ctx, "k", buf, 0))
	buf[0] = 'z'

	v, _, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), v)
}

func TestRedisCacheTTLAndPrefix(t *testing.T) {
	c, mr := setupRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10*time.Second))
	assert.True(t, mr.Exists("qa:k"))
	assert.Equal(t, 10*time.Second, mr.TTL("qa:k"))

	require.NoError(t, c.Set(ctx, "d", []byte("v"), 0))
	assert.Equal(t, time.Minute, mr.TTL("qa:d"))

	mr.FastForward(11 * time.Second)
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheUnavailable(t *testing.T) {
	c, mr := setupRedisCache(t)
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, c.Ping(context.Background()))
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Config{Backend: BackendNone})
	assert.True(t, errors.Is(err, ErrDisabled))

	c, err := New(ctx, Config{Backend: BackendMemory, Size: 5, TTL: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	_, err = New(ctx, Config{Backend: "memcached"})
	assert.Error(t, err)

	_, err = New(ctx, Config{Backend: BackendRedis, RedisURL: "://bad"})
	assert.Error(t, err)
}

func TestNewRedisCacheFromClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCacheFromClient(client, "", 0)
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), "plain", []byte("1"), 0))
	assert.True(t, mr.Exists("plain"))
	assert.Same(t, client, c.Client())
}
