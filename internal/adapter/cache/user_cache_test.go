package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domain "bookbridge/internal/domain/user"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, mr
}

func testUsers() []domain.User {
	age := 30
	return []domain.User{
		{ID: 1, Email: "a@x.com", Name: "A", Age: &age, CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: 2, Email: "b@x.com", Name: "B", CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
	}
}

func TestRedisListCache_Get_Miss(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewRedisListCache(client, 5*time.Minute, zaptest.NewLogger(t))

	users, gen, found, err := cache.Get(context.Background())

	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, users)
	assert.Equal(t, int64(0), gen)
}

func TestRedisListCache_SetThenGet(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewRedisListCache(client, 5*time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	_, gen, _, err := cache.Get(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, gen, testUsers()))

	users, _, found, err := cache.Get(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, users, 2)
	assert.Equal(t, "a@x.com", users[0].Email)
	require.NotNil(t, users[0].Age)
	assert.Equal(t, 30, *users[0].Age)
	assert.Nil(t, users[1].Age)
	assert.True(t, users[1].CreatedAt.Equal(testUsers()[1].CreatedAt))
}

func TestRedisListCache_EmptySnapshotIsAHit(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewRedisListCache(client, 5*time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 0, nil))

	users, _, found, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}

func TestRedisListCache_Invalidate(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewRedisListCache(client, 5*time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 0, testUsers()))
	require.NoError(t, cache.Invalidate(ctx))

	users, gen, found, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, users)
	assert.Equal(t, int64(1), gen)
}

func TestRedisListCache_StaleSetIsNeverServed(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewRedisListCache(client, 5*time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	// a reader misses and starts loading under generation 0
	_, gen, found, err := cache.Get(ctx)
	require.NoError(t, err)
	require.False(t, found)

	// a write lands before the reader stores its snapshot
	require.NoError(t, cache.Invalidate(ctx))
	require.NoError(t, cache.Set(ctx, gen, testUsers()[:1]))

	_, _, found, err = cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisListCache_TTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewRedisListCache(client, 2*time.Second, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 0, testUsers()))

	// Fast forward time in miniredis
	mr.FastForward(3 * time.Second)

	_, _, found, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisListCache_CorruptPayload(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewRedisListCache(client, time.Minute, zaptest.NewLogger(t))

	require.NoError(t, mr.Set("users:list:0", "not json"))

	_, _, found, err := cache.Get(context.Background())
	assert.Error(t, err)
	assert.False(t, found)
}

func TestRedisListCache_RedisDown(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewRedisListCache(client, time.Minute, zaptest.NewLogger(t))
	require.NoError(t, client.Close())

	_, _, _, err := cache.Get(context.Background())
	assert.Error(t, err)
	assert.Error(t, cache.Invalidate(context.Background()))
}
