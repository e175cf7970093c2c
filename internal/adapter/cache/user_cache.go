package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "bookbridge/internal/domain/user"
)

const (
	generationKey  = "users:list:gen"
	snapshotPrefix = "users:list:"
)

// ListCache defines the interface for caching the user list snapshot.
type ListCache interface {
	// Get returns the cached snapshot and the generation it was looked up
	// under. found is false on a cache miss.
	Get(ctx context.Context) (users []domain.User, gen int64, found bool, err error)

	// Set stores a snapshot under gen with the configured TTL.
	Set(ctx context.Context, gen int64, users []domain.User) error

	// Invalidate makes every previously stored snapshot unreachable.
	Invalidate(ctx context.Context) error
}

// RedisListCache implements ListCache using Redis as the backing store.
//
// Snapshots live under a generation-numbered key. A reader that missed
// stores its snapshot under the generation it observed before loading, and
// Invalidate bumps the generation, so a load racing with a write can only
// populate a key nobody reads any more.
type RedisListCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisListCache creates a new Redis-backed list cache.
func NewRedisListCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisListCache {
	return &RedisListCache{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

// generation reads the current snapshot generation; a missing counter is 0.
func (c *RedisListCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func snapshotKey(gen int64) string {
	return fmt.Sprintf("%s%d", snapshotPrefix, gen)
}

// Get retrieves the current snapshot from Redis.
func (c *RedisListCache) Get(ctx context.Context) ([]domain.User, int64, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.log.Error("failed to read cache generation", zap.Error(err))
		return nil, 0, false, err
	}

	data, err := c.client.Get(ctx, snapshotKey(gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.log.Debug("cache miss", zap.Int64("generation", gen))
		return nil, gen, false, nil
	}
	if err != nil {
		c.log.Error("failed to get from cache", zap.Int64("generation", gen), zap.Error(err))
		return nil, gen, false, err
	}

	var users []domain.User
	if err := json.Unmarshal(data, &users); err != nil {
		c.log.Error("failed to unmarshal cached users", zap.Int64("generation", gen), zap.Error(err))
		return nil, gen, false, err
	}
	if users == nil {
		users = []domain.User{}
	}

	c.log.Debug("cache hit", zap.Int64("generation", gen), zap.Int("count", len(users)))
	return users, gen, true, nil
}

// Set stores a snapshot in Redis under gen.
func (c *RedisListCache) Set(ctx context.Context, gen int64, users []domain.User) error {
	if users == nil {
		users = []domain.User{}
	}

	data, err := json.Marshal(users)
	if err != nil {
		c.log.Error("failed to marshal users for cache", zap.Error(err))
		return err
	}

	if err := c.client.Set(ctx, snapshotKey(gen), data, c.ttl).Err(); err != nil {
		c.log.Error("failed to set cache", zap.Int64("generation", gen), zap.Error(err))
		return err
	}

	c.log.Debug("cached user list", zap.Int64("generation", gen), zap.Int("count", len(users)), zap.Duration("ttl", c.ttl))
	return nil
}

// Invalidate bumps the generation counter.
func (c *RedisListCache) Invalidate(ctx context.Context) error {
	gen, err := c.client.Incr(ctx, generationKey).Result()
	if err != nil {
		c.log.Error("failed to invalidate cache", zap.Error(err))
		return err
	}

	c.log.Debug("invalidated user list cache", zap.Int64("generation", gen))
	return nil
}
