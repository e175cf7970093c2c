package cached

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"bookbridge/internal/adapter/cache"
	domain "bookbridge/internal/domain/user"
	"bookbridge/internal/usecase/user"
)

// loadTimeout bounds a shared list load, which no longer follows any single
// caller's context.
const loadTimeout = 10 * time.Second

// CachedUserRepository implements user.Repository with caching support.
// It wraps a persistent repository (DB) and a list snapshot cache.
type CachedUserRepository struct {
	dbRepo user.Repository
	cache  cache.ListCache
	log    *zap.Logger
	group  singleflight.Group

	// stale counts writes that could not invalidate the cache. Reads bypass
	// the cache until an invalidation succeeds.
	stale atomic.Int64
}

// NewCachedUserRepository creates a new instance of CachedUserRepository.
// A nil cache turns every call into a pass-through.
func NewCachedUserRepository(dbRepo user.Repository, cache cache.ListCache, log *zap.Logger) *CachedUserRepository {
	return &CachedUserRepository{
		dbRepo: dbRepo,
		cache:  cache,
		log:    log,
	}
}

// Create writes through to the DB repository and invalidates the snapshot.
func (r *CachedUserRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	stored, err := r.dbRepo.Create(ctx, u)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Invalidate(ctx); err != nil {
			r.stale.Add(1)
			r.log.Warn("failed to invalidate cache after create, bypassing cache", zap.Int64("id", stored.ID), zap.Error(err))
		}
	}

	return stored, nil
}

// cacheUsable retries a failed invalidation and reports whether the cache can
// be read. A write failing during the retry keeps the cache bypassed.
func (r *CachedUserRepository) cacheUsable(ctx context.Context) bool {
	pending := r.stale.Load()
	if pending == 0 {
		return true
	}
	if err := r.cache.Invalidate(ctx); err != nil {
		r.log.Debug("cache still stale", zap.Int64("pending", pending), zap.Error(err))
		return false
	}
	if !r.stale.CompareAndSwap(pending, 0) {
		return false
	}
	r.log.Info("cache invalidation recovered")
	return true
}

// List returns all users using the Cache-Aside pattern.
func (r *CachedUserRepository) List(ctx context.Context) ([]domain.User, error) {
	if r.cache == nil || !r.cacheUsable(ctx) {
		return r.dbRepo.List(ctx)
	}

	cachedUsers, gen, found, err := r.cache.Get(ctx)
	switch {
	case err != nil:
		r.log.Warn("cache get error, falling back to database", zap.Error(err))
		return r.dbRepo.List(ctx)
	case found:
		r.log.Debug("user list retrieved from cache", zap.Int("count", len(cachedUsers)))
		return cachedUsers, nil
	}

	// Cache miss - use single-flight to prevent stampede. Flights are per
	// generation so a load started before a write is never shared after it.
	// The flight outlives any one caller; each caller waits on its own ctx.
	ch := r.group.DoChan(strconv.FormatInt(gen, 10), func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		users, err := r.dbRepo.List(loadCtx)
		if err != nil {
			return nil, err
		}

		if err := r.cache.Set(loadCtx, gen, users); err != nil {
			r.log.Warn("failed to cache user list", zap.Error(err))
		}

		return users, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	users := res.Val.([]domain.User)
	if res.Shared {
		// callers sharing a flight must not alias one another's slice
		users = append(make([]domain.User, 0, len(users)), users...)
	}
	return users, nil
}
