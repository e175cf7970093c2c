package di

import (
	"context"
	"fmt"
	"time"

	"bookbridge/cmd/api/infrastructure"
	"bookbridge/internal/adapter/cache"
	"bookbridge/internal/adapter/db/memory"
	"bookbridge/internal/adapter/db/postgres"
	ginhandler "bookbridge/internal/adapter/gin/handler"
	ginrouter "bookbridge/internal/adapter/gin/router"
	"bookbridge/internal/adapter/grpc/middleware"
	"bookbridge/internal/adapter/repository/cached"
	"bookbridge/internal/config"
	"bookbridge/internal/usecase/user"
	redisclient "bookbridge/pkg/redis"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *zap.Logger
	DB          *gorm.DB            // nil for the memory driver
	RedisClient *redisclient.Client // nil when Redis is disabled
	UserUC      user.Usecase
	RateLimiter *middleware.RateLimiter // nil when Redis is disabled
	GinHandler  *ginhandler.UserHandler
}

// NewContainer creates and initializes all application dependencies
func NewContainer(ctx context.Context, cfg *config.Config, l *zap.Logger) (*Container, error) {
	// Validate configuration before initializing any dependencies
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	c := &Container{Config: cfg, Logger: l}

	dbRepo, err := c.newStore()
	if err != nil {
		return nil, err
	}

	rdb, err := infrastructure.NewRedisClient(ctx, cfg, l)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}
	c.RedisClient = rdb

	repo := dbRepo
	if rdb != nil {
		listCache := cache.NewRedisListCache(rdb.Client, time.Duration(cfg.Redis.CacheTTL)*time.Second, l)
		repo = cached.NewCachedUserRepository(dbRepo, listCache, l)

		c.RateLimiter = middleware.NewRateLimiter(
			rdb.Client,
			middleware.RateLimiterConfig{
				RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
				BurstCapacity:     cfg.RateLimit.BurstCapacity,
				Enabled:           cfg.RateLimit.Enabled,
			},
			l,
		)
	}

	c.UserUC = user.New(repo, l)
	c.GinHandler = ginhandler.NewUserHandler(c.UserUC, l)

	return c, nil
}

// newStore opens the configured persistence collaborator.
func (c *Container) newStore() (user.Repository, error) {
	if c.Config.DB.Driver == config.DriverMemory {
		c.Logger.Warn("using in-memory store, data is lost on restart")
		return memory.NewUserRepo(c.Logger), nil
	}

	db, err := infrastructure.NewDatabase(c.Config, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.DB = db

	if c.Config.DB.AutoMigrate {
		if err := postgres.Migrate(db); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		c.Logger.Info("database schema migrated")
	}

	return postgres.NewUserRepoPG(db, c.Logger), nil
}

// ReadinessChecks returns a probe for every external dependency in use.
func (c *Container) ReadinessChecks() []ginrouter.ReadinessCheck {
	var checks []ginrouter.ReadinessCheck
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			checks = append(checks, ginrouter.ReadinessCheck{Name: "database", Check: sqlDB.PingContext})
		}
	}
	if c.RedisClient != nil {
		checks = append(checks, ginrouter.ReadinessCheck{Name: "redis", Check: c.RedisClient.Check})
	}
	return checks
}

// Close closes all resources held by the container
func (c *Container) Close() error {
	var errs []error

	// Close Redis connection
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	// Close database connection
	if c.DB != nil {
		if err := infrastructure.CloseDatabase(c.DB); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("container close errors: %v", errs)
	}

	return nil
}
