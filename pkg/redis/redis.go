package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config describes how to reach Redis.
type Config struct {
	Host        string
	Port        string
	Password    string
	DB          int
	MaxRetries  int
	PoolSize    int
	MinIdleConn int

	// ConnectAttempts bounds the pings made by NewClient; 0 means 3.
	ConnectAttempts int
	// ConnectBackoff is the pause between failed pings; 0 means 500ms.
	ConnectBackoff time.Duration
}

func (cfg Config) addr() string {
	return net.JoinHostPort(cfg.Host, cfg.Port)
}

func (cfg Config) options() *redis.Options {
	return &redis.Options{
		Addr:         cfg.addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConn,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolTimeout:  2 * time.Second,
	}
}

// Client is a go-redis client that logs its lifecycle.
type Client struct {
	*redis.Client
	log *zap.Logger
}

// NewClient opens a pool and pings Redis until it answers, ctx is done, or
// the attempts run out.
func NewClient(ctx context.Context, cfg Config, log *zap.Logger) (*Client, error) {
	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.ConnectBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	rdb := redis.NewClient(cfg.options())
	log = log.With(zap.String("redis_addr", cfg.addr()))

	var err error
connect:
	for attempt := 1; ; attempt++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			break
		}
		log.Warn("Redis not reachable yet", zap.Int("attempt", attempt), zap.Error(err))
		if attempt >= attempts {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break connect
		case <-time.After(backoff):
		}
	}
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.addr(), err)
	}

	log.Info("Redis connected", zap.Int("db", cfg.DB), zap.Int("pool_size", cfg.PoolSize))
	return &Client{Client: rdb, log: log}, nil
}

// Check reports whether Redis answers a ping. It is used by readiness probes.
func (c *Client) Check(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

// Close releases the pool.
func (c *Client) Close() error {
	c.log.Info("closing Redis connection")
	return c.Client.Close()
}
