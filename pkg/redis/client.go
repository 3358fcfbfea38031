// Package redis is a thin wrapper over go-redis/v9 used by the progress
// sinks in pkg/redisobserver. It deliberately exposes only the pub/sub
// and key-value operations those sinks need; the archive pipeline itself
// never reads from or writes through Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps a redis.Client with fxhistorian's connection defaults and
// structured logging.
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// ClientConfig holds Redis client configuration.
type ClientConfig struct {
	URL      string
	DB       int
	Password string
	PoolSize int
}

// NewClient creates a new Redis client and verifies connectivity.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	addr := cfg.URL
	if len(addr) > 8 && addr[:8] == "redis://" {
		addr = addr[8:]
	}
	poolSize := cfg.PoolSize
	if poolSize == 0 {
		poolSize = 10
	}

	opts := &redis.Options{
		Addr:     addr,
		DB:       cfg.DB,
		Password: cfg.Password,
		PoolSize: poolSize,
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: connect: %w", err)
	}

	logger.Info("redis client connected", zap.String("addr", addr), zap.Int("db", cfg.DB))
	return &Client{rdb: rdb, logger: logger}, nil
}

// Publish marshals value to JSON and publishes it on channel.
func (c *Client) Publish(ctx context.Context, channel string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis: marshal: %w", err)
	}
	if err := c.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish to %s: %w", channel, err)
	}
	return nil
}

// Set stores a JSON-encoded value with an optional expiration.
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis: marshal: %w", err)
	}
	if err := c.rdb.Set(ctx, key, data, expiration).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: health check: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		c.logger.Error("failed to close redis client", zap.Error(err))
		return err
	}
	return nil
}

// ChannelName builds the standardized progress channel name for a symbol.
func ChannelName(symbol string) string {
	return fmt.Sprintf("fxhistorian:progress:%s", symbol)
}
