package redis

import (
	"context"

	"github.com/KingCyberX/insiderdept-sub000/pkg/errors"
	"github.com/KingCyberX/insiderdept-sub000/pkg/logger"
	"github.com/redis/go-redis/v9"
)

type client struct {
	logger logger.Interface
	config *Config
	rdb    *redis.Client
}

// NewClient creates a new Redis client with the provided logger and configuration.
func NewClient(logger logger.Interface, config *Config) Client {
	return &client{
		logger: logger,
		config: config,
	}
}

func (c *client) Connect(ctx context.Context) error {
	if c.config == nil {
		return errors.NewCoded(errors.RedisConnectionError, "redis config is nil")
	}
	if c.config.Addr == "" {
		return errors.NewCoded(errors.RedisConnectionError, "redis address is empty")
	}

	c.rdb = redis.NewClient(&redis.Options{
		Addr:            c.config.Addr,
		Username:        c.config.Username,
		Password:        c.config.Password,
		DB:              c.config.DB,
		MaxRetries:      c.config.MaxRetries,
		MinRetryBackoff: c.config.MinRetryBackoff,
		MaxRetryBackoff: c.config.MaxRetryBackoff,
		DialTimeout:     c.config.ConnectTimeout,
		ReadTimeout:     c.config.ConnectTimeout,
		WriteTimeout:    c.config.ConnectTimeout,
		PoolSize:        c.config.PoolSize,
		MinIdleConns:    c.config.MinIdleConns,
		PoolTimeout:     c.config.PoolTimeout,
	})

	if err := c.Ping(ctx); err != nil {
		return err
	}

	c.logger.Info("redis connected", logger.Field{Key: "addr", Value: c.config.Addr})
	return nil
}

func (c *client) Disconnect(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	if err := c.rdb.Close(); err != nil {
		return errors.WrapCoded(errors.RedisDisconnectionError, err)
	}
	c.rdb = nil
	return nil
}

func (c *client) Ping(ctx context.Context) error {
	if c.rdb == nil {
		return errors.NewCoded(errors.RedisConnectionError, "redis client is not connected")
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return errors.WrapCoded(errors.RedisPingError, err)
	}
	return nil
}

func (c *client) Publish(ctx context.Context, channel string, message any) (int64, error) {
	if c.rdb == nil {
		return 0, errors.NewCoded(errors.RedisConnectionError, "redis client is not connected")
	}
	n, err := c.rdb.Publish(ctx, channel, message).Result()
	if err != nil {
		return 0, errors.WrapCoded(errors.RedisPublishError, err)
	}
	return n, nil
}
