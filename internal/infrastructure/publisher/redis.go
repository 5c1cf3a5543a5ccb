package publisher

import (
	"context"
	"encoding/json"
	"time"

	candlev1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/candle/v1"
	"github.com/KingCyberX/insiderdept-sub000/pkg/errors"
	"github.com/KingCyberX/insiderdept-sub000/pkg/logger"
	"github.com/KingCyberX/insiderdept-sub000/pkg/redis"
)

const redisChannelPrefix = "marketsync:updates:"

// RedisConfig holds the pub/sub sink settings.
type RedisConfig struct {
	Timeout time.Duration
}

// Redis publishes snapshot notifications on a per-key pub/sub channel.
type Redis struct {
	client redis.Client
	logger logger.Interface
	config RedisConfig
}

// NewRedis builds a sink over a connected client.
func NewRedis(client redis.Client, log logger.Interface, config RedisConfig) *Redis {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &Redis{client: client, logger: log, config: config}
}

// Handler adapts the sink to the dispatch registry. Failures are logged
// and swallowed, same as the Kafka sink.
func (r *Redis) Handler() func(key candlev1.Key, candles []candlev1.Candle) {
	return func(key candlev1.Key, candles []candlev1.Candle) {
		if err := r.publish(key, candles); err != nil {
			r.logger.Error(err, logger.Field{Key: "key", Value: key.String()})
		}
	}
}

func (r *Redis) publish(key candlev1.Key, candles []candlev1.Candle) error {
	payload, err := json.Marshal(updateEvent{Key: key, Candles: candles})
	if err != nil {
		return errors.WrapCoded(errors.RedisPublishError, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.config.Timeout)
	defer cancel()

	if _, err := r.client.Publish(ctx, redisChannelPrefix+key.String(), payload); err != nil {
		return err
	}
	return nil
}
