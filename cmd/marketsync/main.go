package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/KingCyberX/insiderdept-sub000/internal/bootstrap"
	candlev1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/candle/v1"
	"github.com/KingCyberX/insiderdept-sub000/internal/infrastructure/publisher"
	"github.com/KingCyberX/insiderdept-sub000/pkg/config"
	"github.com/KingCyberX/insiderdept-sub000/pkg/httplib/healthcheck"
	"github.com/KingCyberX/insiderdept-sub000/pkg/logger"
	"github.com/KingCyberX/insiderdept-sub000/pkg/redis"
)

var cfg *config.Config
var log *logger.Logger

func init() {
	cfg = &config.Config{}
	if err := config.Load(cfg); err != nil {
		panic(err)
	}

	l, err := logger.NewLogger(logger.WithLoggingLevel(logger.Level(cfg.LogLevel)))
	if err != nil {
		panic(err)
	}
	log = l
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	b := (&bootstrap.Bootstrap{}).Init(bootstrap.BootstrapConfig{
		Logger: log,
		Config: cfg,
	})

	if err := b.Engine.Start(ctx); err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "start_engine"})
		return
	}

	sinks := registerSinks(ctx, b)

	if cfg.StatusAddr != "" {
		hc := healthcheck.HealthCheck{
			FeedState: func() string { return string(b.Infrastructure.Feed.State()) },
		}
		go func() {
			if err := http.ListenAndServe(cfg.StatusAddr, hc.Handler(http.NotFoundHandler())); err != nil {
				log.Error(err, logger.Field{Key: "action", Value: "status_server"})
			}
		}()
	}

	// Seed the startup subscriptions.
	for _, spec := range cfg.Subscriptions {
		key, ok := parseKey(spec)
		if !ok {
			log.Warn("skipping malformed subscription", logger.Field{Key: "spec", Value: spec})
			continue
		}
		if _, err := b.Engine.Initialize(ctx, key, cfg.SnapshotLimit); err != nil {
			log.Error(err, logger.Field{Key: "key", Value: key.String()})
			// Initialize degrades to synthetic internally; keep going.
		}
		for _, sink := range sinks {
			b.Engine.RegisterObserver(key, sink)
		}
	}

	log.Info("market sync engine started",
		logger.Field{Key: "app", Value: cfg.AppName},
		logger.Field{Key: "subscriptions", Value: len(cfg.Subscriptions)},
	)

	sig := <-sigChan
	log.Info("received shutdown signal", logger.Field{Key: "signal", Value: sig.String()})
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := b.Engine.Stop(shutdownCtx); err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "stop_engine"})
	}
	log.Info("shutdown complete")
}

// registerSinks builds the config-gated Kafka and Redis update sinks and
// returns their dispatch handlers.
func registerSinks(ctx context.Context, b bootstrap.Bootstrap) []func(candlev1.Key, []candlev1.Candle) {
	var sinks []func(candlev1.Key, []candlev1.Candle)

	if cfg.Kafka.Enabled {
		kafkaSink := publisher.NewKafka(log, publisher.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		sinks = append(sinks, kafkaSink.Handler())
		log.Info("kafka sink enabled", logger.Field{Key: "topic", Value: cfg.Kafka.Topic})
	}

	if cfg.Redis.Enabled {
		redisConfig := redis.DefaultConfig()
		redisConfig.Addr = cfg.Redis.Address
		redisConfig.Username = cfg.Redis.Username
		redisConfig.Password = cfg.Redis.Password
		redisConfig.DB = cfg.Redis.DB

		client := redis.NewClient(log, redisConfig)
		if err := client.Connect(ctx); err != nil {
			log.Error(err, logger.Field{Key: "action", Value: "connect_redis"})
		} else {
			redisSink := publisher.NewRedis(client, log, publisher.RedisConfig{})
			sinks = append(sinks, redisSink.Handler())
			log.Info("redis sink enabled", logger.Field{Key: "addr", Value: cfg.Redis.Address})
		}
	}

	return sinks
}

// parseKey splits an exchange:symbol:interval spec.
func parseKey(spec string) (candlev1.Key, bool) {
	parts := strings.Split(strings.TrimSpace(spec), ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return candlev1.Key{}, false
	}
	return candlev1.Key{Exchange: parts[0], Symbol: parts[1], Interval: parts[2]}, true
}
