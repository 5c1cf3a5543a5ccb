// Package config loads application settings from the environment and an
// optional .env file.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MustLoad loads the configuration and panics on failure.
func MustLoad[T any](cfg T) {
	_ = godotenv.Load()

	env.Must(cfg, env.Parse(cfg))
}

// Load loads the configuration from environment variables and .env file.
// A missing .env file is not an error.
func Load[T any](cfg T) error {
	_ = godotenv.Load()

	return env.Parse(cfg)
}

// Config holds the full configuration for the sync engine process.
type Config struct {
	AppName  string `env:"APP_NAME" envDefault:"marketsync"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// StatusAddr serves GET /health; empty disables the listener.
	StatusAddr string `env:"STATUS_ADDR" envDefault:":8080"`

	// Subscriptions seeds the startup keys, exchange:symbol:interval each.
	Subscriptions []string `env:"SUBSCRIPTIONS"`
	// SnapshotLimit is the number of bars requested for every startup key.
	SnapshotLimit int `env:"SNAPSHOT_LIMIT" envDefault:"120"`

	Feed      FeedConfig      `envPrefix:"FEED_"`
	History   HistoryConfig   `envPrefix:"HISTORY_"`
	Cache     CacheConfig     `envPrefix:"CACHE_"`
	Gap       GapConfig       `envPrefix:"GAP_"`
	Synthetic SyntheticConfig `envPrefix:"SYNTHETIC_"`
	Engine    EngineConfig    `envPrefix:"ENGINE_"`
	Kafka     KafkaConfig     `envPrefix:"KAFKA_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
}

// FeedConfig configures the push-feed connection manager.
type FeedConfig struct {
	URL                  string        `env:"URL,required"`
	BackoffBase          time.Duration `env:"BACKOFF_BASE" envDefault:"1s"`
	BackoffMax           time.Duration `env:"BACKOFF_MAX" envDefault:"30s"`
	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS" envDefault:"10"`
	MaxFailures          int           `env:"MAX_FAILURES" envDefault:"3"`
	CircuitResetTimeout  time.Duration `env:"CIRCUIT_RESET_TIMEOUT" envDefault:"30s"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"10s"`
	AckFallbackDelay     time.Duration `env:"ACK_FALLBACK_DELAY" envDefault:"5s"`
	ResubscribeStagger   time.Duration `env:"RESUBSCRIBE_STAGGER" envDefault:"100ms"`
}

// HistoryConfig configures the historical-data collaborator.
type HistoryConfig struct {
	BaseURL string        `env:"BASE_URL,required"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// CacheConfig configures the candle cache.
type CacheConfig struct {
	SeriesCap   int           `env:"SERIES_CAP" envDefault:"1000"`
	SnapshotTTL time.Duration `env:"SNAPSHOT_TTL" envDefault:"60s"`
}

// GapConfig configures gap detection and backfill.
type GapConfig struct {
	Threshold        float64 `env:"THRESHOLD" envDefault:"1.2"`
	BackfillBuffer   int     `env:"BACKFILL_BUFFER" envDefault:"2"`
	StructuralWindow int     `env:"STRUCTURAL_WINDOW" envDefault:"10"`
}

// SyntheticConfig configures the fallback candle generator.
type SyntheticConfig struct {
	DefaultPrice  float64       `env:"DEFAULT_PRICE" envDefault:"100"`
	NoiseFraction float64       `env:"NOISE_FRACTION" envDefault:"0.002"`
	FreshWindow   time.Duration `env:"FRESH_WINDOW" envDefault:"30s"`
}

// EngineConfig configures the facade scheduling.
type EngineConfig struct {
	GapCheckInterval time.Duration `env:"GAP_CHECK_INTERVAL" envDefault:"30s"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// KafkaConfig configures the optional Kafka update sink.
type KafkaConfig struct {
	Enabled bool     `env:"ENABLED" envDefault:"false"`
	Brokers []string `env:"BROKER"`
	Topic   string   `env:"TOPIC" envDefault:"candle.updates"`
}

// RedisConfig configures the optional Redis pub/sub sink.
type RedisConfig struct {
	Enabled  bool   `env:"ENABLED" envDefault:"false"`
	Address  string `env:"ADDRESS" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	Username string `env:"USERNAME" envDefault:""`
	DB       int    `env:"DB" envDefault:"0"`
}
