// Package publisher contains optional update sinks. Each sink exposes a
// dispatch handler so it plugs into the observer registry like any other
// consumer.
package publisher

import (
	"context"
	"encoding/json"
	"time"

	candlev1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/candle/v1"
	"github.com/KingCyberX/insiderdept-sub000/pkg/errors"
	"github.com/KingCyberX/insiderdept-sub000/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// Writer is the kafka-go surface the sink needs.
//
//go:generate mockgen -source kafka.go -destination=mock/kafka_mock.go -package=publisher_mock
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds the sink settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Timeout time.Duration
}

// updateEvent is the payload written for every notification.
type updateEvent struct {
	Key     candlev1.Key      `json:"key"`
	Candles []candlev1.Candle `json:"candles"`
}

// Kafka publishes snapshot notifications onto a topic, keyed by series key
// so one series always lands on one partition.
type Kafka struct {
	writer Writer
	logger logger.Interface
	config KafkaConfig
}

// NewKafka builds a sink with a real kafka-go writer.
func NewKafka(log logger.Interface, config KafkaConfig) *Kafka {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: config.Brokers,
		Topic:   config.Topic,
	})
	return NewKafkaWithWriter(writer, log, config)
}

// NewKafkaWithWriter builds a sink over an existing writer.
func NewKafkaWithWriter(writer Writer, log logger.Interface, config KafkaConfig) *Kafka {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &Kafka{writer: writer, logger: log, config: config}
}

// Handler adapts the sink to the dispatch registry. Publish failures are
// logged and swallowed; a broker outage must not break local observers.
func (k *Kafka) Handler() func(key candlev1.Key, candles []candlev1.Candle) {
	return func(key candlev1.Key, candles []candlev1.Candle) {
		if err := k.publish(key, candles); err != nil {
			k.logger.Error(err, logger.Field{Key: "key", Value: key.String()})
		}
	}
}

func (k *Kafka) publish(key candlev1.Key, candles []candlev1.Candle) error {
	value, err := json.Marshal(updateEvent{Key: key, Candles: candles})
	if err != nil {
		return errors.WrapCoded(errors.KafkaPublishError, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), k.config.Timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(key.String()),
		Value: value,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return errors.WrapCoded(errors.KafkaPublishError, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
