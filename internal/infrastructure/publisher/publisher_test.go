package publisher

import (
	"encoding/json"
	"testing"

	candlev1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/candle/v1"
	publisher_mock "github.com/KingCyberX/insiderdept-sub000/internal/infrastructure/publisher/mock"
	"github.com/KingCyberX/insiderdept-sub000/pkg/logger"
	logger_mock "github.com/KingCyberX/insiderdept-sub000/pkg/logger/mock"
	redis_mock "github.com/KingCyberX/insiderdept-sub000/pkg/redis/mock"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	testKey     = candlev1.Key{Exchange: "binance", Symbol: "BTCUSDT", Interval: "1m"}
	testCandles = []candlev1.Candle{
		{Time: 1700000040, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10, Source: candlev1.SourceLive},
	}
)

func newTestLogger(t *testing.T) logger.Interface {
	t.Helper()
	log, err := logger.NewLogger()
	require.NoError(t, err)
	return log
}

func TestKafka_HandlerPublishes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	writer := publisher_mock.NewMockWriter(ctrl)
	writer.EXPECT().
		WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx any, msgs ...kafka.Message) error {
			require.Len(t, msgs, 1)
			assert.Equal(t, "binance:BTCUSDT:1m", string(msgs[0].Key))

			var event updateEvent
			require.NoError(t, json.Unmarshal(msgs[0].Value, &event))
			assert.Equal(t, testKey, event.Key)
			require.Len(t, event.Candles, 1)
			assert.Equal(t, 1.5, event.Candles[0].Close)
			assert.Equal(t, candlev1.SourceLive, event.Candles[0].Source)
			return nil
		})

	sink := NewKafkaWithWriter(writer, newTestLogger(t), KafkaConfig{Topic: "candle.updates"})
	sink.Handler()(testKey, testCandles)
}

func TestKafka_HandlerSwallowsWriteError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	writer := publisher_mock.NewMockWriter(ctrl)
	writer.EXPECT().
		WriteMessages(gomock.Any(), gomock.Any()).
		Return(assert.AnError)

	log := logger_mock.NewMockInterface(ctrl)
	log.EXPECT().Error(gomock.Any(), gomock.Any()).Times(1)

	sink := NewKafkaWithWriter(writer, log, KafkaConfig{Topic: "candle.updates"})
	assert.NotPanics(t, func() { sink.Handler()(testKey, testCandles) })
}

func TestKafka_Close(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	writer := publisher_mock.NewMockWriter(ctrl)
	writer.EXPECT().Close().Return(nil)

	sink := NewKafkaWithWriter(writer, newTestLogger(t), KafkaConfig{})
	assert.NoError(t, sink.Close())
}

func TestRedis_HandlerPublishes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := redis_mock.NewMockClient(ctrl)
	client.EXPECT().
		Publish(gomock.Any(), "marketsync:updates:binance:BTCUSDT:1m", gomock.Any()).
		DoAndReturn(func(ctx any, channel string, message any) (int64, error) {
			payload, ok := message.([]byte)
			require.True(t, ok)

			var event updateEvent
			require.NoError(t, json.Unmarshal(payload, &event))
			assert.Equal(t, testKey, event.Key)
			return 1, nil
		})

	sink := NewRedis(client, newTestLogger(t), RedisConfig{})
	sink.Handler()(testKey, testCandles)
}

func TestRedis_HandlerSwallowsPublishError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := redis_mock.NewMockClient(ctrl)
	client.EXPECT().
		Publish(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(int64(0), assert.AnError)

	log := logger_mock.NewMockInterface(ctrl)
	log.EXPECT().Error(gomock.Any(), gomock.Any()).Times(1)

	sink := NewRedis(client, log, RedisConfig{})
	assert.NotPanics(t, func() { sink.Handler()(testKey, testCandles) })
}
