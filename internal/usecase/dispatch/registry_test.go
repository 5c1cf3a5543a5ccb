package dispatch

import (
	"testing"

	candlev1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/candle/v1"
	"github.com/KingCyberX/insiderdept-sub000/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = candlev1.Key{Exchange: "binance", Symbol: "BTCUSDT", Interval: "1m"}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	log, err := logger.NewLogger()
	require.NoError(t, err)
	return NewRegistry(log)
}

func TestRegistry_NotifyInRegistrationOrder(t *testing.T) {
	r := newTestRegistry(t)

	var order []string
	r.Register(testKey, func(candlev1.Key, []candlev1.Candle) { order = append(order, "first") })
	r.Register(testKey, func(candlev1.Key, []candlev1.Candle) { order = append(order, "second") })
	r.Register(testKey, func(candlev1.Key, []candlev1.Candle) { order = append(order, "third") })

	r.Notify(testKey, nil)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestRegistry_UnregisterByHandle(t *testing.T) {
	r := newTestRegistry(t)

	var calls []string
	first := r.Register(testKey, func(candlev1.Key, []candlev1.Candle) { calls = append(calls, "first") })
	second := r.Register(testKey, func(candlev1.Key, []candlev1.Candle) { calls = append(calls, "second") })
	require.NotEqual(t, first, second)
	require.Equal(t, 2, r.Count(testKey))

	assert.True(t, r.Unregister(testKey, first))
	assert.Equal(t, 1, r.Count(testKey))

	r.Notify(testKey, nil)
	assert.Equal(t, []string{"second"}, calls, "remaining observer still fires")

	assert.False(t, r.Unregister(testKey, first), "double unregister")
	assert.False(t, r.Unregister(candlev1.Key{Exchange: "x", Symbol: "y", Interval: "1m"}, second))

	assert.True(t, r.Unregister(testKey, second))
	assert.Equal(t, 0, r.Count(testKey))
	assert.Empty(t, r.Keys(), "last unregister drops the key entry")
}

func TestRegistry_PanicIsolation(t *testing.T) {
	r := newTestRegistry(t)

	called := false
	r.Register(testKey, func(candlev1.Key, []candlev1.Candle) { panic("observer bug") })
	r.Register(testKey, func(candlev1.Key, []candlev1.Candle) { called = true })

	assert.NotPanics(t, func() { r.Notify(testKey, nil) })
	assert.True(t, called, "panic in one handler does not stop the next")
}

func TestRegistry_NotifyPassesSnapshot(t *testing.T) {
	r := newTestRegistry(t)

	var got []candlev1.Candle
	var gotKey candlev1.Key
	r.Register(testKey, func(k candlev1.Key, c []candlev1.Candle) { gotKey, got = k, c })

	candles := []candlev1.Candle{{Time: 1700000040, Close: 100, Source: candlev1.SourceLive}}
	r.Notify(testKey, candles)

	assert.Equal(t, testKey, gotKey)
	assert.Equal(t, candles, got)

	// Unknown key is a no-op.
	r.Notify(candlev1.Key{Exchange: "x", Symbol: "y", Interval: "1m"}, candles)
}

func TestRegistry_KeysSorted(t *testing.T) {
	r := newTestRegistry(t)

	b := candlev1.Key{Exchange: "bybit", Symbol: "ETHUSDT", Interval: "5m"}
	r.Register(b, func(candlev1.Key, []candlev1.Candle) {})
	r.Register(testKey, func(candlev1.Key, []candlev1.Candle) {})

	assert.Equal(t, []candlev1.Key{testKey, b}, r.Keys())
}
