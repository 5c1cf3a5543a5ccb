package synthetic

import (
	"sync"
	"testing"
	"time"

	candlev1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/candle/v1"
	"github.com/KingCyberX/insiderdept-sub000/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = candlev1.Key{Exchange: "binance", Symbol: "BTCUSDT", Interval: "1m"}

type fakeStore struct {
	mu        sync.Mutex
	lastClose float64
	hasClose  bool
	liveFresh bool
}

func (s *fakeStore) LastClose(candlev1.Key) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastClose, s.hasClose
}

func (s *fakeStore) LiveFresh(candlev1.Key, time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveFresh
}

func (s *fakeStore) setClose(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastClose, s.hasClose = v, true
}

func (s *fakeStore) setLiveFresh(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveFresh = v
}

type emitRecorder struct {
	mu      sync.Mutex
	candles []candlev1.Candle
}

func (r *emitRecorder) emit(c candlev1.Candle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candles = append(r.candles, c)
}

func (r *emitRecorder) snapshot() []candlev1.Candle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]candlev1.Candle(nil), r.candles...)
}

func newTestGenerator(t *testing.T, store Store, config Config) *Generator {
	t.Helper()
	log, err := logger.NewLogger()
	require.NoError(t, err)
	return NewGenerator(store, log, config).
		WithClock(func() time.Time { return time.Unix(1700000095, 0) }).
		WithRand(func() float64 { return 1 }) // always the max upward move
}

func TestGenerator_EmitsAlignedSeededCandles(t *testing.T) {
	store := &fakeStore{}
	store.setClose(200)
	rec := &emitRecorder{}
	g := newTestGenerator(t, store, Config{Tick: 5 * time.Millisecond})
	defer g.StopAll()

	g.Start(testKey, rec.emit)
	assert.True(t, g.Running(testKey))

	// First candle is synchronous.
	first := rec.snapshot()
	require.NotEmpty(t, first)
	c := first[0]
	assert.Equal(t, int64(1700000040), c.Time, "aligned down to the minute boundary")
	assert.Equal(t, candlev1.SourceSynthetic, c.Source)
	assert.Equal(t, 200.0, c.Open, "seeded from last close")
	assert.Equal(t, 0.0, c.Volume)
	// randFn=1 → move = +200 * 0.002 * (60/3600)
	assert.InDelta(t, 200.0*(1+0.002/60), c.Close, 1e-9)
	assert.Equal(t, c.Close, c.High)
	assert.Equal(t, c.Open, c.Low)

	require.Eventually(t, func() bool { return len(rec.snapshot()) >= 3 },
		time.Second, time.Millisecond, "ticker keeps emitting")
}

func TestGenerator_DefaultSeedWhenSeriesEmpty(t *testing.T) {
	store := &fakeStore{}
	rec := &emitRecorder{}
	g := newTestGenerator(t, store, Config{DefaultPrice: 42, Tick: time.Hour})
	defer g.StopAll()

	g.Start(testKey, rec.emit)

	candles := rec.snapshot()
	require.Len(t, candles, 1)
	assert.Equal(t, 42.0, candles[0].Open)
}

func TestGenerator_StopsWhenLiveDataIsFresh(t *testing.T) {
	store := &fakeStore{}
	store.setClose(100)
	rec := &emitRecorder{}
	g := newTestGenerator(t, store, Config{Tick: 5 * time.Millisecond})
	defer g.StopAll()

	g.Start(testKey, rec.emit)
	require.Eventually(t, func() bool { return len(rec.snapshot()) >= 2 },
		time.Second, time.Millisecond)

	store.setLiveFresh(true)

	require.Eventually(t, func() bool { return !g.Running(testKey) },
		time.Second, time.Millisecond, "runner removes itself within one tick")

	// No further emissions after the runner yielded.
	settled := len(rec.snapshot())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, len(rec.snapshot()))
}

func TestGenerator_StartIsIdempotent(t *testing.T) {
	store := &fakeStore{}
	rec := &emitRecorder{}
	g := newTestGenerator(t, store, Config{Tick: time.Hour})
	defer g.StopAll()

	g.Start(testKey, rec.emit)
	g.Start(testKey, rec.emit)

	assert.Len(t, rec.snapshot(), 1, "second start for a running key is a no-op")
}

func TestGenerator_StopClearsRunner(t *testing.T) {
	store := &fakeStore{}
	rec := &emitRecorder{}
	g := newTestGenerator(t, store, Config{Tick: 5 * time.Millisecond})

	g.Start(testKey, rec.emit)
	require.True(t, g.Running(testKey))

	g.Stop(testKey)
	assert.False(t, g.Running(testKey))

	settled := len(rec.snapshot())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, len(rec.snapshot()))

	// Stopping an unknown key is safe.
	g.Stop(candlev1.Key{Exchange: "x", Symbol: "y", Interval: "1m"})
	g.StopAll()
}

func TestGenerator_UnknownIntervalRefusesToStart(t *testing.T) {
	store := &fakeStore{}
	rec := &emitRecorder{}
	g := newTestGenerator(t, store, Config{})
	defer g.StopAll()

	g.Start(candlev1.Key{Exchange: "binance", Symbol: "BTCUSDT", Interval: "2m"}, rec.emit)

	assert.False(t, g.Running(candlev1.Key{Exchange: "binance", Symbol: "BTCUSDT", Interval: "2m"}))
	assert.Empty(t, rec.snapshot())
}
