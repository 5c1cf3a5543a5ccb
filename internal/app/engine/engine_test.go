package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	candlev1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/candle/v1"
	feedv1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/feed/v1"
	feedv1_mock "github.com/KingCyberX/insiderdept-sub000/internal/domain/feed/v1/mock"
	historyv1_mock "github.com/KingCyberX/insiderdept-sub000/internal/domain/history/v1/mock"
	"github.com/KingCyberX/insiderdept-sub000/internal/usecase/cache"
	"github.com/KingCyberX/insiderdept-sub000/internal/usecase/dispatch"
	"github.com/KingCyberX/insiderdept-sub000/internal/usecase/gapfill"
	"github.com/KingCyberX/insiderdept-sub000/internal/usecase/synthetic"
	"github.com/KingCyberX/insiderdept-sub000/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testKey = candlev1.Key{Exchange: "binance", Symbol: "BTCUSDT", Interval: "1m"}

type testFixture struct {
	ctrl    *gomock.Controller
	history *historyv1_mock.MockProvider
	feed    *feedv1_mock.MockClient
	engine  *Engine
	nowUnix int64
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	log, err := logger.NewLogger()
	require.NoError(t, err)

	f := &testFixture{
		ctrl:    ctrl,
		history: historyv1_mock.NewMockProvider(ctrl),
		feed:    feedv1_mock.NewMockClient(ctrl),
		nowUnix: 1700000100,
	}
	clock := func() time.Time { return time.Unix(f.nowUnix, 0) }

	filler := gapfill.NewFiller(f.history, log, gapfill.DefaultConfig()).WithClock(clock)
	candleCache := cache.NewCache(f.history, filler, log, cache.DefaultConfig()).WithClock(clock)
	// A midpoint noise source keeps synthetic closes flat so assertions
	// on seeded prices are exact.
	generator := synthetic.NewGenerator(candleCache, log, synthetic.Config{Tick: 5 * time.Millisecond}).
		WithRand(func() float64 { return 0.5 })
	registry := dispatch.NewRegistry(log)

	f.engine = NewEngine(candleCache, filler, generator, registry, log, Config{
		GapCheckInterval: 20 * time.Millisecond,
	}).WithClock(clock)
	f.engine.SetFeed(f.feed)

	t.Cleanup(ctrl.Finish)
	return f
}

func bar(ts int64, close float64) candlev1.Candle {
	return candlev1.Candle{Time: ts, Open: close, High: close, Low: close, Close: close, Volume: 1}
}

type notifyRecorder struct {
	mu        sync.Mutex
	snapshots [][]candlev1.Candle
}

func (r *notifyRecorder) handler(key candlev1.Key, candles []candlev1.Candle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, candles)
}

func (r *notifyRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *notifyRecorder) last() []candlev1.Candle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

func TestEngine_InitializeSubscribesOnce(t *testing.T) {
	f := setupTestFixture(t)

	f.history.EXPECT().
		FetchCandles(gomock.Any(), testKey, 5).
		Return([]candlev1.Candle{bar(1700000040, 100)}, nil).
		Times(2)
	f.feed.EXPECT().Subscribe(testKey).Times(1)

	snapshot, err := f.engine.Initialize(context.Background(), testKey, 5)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)

	// A second initialize refreshes the cache but holds no extra feed ref.
	_, err = f.engine.Initialize(context.Background(), testKey, 5)
	require.NoError(t, err)
}

func TestEngine_InitializeFetchErrorFallsBackToSynthetic(t *testing.T) {
	f := setupTestFixture(t)

	f.history.EXPECT().
		FetchCandles(gomock.Any(), testKey, 5).
		Return(nil, assert.AnError)
	f.feed.EXPECT().Subscribe(testKey)

	_, err := f.engine.Initialize(context.Background(), testKey, 5)
	require.Error(t, err)

	// Synthetic bars service the key until something real arrives.
	require.Eventually(t, func() bool {
		snapshot, _ := f.engine.GetSnapshot(testKey)
		return len(snapshot) > 0 && snapshot[0].Source == candlev1.SourceSynthetic
	}, time.Second, time.Millisecond)

	f.feed.EXPECT().Close().Return(nil)
	f.engine.Stop(context.Background())
}

func TestEngine_LiveUpdateMergesAndNotifies(t *testing.T) {
	f := setupTestFixture(t)

	f.history.EXPECT().
		FetchCandles(gomock.Any(), testKey, 5).
		Return([]candlev1.Candle{bar(1700000040, 100)}, nil)
	f.feed.EXPECT().Subscribe(testKey).Times(2)

	_, err := f.engine.Initialize(context.Background(), testKey, 5)
	require.NoError(t, err)

	rec := &notifyRecorder{}
	id := f.engine.RegisterObserver(testKey, rec.handler)
	require.NotEmpty(t, id)

	events := f.engine.Events()
	events.OnUpdate(testKey, feedv1.Update{Time: 1700000100, Open: 101, High: 102, Low: 100, Close: 101.5, Volume: 3})

	require.Equal(t, 1, rec.count())
	snapshot := rec.last()
	require.Len(t, snapshot, 2)
	assert.Equal(t, candlev1.SourceLive, snapshot[1].Source)
	assert.Equal(t, 101.5, snapshot[1].Close)

	// Live updates for the same slot keep overwriting; observers hear
	// every change.
	events.OnUpdate(testKey, feedv1.Update{Time: 1700000100, Close: 99})
	assert.Equal(t, 2, rec.count())
	assert.Equal(t, 99.0, rec.last()[1].Close)

	f.feed.EXPECT().Unsubscribe(testKey)
	assert.True(t, f.engine.UnregisterObserver(testKey, id))
	assert.False(t, f.engine.UnregisterObserver(testKey, id))
}

func TestEngine_UpdateForUnknownKeyIsDropped(t *testing.T) {
	f := setupTestFixture(t)

	rec := &notifyRecorder{}
	f.feed.EXPECT().Subscribe(testKey)
	f.engine.RegisterObserver(testKey, rec.handler)

	// No Initialize happened: the continuation finds no series and drops.
	f.engine.Events().OnUpdate(testKey, feedv1.Update{Time: 1700000100, Close: 1})
	assert.Equal(t, 0, rec.count())
}

func TestEngine_FallbackStartsGeneratorAndAckStopsIt(t *testing.T) {
	f := setupTestFixture(t)

	f.history.EXPECT().
		FetchCandles(gomock.Any(), testKey, 5).
		Return([]candlev1.Candle{bar(1700000040, 100)}, nil)
	f.feed.EXPECT().Subscribe(testKey).Times(2)

	_, err := f.engine.Initialize(context.Background(), testKey, 5)
	require.NoError(t, err)

	rec := &notifyRecorder{}
	f.engine.RegisterObserver(testKey, rec.handler)

	events := f.engine.Events()
	events.OnFallback(testKey)

	require.Eventually(t, func() bool { return rec.count() >= 2 },
		time.Second, time.Millisecond, "synthetic bars flow to observers")
	snapshot := rec.last()
	assert.Equal(t, candlev1.SourceSynthetic, snapshot[len(snapshot)-1].Source)
	assert.Equal(t, 100.0, snapshot[len(snapshot)-1].Open, "seeded from the last close")

	events.OnSubscribed(testKey)
	settled := rec.count()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, rec.count(), settled+1, "generator stands down on ack")
}

func TestEngine_FallbackForUninitializedKeyIsIgnored(t *testing.T) {
	f := setupTestFixture(t)

	rec := &notifyRecorder{}
	f.feed.EXPECT().Subscribe(testKey)
	f.engine.RegisterObserver(testKey, rec.handler)

	// Observers can register before Initialize; a fallback here has no
	// series to land in, so no runner may start.
	f.engine.Events().OnFallback(testKey)

	assert.False(t, f.engine.generator.Running(testKey))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestEngine_GapSchedulerStartsFallbackWhenLiveGoesStale(t *testing.T) {
	f := setupTestFixture(t)

	f.history.EXPECT().
		FetchCandles(gomock.Any(), testKey, 5).
		Return([]candlev1.Candle{bar(1700000040, 100)}, nil)
	f.feed.EXPECT().Subscribe(testKey)
	f.feed.EXPECT().Connect(gomock.Any()).Return(nil)
	f.feed.EXPECT().Close().Return(nil)

	_, err := f.engine.Initialize(context.Background(), testKey, 5)
	require.NoError(t, err)

	// Live flow starts on a healthy connection, then stalls well past the
	// freshness window while the connection stays up.
	f.engine.Events().OnUpdate(testKey, feedv1.Update{Time: 1700000100, Close: 101})
	f.nowUnix += 120

	// The trailing-gap backfill the scheduler also runs is not under test.
	f.history.EXPECT().
		FetchCandles(gomock.Any(), testKey, gomock.Any()).
		Return(nil, nil).
		AnyTimes()

	require.NoError(t, f.engine.Start(context.Background()))
	defer f.engine.Stop(context.Background())

	require.Eventually(t, func() bool { return f.engine.generator.Running(testKey) },
		time.Second, time.Millisecond, "stalled live flow brings the synthetic fallback up")
}

func TestEngine_GetSnapshotStaleTriggersRefresh(t *testing.T) {
	f := setupTestFixture(t)

	f.history.EXPECT().
		FetchCandles(gomock.Any(), testKey, 5).
		Return([]candlev1.Candle{bar(1700000040, 100)}, nil)
	f.feed.EXPECT().Subscribe(testKey)

	_, err := f.engine.Initialize(context.Background(), testKey, 5)
	require.NoError(t, err)

	snapshot, stale := f.engine.GetSnapshot(testKey)
	require.NotNil(t, snapshot)
	assert.False(t, stale)

	rec := &notifyRecorder{}
	f.engine.registry.Register(testKey, rec.handler)

	// Age the entry past the TTL; the refresh re-fetches and notifies.
	f.nowUnix += 120
	f.history.EXPECT().
		FetchCandles(gomock.Any(), testKey, 5).
		Return([]candlev1.Candle{bar(1700000040, 100), bar(1700000100, 104)}, nil)

	snapshot, stale = f.engine.GetSnapshot(testKey)
	assert.Nil(t, snapshot)
	assert.True(t, stale)

	require.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, time.Millisecond, "observers hear the refreshed snapshot")
	assert.Len(t, rec.last(), 2)
}

func TestEngine_GetSnapshotUnknownKey(t *testing.T) {
	f := setupTestFixture(t)

	snapshot, stale := f.engine.GetSnapshot(testKey)
	assert.Nil(t, snapshot)
	assert.False(t, stale)
}

func TestEngine_CleanupTearsDown(t *testing.T) {
	f := setupTestFixture(t)

	f.history.EXPECT().
		FetchCandles(gomock.Any(), testKey, 5).
		Return([]candlev1.Candle{bar(1700000040, 100)}, nil)
	f.feed.EXPECT().Subscribe(testKey)
	f.feed.EXPECT().Unsubscribe(testKey)

	_, err := f.engine.Initialize(context.Background(), testKey, 5)
	require.NoError(t, err)

	f.engine.Cleanup(testKey)

	snapshot, stale := f.engine.GetSnapshot(testKey)
	assert.Nil(t, snapshot)
	assert.False(t, stale)

	// A continuation resolving after cleanup is a lost update.
	rec := &notifyRecorder{}
	f.engine.registry.Register(testKey, rec.handler)
	f.engine.Events().OnUpdate(testKey, feedv1.Update{Time: 1700000160, Close: 1})
	assert.Equal(t, 0, rec.count())

	// Cleanup of an unknown key is safe and sends no unsubscribe.
	f.engine.Cleanup(candlev1.Key{Exchange: "x", Symbol: "y", Interval: "1m"})
}

func TestEngine_GapSchedulerBackfills(t *testing.T) {
	f := setupTestFixture(t)

	// Series ends 300s before now with a trailing gap.
	f.history.EXPECT().
		FetchCandles(gomock.Any(), testKey, 5).
		Return([]candlev1.Candle{bar(1699999740, 99), bar(1699999800, 100)}, nil)
	f.feed.EXPECT().Subscribe(testKey)
	f.feed.EXPECT().Connect(gomock.Any()).Return(nil)
	f.feed.EXPECT().Close().Return(nil)

	_, err := f.engine.Initialize(context.Background(), testKey, 5)
	require.NoError(t, err)

	rec := &notifyRecorder{}
	f.engine.registry.Register(testKey, rec.handler)

	// The backfill fetch returns one genuinely new bar; interior holes
	// around it get flat-filled.
	f.history.EXPECT().
		FetchCandles(gomock.Any(), testKey, gomock.Any()).
		Return([]candlev1.Candle{bar(1699999980, 102)}, nil).
		MinTimes(1)

	require.NoError(t, f.engine.Start(context.Background()))
	defer f.engine.Stop(context.Background())

	require.Eventually(t, func() bool { return rec.count() >= 1 },
		2*time.Second, 5*time.Millisecond, "scheduler merges and notifies")

	snapshot := rec.last()
	byTime := map[int64]candlev1.Candle{}
	for _, c := range snapshot {
		byTime[c.Time] = c
	}
	require.Contains(t, byTime, int64(1699999980))
	assert.Equal(t, candlev1.SourceHistorical, byTime[1699999980].Source)
	require.Contains(t, byTime, int64(1699999860), "interior hole flat-filled")
	assert.Equal(t, candlev1.SourceSynthetic, byTime[1699999860].Source)
	assert.Equal(t, 100.0, byTime[1699999860].Close)
}
