// Package engine is the public facade of the market-data sync engine. It
// wires the push feed into the candle cache, fans merged updates out to
// observers, schedules active gap backfills, and orchestrates synthetic
// fallback when the real feed is unavailable.
package engine

import (
	"context"
	"sync"
	"time"

	candlev1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/candle/v1"
	feedv1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/feed/v1"
	"github.com/KingCyberX/insiderdept-sub000/internal/usecase/cache"
	"github.com/KingCyberX/insiderdept-sub000/internal/usecase/dispatch"
	"github.com/KingCyberX/insiderdept-sub000/internal/usecase/gapfill"
	"github.com/KingCyberX/insiderdept-sub000/internal/usecase/synthetic"
	"github.com/KingCyberX/insiderdept-sub000/pkg/interval"
	"github.com/KingCyberX/insiderdept-sub000/pkg/logger"
)

// Config holds the engine scheduling knobs.
type Config struct {
	// GapCheckInterval is both the scheduler tick and the per-key rate
	// limit for active backfills.
	GapCheckInterval time.Duration
	// ShutdownTimeout bounds Stop.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		GapCheckInterval: 30 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Engine exposes the public surface: Initialize, GetSnapshot,
// RegisterObserver, UnregisterObserver, Cleanup. Exactly one Engine exists
// per process; it is constructed in bootstrap and injected everywhere.
type Engine struct {
	cache     *cache.Cache
	filler    *gapfill.Filler
	generator *synthetic.Generator
	registry  *dispatch.Registry
	feed      feedv1.Client
	logger    logger.Interface
	config    Config

	mu          sync.Mutex
	lastGapRun  map[candlev1.Key]time.Time
	initialized map[candlev1.Key]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewEngine builds the facade. The feed client is attached afterwards via
// SetFeed because its event callbacks come from this engine.
func NewEngine(
	candleCache *cache.Cache,
	filler *gapfill.Filler,
	generator *synthetic.Generator,
	registry *dispatch.Registry,
	log logger.Interface,
	config Config,
) *Engine {
	def := DefaultConfig()
	if config.GapCheckInterval <= 0 {
		config.GapCheckInterval = def.GapCheckInterval
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}
	return &Engine{
		cache:       candleCache,
		filler:      filler,
		generator:   generator,
		registry:    registry,
		logger:      log,
		config:      config,
		lastGapRun:  make(map[candlev1.Key]time.Time),
		initialized: make(map[candlev1.Key]bool),
		now:         time.Now,
	}
}

// SetFeed attaches the push-feed client. Must happen before Start.
func (e *Engine) SetFeed(client feedv1.Client) {
	e.feed = client
}

// WithClock overrides the time source, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Events returns the callbacks the feed client drives the engine with.
func (e *Engine) Events() feedv1.Events {
	return feedv1.Events{
		OnUpdate:      e.onUpdate,
		OnStateChange: e.onStateChange,
		OnFallback:    e.onFallback,
		OnSubscribed:  e.onSubscribed,
	}
}

// Start connects the feed and launches the gap-check scheduler.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	if err := e.feed.Connect(e.ctx); err != nil {
		return err
	}

	e.wg.Add(1)
	go e.runGapScheduler()

	e.logger.Info("engine started")
	return nil
}

// Stop shuts the feed, the synthetic runners, and the scheduler down,
// bounded by ShutdownTimeout.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	if e.feed != nil {
		e.feed.Close()
	}
	e.generator.StopAll()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("engine stopped")
		return nil
	case <-time.After(e.config.ShutdownTimeout):
		e.logger.Warn("engine stop timed out")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Initialize loads the opening window for a key and subscribes it to the
// push feed. Concurrent calls for one key collapse onto a single fetch.
// A failed fetch still subscribes: the feed fallback path produces
// synthetic bars until history recovers.
func (e *Engine) Initialize(ctx context.Context, key candlev1.Key, limit int) ([]candlev1.Candle, error) {
	snapshot, err := e.cache.Initialize(ctx, key, limit)

	if err == nil || e.cache.Has(key) {
		e.mu.Lock()
		first := !e.initialized[key]
		e.initialized[key] = true
		e.mu.Unlock()
		if first {
			e.feed.Subscribe(key)
		}
	}
	if err != nil && e.cache.Has(key) {
		// No history and no last-good series: synthetic bars keep the key
		// serviceable until live data or a later backfill arrives.
		e.onFallback(key)
	}
	return snapshot, err
}

// GetSnapshot returns a copy of the series. The bool reports staleness:
// (nil, true) means the entry exists but is too old to serve; a background
// re-initialize is already underway and observers will be notified when it
// lands. (nil, false) means the key was never initialized.
func (e *Engine) GetSnapshot(key candlev1.Key) ([]candlev1.Candle, bool) {
	snapshot, stale := e.cache.Snapshot(key)
	if snapshot == nil && stale {
		e.wg.Add(1)
		go e.refresh(key)
	}
	return snapshot, stale
}

// refresh re-initializes a stale key in the background and notifies
// observers with the fresh snapshot.
func (e *Engine) refresh(key candlev1.Key) {
	defer e.wg.Done()

	limit := e.cache.Limit(key)
	if limit <= 0 {
		return
	}
	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	snapshot, err := e.cache.Initialize(ctx, key, limit)
	if err != nil {
		e.logger.Error(err, logger.Field{Key: "key", Value: key.String()})
		return
	}
	// The key may have been cleaned up while the fetch was in flight.
	if !e.cache.Has(key) {
		return
	}
	e.registry.Notify(key, snapshot)
}

// RegisterObserver adds a snapshot observer and a feed reference for the
// key, returning the observer handle.
func (e *Engine) RegisterObserver(key candlev1.Key, handler dispatch.Handler) string {
	id := e.registry.Register(key, handler)
	e.feed.Subscribe(key)
	return id
}

// UnregisterObserver removes the observer and drops its feed reference.
func (e *Engine) UnregisterObserver(key candlev1.Key, id string) bool {
	if !e.registry.Unregister(key, id) {
		return false
	}
	e.feed.Unsubscribe(key)
	return true
}

// Cleanup tears a key down: feed reference, synthetic runner, cached
// series, and scheduler state. Observers registered for the key stay
// registered; with no series behind them they simply stop firing.
func (e *Engine) Cleanup(key candlev1.Key) {
	e.mu.Lock()
	wasInitialized := e.initialized[key]
	delete(e.initialized, key)
	delete(e.lastGapRun, key)
	e.mu.Unlock()

	if wasInitialized {
		e.feed.Unsubscribe(key)
	}
	e.generator.Stop(key)
	e.cache.Cleanup(key)
}

// onUpdate is the live path: one push-feed candle lands in the cache and,
// when it changes the series, fans out to observers.
func (e *Engine) onUpdate(key candlev1.Key, update feedv1.Update) {
	candle := candlev1.Candle{
		Time:   update.Time,
		Open:   update.Open,
		High:   update.High,
		Low:    update.Low,
		Close:  update.Close,
		Volume: update.Volume,
		Source: candlev1.SourceLive,
	}
	if !e.cache.Merge(key, candle) {
		return
	}
	e.notify(key)
}

// onFallback hands a key to the synthetic generator. Emitted bars go
// through the same merge-then-notify path as live ones; the generator
// stops itself once live data is fresh again. Keys without a cache entry
// are skipped: every emit would be a lost update and nothing could ever
// stop the runner.
func (e *Engine) onFallback(key candlev1.Key) {
	if !e.cache.Has(key) {
		return
	}
	e.generator.Start(key, func(candle candlev1.Candle) {
		if e.cache.Merge(key, candle) {
			e.notify(key)
		}
	})
}

// onSubscribed stands the synthetic fallback down for an acked key.
func (e *Engine) onSubscribed(key candlev1.Key) {
	e.generator.Stop(key)
}

func (e *Engine) onStateChange(state feedv1.State) {
	e.logger.Info("feed state changed", logger.Field{Key: "state", Value: string(state)})
}

func (e *Engine) notify(key candlev1.Key) {
	snapshot, ok := e.cache.Series(key)
	if !ok {
		return
	}
	e.registry.Notify(key, snapshot)
}

// runGapScheduler drives active backfills: every tick it scans all cached
// keys, rate-limited per key to one backfill per GapCheckInterval.
func (e *Engine) runGapScheduler() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.GapCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			for _, key := range e.cache.Keys() {
				e.checkGaps(key)
			}
		}
	}
}

// checkGaps runs one rate-limited pass for a key: live-staleness fallback
// first, then the active backfill.
func (e *Engine) checkGaps(key candlev1.Key) {
	e.mu.Lock()
	last, seen := e.lastGapRun[key]
	if seen && e.now().Sub(last) < e.config.GapCheckInterval {
		e.mu.Unlock()
		return
	}
	e.lastGapRun[key] = e.now()
	e.mu.Unlock()

	iv, err := interval.GetInterval(key.Interval)
	if err != nil {
		return
	}
	snapshot, ok := e.cache.Series(key)
	if !ok || len(snapshot) == 0 {
		return
	}

	// A subscription whose live flow stalled gets the synthetic fallback
	// even while the connection itself stays healthy. Only keys that have
	// seen live data qualify; the no-data-yet case is covered by the
	// subscribe-ack timer.
	if tracker, ok := e.cache.Tracker(key); ok && tracker.HasLiveData &&
		!e.cache.LiveFresh(key, e.generator.FreshWindow()) {
		e.onFallback(key)
	}

	merged, err := e.filler.Backfill(e.ctx, key, snapshot, iv)
	if err != nil {
		e.logger.Error(err, logger.Field{Key: "key", Value: key.String()})
		return
	}
	if len(merged) == 0 {
		return
	}
	if e.cache.MergeBatch(key, merged) {
		e.notify(key)
	}
}
