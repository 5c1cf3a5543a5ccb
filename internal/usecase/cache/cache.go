package cache

import (
	"context"
	"sort"
	"time"

	candlev1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/candle/v1"
	historyv1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/history/v1"
	"github.com/KingCyberX/insiderdept-sub000/internal/usecase/gapfill"
	"github.com/KingCyberX/insiderdept-sub000/pkg/errors"
	"github.com/KingCyberX/insiderdept-sub000/pkg/interval"
	"github.com/KingCyberX/insiderdept-sub000/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// Config holds cache tuning.
type Config struct {
	// SeriesCap bounds every series; the oldest candle is evicted first.
	SeriesCap int `env:"SERIES_CAP" envDefault:"1000"`
	// SnapshotTTL is how stale an entry may get before Snapshot refuses to
	// serve it and a background refresh is requested instead.
	SnapshotTTL time.Duration `env:"SNAPSHOT_TTL" envDefault:"60s"`
}

// DefaultConfig returns the cache defaults.
func DefaultConfig() Config {
	return Config{SeriesCap: candlev1.DefaultSeriesCap, SnapshotTTL: 60 * time.Second}
}

// Tracker records per-key source freshness.
type Tracker struct {
	HasLiveData     bool
	LastLiveUpdate  time.Time
	InitialLoadDone bool
}

type entry struct {
	series    *candlev1.Series
	tracker   Tracker
	lastWrite time.Time
	limit     int // caller-requested limit, kept for background refreshes
}

// Cache owns one bounded, deduplicated, provenance-arbitrated series per
// key. All mutations go through its methods; critical sections cover only
// the map and series updates, never the historical fetch.
type Cache struct {
	history historyv1.Provider
	filler  *gapfill.Filler
	logger  logger.Interface
	config  Config

	mu     syncMap
	now    func() time.Time
	initSF singleflight.Group
}

// NewCache creates a Cache. Zero config fields fall back to defaults.
func NewCache(history historyv1.Provider, filler *gapfill.Filler, log logger.Interface, config Config) *Cache {
	defaults := DefaultConfig()
	if config.SeriesCap <= 0 {
		config.SeriesCap = defaults.SeriesCap
	}
	if config.SnapshotTTL <= 0 {
		config.SnapshotTTL = defaults.SnapshotTTL
	}
	return &Cache{
		history: history,
		filler:  filler,
		logger:  log,
		config:  config,
		mu:      newSyncMap(),
		now:     time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Initialize fetches the opening window for a key, normalizes and
// gap-fills it, and stores the result. Concurrent calls for the same key
// are collapsed onto one fetch. A fetch failure falls back to the last
// good series when one exists; otherwise an empty entry is installed so
// live and synthetic merges have somewhere to land, and the error is
// returned for the caller to trigger its fallback.
func (c *Cache) Initialize(ctx context.Context, key candlev1.Key, limit int) ([]candlev1.Candle, error) {
	iv, err := interval.GetInterval(key.Interval)
	if err != nil {
		return nil, err
	}

	result, err, _ := c.initSF.Do(key.String(), func() (any, error) {
		return c.initialize(ctx, key, iv, limit)
	})
	if err != nil {
		return nil, err
	}
	return result.([]candlev1.Candle), nil
}

func (c *Cache) initialize(ctx context.Context, key candlev1.Key, iv interval.Interval, limit int) ([]candlev1.Candle, error) {
	fetchLimit := limit * iv.ScaleFactor()
	candles, err := c.history.FetchCandles(ctx, key, fetchLimit)
	if err != nil {
		wrapped := errors.WrapCoded(errors.HistoryFetchError, err)
		c.logger.ErrorContext(ctx, wrapped, logger.Field{Key: "key", Value: key.String()})

		var lastGood []candlev1.Candle
		c.mu.read(key, func(e *entry) {
			if e.series.Len() > 0 {
				lastGood = e.series.Snapshot()
			}
		})
		if lastGood != nil {
			// Degrade to the last good series rather than surfacing the failure.
			return lastGood, nil
		}
		c.mu.upsert(key, func(e *entry) {}, c.newEntry(limit))
		return nil, wrapped
	}

	for i := range candles {
		if candles[i].Source == "" {
			candles[i].Source = candlev1.SourceHistorical
		}
	}
	normalized := gapfill.Normalize(candles, iv)
	filled, synthesized := gapfill.FillInterior(normalized, iv)

	var snapshot []candlev1.Candle
	c.mu.upsert(key, func(e *entry) {
		// The fetched window goes through the priority merge rather than
		// replacing the series: a live candle that landed while the fetch
		// was in flight must survive the all-historical result.
		e.series.MergeAll(filled)
		e.tracker.InitialLoadDone = true
		e.lastWrite = c.now()
		e.limit = limit
		snapshot = e.series.Snapshot()
	}, c.newEntry(limit))

	c.logger.InfoContext(ctx, "series initialized",
		logger.Field{Key: "key", Value: key.String()},
		logger.Field{Key: "fetched", Value: len(candles)},
		logger.Field{Key: "stored", Value: len(snapshot)},
		logger.Field{Key: "gap_filled", Value: synthesized},
	)
	return snapshot, nil
}

func (c *Cache) newEntry(limit int) *entry {
	return &entry{
		series: candlev1.NewSeries(c.config.SeriesCap),
		limit:  limit,
	}
}

// Merge applies one candle under the provenance-priority rule and reports
// whether the series changed. Live candles refresh the source tracker. The
// write path also runs the structural gap scan, which logs but never fills
// inline.
func (c *Cache) Merge(key candlev1.Key, candle candlev1.Candle) bool {
	iv, err := interval.GetInterval(key.Interval)
	if err != nil {
		c.logger.Error(err, logger.Field{Key: "key", Value: key.String()})
		return false
	}
	candle.Time = iv.AlignUnix(candle.Time)

	var (
		changed bool
		recent  []candlev1.Candle
	)
	ok := c.mu.update(key, func(e *entry) {
		changed = e.series.Merge(candle)
		if candle.Source == candlev1.SourceLive {
			e.tracker.HasLiveData = true
			e.tracker.LastLiveUpdate = c.now()
		}
		if changed {
			e.lastWrite = c.now()
			recent = e.series.Snapshot()
		}
	})
	if !ok {
		// Continuation resolved for a key that was cleaned up meanwhile;
		// dropping the update is intentional.
		return false
	}

	if changed {
		for _, gap := range c.filler.ScanRecent(recent, iv) {
			c.logger.Warn("gap in recent candles",
				logger.Field{Key: "key", Value: key.String()},
				logger.Field{Key: "from", Value: gap.From},
				logger.Field{Key: "to", Value: gap.To},
				logger.Field{Key: "missing", Value: gap.Missing},
			)
		}
	}
	return changed
}

// MergeBatch applies a backfill result and reports whether anything changed.
func (c *Cache) MergeBatch(key candlev1.Key, candles []candlev1.Candle) bool {
	changed := false
	ok := c.mu.update(key, func(e *entry) {
		changed = e.series.MergeAll(candles)
		if changed {
			e.lastWrite = c.now()
		}
	})
	return ok && changed
}

// SetOpenInterest merges auxiliary open-interest readings into the side
// channel of existing candles.
func (c *Cache) SetOpenInterest(key candlev1.Key, readings []historyv1.OpenInterest) {
	iv, err := interval.GetInterval(key.Interval)
	if err != nil {
		return
	}
	c.mu.update(key, func(e *entry) {
		for _, r := range readings {
			e.series.SetOpenInterest(iv.AlignUnix(r.Time), r.Value)
		}
	})
}

// Snapshot returns a copy of the series, or nil when the key is unknown.
// The second return reports staleness: a non-nil=false result is current,
// nil=true means the entry exists but its last write is older than the TTL
// and the caller should refresh in the background and wait for the next
// notification instead of rendering stale data.
func (c *Cache) Snapshot(key candlev1.Key) ([]candlev1.Candle, bool) {
	var (
		snapshot []candlev1.Candle
		stale    bool
	)
	ok := c.mu.read(key, func(e *entry) {
		if c.now().Sub(e.lastWrite) > c.config.SnapshotTTL {
			stale = true
			return
		}
		snapshot = e.series.Snapshot()
	})
	if !ok {
		return nil, false
	}
	return snapshot, stale
}

// Series returns the stored candles regardless of the snapshot TTL. The
// gap scheduler works on stale entries too, so it cannot use Snapshot.
func (c *Cache) Series(key candlev1.Key) ([]candlev1.Candle, bool) {
	var snapshot []candlev1.Candle
	ok := c.mu.read(key, func(e *entry) { snapshot = e.series.Snapshot() })
	return snapshot, ok
}

// Keys returns every cached key, sorted for deterministic scheduling.
func (c *Cache) Keys() []candlev1.Key {
	keys := c.mu.keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Tracker returns the source tracker for a key.
func (c *Cache) Tracker(key candlev1.Key) (Tracker, bool) {
	var t Tracker
	ok := c.mu.read(key, func(e *entry) { t = e.tracker })
	return t, ok
}

// LiveFresh reports whether live data arrived for the key within the
// given window. The synthetic generator polls this before every tick.
func (c *Cache) LiveFresh(key candlev1.Key, within time.Duration) bool {
	var fresh bool
	c.mu.read(key, func(e *entry) {
		fresh = e.tracker.HasLiveData && c.now().Sub(e.tracker.LastLiveUpdate) <= within
	})
	return fresh
}

// LastClose returns the newest close for seeding synthetic continuation.
func (c *Cache) LastClose(key candlev1.Key) (float64, bool) {
	var (
		lastClose float64
		found     bool
	)
	c.mu.read(key, func(e *entry) {
		if last, ok := e.series.Last(); ok {
			lastClose, found = last.Close, true
		}
	})
	return lastClose, found
}

// Limit returns the limit requested at Initialize, for background refreshes.
func (c *Cache) Limit(key candlev1.Key) int {
	limit := 0
	c.mu.read(key, func(e *entry) { limit = e.limit })
	return limit
}

// Has reports whether a series exists for the key.
func (c *Cache) Has(key candlev1.Key) bool {
	return c.mu.read(key, func(e *entry) {})
}

// Cleanup drops the series and tracker for a key.
func (c *Cache) Cleanup(key candlev1.Key) {
	c.mu.delete(key)
	c.logger.Debug("series dropped", logger.Field{Key: "key", Value: key.String()})
}
