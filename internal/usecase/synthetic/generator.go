// Package synthetic produces fallback candles for keys with no live feed.
// A runner emits one candle per tick at the current aligned boundary and
// stops itself as soon as live data turns fresh again.
package synthetic

import (
	"math/rand"
	"sync"
	"time"

	candlev1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/candle/v1"
	"github.com/KingCyberX/insiderdept-sub000/pkg/interval"
	"github.com/KingCyberX/insiderdept-sub000/pkg/logger"
)

// Store is the slice of the candle cache the generator consults: the last
// close for price continuity and the live-freshness signal that shuts a
// runner down.
type Store interface {
	LastClose(key candlev1.Key) (float64, bool)
	LiveFresh(key candlev1.Key, within time.Duration) bool
}

// Config holds the generator tunables.
type Config struct {
	// DefaultPrice seeds a series that has no candles yet.
	DefaultPrice float64
	// NoiseFraction bounds the symmetric per-tick move at the one-hour
	// scale; smaller intervals move proportionally less.
	NoiseFraction float64
	// FreshWindow is how recent a live update must be to stop a runner.
	FreshWindow time.Duration
	// Tick overrides the emission period. Zero means one tick per
	// interval duration.
	Tick time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultPrice:  100,
		NoiseFraction: 0.002,
		FreshWindow:   30 * time.Second,
	}
}

type runner struct {
	stop     chan struct{}
	stopOnce sync.Once
}

func (r *runner) halt() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Generator manages one background runner per key.
type Generator struct {
	store  Store
	logger logger.Interface
	config Config

	mu      sync.Mutex
	runners map[candlev1.Key]*runner
	wg      sync.WaitGroup

	now    func() time.Time
	randFn func() float64
}

// NewGenerator builds a Generator on top of the given store.
func NewGenerator(store Store, log logger.Interface, config Config) *Generator {
	if config.DefaultPrice <= 0 {
		config.DefaultPrice = DefaultConfig().DefaultPrice
	}
	if config.NoiseFraction <= 0 {
		config.NoiseFraction = DefaultConfig().NoiseFraction
	}
	if config.FreshWindow <= 0 {
		config.FreshWindow = DefaultConfig().FreshWindow
	}
	return &Generator{
		store:   store,
		logger:  log,
		config:  config,
		runners: make(map[candlev1.Key]*runner),
		now:     time.Now,
		randFn:  rand.Float64,
	}
}

// FreshWindow returns the live-staleness window runners are judged by.
// The engine applies the same window when deciding to start one.
func (g *Generator) FreshWindow() time.Duration {
	return g.config.FreshWindow
}

// WithClock swaps the time source. Test helper.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithRand swaps the noise source. Test helper.
func (g *Generator) WithRand(randFn func() float64) *Generator {
	g.randFn = randFn
	return g
}

// Start launches a runner for the key if one is not already running. Every
// emitted candle goes through emit; the caller merges and fans it out. The
// first candle is emitted synchronously so a subscriber during an outage
// sees data immediately.
func (g *Generator) Start(key candlev1.Key, emit func(candlev1.Candle)) {
	iv, err := interval.GetInterval(key.Interval)
	if err != nil {
		g.logger.Error(err, logger.Field{Key: "key", Value: key.String()})
		return
	}

	g.mu.Lock()
	if _, ok := g.runners[key]; ok {
		g.mu.Unlock()
		return
	}
	r := &runner{stop: make(chan struct{})}
	g.runners[key] = r
	g.mu.Unlock()

	g.logger.Info("synthetic runner started", logger.Field{Key: "key", Value: key.String()})
	emit(g.next(key, iv))

	g.wg.Add(1)
	go g.run(key, iv, r, emit)
}

func (g *Generator) run(key candlev1.Key, iv interval.Interval, r *runner, emit func(candlev1.Candle)) {
	defer g.wg.Done()

	period := g.config.Tick
	if period <= 0 {
		period = iv.Duration
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if g.store.LiveFresh(key, g.config.FreshWindow) {
				// Live data won the series back; no external stop needed.
				g.logger.Info("synthetic runner yielding to live data",
					logger.Field{Key: "key", Value: key.String()})
				g.remove(key, r)
				return
			}
			emit(g.next(key, iv))
		}
	}
}

// next builds one synthetic candle at the current aligned boundary, seeded
// from the last close when the series has one.
func (g *Generator) next(key candlev1.Key, iv interval.Interval) candlev1.Candle {
	seed := g.config.DefaultPrice
	if lastClose, ok := g.store.LastClose(key); ok {
		seed = lastClose
	}

	// Symmetric move bounded by NoiseFraction, shrunk for small intervals.
	scale := float64(iv.Seconds()) / 3600.0
	move := (g.randFn()*2 - 1) * seed * g.config.NoiseFraction * scale
	open, closePx := seed, seed+move

	c := candlev1.Candle{
		Time:   iv.AlignUnix(g.now().Unix()),
		Open:   open,
		Close:  closePx,
		Volume: 0,
		Source: candlev1.SourceSynthetic,
	}
	if open >= closePx {
		c.High, c.Low = open, closePx
	} else {
		c.High, c.Low = closePx, open
	}
	return c
}

func (g *Generator) remove(key candlev1.Key, r *runner) {
	g.mu.Lock()
	if g.runners[key] == r {
		delete(g.runners, key)
	}
	g.mu.Unlock()
	r.halt()
}

// Stop halts the runner for a key, if any. Safe to call for keys that were
// never started.
func (g *Generator) Stop(key candlev1.Key) {
	g.mu.Lock()
	r, ok := g.runners[key]
	if ok {
		delete(g.runners, key)
	}
	g.mu.Unlock()
	if ok {
		r.halt()
		g.logger.Info("synthetic runner stopped", logger.Field{Key: "key", Value: key.String()})
	}
}

// StopAll halts every runner and waits for them to exit.
func (g *Generator) StopAll() {
	g.mu.Lock()
	runners := g.runners
	g.runners = make(map[candlev1.Key]*runner)
	g.mu.Unlock()

	for _, r := range runners {
		r.halt()
	}
	g.wg.Wait()
}

// Running reports whether a runner exists for the key.
func (g *Generator) Running(key candlev1.Key) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.runners[key]
	return ok
}
