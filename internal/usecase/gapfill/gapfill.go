package gapfill

import (
	"context"
	"math"
	"sort"
	"time"

	candlev1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/candle/v1"
	historyv1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/history/v1"
	"github.com/KingCyberX/insiderdept-sub000/pkg/errors"
	"github.com/KingCyberX/insiderdept-sub000/pkg/interval"
	"github.com/KingCyberX/insiderdept-sub000/pkg/logger"
)

// Config holds gap-detection tuning.
type Config struct {
	// Threshold is the spacing multiplier above which two consecutive
	// candles are considered to have a gap between them.
	Threshold float64 `env:"THRESHOLD" envDefault:"1.2"`
	// BackfillBuffer is added to the computed bar count on every backfill
	// request to absorb venue-side off-by-a-few responses.
	BackfillBuffer int `env:"BACKFILL_BUFFER" envDefault:"2"`
	// StructuralWindow is how many trailing candles the write-path scan
	// inspects.
	StructuralWindow int `env:"STRUCTURAL_WINDOW" envDefault:"10"`
}

// DefaultConfig returns the gap-detection defaults.
func DefaultConfig() Config {
	return Config{Threshold: 1.2, BackfillBuffer: 2, StructuralWindow: 10}
}

// Gap is a run of missing interval boundaries between two stored candles.
type Gap struct {
	From    int64 // time of the candle before the hole
	To      int64 // time of the candle after the hole
	Missing int   // boundaries absent between them
}

// Filler detects holes in a series and produces the candles that close
// them: historical bars fetched from the collaborator where available,
// flat synthetic bars elsewhere.
type Filler struct {
	history historyv1.Provider
	logger  logger.Interface
	config  Config
	now     func() time.Time
}

// NewFiller creates a Filler. Zero config fields fall back to defaults.
func NewFiller(history historyv1.Provider, log logger.Interface, config Config) *Filler {
	defaults := DefaultConfig()
	if config.Threshold <= 0 {
		config.Threshold = defaults.Threshold
	}
	if config.BackfillBuffer <= 0 {
		config.BackfillBuffer = defaults.BackfillBuffer
	}
	if config.StructuralWindow <= 0 {
		config.StructuralWindow = defaults.StructuralWindow
	}
	return &Filler{
		history: history,
		logger:  log,
		config:  config,
		now:     time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (f *Filler) WithClock(now func() time.Time) *Filler {
	f.now = now
	return f
}

// Normalize aligns every candle to the interval boundary, sorts ascending
// and collapses duplicate timestamps keeping the highest-priority source
// (ties keep the later occurrence). The input slice is not modified.
func Normalize(candles []candlev1.Candle, iv interval.Interval) []candlev1.Candle {
	byTime := make(map[int64]candlev1.Candle, len(candles))
	for _, c := range candles {
		c.Time = iv.AlignUnix(c.Time)
		existing, ok := byTime[c.Time]
		if !ok || c.Source.Priority() >= existing.Source.Priority() {
			byTime[c.Time] = c
		}
	}

	out := make([]candlev1.Candle, 0, len(byTime))
	for _, c := range byTime {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// FillInterior closes every internal hole in an ascending, deduplicated
// slice with flat synthetic candles carrying the previous close. It returns
// the filled slice and the number of bars synthesized.
func FillInterior(candles []candlev1.Candle, iv interval.Interval) ([]candlev1.Candle, int) {
	if len(candles) < 2 {
		return candles, 0
	}

	sec := iv.Seconds()
	out := make([]candlev1.Candle, 0, len(candles))
	inserted := 0

	out = append(out, candles[0])
	for i := 1; i < len(candles); i++ {
		prev := out[len(out)-1]
		for ts := prev.Time + sec; ts < candles[i].Time; ts += sec {
			out = append(out, candlev1.FlatFill(ts, prev.Close))
			inserted++
		}
		out = append(out, candles[i])
	}
	return out, inserted
}

// ScanRecent inspects the trailing StructuralWindow candles for gaps. It is
// called on the write path, so it only reports; closing the holes is left
// to the timer-driven backfill.
func (f *Filler) ScanRecent(candles []candlev1.Candle, iv interval.Interval) []Gap {
	if len(candles) < 2 {
		return nil
	}

	start := len(candles) - f.config.StructuralWindow
	if start < 0 {
		start = 0
	}

	sec := iv.Seconds()
	maxSpacing := float64(sec) * f.config.Threshold

	var gaps []Gap
	for i := start + 1; i < len(candles); i++ {
		delta := candles[i].Time - candles[i-1].Time
		if float64(delta) > maxSpacing {
			gaps = append(gaps, Gap{
				From:    candles[i-1].Time,
				To:      candles[i].Time,
				Missing: int(delta/sec) - 1,
			})
		}
	}
	return gaps
}

// trailingGap measures the hole between the series tail and now, also
// considering the spacing of the last two candles. Returns the gap length
// in seconds, or false when the series is current.
func (f *Filler) trailingGap(candles []candlev1.Candle, iv interval.Interval) (int64, bool) {
	if len(candles) == 0 {
		return 0, false
	}

	sec := iv.Seconds()
	maxSpacing := float64(sec) * f.config.Threshold

	last := candles[len(candles)-1]
	sinceLast := f.now().Unix() - last.Time
	if float64(sinceLast) > maxSpacing {
		return sinceLast, true
	}

	if len(candles) >= 2 {
		spacing := last.Time - candles[len(candles)-2].Time
		if float64(spacing) > maxSpacing {
			return spacing, true
		}
	}
	return 0, false
}

// Backfill runs the timer-driven gap check for one key. When a gap is
// found it fetches enough bars to cover it, keeps only timestamps absent
// from the snapshot (tagged historical), and closes any holes that remain
// with flat synthetic bars. The returned candles are meant to be merged
// into the live series by the caller; an empty result means no gap.
func (f *Filler) Backfill(ctx context.Context, key candlev1.Key, snapshot []candlev1.Candle, iv interval.Interval) ([]candlev1.Candle, error) {
	gapSeconds, found := f.trailingGap(snapshot, iv)
	if !found {
		return nil, nil
	}

	need := int(math.Ceil(float64(gapSeconds)/float64(iv.Seconds()))) + f.config.BackfillBuffer
	f.logger.InfoContext(ctx, "gap detected, requesting backfill",
		logger.Field{Key: "key", Value: key.String()},
		logger.Field{Key: "gap_seconds", Value: gapSeconds},
		logger.Field{Key: "bars", Value: need},
	)

	fetched, err := f.history.FetchCandles(ctx, key, need)
	if err != nil {
		return nil, errors.WrapCoded(errors.HistoryFetchError, err)
	}

	have := make(map[int64]struct{}, len(snapshot))
	for _, c := range snapshot {
		have[c.Time] = struct{}{}
	}

	var fresh []candlev1.Candle
	for _, c := range Normalize(fetched, iv) {
		if _, ok := have[c.Time]; ok {
			continue
		}
		c.Source = candlev1.SourceHistorical
		fresh = append(fresh, c)
	}

	// Close any boundary still missing after the fetch with flat fills,
	// working over the union so fills seed from the right close.
	union := Normalize(append(append([]candlev1.Candle{}, snapshot...), fresh...), iv)
	filled, synthesized := FillInterior(union, iv)
	for _, c := range filled {
		if c.Source != candlev1.SourceSynthetic {
			continue
		}
		if _, ok := have[c.Time]; !ok {
			fresh = append(fresh, c)
		}
	}

	if len(fresh) == 0 {
		return nil, nil
	}

	f.logger.DebugContext(ctx, "backfill prepared",
		logger.Field{Key: "key", Value: key.String()},
		logger.Field{Key: "historical", Value: len(fresh) - synthesized},
		logger.Field{Key: "synthetic", Value: synthesized},
	)

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Time < fresh[j].Time })
	return fresh, nil
}
