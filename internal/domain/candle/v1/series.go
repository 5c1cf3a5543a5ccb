package candlev1

import "sort"

// DefaultSeriesCap bounds a series when no explicit cap is configured.
const DefaultSeriesCap = 1000

// Series is an ordered candle sequence, strictly ascending and unique by
// Time, bounded in length with oldest-first eviction. It is a plain data
// structure: callers are responsible for serializing access.
type Series struct {
	candles []Candle
	cap     int
}

// NewSeries creates an empty series bounded to cap candles. A cap of zero
// or less falls back to DefaultSeriesCap.
func NewSeries(cap int) *Series {
	if cap <= 0 {
		cap = DefaultSeriesCap
	}
	return &Series{cap: cap}
}

// Len returns the number of candles held.
func (s *Series) Len() int {
	return len(s.candles)
}

// Cap returns the configured length bound.
func (s *Series) Cap() int {
	return s.cap
}

// Last returns the newest candle, if any.
func (s *Series) Last() (Candle, bool) {
	if len(s.candles) == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// At returns the candle stored at ts, if any.
func (s *Series) At(ts int64) (Candle, bool) {
	i := s.search(ts)
	if i < len(s.candles) && s.candles[i].Time == ts {
		return s.candles[i], true
	}
	return Candle{}, false
}

// Snapshot returns a copy of the series contents in ascending time order.
func (s *Series) Snapshot() []Candle {
	out := make([]Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// search returns the insertion index for ts.
func (s *Series) search(ts int64) int {
	return sort.Search(len(s.candles), func(i int) bool {
		return s.candles[i].Time >= ts
	})
}

// Merge applies the provenance-priority conflict rule and reports whether
// the series changed.
//
// If no candle exists at c.Time the candle is inserted, evicting the oldest
// entry when the cap is reached; a candle older than a full window is
// dropped. If one exists, it is overwritten only when
// the incoming source priority is at least the existing one: live over
// anything, historical over historical or synthetic, synthetic only over
// synthetic. Replaying a lower-priority candle after a higher-priority one
// is therefore a no-op, which makes merge order-insensitive with respect
// to priority.
func (s *Series) Merge(c Candle) bool {
	i := s.search(c.Time)
	if i < len(s.candles) && s.candles[i].Time == c.Time {
		existing := s.candles[i]
		if c.Source.Priority() < existing.Source.Priority() {
			return false
		}
		// Side-channel values survive an overwrite that does not carry them.
		if c.OpenInterest == 0 {
			c.OpenInterest = existing.OpenInterest
		}
		s.candles[i] = c
		return true
	}

	// At cap, a candle older than everything stored would be inserted at
	// the front and evicted in the same breath: reject it instead of
	// reporting a change that never happened.
	if i == 0 && len(s.candles) >= s.cap {
		return false
	}

	s.candles = append(s.candles, Candle{})
	copy(s.candles[i+1:], s.candles[i:])
	s.candles[i] = c

	if len(s.candles) > s.cap {
		// Evict the oldest entry.
		s.candles = s.candles[1:]
	}
	return true
}

// MergeAll merges every candle and reports whether any of them changed the
// series.
func (s *Series) MergeAll(candles []Candle) bool {
	changed := false
	for _, c := range candles {
		if s.Merge(c) {
			changed = true
		}
	}
	return changed
}

// SetOpenInterest attaches an open-interest reading to the candle at ts.
// It reports false when no candle exists there. Provenance is untouched:
// auxiliary series never compete with price data.
func (s *Series) SetOpenInterest(ts int64, oi float64) bool {
	i := s.search(ts)
	if i < len(s.candles) && s.candles[i].Time == ts {
		s.candles[i].OpenInterest = oi
		return true
	}
	return false
}
