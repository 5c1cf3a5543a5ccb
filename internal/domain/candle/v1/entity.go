package candlev1

import "fmt"

// Source tags where a candle came from. It arbitrates merge conflicts:
// live prints always win, historical backfill may replace synthetic
// placeholders, and synthetic bars only ever replace other synthetic bars.
type Source string

const (
	// SourceLive marks a candle delivered by the push feed.
	SourceLive Source = "live"
	// SourceHistorical marks a candle returned by a historical fetch or backfill.
	SourceHistorical Source = "historical"
	// SourceSynthetic marks a generated placeholder candle.
	SourceSynthetic Source = "synthetic"
)

// Priority orders sources for merge arbitration. Higher wins.
func (s Source) Priority() int {
	switch s {
	case SourceLive:
		return 3
	case SourceHistorical:
		return 2
	case SourceSynthetic:
		return 1
	default:
		return 0
	}
}

// Candle is one OHLCV bar for a fixed time bucket.
//
// Time is a unix timestamp in seconds, always aligned to the interval
// boundary. OpenInterest is an auxiliary side-channel value that does not
// participate in provenance arbitration.
type Candle struct {
	Time         int64   `json:"time"`
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Close        float64 `json:"close"`
	Volume       float64 `json:"volume"`
	OpenInterest float64 `json:"openInterest,omitempty"`
	Source       Source  `json:"source"`
}

// Key uniquely identifies one candle series and one push subscription.
type Key struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

// String renders the key in exchange:symbol:interval form, used for log
// fields, singleflight grouping and pub/sub channel names.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Exchange, k.Symbol, k.Interval)
}

// FlatFill returns a zero-volume synthetic candle at ts carrying the given
// close on every price field, preserving price continuity across a gap.
func FlatFill(ts int64, close float64) Candle {
	return Candle{
		Time:   ts,
		Open:   close,
		High:   close,
		Low:    close,
		Close:  close,
		Volume: 0,
		Source: SourceSynthetic,
	}
}
