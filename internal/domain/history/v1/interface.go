package historyv1

import (
	"context"

	candlev1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/candle/v1"
)

// Provider is the historical-data collaborator contract. Implementations
// may return candles in any timestamp order and with epoch times in either
// seconds or milliseconds; the engine normalizes both.
//
//go:generate mockgen -source interface.go -destination=mock/interface_mock.go -package=historyv1_mock
type Provider interface {
	// FetchCandles returns up to limit recent bars for the key.
	FetchCandles(ctx context.Context, key candlev1.Key, limit int) ([]candlev1.Candle, error)
	// FetchOpenInterest returns recent open-interest readings for the key.
	// The readings are merged into the candle side channel and never
	// participate in provenance or gap logic.
	FetchOpenInterest(ctx context.Context, key candlev1.Key, limit int) ([]OpenInterest, error)
}

// OpenInterest is one auxiliary reading, Time in seconds or milliseconds.
type OpenInterest struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}
