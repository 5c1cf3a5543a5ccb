package history

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	candlev1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/candle/v1"
	pkgerrors "github.com/KingCyberX/insiderdept-sub000/pkg/errors"
	"github.com/KingCyberX/insiderdept-sub000/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = candlev1.Key{Exchange: "binance", Symbol: "BTCUSDT", Interval: "1m"}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log, err := logger.NewLogger()
	require.NoError(t, err)
	return NewProvider(log, Config{BaseURL: srv.URL})
}

func TestProvider_FetchCandles(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, candlesPath, r.URL.Path)
		assert.Equal(t, "binance", r.URL.Query().Get("exchange"))
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "120", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		// Millisecond and second epochs mixed, out of order.
		w.Write([]byte(`[
			{"time":1700000100,"open":2,"high":2.5,"low":1.9,"close":2.2,"volume":7},
			{"time":1700000040000,"open":1,"high":1.5,"low":0.9,"close":1.2,"volume":5}
		]`))
	})

	candles, err := p.FetchCandles(context.Background(), testKey, 120)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	// The connector passes timestamps through untouched; the cache
	// normalizes. Every bar is tagged historical.
	assert.Equal(t, int64(1700000100), candles[0].Time)
	assert.Equal(t, int64(1700000040000), candles[1].Time)
	for _, c := range candles {
		assert.Equal(t, candlev1.SourceHistorical, c.Source)
	}
	assert.Equal(t, 2.2, candles[0].Close)
	assert.Equal(t, 5.0, candles[1].Volume)
}

func TestProvider_FetchCandlesHTTPError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	_, err := p.FetchCandles(context.Background(), testKey, 10)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.HistoryFetchError))
}

func TestProvider_FetchCandlesDecodeError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"an array"`))
	})

	_, err := p.FetchCandles(context.Background(), testKey, 10)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.HistoryDecodeError))
}

func TestProvider_FetchCandlesUnreachable(t *testing.T) {
	log, err := logger.NewLogger()
	require.NoError(t, err)
	p := NewProvider(log, Config{BaseURL: "http://127.0.0.1:1"})

	_, err = p.FetchCandles(context.Background(), testKey, 10)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.HistoryFetchError))
}

func TestProvider_FetchOpenInterest(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, openInterestPath, r.URL.Path)
		w.Write([]byte(`[{"time":1700000040,"value":1234.5}]`))
	})

	readings, err := p.FetchOpenInterest(context.Background(), testKey, 10)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, int64(1700000040), readings[0].Time)
	assert.Equal(t, 1234.5, readings[0].Value)
}
