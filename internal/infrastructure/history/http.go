// Package history implements the historical-data collaborator over HTTP.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	candlev1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/candle/v1"
	historyv1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/history/v1"
	"github.com/KingCyberX/insiderdept-sub000/pkg/errors"
	"github.com/KingCyberX/insiderdept-sub000/pkg/logger"
)

const (
	candlesPath      = "/api/v1/candles"
	openInterestPath = "/api/v1/open-interest"
)

// Config holds the connector settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Provider fetches candles and auxiliary series from the REST collaborator.
// It satisfies historyv1.Provider. Responses arrive in any timestamp order
// and in either seconds or milliseconds; normalization happens downstream.
type Provider struct {
	client *http.Client
	logger logger.Interface
	config Config
}

// NewProvider builds a Provider with its own timeout-bounded client.
func NewProvider(log logger.Interface, config Config) *Provider {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Provider{
		client: &http.Client{Timeout: config.Timeout},
		logger: log,
		config: config,
	}
}

// candlePayload is one bar on the wire. Time may be seconds or ms.
type candlePayload struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// FetchCandles requests up to limit bars for the key.
func (p *Provider) FetchCandles(ctx context.Context, key candlev1.Key, limit int) ([]candlev1.Candle, error) {
	var payload []candlePayload
	if err := p.get(ctx, candlesPath, key, limit, &payload); err != nil {
		return nil, err
	}

	out := make([]candlev1.Candle, 0, len(payload))
	for _, c := range payload {
		out = append(out, candlev1.Candle{
			Time:   c.Time,
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
			Source: candlev1.SourceHistorical,
		})
	}
	p.logger.DebugContext(ctx, "candles fetched",
		logger.Field{Key: "key", Value: key.String()},
		logger.Field{Key: "count", Value: len(out)},
	)
	return out, nil
}

// FetchOpenInterest requests up to limit open-interest readings for the key.
func (p *Provider) FetchOpenInterest(ctx context.Context, key candlev1.Key, limit int) ([]historyv1.OpenInterest, error) {
	var payload []struct {
		Time  int64   `json:"time"`
		Value float64 `json:"value"`
	}
	if err := p.get(ctx, openInterestPath, key, limit, &payload); err != nil {
		return nil, err
	}

	out := make([]historyv1.OpenInterest, 0, len(payload))
	for _, r := range payload {
		out = append(out, historyv1.OpenInterest{Time: r.Time, Value: r.Value})
	}
	return out, nil
}

func (p *Provider) get(ctx context.Context, path string, key candlev1.Key, limit int, dest any) error {
	u, err := url.Parse(p.config.BaseURL + path)
	if err != nil {
		return errors.WrapCoded(errors.HistoryFetchError, err)
	}
	q := u.Query()
	q.Set("exchange", key.Exchange)
	q.Set("symbol", key.Symbol)
	q.Set("interval", key.Interval)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.WrapCoded(errors.HistoryFetchError, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.WrapCoded(errors.HistoryFetchError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.WrapCoded(errors.HistoryFetchError,
			fmt.Errorf("unexpected status %s from %s", resp.Status, path))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return errors.WrapCoded(errors.HistoryDecodeError, err)
	}
	return nil
}
