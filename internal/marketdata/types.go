package marketdata

import (
	"context"
	"errors"
	"time"
)

// ErrMarketData marks provider-level failures (invalid symbol/timeframe or
// provider outage). Callers match it with errors.Is.
var ErrMarketData = errors.New("market data unavailable")

// Bar represents a single OHLCV candlestick.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Provider is the market-data collaborator contract. Implementations enforce
// their own timeout budget; the core never retries.
type Provider interface {
	// LatestQuote returns the most recent traded price for a symbol.
	LatestQuote(ctx context.Context, symbol string) (float64, error)

	// Klines returns ordered, chronological bars for the given interval
	// covering the requested period (e.g. "1mo", "1y").
	Klines(ctx context.Context, symbol, interval, period string) ([]Bar, error)
}
