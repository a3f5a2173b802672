// Package marketdata wraps the external market-data provider behind the
// Provider interface consumed by the trading engines and the backtest
// simulator.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// periodBars maps a coarse lookback period to a daily-bar count.
var periodBars = map[string]int{
	"1wk": 7,
	"1mo": 30,
	"3mo": 90,
	"6mo": 180,
	"1y":  365,
	"2y":  730,
}

// BinanceClient fetches quotes and klines from the Binance spot REST API.
type BinanceClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewBinanceClient creates a client against production or testnet.
func NewBinanceClient(testnet bool) *BinanceClient {
	base := "https://api.binance.com"
	if testnet {
		base = "https://testnet.binance.vision"
	}
	return &BinanceClient{
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// LatestQuote returns the last ticker price for a symbol.
func (c *BinanceClient) LatestQuote(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return 0, fmt.Errorf("%w: empty symbol", ErrMarketData)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.do(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("%w: decode ticker: %v", ErrMarketData, err)
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse price %q: %v", ErrMarketData, resp.Price, err)
	}
	return price, nil
}

// Klines returns chronological bars for the given interval and period.
func (c *BinanceClient) Klines(ctx context.Context, symbol, interval, period string) ([]Bar, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrMarketData)
	}
	limit, ok := periodBars[period]
	if !ok {
		return nil, fmt.Errorf("%w: unknown period %q", ErrMarketData, period)
	}
	if interval == "" {
		interval = "1d"
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	body, err := c.do(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, err
	}

	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode klines: %v", ErrMarketData, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s", ErrMarketData, symbol)
	}

	bars := make([]Bar, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		openTime, ok := k[0].(float64)
		if !ok {
			continue
		}
		bars = append(bars, Bar{
			Timestamp: time.UnixMilli(int64(openTime)).UTC(),
			Open:      parseField(k[1]),
			High:      parseField(k[2]),
			Low:       parseField(k[3]),
			Close:     parseField(k[4]),
			Volume:    parseField(k[5]),
		})
	}
	return bars, nil
}

func parseField(v any) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func (c *BinanceClient) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if params != nil {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMarketData, err)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMarketData, err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrMarketData, res.StatusCode, string(body))
	}
	return body, nil
}
