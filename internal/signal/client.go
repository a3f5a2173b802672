// Package signal wraps the external AI signal-generation service behind the
// Provider interface. The worker is a separate process reached over HTTP;
// every call carries its own timeout budget so a stalled worker surfaces as
// a failure instead of blocking the caller.
package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WorkerClient sends analysis requests to the signal worker.
type WorkerClient struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewWorkerClient creates a client for the worker at addr.
func NewWorkerClient(addr, apiKey string, timeout time.Duration) *WorkerClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WorkerClient{
		baseURL:    strings.TrimRight(addr, "/"),
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	Symbol string `json:"symbol"`
	Options
}

// Analyze requests a signal for symbol and translates the response.
func (w *WorkerClient) Analyze(ctx context.Context, symbol string, opts Options) (*Analysis, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrAnalysis)
	}

	payload, err := json.Marshal(analyzeRequest{Symbol: symbol, Options: opts})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrAnalysis, err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/v1/analyze", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysis, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	res, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysis, err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrAnalysis, res.StatusCode, string(body))
	}

	var analysis Analysis
	if err := json.Unmarshal(body, &analysis); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrAnalysis, err)
	}
	if analysis.Symbol == "" {
		analysis.Symbol = symbol
	}
	switch analysis.Signal {
	case SignalBuy, SignalSell, SignalHold:
	default:
		return nil, fmt.Errorf("%w: unknown signal %q", ErrAnalysis, analysis.Signal)
	}
	if analysis.Confidence < 0 || analysis.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of range", ErrAnalysis, analysis.Confidence)
	}
	return &analysis, nil
}
