package signal

import (
	"context"
	"errors"
)

// ErrAnalysis marks AI-signal provider failures.
var ErrAnalysis = errors.New("analysis failed")

// Direction is the trading signal emitted by the provider.
type Direction string

const (
	SignalBuy  Direction = "BUY"
	SignalSell Direction = "SELL"
	SignalHold Direction = "HOLD"
)

// Options tune a single analysis request.
type Options struct {
	Model            string `json:"model,omitempty"`
	Timeframe        string `json:"timeframe,omitempty"`
	IncludeML        bool   `json:"include_ml,omitempty"`
	IncludeSentiment bool   `json:"include_sentiment,omitempty"`
}

// Analysis is the provider's verdict for one symbol. The engine applies no
// business rule to it; callers decide on thresholds.
type Analysis struct {
	Symbol     string    `json:"symbol"`
	Signal     Direction `json:"signal"`
	Confidence float64   `json:"confidence"` // [0,1]
	Summary    string    `json:"summary,omitempty"`
	Model      string    `json:"model,omitempty"`
}

// Provider is the AI-signal collaborator contract. Results may be
// non-deterministic; the core only sequences calls, never retries.
type Provider interface {
	Analyze(ctx context.Context, symbol string, opts Options) (*Analysis, error)
}
