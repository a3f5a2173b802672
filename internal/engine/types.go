package engine

import "time"

// Side is the direction of an exposure.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// TradeType distinguishes lifecycle events in the trade log.
type TradeType string

const (
	TradeOpen  TradeType = "open"
	TradeClose TradeType = "close"
)

// CloseReason records why a position was closed.
type CloseReason string

const (
	ReasonManual       CloseReason = "manual"
	ReasonStopLoss     CloseReason = "stop_loss"
	ReasonTakeProfit   CloseReason = "take_profit"
	ReasonTrailingStop CloseReason = "trailing_stop"
	ReasonBacktest     CloseReason = "backtest"
	ReasonBacktestEnd  CloseReason = "backtest_end"
)

// Position is one open exposure in one symbol. At most one Position exists
// per (engine, symbol); closing removes it and emits a close Trade.
type Position struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`

	// Exit rules as fractions of entry price.
	StopLoss     float64 `json:"stop_loss"`               // (0, 0.5]
	TakeProfit   float64 `json:"take_profit"`             // (0, 2.0]
	TrailingStop float64 `json:"trailing_stop,omitempty"` // 0 disables

	// High-water mark for the trailing ratchet (low-water for shorts).
	waterMark float64
}

// Trade is an immutable record of opening or closing a position.
type Trade struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol"`
	Type       TradeType   `json:"type"`
	Side       Side        `json:"side"`
	Quantity   float64     `json:"quantity"`
	EntryPrice float64     `json:"entry_price"`
	ExitPrice  float64     `json:"exit_price,omitempty"`
	EntryTime  time.Time   `json:"entry_time"`
	ExitTime   time.Time   `json:"exit_time,omitempty"`
	PnL        float64     `json:"pnl"` // signed, present only on close
	Reason     CloseReason `json:"reason,omitempty"`
	UserID     string      `json:"user_id,omitempty"`
}

// OpenOptions carries optional overrides for OpenPosition. Zero values fall
// back to the defaults (2% stop loss, 6% take profit, no trailing stop).
type OpenOptions struct {
	StopLoss     float64 `json:"stop_loss,omitempty"`
	TakeProfit   float64 `json:"take_profit,omitempty"`
	TrailingStop float64 `json:"trailing_stop,omitempty"`
}

// Default exit-rule fractions.
const (
	DefaultStopLoss   = 0.02
	DefaultTakeProfit = 0.06

	maxStopLoss   = 0.5
	maxTakeProfit = 2.0
)

// PortfolioStatus is a read-only snapshot of one engine.
type PortfolioStatus struct {
	UserID              string  `json:"user_id"`
	Balance             float64 `json:"balance"`
	RealizedPnL         float64 `json:"realized_pnl"`
	UnrealizedPnL       float64 `json:"unrealized_pnl"`
	TotalPortfolioValue float64 `json:"total_portfolio_value"`
	TotalReturn         float64 `json:"total_return"`
	DailyPnL            float64 `json:"daily_pnl"`
	OpenPositions       int     `json:"open_positions"`

	// PricesAvailable is false when the quote fetch failed; unrealized
	// figures are then reported as unavailable instead of aborting.
	PricesAvailable bool `json:"prices_available"`
}

// TradeFilter selects and pages trade-log entries.
type TradeFilter struct {
	Symbol string      `json:"symbol,omitempty"`
	Type   TradeType   `json:"type,omitempty"`
	Reason CloseReason `json:"reason,omitempty"`
	Offset int         `json:"offset,omitempty"`
	Limit  int         `json:"limit,omitempty"`
	Desc   bool        `json:"desc,omitempty"`
}
