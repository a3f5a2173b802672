// Package engine implements the per-user trading engine: the position
// ledger, the append-only trade log, and the portfolio operations exposed
// to the API layer and the backtest simulator.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/events"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/marketdata"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/signal"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/pkg/cache"
)

// quoteFreshness bounds how stale a cached quote may be before the engine
// falls back to the provider.
const quoteFreshness = 10 * time.Second

// Config wires an engine's collaborators and account parameters.
type Config struct {
	UserID         string
	InitialBalance float64
	MaxPositions   int

	Market  marketdata.Provider
	Signals signal.Provider
	Quotes  *cache.QuoteCache // optional
	Bus     *events.Bus       // optional

	// Clock overrides time.Now; the backtest simulator pins it to bar time.
	Clock func() time.Time
}

// Engine owns one user's positions, trades, and balance. All mutations are
// serialized by an internal mutex so concurrent operations for the same
// user preserve the one-open-position-per-symbol invariant.
type Engine struct {
	userID         string
	initialBalance float64
	maxPositions   int

	market  marketdata.Provider
	signals signal.Provider
	quotes  *cache.QuoteCache
	bus     *events.Bus
	now     func() time.Time

	mu        sync.Mutex
	balance   float64
	positions map[string]*Position
	trades    []Trade
}

// New constructs an engine. MaxPositions of zero falls back to 1.
func New(cfg Config) *Engine {
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = 1
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Engine{
		userID:         cfg.UserID,
		initialBalance: cfg.InitialBalance,
		maxPositions:   cfg.MaxPositions,
		market:         cfg.Market,
		signals:        cfg.Signals,
		quotes:         cfg.Quotes,
		bus:            cfg.Bus,
		now:            now,
		balance:        cfg.InitialBalance,
		positions:      make(map[string]*Position),
	}
}

// UserID returns the engine's owner.
func (e *Engine) UserID() string { return e.userID }

// InitialBalance returns the configured starting balance.
func (e *Engine) InitialBalance() float64 { return e.initialBalance }

// CalculatePositionPnL computes the signed profit of a position at the
// given price without mutating anything.
func CalculatePositionPnL(pos *Position, currentPrice float64) float64 {
	dir := 1.0
	if pos.Side == SideShort {
		dir = -1.0
	}
	return (currentPrice - pos.EntryPrice) * pos.Quantity * dir
}

// OpenPosition opens a new exposure. The entry price comes from the
// market-data collaborator at call time; a fetch failure propagates without
// retry and without mutating state.
func (e *Engine) OpenPosition(ctx context.Context, symbol string, side Side, quantity float64, opts OpenOptions) (*Position, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	}
	if side != SideLong && side != SideShort {
		return nil, fmt.Errorf("%w: side must be long or short", ErrInvalidInput)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}

	stopLoss := opts.StopLoss
	if stopLoss == 0 {
		stopLoss = DefaultStopLoss
	}
	if stopLoss <= 0 || stopLoss > maxStopLoss {
		return nil, fmt.Errorf("%w: stop loss %v outside (0, %v]", ErrInvalidInput, stopLoss, maxStopLoss)
	}
	takeProfit := opts.TakeProfit
	if takeProfit == 0 {
		takeProfit = DefaultTakeProfit
	}
	if takeProfit <= 0 || takeProfit > maxTakeProfit {
		return nil, fmt.Errorf("%w: take profit %v outside (0, %v]", ErrInvalidInput, takeProfit, maxTakeProfit)
	}
	if opts.TrailingStop < 0 || opts.TrailingStop > maxStopLoss {
		return nil, fmt.Errorf("%w: trailing stop %v outside [0, %v]", ErrInvalidInput, opts.TrailingStop, maxStopLoss)
	}

	// Quick rejection before the network round trip. The authoritative
	// checks run again under the lock below.
	e.mu.Lock()
	if _, exists := e.positions[symbol]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrPositionAlreadyOpen, symbol)
	}
	if len(e.positions) >= e.maxPositions {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: max %d", ErrPositionLimitExceeded, e.maxPositions)
	}
	e.mu.Unlock()

	entryPrice, err := e.latestQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.positions[symbol]; exists {
		return nil, fmt.Errorf("%w: %s", ErrPositionAlreadyOpen, symbol)
	}
	if len(e.positions) >= e.maxPositions {
		return nil, fmt.Errorf("%w: max %d", ErrPositionLimitExceeded, e.maxPositions)
	}

	pos := &Position{
		Symbol:       symbol,
		Side:         side,
		Quantity:     quantity,
		EntryPrice:   entryPrice,
		EntryTime:    e.now(),
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		TrailingStop: opts.TrailingStop,
		waterMark:    entryPrice,
	}
	e.positions[symbol] = pos

	trade := Trade{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Type:       TradeOpen,
		Side:       side,
		Quantity:   quantity,
		EntryPrice: entryPrice,
		EntryTime:  pos.EntryTime,
		UserID:     e.userID,
	}
	e.trades = append(e.trades, trade)
	e.publish(events.EventPositionOpened, *pos)
	e.publish(events.EventTradeAppended, trade)

	out := *pos
	return &out, nil
}

// ClosePosition closes an open exposure. When override is non-nil it is
// used as the exit price (the backtest simulator closes at bar prices);
// otherwise the latest quote is fetched. PnL is computed once, here, and
// never recomputed.
func (e *Engine) ClosePosition(ctx context.Context, symbol string, reason CloseReason, override *float64) (*Trade, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	e.mu.Lock()
	pos, ok := e.positions[symbol]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, symbol)
	}

	var exitPrice float64
	if override != nil {
		exitPrice = *override
	} else {
		price, err := e.latestQuote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		exitPrice = price
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Re-check under the lock; a concurrent close may have won.
	pos, ok = e.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, symbol)
	}
	delete(e.positions, symbol)

	trade := Trade{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Type:       TradeClose,
		Side:       pos.Side,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		EntryTime:  pos.EntryTime,
		ExitTime:   e.now(),
		PnL:        CalculatePositionPnL(pos, exitPrice),
		Reason:     reason,
		UserID:     e.userID,
	}
	e.trades = append(e.trades, trade)
	e.publish(events.EventPositionClosed, trade)
	e.publish(events.EventTradeAppended, trade)

	out := trade
	return &out, nil
}

// EvaluateExit ratchets the trailing stop for symbol at the given price and
// reports whether an exit rule fired. It does not close the position.
func (e *Engine) EvaluateExit(symbol string, price float64) (CloseReason, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[symbol]
	if !ok {
		return "", false
	}

	// Trailing ratchet: track the favorable extreme, never give it back.
	if pos.TrailingStop > 0 {
		switch pos.Side {
		case SideLong:
			if price > pos.waterMark {
				pos.waterMark = price
			}
			if price <= pos.waterMark*(1-pos.TrailingStop) {
				return ReasonTrailingStop, true
			}
		case SideShort:
			if price < pos.waterMark {
				pos.waterMark = price
			}
			if price >= pos.waterMark*(1+pos.TrailingStop) {
				return ReasonTrailingStop, true
			}
		}
	}

	pnl := CalculatePositionPnL(pos, price)
	notional := pos.EntryPrice * pos.Quantity
	if notional <= 0 {
		return "", false
	}
	frac := pnl / notional
	switch {
	case frac <= -pos.StopLoss:
		return ReasonStopLoss, true
	case frac >= pos.TakeProfit:
		return ReasonTakeProfit, true
	}
	return "", false
}

// GetPortfolioStatus returns a read-only snapshot. A quote-fetch failure
// degrades unrealized figures to unavailable instead of failing the call.
func (e *Engine) GetPortfolioStatus(ctx context.Context) (*PortfolioStatus, error) {
	e.mu.Lock()
	open := make([]Position, 0, len(e.positions))
	for _, p := range e.positions {
		open = append(open, *p)
	}
	var realized, daily float64
	today := e.now().UTC().Truncate(24 * time.Hour)
	for _, t := range e.trades {
		if t.Type != TradeClose {
			continue
		}
		realized += t.PnL
		if t.ExitTime.UTC().Truncate(24 * time.Hour).Equal(today) {
			daily += t.PnL
		}
	}
	balance := e.balance
	e.mu.Unlock()

	status := &PortfolioStatus{
		UserID:          e.userID,
		Balance:         balance,
		RealizedPnL:     realized,
		DailyPnL:        daily,
		OpenPositions:   len(open),
		PricesAvailable: true,
	}

	var unrealized float64
	for i := range open {
		price, err := e.latestQuote(ctx, open[i].Symbol)
		if err != nil {
			status.PricesAvailable = false
			unrealized = 0
			break
		}
		unrealized += CalculatePositionPnL(&open[i], price)
	}
	if status.PricesAvailable {
		status.UnrealizedPnL = unrealized
	}

	status.TotalPortfolioValue = balance + realized + status.UnrealizedPnL
	if e.initialBalance > 0 {
		status.TotalReturn = status.TotalPortfolioValue/e.initialBalance - 1
	}
	return status, nil
}

// AnalyzeSymbol delegates to the AI-signal collaborator. The engine applies
// no business rule to the result; callers decide on thresholds.
func (e *Engine) AnalyzeSymbol(ctx context.Context, symbol string, opts signal.Options) (*signal.Analysis, error) {
	if e.signals == nil {
		return nil, fmt.Errorf("%w: signal provider not configured", ErrInternalFault)
	}
	return e.signals.Analyze(ctx, symbol, opts)
}

// GetMarketData delegates to the market-data collaborator and returns
// chronological OHLCV bars.
func (e *Engine) GetMarketData(ctx context.Context, symbol, interval, period string) ([]marketdata.Bar, error) {
	if e.market == nil {
		return nil, fmt.Errorf("%w: market data provider not configured", ErrInternalFault)
	}
	return e.market.Klines(ctx, symbol, interval, period)
}

// OpenPositions returns a copy of the currently open positions.
func (e *Engine) OpenPositions() []Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// OpenSymbols returns the symbols with open positions, sorted.
func (e *Engine) OpenSymbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.positions))
	for sym := range e.positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Trades returns trade-log entries matching the filter, in chronological
// order unless filter.Desc is set, paged by Offset/Limit.
func (e *Engine) Trades(filter TradeFilter) []Trade {
	e.mu.Lock()
	matched := make([]Trade, 0, len(e.trades))
	for _, t := range e.trades {
		if filter.Symbol != "" && t.Symbol != strings.ToUpper(filter.Symbol) {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		if filter.Reason != "" && t.Reason != filter.Reason {
			continue
		}
		matched = append(matched, t)
	}
	e.mu.Unlock()

	if filter.Desc {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []Trade{}
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched
}

// ClosedTrades returns all close-type trades in chronological order.
func (e *Engine) ClosedTrades() []Trade {
	return e.Trades(TradeFilter{Type: TradeClose})
}

func (e *Engine) latestQuote(ctx context.Context, symbol string) (float64, error) {
	if e.quotes != nil {
		if price, ok := e.quotes.GetFresh(symbol, quoteFreshness); ok {
			return price, nil
		}
	}
	if e.market == nil {
		return 0, fmt.Errorf("%w: market data provider not configured", ErrInternalFault)
	}
	price, err := e.market.LatestQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if e.quotes != nil {
		e.quotes.Set(symbol, price)
	}
	return price, nil
}

func (e *Engine) publish(event events.Event, payload any) {
	if e.bus != nil {
		e.bus.Publish(event, payload)
	}
}
