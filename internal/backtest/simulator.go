// Package backtest replays historical bars through an isolated trading
// engine, consulting the AI-signal collaborator for entries and the
// engine's exit rules for closes. The isolated engine is constructed fresh
// per run and never shared with a live per-user engine.
package backtest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/analytics"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/engine"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/events"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/marketdata"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/signal"
)

// Request describes one backtest invocation.
type Request struct {
	Symbol         string    `json:"symbol"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Strategy       string    `json:"strategy"`
	Model          string    `json:"model,omitempty"`
	InitialBalance float64   `json:"initial_balance"`
}

// Report is the derived, non-persisted summary the caller owns.
type Report struct {
	Symbol        string         `json:"symbol"`
	Strategy      string         `json:"strategy"`
	Start         time.Time      `json:"start"`
	End           time.Time      `json:"end"`
	TotalTrades   int            `json:"total_trades"`
	WinningTrades int            `json:"winning_trades"`
	LosingTrades  int            `json:"losing_trades"`
	TotalReturn   float64        `json:"total_return"`
	FinalBalance  float64        `json:"final_balance"`
	MaxDrawdown   float64        `json:"max_drawdown"`
	SharpeRatio   float64        `json:"sharpe_ratio"`
	Trades        []engine.Trade `json:"trades"`
}

// Simulator drives isolated engines through historical data.
type Simulator struct {
	market     marketdata.Provider
	signals    signal.Provider
	strategies map[string]StrategyConfig
	bus        *events.Bus
}

// New creates a simulator. strategies may be nil; unknown tags fall back to
// DefaultStrategy.
func New(market marketdata.Provider, signals signal.Provider, strategies map[string]StrategyConfig, bus *events.Bus) *Simulator {
	return &Simulator{
		market:     market,
		signals:    signals,
		strategies: strategies,
		bus:        bus,
	}
}

// lookbackPeriod resolves the coarse fetch granularity from the date span.
func lookbackPeriod(start, end time.Time) string {
	days := int(end.Sub(start).Hours() / 24)
	switch {
	case days <= 7:
		return "1wk"
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 180:
		return "6mo"
	case days <= 365:
		return "1y"
	default:
		return "2y"
	}
}

// barFeed replays bar prices through the marketdata.Provider contract so
// the isolated engine prices entries and portfolio status at bar closes.
type barFeed struct {
	mu    sync.Mutex
	price float64
	ts    time.Time
}

func (f *barFeed) set(price float64, ts time.Time) {
	f.mu.Lock()
	f.price = price
	f.ts = ts
	f.mu.Unlock()
}

func (f *barFeed) LatestQuote(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.price <= 0 {
		return 0, fmt.Errorf("%w: no bar loaded", marketdata.ErrMarketData)
	}
	return f.price, nil
}

func (f *barFeed) Klines(ctx context.Context, symbol, interval, period string) ([]marketdata.Bar, error) {
	return nil, fmt.Errorf("%w: historical fetch not available inside a simulation", marketdata.ErrMarketData)
}

func (f *barFeed) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ts
}

// Run executes the backtest and assembles the report.
func (s *Simulator) Run(ctx context.Context, req Request) (*Report, error) {
	if req.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", engine.ErrInvalidInput)
	}
	if req.Start.IsZero() || req.End.IsZero() || !req.End.After(req.Start) {
		return nil, fmt.Errorf("%w: invalid date range", engine.ErrInvalidInput)
	}
	if req.InitialBalance <= 0 {
		return nil, fmt.Errorf("%w: initial balance must be positive", engine.ErrInvalidInput)
	}

	strat, ok := s.strategies[req.Strategy]
	if !ok {
		strat = DefaultStrategy(req.Strategy)
	}

	period := lookbackPeriod(req.Start, req.End)
	bars, err := s.market.Klines(ctx, req.Symbol, "1d", period)
	if err != nil {
		return nil, err
	}

	// Keep only bars inside [start, end], inclusive.
	filtered := bars[:0:0]
	for _, b := range bars {
		if b.Timestamp.Before(req.Start) || b.Timestamp.After(req.End) {
			continue
		}
		filtered = append(filtered, b)
	}

	feed := &barFeed{}
	eng := engine.New(engine.Config{
		UserID:         "backtest-" + uuid.NewString(),
		InitialBalance: req.InitialBalance,
		MaxPositions:   1,
		Market:         feed,
		Signals:        s.signals,
		Clock:          feed.now,
	})

	report := &Report{
		Symbol:   req.Symbol,
		Strategy: strat.Tag,
		Start:    req.Start,
		End:      req.End,
		Trades:   []engine.Trade{},
	}

	// Walk from the warm-up index through the second-to-last bar. Fewer
	// bars than the warm-up means no simulated trades at all.
	for i := strat.WarmupBars; i < len(filtered)-1; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar := filtered[i]
		feed.set(bar.Close, bar.Timestamp)

		if strat.AISignal && len(eng.OpenSymbols()) == 0 {
			analysis, err := eng.AnalyzeSymbol(ctx, req.Symbol, signal.Options{
				Model:     req.Model,
				Timeframe: "1d",
			})
			if err != nil {
				// Collaborator failures mean no action this bar, never an
				// aborted run.
				log.Printf("[BACKTEST] %s bar %d: analysis failed: %v", req.Symbol, i, err)
			} else if analysis.Signal == signal.SignalBuy && analysis.Confidence > strat.ConfidenceThreshold {
				qty := req.InitialBalance * strat.PositionPct / bar.Close
				_, err := eng.OpenPosition(ctx, req.Symbol, engine.SideLong, qty, engine.OpenOptions{
					StopLoss:   strat.StopLoss,
					TakeProfit: strat.TakeProfit,
				})
				if err != nil {
					log.Printf("[BACKTEST] %s bar %d: open failed: %v", req.Symbol, i, err)
				} else {
					report.TotalTrades++
				}
			}
		}

		for _, sym := range eng.OpenSymbols() {
			if _, fired := eng.EvaluateExit(sym, bar.Close); !fired {
				continue
			}
			price := bar.Close
			trade, err := eng.ClosePosition(ctx, sym, engine.ReasonBacktest, &price)
			if err != nil {
				log.Printf("[BACKTEST] %s bar %d: close failed: %v", sym, i, err)
				continue
			}
			report.Trades = append(report.Trades, *trade)
			if trade.PnL > 0 {
				report.WinningTrades++
			} else {
				report.LosingTrades++
			}
		}
	}

	// Force-close whatever is still open at the final bar.
	if n := len(filtered); n > 0 {
		last := filtered[n-1]
		feed.set(last.Close, last.Timestamp)
		for _, sym := range eng.OpenSymbols() {
			price := last.Close
			trade, err := eng.ClosePosition(ctx, sym, engine.ReasonBacktestEnd, &price)
			if err != nil {
				log.Printf("[BACKTEST] %s: final close failed: %v", sym, err)
				continue
			}
			report.Trades = append(report.Trades, *trade)
			if trade.PnL > 0 {
				report.WinningTrades++
			} else {
				report.LosingTrades++
			}
		}
	}

	status, err := eng.GetPortfolioStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio status: %w", err)
	}
	report.TotalReturn = status.TotalReturn
	report.FinalBalance = status.TotalPortfolioValue

	dd := analytics.Drawdown(report.Trades)
	report.MaxDrawdown = dd.MaxDrawdown
	report.SharpeRatio = analytics.SharpeRatio(report.Trades)

	if s.bus != nil {
		s.bus.Publish(events.EventBacktestCompleted, *report)
	}
	return report, nil
}
