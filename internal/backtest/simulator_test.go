package backtest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/engine"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/marketdata"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/signal"
)

type fakeHistory struct {
	bars []marketdata.Bar
	err  error
}

func (f *fakeHistory) LatestQuote(ctx context.Context, symbol string) (float64, error) {
	return 0, fmt.Errorf("%w: live quotes not stubbed", marketdata.ErrMarketData)
}

func (f *fakeHistory) Klines(ctx context.Context, symbol, interval, period string) ([]marketdata.Bar, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bars, nil
}

type scriptedSignals struct {
	// buyAt maps call index to a buy verdict; other calls hold.
	buyAt map[int]bool
	errAt map[int]bool
	calls int
}

func (s *scriptedSignals) Analyze(ctx context.Context, symbol string, opts signal.Options) (*signal.Analysis, error) {
	i := s.calls
	s.calls++
	if s.errAt[i] {
		return nil, fmt.Errorf("%w: scripted failure", signal.ErrAnalysis)
	}
	if s.buyAt[i] {
		return &signal.Analysis{Symbol: symbol, Signal: signal.SignalBuy, Confidence: 0.9}, nil
	}
	return &signal.Analysis{Symbol: symbol, Signal: signal.SignalHold, Confidence: 0.5}, nil
}

// dailyBars builds n consecutive daily bars starting at start, closing at the
// given prices.
func dailyBars(start time.Time, closes []float64) []marketdata.Bar {
	bars := make([]marketdata.Bar, len(closes))
	for i, c := range closes {
		bars[i] = marketdata.Bar{
			Timestamp: start.Add(time.Duration(i) * 24 * time.Hour),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func flatCloses(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func TestLookbackPeriod(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		days int
		want string
	}{
		{3, "1wk"},
		{7, "1wk"},
		{8, "1mo"},
		{30, "1mo"},
		{31, "3mo"},
		{90, "3mo"},
		{91, "6mo"},
		{180, "6mo"},
		{181, "1y"},
		{365, "1y"},
		{366, "2y"},
		{900, "2y"},
	}
	for _, tt := range tests {
		end := start.Add(time.Duration(tt.days) * 24 * time.Hour)
		if got := lookbackPeriod(start, end); got != tt.want {
			t.Fatalf("lookbackPeriod(%d days)=%q, expected %q", tt.days, got, tt.want)
		}
	}
}

func TestRunValidation(t *testing.T) {
	sim := New(&fakeHistory{}, &scriptedSignals{}, nil, nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		req  Request
	}{
		{"empty symbol", Request{Start: start, End: start.Add(time.Hour), InitialBalance: 1000}},
		{"zero dates", Request{Symbol: "BTCUSDT", InitialBalance: 1000}},
		{"end before start", Request{Symbol: "BTCUSDT", Start: start, End: start.Add(-time.Hour), InitialBalance: 1000}},
		{"zero balance", Request{Symbol: "BTCUSDT", Start: start, End: start.Add(time.Hour)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.Run(context.Background(), tt.req)
			if !errors.Is(err, engine.ErrInvalidInput) {
				t.Fatalf("err=%v, expected ErrInvalidInput", err)
			}
		})
	}
}

func TestRunMarketDataFailure(t *testing.T) {
	sim := New(&fakeHistory{err: fmt.Errorf("%w: feed down", marketdata.ErrMarketData)}, &scriptedSignals{}, nil, nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := sim.Run(context.Background(), Request{
		Symbol: "BTCUSDT", Start: start, End: start.Add(40 * 24 * time.Hour), InitialBalance: 10000,
	})
	if !errors.Is(err, marketdata.ErrMarketData) {
		t.Fatalf("err=%v, expected ErrMarketData", err)
	}
}

func TestRunTooFewBarsProducesNoTrades(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	history := &fakeHistory{bars: dailyBars(start, flatCloses(15, 100))}
	signals := &scriptedSignals{buyAt: map[int]bool{0: true}}
	sim := New(history, signals, nil, nil)

	report, err := sim.Run(context.Background(), Request{
		Symbol: "BTCUSDT", Start: start, End: start.Add(20 * 24 * time.Hour), InitialBalance: 10000,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.TotalTrades != 0 {
		t.Fatalf("TotalTrades=%d with fewer bars than warm-up, expected 0", report.TotalTrades)
	}
	if signals.calls != 0 {
		t.Fatalf("signal calls=%d, expected 0 before warm-up completes", signals.calls)
	}
	if report.FinalBalance != 10000 {
		t.Fatalf("FinalBalance=%v, expected untouched balance", report.FinalBalance)
	}
}

func TestRunStopLossExit(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// Bars 0..20 flat at 100; entry on bar 20, bar 21 drops 5% and trips the
	// 2% stop.
	closes := append(flatCloses(21, 100), 95, 95, 95)
	history := &fakeHistory{bars: dailyBars(start, closes)}
	signals := &scriptedSignals{buyAt: map[int]bool{0: true}}
	sim := New(history, signals, nil, nil)

	report, err := sim.Run(context.Background(), Request{
		Symbol: "BTCUSDT", Start: start, End: start.Add(30 * 24 * time.Hour), InitialBalance: 10000,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.TotalTrades != 1 {
		t.Fatalf("TotalTrades=%d, expected 1", report.TotalTrades)
	}
	if len(report.Trades) != 1 {
		t.Fatalf("closed trades=%d, expected 1", len(report.Trades))
	}
	trade := report.Trades[0]
	if trade.Reason != engine.ReasonBacktest {
		t.Fatalf("reason=%q, expected backtest", trade.Reason)
	}
	if trade.ExitPrice != 95 {
		t.Fatalf("exitPrice=%v, expected 95", trade.ExitPrice)
	}
	if trade.PnL >= 0 {
		t.Fatalf("PnL=%v, expected a loss", trade.PnL)
	}
	if report.LosingTrades != 1 || report.WinningTrades != 0 {
		t.Fatalf("wins/losses=%d/%d, expected 0/1", report.WinningTrades, report.LosingTrades)
	}
}

func TestRunTakeProfitExit(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// Entry at 100 on bar 20, bar 21 jumps 8% past the 6% target.
	closes := append(flatCloses(21, 100), 108, 108, 108)
	history := &fakeHistory{bars: dailyBars(start, closes)}
	signals := &scriptedSignals{buyAt: map[int]bool{0: true}}
	sim := New(history, signals, nil, nil)

	report, err := sim.Run(context.Background(), Request{
		Symbol: "BTCUSDT", Start: start, End: start.Add(30 * 24 * time.Hour), InitialBalance: 10000,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(report.Trades) != 1 {
		t.Fatalf("closed trades=%d, expected 1", len(report.Trades))
	}
	trade := report.Trades[0]
	if trade.Reason != engine.ReasonBacktest {
		t.Fatalf("reason=%q, expected backtest", trade.Reason)
	}
	if trade.PnL <= 0 {
		t.Fatalf("PnL=%v, expected a profit", trade.PnL)
	}
	if report.WinningTrades != 1 {
		t.Fatalf("WinningTrades=%d, expected 1", report.WinningTrades)
	}
	if report.FinalBalance <= 10000 {
		t.Fatalf("FinalBalance=%v, expected growth", report.FinalBalance)
	}
}

func TestRunForceCloseAtEnd(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// Entry at 100 on bar 20; price drifts within the exit bands until the
	// final bar, so the position survives to the force close.
	closes := append(flatCloses(21, 100), 101, 101, 101)
	history := &fakeHistory{bars: dailyBars(start, closes)}
	signals := &scriptedSignals{buyAt: map[int]bool{0: true}}
	sim := New(history, signals, nil, nil)

	report, err := sim.Run(context.Background(), Request{
		Symbol: "BTCUSDT", Start: start, End: start.Add(30 * 24 * time.Hour), InitialBalance: 10000,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(report.Trades) != 1 {
		t.Fatalf("closed trades=%d, expected 1", len(report.Trades))
	}
	trade := report.Trades[0]
	if trade.Reason != engine.ReasonBacktestEnd {
		t.Fatalf("reason=%q, expected backtest_end", trade.Reason)
	}
	if trade.ExitPrice != 101 {
		t.Fatalf("exitPrice=%v, expected final bar close 101", trade.ExitPrice)
	}
}

func TestRunAnalysisFailureContinues(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	closes := append(flatCloses(21, 100), 100, 108, 108)
	history := &fakeHistory{bars: dailyBars(start, closes)}
	// First call fails, second buys.
	signals := &scriptedSignals{
		errAt: map[int]bool{0: true},
		buyAt: map[int]bool{1: true},
	}
	sim := New(history, signals, nil, nil)

	report, err := sim.Run(context.Background(), Request{
		Symbol: "BTCUSDT", Start: start, End: start.Add(30 * 24 * time.Hour), InitialBalance: 10000,
	})
	if err != nil {
		t.Fatalf("Run returned error after recoverable analysis failure: %v", err)
	}
	if report.TotalTrades != 1 {
		t.Fatalf("TotalTrades=%d, expected entry after the failed bar", report.TotalTrades)
	}
	if signals.calls < 2 {
		t.Fatalf("signal calls=%d, expected the walk to continue past the failure", signals.calls)
	}
}

func TestRunLowConfidenceHolds(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	history := &fakeHistory{bars: dailyBars(start, flatCloses(25, 100))}
	signals := &scriptedSignals{} // always hold
	sim := New(history, signals, nil, nil)

	report, err := sim.Run(context.Background(), Request{
		Symbol: "BTCUSDT", Start: start, End: start.Add(30 * 24 * time.Hour), InitialBalance: 10000,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.TotalTrades != 0 {
		t.Fatalf("TotalTrades=%d on hold signals, expected 0", report.TotalTrades)
	}
	if signals.calls == 0 {
		t.Fatalf("signal calls=0, expected consultation on each walked bar")
	}
}

func TestRunHonorsStrategyPreset(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// A 1% dip would not trip the default 2% stop but does trip this
	// preset's 0.5% stop.
	closes := append(flatCloses(11, 100), 99, 99, 99)
	history := &fakeHistory{bars: dailyBars(start, closes)}
	signals := &scriptedSignals{buyAt: map[int]bool{0: true}}
	strategies := map[string]StrategyConfig{
		"tight": {
			Tag:                 "tight",
			AISignal:            true,
			WarmupBars:          10,
			ConfidenceThreshold: 0.7,
			StopLoss:            0.005,
			TakeProfit:          0.06,
			PositionPct:         0.1,
		},
	}
	sim := New(history, signals, strategies, nil)

	report, err := sim.Run(context.Background(), Request{
		Symbol:         "BTCUSDT",
		Start:          start,
		End:            start.Add(20 * 24 * time.Hour),
		Strategy:       "tight",
		InitialBalance: 10000,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Strategy != "tight" {
		t.Fatalf("strategy=%q, expected tight", report.Strategy)
	}
	if len(report.Trades) != 1 || report.Trades[0].Reason != engine.ReasonBacktest {
		t.Fatalf("trades=%+v, expected one stop-loss close", report.Trades)
	}
}

func TestRunCancelledContext(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	history := &fakeHistory{bars: dailyBars(start, flatCloses(30, 100))}
	sim := New(history, &scriptedSignals{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sim.Run(ctx, Request{
		Symbol: "BTCUSDT", Start: start, End: start.Add(40 * 24 * time.Hour), InitialBalance: 10000,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, expected context.Canceled", err)
	}
}
