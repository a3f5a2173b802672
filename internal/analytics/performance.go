// Package analytics derives portfolio metrics from the trade log. All
// functions are pure: they read a trade sequence and return derived values
// without touching engine state.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/engine"
)

// MonthlyReturn is the summed realized PnL for one calendar month.
type MonthlyReturn struct {
	Month string  `json:"month"` // YYYY-MM of exit time
	PnL   float64 `json:"pnl"`
}

// MonthlyReturns groups close trades by exit month and sums PnL per group,
// returning entries sorted ascending by month key. Trades without an exit
// time are ignored.
func MonthlyReturns(trades []engine.Trade) []MonthlyReturn {
	byMonth := make(map[string]float64)
	for _, t := range trades {
		if t.Type != engine.TradeClose || t.ExitTime.IsZero() {
			continue
		}
		byMonth[t.ExitTime.UTC().Format("2006-01")] += t.PnL
	}

	out := make([]MonthlyReturn, 0, len(byMonth))
	for month, pnl := range byMonth {
		out = append(out, MonthlyReturn{Month: month, PnL: pnl})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// DrawdownStats reports fractional decline from the running peak.
type DrawdownStats struct {
	MaxDrawdown     float64 `json:"max_drawdown"`
	CurrentDrawdown float64 `json:"current_drawdown"`
}

// Drawdown walks the trades in their given order, accumulating PnL and
// tracking the running peak. Drawdowns are fractions of the peak, computed
// only while the peak is positive, so the walk never divides by zero. If
// the cumulative value never turns positive both results are 0.
func Drawdown(trades []engine.Trade) DrawdownStats {
	var stats DrawdownStats
	var current, peak float64
	for _, t := range trades {
		if t.Type != engine.TradeClose {
			continue
		}
		current += t.PnL
		if current > peak {
			peak = current
		}
		if peak > 0 {
			dd := (peak - current) / peak
			if dd > stats.MaxDrawdown {
				stats.MaxDrawdown = dd
			}
			stats.CurrentDrawdown = dd
		}
	}
	return stats
}

// SharpeRatio computes an annualized Sharpe-style ratio over per-trade PnL,
// assuming daily frequency. Returns 0 when there is no variance to price.
func SharpeRatio(trades []engine.Trade) float64 {
	var pnls []float64
	for _, t := range trades {
		if t.Type == engine.TradeClose {
			pnls = append(pnls, t.PnL)
		}
	}
	if len(pnls) < 2 {
		return 0
	}

	var sum float64
	for _, p := range pnls {
		sum += p
	}
	mean := sum / float64(len(pnls))

	var variance float64
	for _, p := range pnls {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(pnls) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance) * math.Sqrt(252)
}

// PerformanceMetrics holds the full performance report for a trade log.
type PerformanceMetrics struct {
	TotalTrades          int             `json:"total_trades"`
	WinningTrades        int             `json:"winning_trades"`
	LosingTrades         int             `json:"losing_trades"`
	WinRate              float64         `json:"win_rate"`
	TotalProfit          float64         `json:"total_profit"`
	AverageWin           float64         `json:"average_win"`
	AverageLoss          float64         `json:"average_loss"`
	ProfitFactor         float64         `json:"profit_factor"`
	MaxConsecutiveWins   int             `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int             `json:"max_consecutive_losses"`
	MaxDrawdown          float64         `json:"max_drawdown"`
	SharpeRatio          float64         `json:"sharpe_ratio"`
	FinalBalance         float64         `json:"final_balance"`
	ReturnOnInvestment   float64         `json:"return_on_investment"`
	MonthlyReturns       []MonthlyReturn `json:"monthly_returns"`
	EquityCurve          []EquityPoint   `json:"equity_curve"`
}

// EquityPoint is a point on the cumulative equity curve.
type EquityPoint struct {
	Time     time.Time `json:"time"`
	Value    float64   `json:"value"`
	Drawdown float64   `json:"drawdown"`
}

// AnalyzePerformance computes the full report from close trades and the
// starting balance.
func AnalyzePerformance(trades []engine.Trade, initialBalance float64) *PerformanceMetrics {
	m := &PerformanceMetrics{FinalBalance: initialBalance}

	var closes []engine.Trade
	for _, t := range trades {
		if t.Type == engine.TradeClose {
			closes = append(closes, t)
		}
	}
	if len(closes) == 0 {
		return m
	}

	balance := initialBalance
	peak := initialBalance
	var grossWin, grossLoss float64
	var winStreak, lossStreak int

	for _, t := range closes {
		m.TotalTrades++
		if t.PnL > 0 {
			m.WinningTrades++
			grossWin += t.PnL
			winStreak++
			lossStreak = 0
		} else {
			m.LosingTrades++
			grossLoss += -t.PnL
			lossStreak++
			winStreak = 0
		}
		if winStreak > m.MaxConsecutiveWins {
			m.MaxConsecutiveWins = winStreak
		}
		if lossStreak > m.MaxConsecutiveLosses {
			m.MaxConsecutiveLosses = lossStreak
		}

		balance += t.PnL
		m.TotalProfit += t.PnL
		if balance > peak {
			peak = balance
		}
		var dd float64
		if peak > 0 {
			dd = (peak - balance) / peak
		}
		if dd > m.MaxDrawdown {
			m.MaxDrawdown = dd
		}
		m.EquityCurve = append(m.EquityCurve, EquityPoint{
			Time:     t.ExitTime,
			Value:    balance,
			Drawdown: dd,
		})
	}

	m.FinalBalance = balance
	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	if m.WinningTrades > 0 {
		m.AverageWin = grossWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = -grossLoss / float64(m.LosingTrades)
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossWin / grossLoss
	}
	if initialBalance > 0 {
		m.ReturnOnInvestment = (balance - initialBalance) / initialBalance
	}
	m.SharpeRatio = SharpeRatio(closes)
	m.MonthlyReturns = MonthlyReturns(closes)
	return m
}
