package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/analytics"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/backtest"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/engine"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/governor"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/marketdata"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/signal"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/pkg/db"
)

// writeError maps core failures to transport responses. Every core-detected
// failure is typed; unknown errors become 500s.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "error": err.Error()})
	case errors.Is(err, engine.ErrPositionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "POSITION_NOT_FOUND", "error": err.Error()})
	case errors.Is(err, engine.ErrPositionAlreadyOpen):
		c.JSON(http.StatusConflict, gin.H{"code": "POSITION_ALREADY_OPEN", "error": err.Error()})
	case errors.Is(err, engine.ErrPositionLimitExceeded):
		c.JSON(http.StatusConflict, gin.H{"code": "POSITION_LIMIT_EXCEEDED", "error": err.Error()})
	case errors.Is(err, marketdata.ErrMarketData):
		c.JSON(http.StatusBadGateway, gin.H{"code": "MARKET_DATA_UNAVAILABLE", "error": err.Error()})
	case errors.Is(err, signal.ErrAnalysis):
		c.JSON(http.StatusBadGateway, gin.H{"code": "ANALYSIS_FAILED", "error": err.Error()})
	case errors.Is(err, db.ErrInsufficientCredits):
		c.JSON(http.StatusPaymentRequired, gin.H{"code": "INSUFFICIENT_CREDITS", "error": err.Error()})
	case errors.Is(err, db.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "USER_NOT_FOUND", "error": err.Error()})
	case errors.Is(err, governor.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"code": "RATE_LIMITED", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": err.Error()})
	}
}

func (s *Server) userEngine(c *gin.Context) (*engine.Engine, bool) {
	eng, err := s.Registry.GetOrCreate(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return eng, true
}

// openPosition creates a new position for the authenticated user.
func (s *Server) openPosition(c *gin.Context) {
	var req struct {
		Symbol       string  `json:"symbol"`
		Side         string  `json:"side"`
		Quantity     float64 `json:"quantity"`
		StopLoss     float64 `json:"stop_loss"`
		TakeProfit   float64 `json:"take_profit"`
		TrailingStop float64 `json:"trailing_stop"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}

	eng, ok := s.userEngine(c)
	if !ok {
		return
	}

	side := engine.Side(req.Side)
	if side == "" {
		side = engine.SideLong
	}
	pos, err := eng.OpenPosition(c.Request.Context(), req.Symbol, side, req.Quantity, engine.OpenOptions{
		StopLoss:     req.StopLoss,
		TakeProfit:   req.TakeProfit,
		TrailingStop: req.TrailingStop,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.IncrementOpened()
	}
	c.JSON(http.StatusCreated, pos)
}

// closePosition closes an open position for the authenticated user.
func (s *Server) closePosition(c *gin.Context) {
	eng, ok := s.userEngine(c)
	if !ok {
		return
	}

	trade, err := eng.ClosePosition(c.Request.Context(), c.Param("symbol"), engine.ReasonManual, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.IncrementClosed()
	}
	c.JSON(http.StatusOK, trade)
}

// getPositions lists the user's open positions.
func (s *Server) getPositions(c *gin.Context) {
	eng, ok := s.userEngine(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": eng.OpenPositions()})
}

// getPortfolio returns the portfolio snapshot.
func (s *Server) getPortfolio(c *gin.Context) {
	eng, ok := s.userEngine(c)
	if !ok {
		return
	}
	status, err := eng.GetPortfolioStatus(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// getTrades returns filtered, paginated trade-log entries.
func (s *Server) getTrades(c *gin.Context) {
	eng, ok := s.userEngine(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	filter := engine.TradeFilter{
		Symbol: c.Query("symbol"),
		Type:   engine.TradeType(c.Query("type")),
		Reason: engine.CloseReason(c.Query("reason")),
		Limit:  limit,
		Offset: offset,
		Desc:   c.Query("order") == "desc",
	}
	trades := eng.Trades(filter)
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

// getPerformance returns the analytics report over the user's closed trades.
func (s *Server) getPerformance(c *gin.Context) {
	eng, ok := s.userEngine(c)
	if !ok {
		return
	}
	report := analytics.AnalyzePerformance(eng.ClosedTrades(), eng.InitialBalance())
	c.JSON(http.StatusOK, report)
}

// getMarketData proxies historical bars for a symbol.
func (s *Server) getMarketData(c *gin.Context) {
	eng, ok := s.userEngine(c)
	if !ok {
		return
	}
	interval := c.DefaultQuery("interval", "1d")
	period := c.DefaultQuery("period", "1mo")
	bars, err := eng.GetMarketData(c.Request.Context(), c.Param("symbol"), interval, period)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": c.Param("symbol"), "bars": bars})
}

// analyzeSymbol runs a paid AI analysis through the credit governor.
func (s *Server) analyzeSymbol(c *gin.Context) {
	var req struct {
		Symbol           string `json:"symbol"`
		Model            string `json:"model"`
		Timeframe        string `json:"timeframe"`
		IncludeML        bool   `json:"include_ml"`
		IncludeSentiment bool   `json:"include_sentiment"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}

	if req.Symbol == "" {
		writeError(c, errors.Join(engine.ErrInvalidInput, errors.New("symbol is required")))
		return
	}

	eng, ok := s.userEngine(c)
	if !ok {
		return
	}

	began := time.Now()
	result, err := s.Credits.Run(c.Request.Context(), CurrentUserID(c), func(ctx context.Context) (*signal.Analysis, error) {
		return eng.AnalyzeSymbol(ctx, req.Symbol, signal.Options{
			Model:            req.Model,
			Timeframe:        req.Timeframe,
			IncludeML:        req.IncludeML,
			IncludeSentiment: req.IncludeSentiment,
		})
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.IncrementAnalyses()
		s.Metrics.AnalysisLatency.RecordDuration(time.Since(began))
	}
	c.JSON(http.StatusOK, result)
}

// getSystemStatus reports runtime metadata.
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":     s.Meta.Version,
		"instance_id": s.Meta.InstanceID,
		"server_time": time.Now().UTC(),
		"started_at":  s.Meta.StartedAt,
		"engines":     s.Registry.Len(),
	})
}

// getMetrics exposes the counter snapshot.
func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Metrics.Snapshot())
}

// runBacktest executes a backtest in an isolated engine.
func (s *Server) runBacktest(c *gin.Context) {
	var req struct {
		Symbol         string  `json:"symbol"`
		StartDate      string  `json:"start_date"`
		EndDate        string  `json:"end_date"`
		Strategy       string  `json:"strategy"`
		Model          string  `json:"model"`
		InitialBalance float64 `json:"initial_balance"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(c, errors.Join(engine.ErrInvalidInput, err))
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		writeError(c, errors.Join(engine.ErrInvalidInput, err))
		return
	}
	if req.InitialBalance <= 0 {
		req.InitialBalance = s.Defaults.InitialBalance
	}

	began := time.Now()
	report, err := s.Simulator.Run(c.Request.Context(), backtest.Request{
		Symbol:         req.Symbol,
		Start:          start,
		End:            end.Add(24*time.Hour - time.Nanosecond), // inclusive end date
		Strategy:       req.Strategy,
		Model:          req.Model,
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.IncrementBacktests()
		s.Metrics.BacktestLatency.RecordDuration(time.Since(began))
	}
	c.JSON(http.StatusOK, report)
}
