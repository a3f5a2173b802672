// Package api wires the HTTP surface around the engine registry, the
// backtest simulator, and the governor.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/backtest"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/events"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/governor"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/monitor"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/registry"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/pkg/db"
)

// AccountDefaults seed new users at registration.
type AccountDefaults struct {
	InitialBalance float64
	MaxPositions   int
	Credits        int
}

// SystemMeta describes runtime status exposed to clients.
type SystemMeta struct {
	Version    string
	InstanceID string
	StartedAt  time.Time
}

// Server exposes the trading core over HTTP.
type Server struct {
	Router    *gin.Engine
	Registry  *registry.Registry
	Simulator *backtest.Simulator
	Accounts  *db.AccountStore
	RateGov   *governor.RateGovernor
	Credits   *governor.CreditGovernor
	Bus       *events.Bus
	Metrics   *monitor.SystemMetrics
	JWTSecret string
	TokenTTL  time.Duration
	Defaults  AccountDefaults
	Meta      SystemMeta
}

// Config bundles the server's collaborators.
type Config struct {
	Registry  *registry.Registry
	Simulator *backtest.Simulator
	Accounts  *db.AccountStore
	RateGov   *governor.RateGovernor
	Credits   *governor.CreditGovernor
	Bus       *events.Bus
	Metrics   *monitor.SystemMetrics
	JWTSecret string
	TokenTTL  time.Duration
	Defaults  AccountDefaults
	Meta      SystemMeta
}

// NewServer builds the router and middleware stack.
func NewServer(cfg Config) *Server {
	r := gin.New()

	s := &Server{
		Router:    r,
		Registry:  cfg.Registry,
		Simulator: cfg.Simulator,
		Accounts:  cfg.Accounts,
		RateGov:   cfg.RateGov,
		Credits:   cfg.Credits,
		Bus:       cfg.Bus,
		Metrics:   cfg.Metrics,
		JWTSecret: cfg.JWTSecret,
		TokenTTL:  cfg.TokenTTL,
		Defaults:  cfg.Defaults,
		Meta:      cfg.Meta,
	}
	if s.TokenTTL <= 0 {
		s.TokenTTL = 24 * time.Hour
	}

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(s.Metrics))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/metrics", s.getMetrics)

		auth := api.Group("/auth")
		auth.Use(RateLimitMiddleware(s.RateGov, governor.ClassAuth, s.Metrics))
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			trading := protected.Group("")
			trading.Use(RateLimitMiddleware(s.RateGov, governor.ClassTrading, s.Metrics))
			{
				trading.POST("/positions", s.openPosition)
				trading.DELETE("/positions/:symbol", s.closePosition)
			}

			protected.GET("/positions", s.getPositions)
			protected.GET("/portfolio", s.getPortfolio)
			protected.GET("/trades", s.getTrades)
			protected.GET("/performance", s.getPerformance)
			protected.GET("/market/:symbol/klines", s.getMarketData)

			analysis := protected.Group("")
			analysis.Use(RateLimitMiddleware(s.RateGov, governor.ClassAnalysis, s.Metrics))
			{
				analysis.POST("/analyze", s.analyzeSymbol)
				analysis.POST("/backtest", s.runBacktest)
			}
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
