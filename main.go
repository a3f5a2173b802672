package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/denisbrodbeck/machineid"

	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/api"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/backtest"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/engine"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/events"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/governor"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/marketdata"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/monitor"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/registry"
	signalworker "github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/signal"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/pkg/cache"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/pkg/config"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/pkg/db"
)

const appVersion = "v1.2.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[BOOT] config load failed: %v", err)
	}
	log.Printf("[BOOT] starting trading platform on port %s", cfg.Port)
	log.Printf("[BOOT] using database at %s", cfg.DBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("[BOOT] database init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("[BOOT] migrations failed: %v", err)
	}
	accounts := database.Accounts()

	// Market data and quote cache
	market := marketdata.NewBinanceClient(cfg.BinanceTestnet)
	quotes := cache.NewQuoteCache()

	// AI signal worker (HTTP collaborator)
	signals := signalworker.NewWorkerClient(cfg.SignalProviderURL, cfg.SignalProviderKey, cfg.SignalTimeout)
	log.Printf("[BOOT] signal provider at %s (model %s)", cfg.SignalProviderURL, cfg.SignalModel)

	// Backtest strategy presets
	strategies, err := backtest.LoadStrategies(cfg.StrategyConfigPath)
	if err != nil {
		log.Printf("[BOOT] strategy config %s unavailable (%v), using defaults", cfg.StrategyConfigPath, err)
		def := backtest.DefaultStrategy("default")
		if cfg.BacktestPositionPct > 0 {
			def.PositionPct = cfg.BacktestPositionPct
		}
		strategies = map[string]backtest.StrategyConfig{def.Tag: def}
	} else {
		log.Printf("[BOOT] loaded %d strategy presets", len(strategies))
	}
	simulator := backtest.New(market, signals, strategies, bus)

	// Per-user engine registry
	reg := registry.New(registry.Config{
		Store:       accounts,
		Market:      market,
		Signals:     signals,
		Quotes:      quotes,
		Bus:         bus,
		IdleTimeout: cfg.RegistryIdleTimeout,
	})
	reg.Start(ctx)
	defer reg.Stop()

	// Governors and metrics
	rateGov := governor.NewRateGovernor(governor.DefaultQuotas())
	credits := governor.NewCreditGovernor(accounts, bus)
	sysMetrics := monitor.NewSystemMetrics()

	// Persist trade events to the audit log and keep counters current.
	tradeStream, unsubTrades := bus.Subscribe(events.EventTradeAppended, 200)
	defer unsubTrades()
	go func() {
		for msg := range tradeStream {
			trade, ok := msg.(engine.Trade)
			if !ok || trade.UserID == "" {
				continue
			}
			audit := db.TradeAudit{
				ID:         trade.ID,
				UserID:     trade.UserID,
				Symbol:     trade.Symbol,
				TradeType:  string(trade.Type),
				Side:       string(trade.Side),
				Quantity:   trade.Quantity,
				EntryPrice: trade.EntryPrice,
				ExitPrice:  trade.ExitPrice,
				PnL:        trade.PnL,
				Reason:     string(trade.Reason),
				EntryTime:  trade.EntryTime,
				ExitTime:   trade.ExitTime,
			}
			if err := accounts.RecordTrade(ctx, audit); err != nil {
				log.Printf("[AUDIT] trade %s not persisted: %v", trade.ID, err)
			}
		}
	}()

	instanceID, err := machineid.ProtectedID("trading-platform")
	if err != nil {
		instanceID = "unknown"
	}

	server := api.NewServer(api.Config{
		Registry:  reg,
		Simulator: simulator,
		Accounts:  accounts,
		RateGov:   rateGov,
		Credits:   credits,
		Bus:       bus,
		Metrics:   sysMetrics,
		JWTSecret: cfg.JWTSecret,
		TokenTTL:  cfg.TokenTTL,
		Defaults: api.AccountDefaults{
			InitialBalance: cfg.DefaultInitialBalance,
			MaxPositions:   cfg.DefaultMaxPositions,
			Credits:        cfg.DefaultCredits,
		},
		Meta: api.SystemMeta{
			Version:    appVersion,
			InstanceID: instanceID,
			StartedAt:  time.Now().UTC(),
		},
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("[API] server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("[BOOT] shutting down")
}
