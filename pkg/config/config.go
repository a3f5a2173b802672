package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading platform.
type Config struct {
	Port string

	// Database
	DBPath string

	// Account defaults applied when registering a new user.
	DefaultInitialBalance float64
	DefaultMaxPositions   int
	DefaultCredits        int

	// Market data
	BinanceTestnet bool

	// AI signal provider
	SignalProviderURL string
	SignalProviderKey string
	SignalModel       string
	SignalTimeout     time.Duration

	// Backtest
	StrategyConfigPath  string
	BacktestPositionPct float64 // fraction of balance committed per simulated entry

	// Engine registry
	RegistryIdleTimeout time.Duration // 0 disables idle eviction

	// Auth
	JWTSecret string
	TokenTTL  time.Duration
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/platform.db")
	}

	return &Config{
		Port:                  getEnv("PORT", "8080"),
		DBPath:                dbPath,
		DefaultInitialBalance: getEnvFloat("DEFAULT_INITIAL_BALANCE", 100000.0),
		DefaultMaxPositions:   getEnvInt("DEFAULT_MAX_POSITIONS", 5),
		DefaultCredits:        getEnvInt("DEFAULT_ANALYSIS_CREDITS", 100),
		BinanceTestnet:        getEnv("BINANCE_TESTNET", "false") == "true",
		SignalProviderURL:     getEnv("SIGNAL_PROVIDER_URL", "http://localhost:8090"),
		SignalProviderKey:     os.Getenv("SIGNAL_PROVIDER_KEY"),
		SignalModel:           getEnv("SIGNAL_MODEL", "gpt-4o-mini"),
		SignalTimeout:         getEnvDuration("SIGNAL_TIMEOUT", 15*time.Second),
		StrategyConfigPath:    getEnv("STRATEGY_CONFIG_PATH", "./configs/strategies.yaml"),
		BacktestPositionPct:   getEnvFloat("BACKTEST_POSITION_PCT", 0.1),
		RegistryIdleTimeout:   getEnvDuration("REGISTRY_IDLE_TIMEOUT", 0),
		JWTSecret:             getEnv("JWT_SECRET", "dev-secret"),
		TokenTTL:              getEnvDuration("TOKEN_TTL", 24*time.Hour),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
