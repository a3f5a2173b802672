package db

import "time"

// User represents an application user row.
type User struct {
	ID               string
	Email            string
	PasswordHash     string
	InitialBalance   float64
	MaxPositions     int
	CreditBalance    int
	SubscriptionTier string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Account is the slice of user state the trading core needs.
type Account struct {
	UserID           string
	InitialBalance   float64
	MaxPositions     int
	CreditBalance    int
	SubscriptionTier string
}

// TradeAudit is an append-only record of an engine trade event.
type TradeAudit struct {
	ID         string
	UserID     string
	Symbol     string
	TradeType  string
	Side       string
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
	Reason     string
	EntryTime  time.Time
	ExitTime   time.Time
}
