// Package db provides the user/account store and the append-only trade
// audit log backing the per-user trading engines.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientCredits = errors.New("insufficient analysis credits")
	ErrUserIDRequired      = errors.New("user_id is required for data isolation")
)

// AccountStore provides user-isolated account and audit queries.
type AccountStore struct {
	db *sql.DB
}

// NewAccountStore creates a new AccountStore instance.
func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

// CreateUser inserts a new user row.
func (s *AccountStore) CreateUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, initial_balance, max_positions, credit_balance, subscription_tier)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.PasswordHash, u.InitialBalance, u.MaxPositions, u.CreditBalance, u.SubscriptionTier)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByEmail returns the user with the given email, or ErrUserNotFound.
func (s *AccountStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, initial_balance, max_positions, credit_balance, subscription_tier, created_at, updated_at
		FROM users WHERE email = ?
	`, email)
	return scanUser(row)
}

// GetUserByID returns the user with the given id, or ErrUserNotFound.
func (s *AccountStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, initial_balance, max_positions, credit_balance, subscription_tier, created_at, updated_at
		FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.InitialBalance, &u.MaxPositions,
		&u.CreditBalance, &u.SubscriptionTier, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// LoadAccount returns the account configuration the trading engine needs.
func (s *AccountStore) LoadAccount(ctx context.Context, userID string) (*Account, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	u, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Account{
		UserID:           u.ID,
		InitialBalance:   u.InitialBalance,
		MaxPositions:     u.MaxPositions,
		CreditBalance:    u.CreditBalance,
		SubscriptionTier: u.SubscriptionTier,
	}, nil
}

// DecrementCredit atomically charges amount credits against a user.
//
// requestID is an idempotency key: retrying a charge with the same key is a
// no-op, so a retried decrement after a crash cannot double-charge. The
// charge fails with ErrInsufficientCredits when the balance would go
// negative, without consuming the key.
func (s *AccountStore) DecrementCredit(ctx context.Context, userID, requestID string, amount int) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin charge: %w", err)
	}
	defer tx.Rollback()

	// Idempotency: a previously recorded request_id means the charge
	// already went through.
	var existing int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM credit_charges WHERE request_id = ?`, requestID).Scan(&existing)
	if err != nil {
		return fmt.Errorf("check charge: %w", err)
	}
	if existing > 0 {
		return nil
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE users SET credit_balance = credit_balance - ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND credit_balance >= ?
	`, amount, userID, amount)
	if err != nil {
		return fmt.Errorf("decrement credit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement credit: %w", err)
	}
	if n == 0 {
		// Distinguish a missing user from an empty balance.
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE id = ?`, userID).Scan(&count); err != nil {
			return fmt.Errorf("decrement credit: %w", err)
		}
		if count == 0 {
			return ErrUserNotFound
		}
		return ErrInsufficientCredits
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credit_charges (request_id, user_id, amount) VALUES (?, ?, ?)
	`, requestID, userID, amount); err != nil {
		return fmt.Errorf("record charge: %w", err)
	}

	return tx.Commit()
}

// CreditBalance returns the current credit balance for a user.
func (s *AccountStore) CreditBalance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx,
		`SELECT credit_balance FROM users WHERE id = ?`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	return balance, nil
}

// RecordTrade appends a trade event to the audit log.
func (s *AccountStore) RecordTrade(ctx context.Context, t TradeAudit) error {
	if t.UserID == "" {
		return ErrUserIDRequired
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_audit (id, user_id, symbol, trade_type, side, quantity, entry_price, exit_price, pnl, reason, entry_time, exit_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.UserID, t.Symbol, t.TradeType, t.Side, t.Quantity, t.EntryPrice,
		nullFloat(t.ExitPrice, t.TradeType), nullFloat(t.PnL, t.TradeType), t.Reason,
		t.EntryTime, nullTime(t.ExitTime))
	if err != nil {
		return fmt.Errorf("record trade: %w", err)
	}
	return nil
}

// TradesByUser returns the most recent audit rows for a user, up to limit.
func (s *AccountStore) TradesByUser(ctx context.Context, userID string, limit int) ([]TradeAudit, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, trade_type, side, quantity, entry_price,
		       COALESCE(exit_price, 0), COALESCE(pnl, 0), reason, entry_time,
		       COALESCE(exit_time, entry_time)
		FROM trade_audit WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeAudit
	for rows.Next() {
		t := TradeAudit{UserID: userID}
		if err := rows.Scan(&t.ID, &t.Symbol, &t.TradeType, &t.Side, &t.Quantity,
			&t.EntryPrice, &t.ExitPrice, &t.PnL, &t.Reason, &t.EntryTime, &t.ExitTime); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullFloat(v float64, tradeType string) any {
	if tradeType == "open" {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
