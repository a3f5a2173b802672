package governor

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/events"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/signal"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/pkg/db"
)

// CreditStore is the account-store surface the credit governor needs.
type CreditStore interface {
	CreditBalance(ctx context.Context, userID string) (int, error)
	DecrementCredit(ctx context.Context, userID, requestID string, amount int) error
}

// CreditGovernor charges exactly one credit per successful analysis. A
// failed analysis never consumes a credit; the decrement carries a
// request-scoped idempotency key so a retried charge cannot double-bill.
// A crash between analysis success and the decrement is the accepted
// at-most-once-charge window.
type CreditGovernor struct {
	store CreditStore
	bus   *events.Bus
}

// NewCreditGovernor creates a credit governor over the account store.
func NewCreditGovernor(store CreditStore, bus *events.Bus) *CreditGovernor {
	return &CreditGovernor{store: store, bus: bus}
}

// Analyzer runs one analysis call; the governor sequences it between the
// balance check and the charge.
type Analyzer func(ctx context.Context) (*signal.Analysis, error)

// ChargedAnalysis is the result of a paid analysis call.
type ChargedAnalysis struct {
	Analysis  *signal.Analysis `json:"analysis"`
	RequestID string           `json:"request_id"`
	Charged   bool             `json:"charged"`
}

// Run checks the user's balance, executes the analysis, and charges one
// credit only when the analysis succeeded. When the charge itself fails the
// analysis result is still returned (Charged=false) together with the
// request ID so the caller can settle the charge later without
// double-billing.
func (g *CreditGovernor) Run(ctx context.Context, userID string, analyze Analyzer) (*ChargedAnalysis, error) {
	balance, err := g.store.CreditBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance <= 0 {
		return nil, fmt.Errorf("balance %d: %w", balance, db.ErrInsufficientCredits)
	}

	analysis, err := analyze(ctx)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	result := &ChargedAnalysis{Analysis: analysis, RequestID: requestID}
	if err := g.store.DecrementCredit(ctx, userID, requestID, 1); err != nil {
		// Do not lose the paid-for result; report the unsettled charge.
		return result, nil
	}
	result.Charged = true
	if g.bus != nil {
		g.bus.Publish(events.EventCreditCharged, map[string]any{
			"user_id":    userID,
			"request_id": requestID,
		})
	}
	return result, nil
}

// Settle retries a previously failed charge using its original request ID.
func (g *CreditGovernor) Settle(ctx context.Context, userID, requestID string) error {
	return g.store.DecrementCredit(ctx, userID, requestID, 1)
}
