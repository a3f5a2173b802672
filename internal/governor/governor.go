// Package governor provides per-operation-class request throttling and the
// consumable credit balance gating paid analysis calls.
package governor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a client exhausts an operation-class
// quota. Callers unwrap *LimitError for the retry-after hint.
var ErrRateLimited = errors.New("rate limit exceeded")

// Class is an operation class with its own window and quota.
type Class string

const (
	ClassAuth         Class = "auth"
	ClassTrading      Class = "trading"
	ClassAnalysis     Class = "analysis"
	ClassSubscription Class = "subscription"
)

// LimitError carries the retry-after duration for a throttled request.
type LimitError struct {
	Class      Class
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%v for %s operations, retry after %s", ErrRateLimited, e.Class, e.RetryAfter.Round(time.Millisecond))
}

func (e *LimitError) Unwrap() error { return ErrRateLimited }

// Quota configures one class: rps sustained rate with burst headroom.
type Quota struct {
	RPS   float64
	Burst int
}

// DefaultQuotas mirror the route classes: tight on auth, loose on reads.
func DefaultQuotas() map[Class]Quota {
	return map[Class]Quota{
		ClassAuth:         {RPS: 1, Burst: 5},
		ClassTrading:      {RPS: 5, Burst: 10},
		ClassAnalysis:     {RPS: 0.5, Burst: 3},
		ClassSubscription: {RPS: 1, Burst: 3},
	}
}

// RateGovernor keeps one limiter per (class, client identity). Exceeding a
// quota fails the operation immediately; nothing is queued or delayed.
type RateGovernor struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	quotas   map[Class]Quota
}

// NewRateGovernor creates a governor with the given quotas (nil uses
// DefaultQuotas).
func NewRateGovernor(quotas map[Class]Quota) *RateGovernor {
	if quotas == nil {
		quotas = DefaultQuotas()
	}
	return &RateGovernor{
		limiters: make(map[string]*rate.Limiter),
		quotas:   quotas,
	}
}

// Allow reports whether client may perform one operation of the class. On
// rejection the returned error is a *LimitError wrapping ErrRateLimited.
func (g *RateGovernor) Allow(class Class, client string) error {
	limiter := g.limiter(class, client)

	// Reserve then cancel on rejection so the limiter can tell us how long
	// the client should back off.
	res := limiter.Reserve()
	if !res.OK() {
		return &LimitError{Class: class, RetryAfter: time.Second}
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return &LimitError{Class: class, RetryAfter: delay}
	}
	return nil
}

func (g *RateGovernor) limiter(class Class, client string) *rate.Limiter {
	key := string(class) + "|" + client

	g.mu.RLock()
	limiter, ok := g.limiters[key]
	g.mu.RUnlock()
	if ok {
		return limiter
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	// Check again in case another goroutine created it.
	if limiter, ok := g.limiters[key]; ok {
		return limiter
	}
	quota, ok := g.quotas[class]
	if !ok {
		quota = Quota{RPS: 10, Burst: 20}
	}
	limiter = rate.NewLimiter(rate.Limit(quota.RPS), quota.Burst)
	g.limiters[key] = limiter
	return limiter
}

// Reset clears all limiter state. Called periodically so idle clients do
// not accumulate forever.
func (g *RateGovernor) Reset() {
	g.mu.Lock()
	g.limiters = make(map[string]*rate.Limiter)
	g.mu.Unlock()
}
