// Package registry lazily creates and caches one trading engine per user.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/engine"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/events"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/marketdata"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/signal"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/pkg/cache"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/pkg/db"
)

// AccountLoader resolves account configuration for engine construction.
type AccountLoader interface {
	LoadAccount(ctx context.Context, userID string) (*db.Account, error)
}

// Config holds the registry's collaborators and lifecycle policy.
type Config struct {
	Store   AccountLoader
	Market  marketdata.Provider
	Signals signal.Provider
	Quotes  *cache.QuoteCache
	Bus     *events.Bus

	// IdleTimeout evicts engines not touched for this long. Zero keeps
	// engines for the registry's lifetime.
	IdleTimeout time.Duration
}

type entry struct {
	engine   *engine.Engine
	lastUsed time.Time
}

// Registry maps userID to its trading engine. Lookups of existing entries
// take a read lock only; first-access construction is serialized so exactly
// one engine exists per user and the account store is hit exactly once.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*entry

	cfg Config

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	return &Registry{
		engines: make(map[string]*entry),
		cfg:     cfg,
		stopCh:  make(chan struct{}),
	}
}

// GetOrCreate returns the engine for userID, constructing it on first
// access. Concurrent first-callers all observe the same instance.
func (r *Registry) GetOrCreate(ctx context.Context, userID string) (*engine.Engine, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", engine.ErrInvalidInput)
	}

	// Fast path: existing entry under read lock.
	r.mu.RLock()
	if ent, ok := r.engines[userID]; ok {
		r.mu.RUnlock()
		r.touch(userID)
		return ent.engine, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock.
	if ent, ok := r.engines[userID]; ok {
		ent.lastUsed = time.Now()
		return ent.engine, nil
	}

	account, err := r.cfg.Store.LoadAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", userID, err)
	}

	eng := engine.New(engine.Config{
		UserID:         userID,
		InitialBalance: account.InitialBalance,
		MaxPositions:   account.MaxPositions,
		Market:         r.cfg.Market,
		Signals:        r.cfg.Signals,
		Quotes:         r.cfg.Quotes,
		Bus:            r.cfg.Bus,
	})
	r.engines[userID] = &entry{engine: eng, lastUsed: time.Now()}
	return eng, nil
}

// Get returns the engine for userID if one exists.
func (r *Registry) Get(userID string) (*engine.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.engines[userID]
	if !ok {
		return nil, false
	}
	return ent.engine, true
}

// Remove drops the engine for userID.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.engines, userID)
}

// Len returns the number of live engines.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}

// Start launches the idle-eviction goroutine when an IdleTimeout is set.
func (r *Registry) Start(ctx context.Context) {
	if r.cfg.IdleTimeout <= 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.IdleTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.evictIdle()
			}
		}
	}()
}

// Stop terminates background work.
func (r *Registry) Stop() {
	r.once.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *Registry) touch(userID string) {
	r.mu.Lock()
	if ent, ok := r.engines[userID]; ok {
		ent.lastUsed = time.Now()
	}
	r.mu.Unlock()
}

func (r *Registry) evictIdle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for userID, ent := range r.engines {
		// Never evict an engine still holding open positions; its ledger
		// exists only in memory.
		if now.Sub(ent.lastUsed) > r.cfg.IdleTimeout && len(ent.engine.OpenPositions()) == 0 {
			delete(r.engines, userID)
		}
	}
}
