package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/engine"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/internal/marketdata"
	"github.com/Gdoes111/autonomous-ai-trading-platform-sub001/pkg/db"
)

type countingStore struct {
	loads int64
	fail  bool
}

func (s *countingStore) LoadAccount(ctx context.Context, userID string) (*db.Account, error) {
	atomic.AddInt64(&s.loads, 1)
	if s.fail {
		return nil, db.ErrUserNotFound
	}
	return &db.Account{
		UserID:         userID,
		InitialBalance: 50000,
		MaxPositions:   3,
	}, nil
}

type stubMarket struct{}

func (stubMarket) LatestQuote(ctx context.Context, symbol string) (float64, error) {
	return 100, nil
}

func (stubMarket) Klines(ctx context.Context, symbol, interval, period string) ([]marketdata.Bar, error) {
	return nil, fmt.Errorf("%w: not stubbed", marketdata.ErrMarketData)
}

func TestGetOrCreateReturnsSameInstance(t *testing.T) {
	store := &countingStore{}
	reg := New(Config{Store: store, Market: stubMarket{}})

	first, err := reg.GetOrCreate(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}
	second, err := reg.GetOrCreate(context.Background(), "alice")
	if err != nil {
		t.Fatalf("second GetOrCreate returned error: %v", err)
	}
	if first != second {
		t.Fatalf("GetOrCreate returned different instances for the same user")
	}
	if got := atomic.LoadInt64(&store.loads); got != 1 {
		t.Fatalf("account loads=%d, expected exactly 1", got)
	}
	if first.InitialBalance() != 50000 {
		t.Fatalf("initialBalance=%v, expected account value 50000", first.InitialBalance())
	}
}

func TestGetOrCreateIsolatesUsers(t *testing.T) {
	store := &countingStore{}
	reg := New(Config{Store: store, Market: stubMarket{}})
	ctx := context.Background()

	alice, err := reg.GetOrCreate(ctx, "alice")
	if err != nil {
		t.Fatalf("GetOrCreate alice returned error: %v", err)
	}
	bob, err := reg.GetOrCreate(ctx, "bob")
	if err != nil {
		t.Fatalf("GetOrCreate bob returned error: %v", err)
	}
	if alice == bob {
		t.Fatalf("different users share an engine")
	}
	if reg.Len() != 2 {
		t.Fatalf("Len=%d, expected 2", reg.Len())
	}
}

func TestGetOrCreateEmptyUser(t *testing.T) {
	reg := New(Config{Store: &countingStore{}, Market: stubMarket{}})
	_, err := reg.GetOrCreate(context.Background(), "")
	if !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("err=%v, expected ErrInvalidInput", err)
	}
}

func TestGetOrCreateLoadFailure(t *testing.T) {
	store := &countingStore{fail: true}
	reg := New(Config{Store: store, Market: stubMarket{}})

	_, err := reg.GetOrCreate(context.Background(), "ghost")
	if !errors.Is(err, db.ErrUserNotFound) {
		t.Fatalf("err=%v, expected ErrUserNotFound", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("Len=%d after failed load, expected 0", reg.Len())
	}
}

func TestGetOrCreateConcurrent(t *testing.T) {
	store := &countingStore{}
	reg := New(Config{Store: store, Market: stubMarket{}})

	const workers = 32
	engines := make([]*engine.Engine, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			eng, err := reg.GetOrCreate(context.Background(), "alice")
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			engines[i] = eng
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if engines[i] != engines[0] {
			t.Fatalf("worker %d observed a different engine instance", i)
		}
	}
	if got := atomic.LoadInt64(&store.loads); got != 1 {
		t.Fatalf("account loads=%d under contention, expected exactly 1", got)
	}
}

func TestRemove(t *testing.T) {
	store := &countingStore{}
	reg := New(Config{Store: store, Market: stubMarket{}})
	ctx := context.Background()

	if _, err := reg.GetOrCreate(ctx, "alice"); err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}
	reg.Remove("alice")
	if _, ok := reg.Get("alice"); ok {
		t.Fatalf("Get found engine after Remove")
	}

	// Re-creation loads the account again.
	if _, err := reg.GetOrCreate(ctx, "alice"); err != nil {
		t.Fatalf("GetOrCreate after Remove returned error: %v", err)
	}
	if got := atomic.LoadInt64(&store.loads); got != 2 {
		t.Fatalf("account loads=%d, expected 2 after re-create", got)
	}
}

func TestIdleEviction(t *testing.T) {
	store := &countingStore{}
	reg := New(Config{
		Store:       store,
		Market:      stubMarket{},
		IdleTimeout: 30 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg.Start(ctx)
	defer reg.Stop()

	if _, err := reg.GetOrCreate(ctx, "idle-user"); err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for reg.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if reg.Len() != 0 {
		t.Fatalf("Len=%d, expected idle engine to be evicted", reg.Len())
	}
}

func TestIdleEvictionSkipsOpenPositions(t *testing.T) {
	store := &countingStore{}
	reg := New(Config{
		Store:       store,
		Market:      stubMarket{},
		IdleTimeout: 30 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg.Start(ctx)
	defer reg.Stop()

	eng, err := reg.GetOrCreate(ctx, "busy-user")
	if err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}
	if _, err := eng.OpenPosition(ctx, "BTCUSDT", engine.SideLong, 1, engine.OpenOptions{}); err != nil {
		t.Fatalf("OpenPosition returned error: %v", err)
	}

	time.Sleep(150 * time.Millisecond)
	if reg.Len() != 1 {
		t.Fatalf("Len=%d, engine with open positions must survive eviction", reg.Len())
	}
}
