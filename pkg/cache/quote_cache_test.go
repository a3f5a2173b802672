package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := NewQuoteCache()
	c.Set("BTCUSDT", 50000)

	price, ok := c.Get("BTCUSDT")
	if !ok || price != 50000 {
		t.Fatalf("Get=(%v,%v), expected (50000,true)", price, ok)
	}
	if _, ok := c.Get("ETHUSDT"); ok {
		t.Fatalf("Get hit for missing symbol")
	}
}

func TestGetFresh(t *testing.T) {
	c := NewQuoteCache()
	c.Set("BTCUSDT", 50000)

	if _, ok := c.GetFresh("BTCUSDT", time.Minute); !ok {
		t.Fatalf("fresh quote reported stale")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.GetFresh("BTCUSDT", 10*time.Millisecond); ok {
		t.Fatalf("stale quote reported fresh")
	}
}

func TestDeleteAndLen(t *testing.T) {
	c := NewQuoteCache()
	for i := 0; i < 50; i++ {
		c.Set(fmt.Sprintf("SYM%d", i), float64(i))
	}
	if c.Len() != 50 {
		t.Fatalf("Len=%d, expected 50", c.Len())
	}
	c.Delete("SYM0")
	if c.Len() != 49 {
		t.Fatalf("Len=%d after delete, expected 49", c.Len())
	}
	if _, ok := c.Get("SYM0"); ok {
		t.Fatalf("deleted symbol still cached")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := NewQuoteCache()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(fmt.Sprintf("SYM%d", j%10), float64(i*100+j))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Get(fmt.Sprintf("SYM%d", j%10))
			}
		}()
	}
	wg.Wait()
	if c.Len() != 10 {
		t.Fatalf("Len=%d, expected 10 distinct symbols", c.Len())
	}
}
