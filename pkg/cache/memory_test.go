package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type doc struct {
	Symbol string  `json:"symbol"`
	Mean   float64 `json:"mean"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	mc := newMemoryCache(10)
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "baseline:ABC", &doc{Symbol: "ABC", Mean: 120.5}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got doc
	if err := mc.Get(ctx, "baseline:ABC", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Symbol != "ABC" || got.Mean != 120.5 {
		t.Fatalf("got %+v", got)
	}

	if err := mc.Get(ctx, "baseline:XYZ", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := newMemoryCache(10)
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", &doc{Symbol: "K"}, 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	var got doc
	if err := mc.Get(ctx, "k", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}
}

func TestMemoryCacheEvictsLRU(t *testing.T) {
	mc := newMemoryCache(2)
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "a", &doc{Symbol: "A"}, time.Minute)
	_ = mc.Set(ctx, "b", &doc{Symbol: "B"}, time.Minute)

	// Touch "a" so "b" becomes the eviction candidate.
	var got doc
	if err := mc.Get(ctx, "a", &got); err != nil {
		t.Fatalf("get a: %v", err)
	}

	_ = mc.Set(ctx, "c", &doc{Symbol: "C"}, time.Minute)

	if err := mc.Get(ctx, "b", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected b evicted, got %v", err)
	}
	if err := mc.Get(ctx, "a", &got); err != nil {
		t.Fatalf("a should survive eviction: %v", err)
	}
}

func TestMemoryCacheDelete(t *testing.T) {
	mc := newMemoryCache(10)
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "k", &doc{Symbol: "K"}, time.Minute)
	if err := mc.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var got doc
	if err := mc.Get(ctx, "k", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}
