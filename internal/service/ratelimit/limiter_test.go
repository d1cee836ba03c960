package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestWaitIsKeyScoped(t *testing.T) {
	l := New()
	ctx := context.Background()
	if err := l.Wait(ctx, "polygon", 1, 0.001); err != nil {
		t.Fatalf("polygon wait: %v", err)
	}
	// polygon is exhausted; yahoo has its own bucket and proceeds at once.
	start := time.Now()
	if err := l.Wait(ctx, "yahoo", 1, 0.001); err != nil {
		t.Fatalf("yahoo wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("yahoo throttled by polygon's bucket: %v", elapsed)
	}
}

func TestWaitEnforcesDelay(t *testing.T) {
	l := New()
	ctx := context.Background()
	// capacity 1, 20 tokens/sec => 50ms between calls
	if err := l.Wait(ctx, "p", 1, 20); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "p", 1, 20); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("expected ~50ms delay, got %v", elapsed)
	}
}

func TestWaitCancellation(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Wait(ctx, "p", 1, 0.1); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	cancel()
	if err := l.Wait(ctx, "p", 1, 0.1); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestWaitSerializesConcurrentCallers(t *testing.T) {
	l := New()
	ctx := context.Background()
	const n = 5
	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Wait(ctx, "p", 1, 50); err != nil {
				t.Errorf("wait: %v", err)
			}
		}()
	}
	wg.Wait()
	// 5 callers at 50 tokens/sec: the last reservation lands ~80ms out.
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Fatalf("expected serialized waits, finished in %v", elapsed)
	}
}
