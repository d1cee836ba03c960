package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
}

// Limiter is a token-bucket rate limiter keyed by provider name. Token
// consumption is serialized across all concurrent callers of the same key.
type Limiter struct {
	mu sync.Mutex
	m  map[string]*bucket
}

func New() *Limiter { return &Limiter{m: make(map[string]*bucket)} }

func (l *Limiter) get(key string, capacity, refillPerSec float64, now time.Time) *bucket {
	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
	}
	return b
}

// Wait blocks until a token is available for key or ctx is done. The token
// is reserved under the lock before sleeping so concurrent waiters cannot
// consume the same one.
func (l *Limiter) Wait(ctx context.Context, key string, capacity, refillPerSec float64) error {
	now := time.Now()
	l.mu.Lock()
	b := l.get(key, capacity, refillPerSec, now)
	b.refill(now)
	var delay time.Duration
	if b.tokens >= 1 {
		b.tokens -= 1
	} else {
		if b.refillRate > 0 {
			deficit := 1 - b.tokens
			delay = time.Duration(deficit / b.refillRate * float64(time.Second))
		} else {
			delay = time.Hour // no refill; only ctx can release the caller
		}
		b.tokens -= 1 // reservation; balance may go negative
	}
	l.mu.Unlock()

	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		// Return the unused reservation so later callers are not charged
		// for a call that never happened.
		l.mu.Lock()
		b.tokens += 1
		l.mu.Unlock()
		return ctx.Err()
	}
}
