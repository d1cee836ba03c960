package repository

import (
	"context"
	"fmt"
	"time"

	"ChainWatch/internal/domain/models"
	"ChainWatch/internal/domain/repository"
	"ChainWatch/pkg/cache"
)

// CachedBaselines fronts a BaselineRepository with the layered cache. One
// symbol-day baseline never changes once the day is over, so a generous TTL
// is safe.
type CachedBaselines struct {
	inner repository.BaselineRepository
	cache cache.Service
	ttl   time.Duration
}

// NewCachedBaselines wraps inner with caching.
func NewCachedBaselines(inner repository.BaselineRepository, c cache.Service, ttl time.Duration) *CachedBaselines {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &CachedBaselines{inner: inner, cache: c, ttl: ttl}
}

func (r *CachedBaselines) GetBaseline(ctx context.Context, symbol string, asOf time.Time) (*models.BaselineStats, error) {
	key := baselineKey(symbol, asOf)

	var cached models.BaselineStats
	if err := r.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	// A miss and a broken cache both degrade to the repository.
	base, err := r.inner.GetBaseline(ctx, symbol, asOf)
	if err != nil {
		return nil, err
	}

	_ = r.cache.Set(ctx, key, base, r.ttl)
	return base, nil
}

func baselineKey(symbol string, asOf time.Time) string {
	return fmt.Sprintf("baseline:%s:%s", symbol, asOf.Format("2006-01-02"))
}
