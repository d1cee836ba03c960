package providers

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"ChainWatch/internal/domain/models"
	"ChainWatch/internal/domain/repository"
	"ChainWatch/internal/service/ratelimit"
	"ChainWatch/pkg/logger"
)

// Rate is the token-bucket shape for one provider.
type Rate struct {
	Capacity     float64
	RefillPerSec float64
}

// Option configures Gateway.
type Option func(*Gateway)

// Gateway fronts the configured providers in priority order. It owns the
// per-provider rate limiting, the per-call timeout and the consecutive
// failure streaks used to mark a provider down.
type Gateway struct {
	providers []Provider
	limiter   *ratelimit.Limiter
	rates     map[string]Rate
	defRate   Rate
	timeout   time.Duration
	maxWait   time.Duration
	downAfter int
	log       *logger.Logger
	metrics   repository.Metrics

	mu      sync.Mutex
	streaks map[string]int
}

// NewGateway creates a gateway over providers, highest priority first.
func NewGateway(provs []Provider, limiter *ratelimit.Limiter, log *logger.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		providers: provs,
		limiter:   limiter,
		rates:     make(map[string]Rate),
		defRate:   Rate{Capacity: 1, RefillPerSec: 10},
		timeout:   30 * time.Second,
		maxWait:   10 * time.Second,
		downAfter: 5,
		log:       log,
		streaks:   make(map[string]int),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// WithMaxWait bounds how long a call may block on the rate limiter before
// it is denied as rate limited.
func WithMaxWait(d time.Duration) Option {
	return func(g *Gateway) { g.maxWait = d }
}

// WithRate sets the token bucket for one provider.
func WithRate(provider string, r Rate) Option {
	return func(g *Gateway) { g.rates[provider] = r }
}

// WithDownAfter sets the consecutive failure streak that marks a provider
// down.
func WithDownAfter(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.downAfter = n
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m repository.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// Providers returns the configured providers in priority order.
func (g *Gateway) Providers() []Provider {
	return g.providers
}

// Healthy reports whether the provider's failure streak is below the down
// threshold.
func (g *Gateway) Healthy(provider string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.streaks[provider] < g.downAfter
}

// AllDown reports whether every configured provider is marked down.
func (g *Gateway) AllDown() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.providers {
		if g.streaks[p.Name()] < g.downAfter {
			return false
		}
	}
	return len(g.providers) > 0
}

// Fetch runs one rate-limited provider call for symbol. Errors come back as
// *Failure so the caller can decide between retry and fallback.
func (g *Gateway) Fetch(ctx context.Context, p Provider, symbol string, asOf time.Time) (*models.ChainSnapshot, error) {
	name := p.Name()
	rate := g.defRate
	if r, ok := g.rates[name]; ok {
		rate = r
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, g.maxWait)
	err := g.limiter.Wait(waitCtx, name, rate.Capacity, rate.RefillPerSec)
	cancelWait()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Waiting out the queue would exceed the budget. Treated as a
		// denial rather than a provider fault.
		g.record(name, "rate_limited")
		return nil, &Failure{Kind: KindRateLimited, Provider: name, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	snap, err := p.FetchChain(callCtx, symbol, asOf)
	if g.metrics != nil {
		g.metrics.RecordLatency("provider_fetch", time.Since(start).Seconds())
	}

	if err != nil {
		f := g.classify(name, err)
		if f.Kind != KindEmpty {
			g.markFailure(name)
		}
		g.record(name, string(f.Kind))
		g.log.Warn("provider fetch failed",
			logger.String("provider", name),
			logger.String("symbol", symbol),
			logger.String("kind", string(f.Kind)),
			logger.Error(f.Err))
		return nil, f
	}

	if snap == nil || len(snap.Contracts) == 0 {
		g.record(name, string(KindEmpty))
		return nil, &Failure{Kind: KindEmpty, Provider: name}
	}

	g.markSuccess(name)
	g.record(name, "ok")
	return snap, nil
}

// classify maps raw provider errors onto the failure taxonomy.
func (g *Gateway) classify(name string, err error) *Failure {
	if f, ok := AsFailure(err); ok {
		if f.Provider == "" {
			f.Provider = name
		}
		return f
	}

	transient := false
	if errors.Is(err, context.DeadlineExceeded) {
		transient = true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		transient = true
	}

	return &Failure{Kind: KindUnavailable, Provider: name, Transient: transient, Err: err}
}

func (g *Gateway) markFailure(name string) {
	g.mu.Lock()
	g.streaks[name]++
	down := g.streaks[name] == g.downAfter
	g.mu.Unlock()

	if down {
		g.log.Warn("provider marked down", logger.String("provider", name), logger.Int("streak", g.downAfter))
		if g.metrics != nil {
			g.metrics.RecordProviderHealthy(name, false)
		}
	}
}

func (g *Gateway) markSuccess(name string) {
	g.mu.Lock()
	wasDown := g.streaks[name] >= g.downAfter
	g.streaks[name] = 0
	g.mu.Unlock()

	if wasDown {
		g.log.Info("provider recovered", logger.String("provider", name))
	}
	if g.metrics != nil {
		g.metrics.RecordProviderHealthy(name, true)
	}
}

func (g *Gateway) record(provider, outcome string) {
	if g.metrics != nil {
		g.metrics.RecordFetch(provider, outcome)
	}
}
