package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"ChainWatch/internal/domain/models"
	drepo "ChainWatch/internal/domain/repository"
	"ChainWatch/internal/service/providers"
	"ChainWatch/pkg/logger"
)

// ErrNoProvidersAvailable aborts a run once every configured provider has
// been marked down.
var ErrNoProvidersAvailable = errors.New("no providers available")

// CollectorOption configures ChainCollector.
type CollectorOption func(*ChainCollector)

// ChainCollector walks the tracked universe in batches and pulls one chain
// snapshot per symbol through the provider gateway. Per-symbol failures are
// recorded as data, never as run errors.
type ChainCollector struct {
	gateway *providers.Gateway
	log     *logger.Logger
	metrics drepo.Metrics

	batchSize  int
	workers    int
	maxRetries int
	retryBase  time.Duration
	retryMax   time.Duration
}

// CollectionResult is the outcome of one collection pass.
type CollectionResult struct {
	Snapshots []*models.ChainSnapshot
	Failures  []models.SymbolFailure
}

// NewChainCollector creates a new ChainCollector instance.
func NewChainCollector(gw *providers.Gateway, log *logger.Logger, metrics drepo.Metrics, opts ...CollectorOption) *ChainCollector {
	c := &ChainCollector{
		gateway:    gw,
		log:        log,
		metrics:    metrics,
		batchSize:  50,
		workers:    8,
		maxRetries: 3,
		retryBase:  500 * time.Millisecond,
		retryMax:   8 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithBatchSize sets how many symbols one batch holds.
func WithBatchSize(n int) CollectorOption {
	return func(c *ChainCollector) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithWorkers sets the per-batch fetch concurrency.
func WithWorkers(n int) CollectorOption {
	return func(c *ChainCollector) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithMaxRetries sets the per-provider attempt count for transient failures.
func WithMaxRetries(n int) CollectorOption {
	return func(c *ChainCollector) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the base and cap of the exponential retry delay.
func WithRetryBackoff(base, max time.Duration) CollectorOption {
	return func(c *ChainCollector) {
		if base > 0 {
			c.retryBase = base
		}
		if max > 0 {
			c.retryMax = max
		}
	}
}

// Collect fetches snapshots for every active symbol in universe. Batches run
// sequentially; symbols within a batch run concurrently. A cancelled context
// stops new batches and drains in-flight fetches. The returned result is
// valid even when err is non-nil.
func (c *ChainCollector) Collect(ctx context.Context, universe []models.Symbol, asOf time.Time) (*CollectionResult, error) {
	active := make([]models.Symbol, 0, len(universe))
	for _, s := range universe {
		if s.Active {
			active = append(active, s)
		}
	}

	res := &CollectionResult{}
	start := time.Now()

	for i := 0; i < len(active); i += c.batchSize {
		if err := ctx.Err(); err != nil {
			c.log.Warn("collection stopped early",
				logger.Int("collected", len(res.Snapshots)),
				logger.Int("remaining", len(active)-i))
			return res, err
		}
		if c.gateway.AllDown() {
			c.log.Error("all providers down, aborting run",
				logger.Int("collected", len(res.Snapshots)))
			c.metrics.RecordError("all_providers_down")
			return res, ErrNoProvidersAvailable
		}

		end := i + c.batchSize
		if end > len(active) {
			end = len(active)
		}
		c.collectBatch(ctx, active[i:end], asOf, res)

		c.log.Debug("batch done",
			logger.Int("batch_end", end),
			logger.Int("total", len(active)),
			logger.Int("failures", len(res.Failures)))
	}

	c.metrics.RecordLatency("collection", time.Since(start).Seconds())
	c.log.Info("collection finished",
		logger.Int("attempted", len(active)),
		logger.Int("succeeded", len(res.Snapshots)),
		logger.Int("failed", len(res.Failures)),
		logger.Duration("elapsed", time.Since(start)))

	return res, nil
}

func (c *ChainCollector) collectBatch(ctx context.Context, batch []models.Symbol, asOf time.Time, res *CollectionResult) {
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, c.workers)

	for _, s := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(sym models.Symbol) {
			defer wg.Done()
			defer func() { <-sem }()

			snap, fail := c.collectSymbol(ctx, sym.Ticker, asOf)

			mu.Lock()
			defer mu.Unlock()
			if fail != nil {
				res.Failures = append(res.Failures, *fail)
				c.metrics.RecordError(fail.Reason)
				return
			}
			res.Snapshots = append(res.Snapshots, snap)
		}(s)
	}

	wg.Wait()
}

// collectSymbol tries providers in priority order, retrying transient
// failures on the same provider before falling through to the next one.
func (c *ChainCollector) collectSymbol(ctx context.Context, ticker string, asOf time.Time) (*models.ChainSnapshot, *models.SymbolFailure) {
	var last *providers.Failure

	for _, p := range c.gateway.Providers() {
		if !c.gateway.Healthy(p.Name()) {
			continue
		}

		snap, err := c.fetchWithRetry(ctx, p, ticker, asOf)
		if err == nil {
			return snap, nil
		}
		if ctx.Err() != nil {
			return nil, &models.SymbolFailure{
				Symbol: ticker, Provider: p.Name(),
				Reason: "cancelled", Err: ctx.Err(),
			}
		}

		if f, ok := providers.AsFailure(err); ok {
			last = f
		} else {
			last = &providers.Failure{Kind: providers.KindUnavailable, Provider: p.Name(), Err: err}
		}
	}

	if last == nil {
		return nil, &models.SymbolFailure{
			Symbol: ticker,
			Reason: string(providers.KindUnavailable),
			Err:    ErrNoProvidersAvailable,
		}
	}
	return nil, &models.SymbolFailure{
		Symbol:   ticker,
		Provider: last.Provider,
		Reason:   string(last.Kind),
		Err:      last,
	}
}

func (c *ChainCollector) fetchWithRetry(ctx context.Context, p providers.Provider, ticker string, asOf time.Time) (*models.ChainSnapshot, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			if err := c.backoff(ctx, attempt-1); err != nil {
				return nil, lastErr
			}
			c.log.Debug("retrying fetch",
				logger.String("provider", p.Name()),
				logger.String("symbol", ticker),
				logger.Int("attempt", attempt))
		}

		snap, err := c.gateway.Fetch(ctx, p, ticker, asOf)
		if err == nil {
			return snap, nil
		}
		lastErr = err

		f, ok := providers.AsFailure(err)
		if !ok || !f.Retryable() {
			return nil, err
		}
	}

	return nil, lastErr
}

// backoff sleeps retryBase*2^(attempt-1), capped at retryMax.
func (c *ChainCollector) backoff(ctx context.Context, attempt int) error {
	delay := c.retryBase << uint(attempt-1)
	if delay > c.retryMax {
		delay = c.retryMax
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
