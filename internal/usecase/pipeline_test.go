package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"ChainWatch/internal/domain/models"
	drepo "ChainWatch/internal/domain/repository"
	"ChainWatch/internal/service/providers"
	"ChainWatch/internal/services/analytics"
)

var runDate = time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

type fakeTickers struct{ syms []models.Symbol }

func (f *fakeTickers) Universe(ctx context.Context) ([]models.Symbol, error) {
	return f.syms, nil
}

type fakeBaselines struct{ m map[string]*models.BaselineStats }

func (f *fakeBaselines) GetBaseline(ctx context.Context, symbol string, asOf time.Time) (*models.BaselineStats, error) {
	b, ok := f.m[symbol]
	if !ok {
		return nil, drepo.ErrBaselineNotFound
	}
	return b, nil
}

type fakeStores struct {
	mu        sync.Mutex
	snapshots []*models.ChainSnapshot
	records   []*models.AnomalyRecord
	summaries []*models.RunSummary
	published []*models.AnomalyRecord
	pubSums   []*models.RunSummary
}

func (f *fakeStores) Init(ctx context.Context) error   { return nil }
func (f *fakeStores) Health(ctx context.Context) error { return nil }
func (f *fakeStores) Close() error                     { return nil }

func (f *fakeStores) StoreSnapshots(ctx context.Context, snaps []*models.ChainSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snaps...)
	return nil
}

func (f *fakeStores) GetSnapshot(ctx context.Context, symbol string, date time.Time) (*models.ChainSnapshot, error) {
	return nil, nil
}

func (f *fakeStores) StoreRecords(ctx context.Context, recs []*models.AnomalyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, recs...)
	return nil
}

func (f *fakeStores) ListByDate(ctx context.Context, date time.Time, tier models.RiskTier, limit int) ([]*models.AnomalyRecord, error) {
	return nil, nil
}

func (f *fakeStores) StoreSummary(ctx context.Context, s *models.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, s)
	return nil
}

func (f *fakeStores) ListSummaries(ctx context.Context, limit int) ([]*models.RunSummary, error) {
	return nil, nil
}

func (f *fakeStores) PublishRecords(ctx context.Context, recs []*models.AnomalyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, recs...)
	return nil
}

func (f *fakeStores) PublishSummary(ctx context.Context, s *models.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubSums = append(f.pubSums, s)
	return nil
}

// chainFor builds a one-call one-put chain whose open interest matches the
// test baseline, so only volume-driven rules can fire.
func chainFor(symbol string, callVol int64) *models.ChainSnapshot {
	return &models.ChainSnapshot{
		Symbol:          symbol,
		SnapshotDate:    runDate,
		UnderlyingPrice: 100,
		Contracts: []models.OptionContract{
			{Symbol: symbol, Type: models.Call, Strike: 105, Expiration: runDate.AddDate(0, 1, 0), Volume: callVol, OpenInterest: 10000},
			{Symbol: symbol, Type: models.Put, Strike: 95, Expiration: runDate.AddDate(0, 1, 0), Volume: 80},
		},
	}
}

func quietBaseline(symbol string) *models.BaselineStats {
	return &models.BaselineStats{
		Symbol:             symbol,
		AsOf:               runDate,
		CallVolumeMean:     100,
		PutVolumeMean:      80,
		OIChangeMean:       0,
		OIChangeStdDev:     100,
		PrevOpenInterest:   10000,
		ShortTermShareMean: 0.2,
		OTMShareMean:       0.1,
		Observations:       30,
	}
}

func newTestPipeline(t *testing.T, provider providers.Provider, tickers []models.Symbol, baselines map[string]*models.BaselineStats, stores *fakeStores, gwOpts ...providers.Option) *Pipeline {
	t.Helper()
	gw := testGateway(t, []providers.Provider{provider}, gwOpts...)
	detector := analytics.NewDetector()
	return NewPipeline(
		&fakeTickers{syms: tickers},
		newCollector(t, gw, WithBatchSize(10)),
		&fakeBaselines{m: baselines},
		detector,
		analytics.NewIsolationForest(analytics.WithSeed(7)),
		analytics.NewAssembler(),
		stores,
		stores,
		stores,
		stores,
		noopMetrics{},
		testLogger(t),
	)
}

func TestRunFlagsSpikedSymbol(t *testing.T) {
	var tickers []models.Symbol
	baselines := make(map[string]*models.BaselineStats)

	tickers = append(tickers, models.Symbol{Ticker: "ABC", Active: true})
	baselines["ABC"] = quietBaseline("ABC")
	for i := 0; i < 20; i++ {
		sym := fmt.Sprintf("Q%02d", i)
		tickers = append(tickers, models.Symbol{Ticker: sym, Active: true})
		baselines[sym] = quietBaseline(sym)
	}
	// NEWCO has no trading history yet.
	tickers = append(tickers, models.Symbol{Ticker: "NEWCO", Active: true})
	// DOWN's provider call always fails.
	tickers = append(tickers, models.Symbol{Ticker: "DOWN", Active: true})

	p := newFakeProvider("only", func(symbol string, call int) (*models.ChainSnapshot, error) {
		switch symbol {
		case "ABC":
			return chainFor(symbol, 500), nil
		case "DOWN":
			return nil, &providers.Failure{Kind: providers.KindUnavailable, Provider: "only"}
		default:
			return chainFor(symbol, 100), nil
		}
	})

	stores := &fakeStores{}
	pipe := newTestPipeline(t, p, tickers, baselines, stores, providers.WithDownAfter(100))

	summary, err := pipe.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.Attempted != 23 || summary.Succeeded != 22 || summary.Failed != 1 {
		t.Fatalf("unexpected counts %+v", summary)
	}
	if summary.FailedByReason[string(providers.KindUnavailable)] != 1 {
		t.Fatalf("failure reasons %+v", summary.FailedByReason)
	}
	if summary.SkippedBaseline != 1 {
		t.Fatalf("skipped baseline %d, want 1", summary.SkippedBaseline)
	}

	if len(stores.snapshots) != 22 {
		t.Fatalf("stored %d snapshots, want 22", len(stores.snapshots))
	}

	var abc *models.AnomalyRecord
	for _, r := range stores.records {
		if r.Symbol == "NEWCO" {
			t.Fatalf("symbol without history must not be flagged: %+v", r)
		}
		if r.Symbol == "ABC" {
			abc = r
		}
		if strings.HasPrefix(r.Symbol, "Q") {
			t.Fatalf("quiet symbol flagged: %+v", r)
		}
	}
	if abc == nil {
		t.Fatalf("expected an anomaly record for ABC")
	}
	if !abc.RuleTriggered {
		t.Fatalf("ABC should trigger the call volume rule: %+v", abc)
	}
	if !strings.Contains(abc.Notes, "Call volume 5.0x normal") {
		t.Fatalf("notes %q", abc.Notes)
	}

	if len(stores.published) != len(stores.records) {
		t.Fatalf("published %d records, stored %d", len(stores.published), len(stores.records))
	}
	if len(stores.summaries) != 1 || len(stores.pubSums) != 1 {
		t.Fatalf("run summary not persisted and published exactly once")
	}
	if stores.summaries[0].AnomaliesByTier[abc.Tier] == 0 {
		t.Fatalf("summary tier counts %+v", stores.summaries[0].AnomaliesByTier)
	}
}

func TestRunScoresThinHistorySymbol(t *testing.T) {
	var tickers []models.Symbol
	baselines := make(map[string]*models.BaselineStats)
	for i := 0; i < 20; i++ {
		sym := fmt.Sprintf("Q%02d", i)
		tickers = append(tickers, models.Symbol{Ticker: sym, Active: true})
		baselines[sym] = quietBaseline(sym)
	}
	// SPIKE listed three days ago: too little history for the rules, but
	// its feature row still enters the composite fit.
	tickers = append(tickers, models.Symbol{Ticker: "SPIKE", Active: true})
	thin := quietBaseline("SPIKE")
	thin.Observations = 3
	baselines["SPIKE"] = thin

	p := newFakeProvider("only", func(symbol string, call int) (*models.ChainSnapshot, error) {
		if symbol == "SPIKE" {
			return chainFor(symbol, 50000), nil
		}
		return chainFor(symbol, 100), nil
	})

	stores := &fakeStores{}
	pipe := newTestPipeline(t, p, tickers, baselines, stores)

	summary, err := pipe.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.SkippedBaseline != 1 {
		t.Fatalf("skipped baseline %d, want 1", summary.SkippedBaseline)
	}

	var spike *models.AnomalyRecord
	for _, r := range stores.records {
		if r.Symbol == "SPIKE" {
			spike = r
		}
	}
	if spike == nil {
		t.Fatalf("500x spike on a thin baseline should still surface via the composite score")
	}
	if spike.RuleTriggered || !spike.CompositeFlagged {
		t.Fatalf("expected composite-only record: %+v", spike)
	}
}

func TestRunSurvivesAllProvidersDown(t *testing.T) {
	p := newFakeProvider("only", func(symbol string, call int) (*models.ChainSnapshot, error) {
		return nil, &providers.Failure{Kind: providers.KindUnavailable, Provider: "only"}
	})

	stores := &fakeStores{}
	pipe := newTestPipeline(t, p,
		universe("AAA", "BBB", "CCC"),
		map[string]*models.BaselineStats{},
		stores,
		providers.WithDownAfter(1))
	// One symbol per batch so the down marker is checked between symbols.
	pipe.collector.batchSize = 1

	summary, err := pipe.Run(context.Background(), runDate)
	if !errors.Is(err, ErrNoProvidersAvailable) {
		t.Fatalf("expected ErrNoProvidersAvailable, got %v", err)
	}
	if summary == nil {
		t.Fatalf("partial run must still produce a summary")
	}
	if summary.Failed == 0 {
		t.Fatalf("the failed symbol belongs in the summary: %+v", summary)
	}
	// The aborted run is still auditable.
	if len(stores.summaries) != 1 {
		t.Fatalf("summary not stored")
	}
}

func TestRunQuietDayProducesNoRecords(t *testing.T) {
	var tickers []models.Symbol
	baselines := make(map[string]*models.BaselineStats)
	for i := 0; i < 10; i++ {
		sym := fmt.Sprintf("Q%02d", i)
		tickers = append(tickers, models.Symbol{Ticker: sym, Active: true})
		baselines[sym] = quietBaseline(sym)
	}

	p := newFakeProvider("only", func(symbol string, call int) (*models.ChainSnapshot, error) {
		return chainFor(symbol, 100), nil
	})

	stores := &fakeStores{}
	pipe := newTestPipeline(t, p, tickers, baselines, stores)

	summary, err := pipe.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(stores.records) != 0 || len(stores.published) != 0 {
		t.Fatalf("quiet day produced %d records", len(stores.records))
	}
	if summary.Succeeded != 10 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}
