package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ChainWatch/internal/domain/models"
	drepo "ChainWatch/internal/domain/repository"
	dservice "ChainWatch/internal/domain/service"
	"ChainWatch/internal/services/analytics"
	"ChainWatch/pkg/logger"
)

// Pipeline runs one full trading-day cycle: collect chains, evaluate rules
// per symbol, score the day's feature matrix as a whole, assemble records,
// then persist and publish. The composite scorer only runs once every
// symbol has been collected or failed.
type Pipeline struct {
	tickers   drepo.TickerSource
	collector *ChainCollector
	baselines drepo.BaselineRepository
	detector  dservice.RuleDetector
	scorer    dservice.CompositeScorer
	assembler *analytics.Assembler
	snapshots drepo.SnapshotStore
	anomalies drepo.AnomalyStore
	runs      drepo.RunStore
	publisher drepo.Publisher
	metrics   drepo.Metrics
	log       *logger.Logger
}

// NewPipeline creates a new Pipeline instance.
func NewPipeline(
	tickers drepo.TickerSource,
	collector *ChainCollector,
	baselines drepo.BaselineRepository,
	detector dservice.RuleDetector,
	scorer dservice.CompositeScorer,
	assembler *analytics.Assembler,
	snapshots drepo.SnapshotStore,
	anomalies drepo.AnomalyStore,
	runs drepo.RunStore,
	publisher drepo.Publisher,
	metrics drepo.Metrics,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		tickers:   tickers,
		collector: collector,
		baselines: baselines,
		detector:  detector,
		scorer:    scorer,
		assembler: assembler,
		snapshots: snapshots,
		anomalies: anomalies,
		runs:      runs,
		publisher: publisher,
		metrics:   metrics,
		log:       log,
	}
}

// Run executes one cycle for the given trading day. A partial collection
// (cancellation, all providers down) still flows through detection and the
// run summary; the collection error is returned alongside the summary.
func (p *Pipeline) Run(ctx context.Context, date time.Time) (*models.RunSummary, error) {
	started := time.Now()
	p.log.Info("run starting", logger.String("date", date.Format("2006-01-02")))

	universe, err := p.tickers.Universe(ctx)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}

	result, collectErr := p.collector.Collect(ctx, universe, date)

	if len(result.Snapshots) > 0 {
		if err := p.snapshots.StoreSnapshots(ctx, result.Snapshots); err != nil {
			p.metrics.RecordError("snapshot_store")
			p.log.Error("storing snapshots failed", logger.Error(err))
		}
	}

	detections, skipped := p.detect(ctx, result.Snapshots)
	records := p.score(detections)

	if len(records) > 0 {
		if err := p.anomalies.StoreRecords(ctx, records); err != nil {
			p.metrics.RecordError("anomaly_store")
			p.log.Error("storing anomalies failed", logger.Error(err))
		}
		if err := p.publisher.PublishRecords(ctx, records); err != nil {
			p.metrics.RecordError("publish")
			p.log.Error("publishing anomalies failed", logger.Error(err))
		}
	}

	summary := p.summarize(date, started, result, records, skipped)
	if err := p.runs.StoreSummary(ctx, summary); err != nil {
		p.metrics.RecordError("run_store")
		p.log.Error("storing run summary failed", logger.Error(err))
	}
	if err := p.publisher.PublishSummary(ctx, summary); err != nil {
		p.metrics.RecordError("publish")
		p.log.Error("publishing run summary failed", logger.Error(err))
	}

	p.log.Info("run finished",
		logger.Int("attempted", summary.Attempted),
		logger.Int("succeeded", summary.Succeeded),
		logger.Int("failed", summary.Failed),
		logger.Int("anomalies", len(records)),
		logger.Int("skipped_baseline", summary.SkippedBaseline),
		logger.Duration("elapsed", time.Since(started)))

	return summary, collectErr
}

// detect evaluates rules for every collected snapshot. A missing or thin
// baseline skips the symbol, counted but never fatal.
func (p *Pipeline) detect(ctx context.Context, snaps []*models.ChainSnapshot) ([]analytics.Detection, int) {
	detections := make([]analytics.Detection, 0, len(snaps))
	skipped := 0

	for _, snap := range snaps {
		base, err := p.baselines.GetBaseline(ctx, snap.Symbol, snap.SnapshotDate)
		if err != nil && !errors.Is(err, drepo.ErrBaselineNotFound) {
			p.metrics.RecordError("baseline_lookup")
			p.log.Warn("baseline lookup failed",
				logger.String("symbol", snap.Symbol),
				logger.Error(err))
			base = nil
		}

		signals, features := p.detector.Evaluate(ctx, snap, base)
		det := analytics.Detection{
			Snapshot:    snap,
			Signals:     signals,
			Features:    features,
			Skipped:     allSkipped(signals),
			HasBaseline: base != nil,
		}
		if det.Skipped {
			skipped++
		}
		detections = append(detections, det)
	}

	return detections, skipped
}

// score runs the composite scorer over every row that has a baseline,
// thin-history rows included, spreads the scores back over the full
// detection list and assembles the records.
func (p *Pipeline) score(detections []analytics.Detection) []*models.AnomalyRecord {
	var features []models.FeatureVector
	idx := make([]int, 0, len(detections))
	for i, det := range detections {
		if !det.HasBaseline {
			continue
		}
		features = append(features, det.Features)
		idx = append(idx, i)
	}

	scores := make([]float64, len(detections))
	for i, s := range p.scorer.FitScore(features) {
		scores[idx[i]] = s
	}

	records := p.assembler.Assemble(detections, scores)
	for _, r := range records {
		p.metrics.RecordAnomaly(string(r.Tier))
	}
	return records
}

func (p *Pipeline) summarize(date, started time.Time, result *CollectionResult, records []*models.AnomalyRecord, skipped int) *models.RunSummary {
	byReason := make(map[string]int)
	for _, f := range result.Failures {
		byReason[f.Reason]++
	}

	byTier := make(map[models.RiskTier]int)
	for _, r := range records {
		byTier[r.Tier]++
	}

	return &models.RunSummary{
		RunDate:         date,
		StartedAt:       started,
		FinishedAt:      time.Now(),
		Attempted:       len(result.Snapshots) + len(result.Failures),
		Succeeded:       len(result.Snapshots),
		Failed:          len(result.Failures),
		FailedByReason:  byReason,
		AnomaliesByTier: byTier,
		SkippedBaseline: skipped,
	}
}

func allSkipped(signals []models.AnomalySignal) bool {
	for _, s := range signals {
		if !s.Skipped {
			return false
		}
	}
	return true
}
