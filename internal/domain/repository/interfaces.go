package repository

import (
	"context"
	"errors"
	"time"

	"ChainWatch/internal/domain/models"
)

// ErrBaselineNotFound is returned when a symbol has no rolling statistics
// as of the requested date.
var ErrBaselineNotFound = errors.New("baseline not found")

// BaselineRepository supplies rolling historical statistics per symbol.
// The detection core only ever reads from it.
type BaselineRepository interface {
	GetBaseline(ctx context.Context, symbol string, asOf time.Time) (*models.BaselineStats, error)
}

// SnapshotStore persists raw chain snapshots.
type SnapshotStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	StoreSnapshots(ctx context.Context, snaps []*models.ChainSnapshot) error
	GetSnapshot(ctx context.Context, symbol string, date time.Time) (*models.ChainSnapshot, error)
	Health(ctx context.Context) error
	Close() error
}

// AnomalyStore persists assembled anomaly records.
type AnomalyStore interface {
	Init(ctx context.Context) error
	StoreRecords(ctx context.Context, recs []*models.AnomalyRecord) error
	ListByDate(ctx context.Context, date time.Time, tier models.RiskTier, limit int) ([]*models.AnomalyRecord, error)
	Close() error
}

// RunStore persists run summaries for auditing partial failures.
type RunStore interface {
	Init(ctx context.Context) error
	StoreSummary(ctx context.Context, s *models.RunSummary) error
	ListSummaries(ctx context.Context, limit int) ([]*models.RunSummary, error)
}

// Publisher hands anomaly records and run summaries to the external
// notification collaborator.
type Publisher interface {
	PublishRecords(ctx context.Context, recs []*models.AnomalyRecord) error
	PublishSummary(ctx context.Context, s *models.RunSummary) error
	Close() error
}

// TickerSource supplies the tracked universe before each run.
type TickerSource interface {
	Universe(ctx context.Context) ([]models.Symbol, error)
}

// Metrics records operational counters for the pipeline.
type Metrics interface {
	RecordFetch(provider, outcome string)
	RecordAnomaly(tier string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordProviderHealthy(provider string, healthy bool)
}
