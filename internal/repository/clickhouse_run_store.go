package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"ChainWatch/internal/domain/models"
	"ChainWatch/internal/domain/repository"
)

// RunSummaryStore persists run summaries in ClickHouse for auditing.
type RunSummaryStore struct {
	db    *sql.DB
	table string
}

// NewRunSummaryStore creates ClickHouse run log storage.
func NewRunSummaryStore(db *sql.DB, table string) repository.RunStore {
	return &RunSummaryStore{db: db, table: table}
}

func (s *RunSummaryStore) Init(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_date Date,
		started_at DateTime,
		finished_at DateTime,
		attempted Int32,
		succeeded Int32,
		failed Int32,
		failed_by_reason String,
		anomalies_by_tier String,
		skipped_baseline Int32
	) ENGINE = MergeTree
	ORDER BY (run_date, started_at)`, s.table)
	_, err := s.db.ExecContext(ctx, q)
	return err
}

func (s *RunSummaryStore) StoreSummary(ctx context.Context, sum *models.RunSummary) error {
	byReason, err := json.Marshal(sum.FailedByReason)
	if err != nil {
		return fmt.Errorf("marshal failure reasons: %w", err)
	}
	byTier, err := json.Marshal(sum.AnomaliesByTier)
	if err != nil {
		return fmt.Errorf("marshal tier counts: %w", err)
	}

	q := fmt.Sprintf(
		"INSERT INTO %s (run_date, started_at, finished_at, attempted, succeeded, failed, failed_by_reason, anomalies_by_tier, skipped_baseline) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.table)
	_, err = s.db.ExecContext(ctx, q,
		sum.RunDate,
		sum.StartedAt,
		sum.FinishedAt,
		sum.Attempted,
		sum.Succeeded,
		sum.Failed,
		string(byReason),
		string(byTier),
		sum.SkippedBaseline,
	)
	if err != nil {
		return fmt.Errorf("insert run summary: %w", err)
	}
	return nil
}

func (s *RunSummaryStore) ListSummaries(ctx context.Context, limit int) ([]*models.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	q := fmt.Sprintf(`SELECT run_date, started_at, finished_at, attempted, succeeded, failed, failed_by_reason, anomalies_by_tier, skipped_baseline
		FROM %s ORDER BY started_at DESC LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sums []*models.RunSummary
	for rows.Next() {
		var sum models.RunSummary
		var byReason, byTier string
		if err := rows.Scan(&sum.RunDate, &sum.StartedAt, &sum.FinishedAt, &sum.Attempted, &sum.Succeeded, &sum.Failed, &byReason, &byTier, &sum.SkippedBaseline); err != nil {
			return nil, err
		}
		if byReason != "" {
			if err := json.Unmarshal([]byte(byReason), &sum.FailedByReason); err != nil {
				return nil, fmt.Errorf("unmarshal failure reasons: %w", err)
			}
		}
		if byTier != "" {
			if err := json.Unmarshal([]byte(byTier), &sum.AnomaliesByTier); err != nil {
				return nil, fmt.Errorf("unmarshal tier counts: %w", err)
			}
		}
		sums = append(sums, &sum)
	}
	return sums, rows.Err()
}
