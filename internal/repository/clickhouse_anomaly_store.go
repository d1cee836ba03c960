package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ChainWatch/internal/domain/models"
	"ChainWatch/internal/domain/repository"
)

// AnomalyRecordStore persists assembled anomaly records in ClickHouse.
// The (snapshot_date, symbol) replacing key makes re-running a day
// overwrite rather than duplicate.
type AnomalyRecordStore struct {
	db    *sql.DB
	table string
}

// NewAnomalyRecordStore creates ClickHouse anomaly storage.
func NewAnomalyRecordStore(db *sql.DB, table string) repository.AnomalyStore {
	return &AnomalyRecordStore{db: db, table: table}
}

func (s *AnomalyRecordStore) Init(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		snapshot_date Date,
		symbol String,
		composite_score Float64,
		tier String,
		rule_triggered UInt8,
		composite_flagged UInt8,
		signals String,
		notes String,
		created_at DateTime DEFAULT now()
	) ENGINE = ReplacingMergeTree(created_at)
	ORDER BY (snapshot_date, symbol)`, s.table)
	_, err := s.db.ExecContext(ctx, q)
	return err
}

func (s *AnomalyRecordStore) StoreRecords(ctx context.Context, recs []*models.AnomalyRecord) error {
	if len(recs) == 0 {
		return nil
	}

	values := make([]string, 0, len(recs))
	args := make([]interface{}, 0, len(recs)*8)
	for _, r := range recs {
		signals, err := json.Marshal(r.Signals)
		if err != nil {
			return fmt.Errorf("marshal signals for %s: %w", r.Symbol, err)
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			r.SnapshotDate,
			r.Symbol,
			r.CompositeScore,
			string(r.Tier),
			boolToUInt8(r.RuleTriggered),
			boolToUInt8(r.CompositeFlagged),
			string(signals),
			r.Notes,
		)
	}

	q := fmt.Sprintf(
		"INSERT INTO %s (snapshot_date, symbol, composite_score, tier, rule_triggered, composite_flagged, signals, notes) VALUES %s",
		s.table, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert anomalies: %w", err)
	}
	return nil
}

func (s *AnomalyRecordStore) ListByDate(ctx context.Context, date time.Time, tier models.RiskTier, limit int) ([]*models.AnomalyRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	q := fmt.Sprintf(`SELECT snapshot_date, symbol, composite_score, tier, rule_triggered, composite_flagged, signals, notes
		FROM %s FINAL WHERE snapshot_date = ?`, s.table)
	qargs := []interface{}{date}
	if tier != "" {
		q += " AND tier = ?"
		qargs = append(qargs, string(tier))
	}
	q += " ORDER BY composite_score DESC LIMIT ?"
	qargs = append(qargs, limit)

	rows, err := s.db.QueryContext(ctx, q, qargs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.AnomalyRecord
	for rows.Next() {
		var r models.AnomalyRecord
		var tierStr, signals string
		var ruleHit, compositeHit uint8
		if err := rows.Scan(&r.SnapshotDate, &r.Symbol, &r.CompositeScore, &tierStr, &ruleHit, &compositeHit, &signals, &r.Notes); err != nil {
			return nil, err
		}
		r.Tier = models.RiskTier(tierStr)
		r.RuleTriggered = ruleHit != 0
		r.CompositeFlagged = compositeHit != 0
		if signals != "" {
			if err := json.Unmarshal([]byte(signals), &r.Signals); err != nil {
				return nil, fmt.Errorf("unmarshal signals for %s: %w", r.Symbol, err)
			}
		}
		recs = append(recs, &r)
	}
	return recs, rows.Err()
}

func (s *AnomalyRecordStore) Close() error {
	return nil // pool managed by pkg/clickhouse
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
