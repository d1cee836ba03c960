package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ChainWatch/internal/domain/models"
	"ChainWatch/internal/domain/repository"
)

// ChainSnapshotStore persists chain snapshots in ClickHouse, one row per
// contract. The ReplacingMergeTree key makes re-running a day idempotent.
type ChainSnapshotStore struct {
	db    *sql.DB
	table string
}

// NewChainSnapshotStore creates ClickHouse snapshot storage.
func NewChainSnapshotStore(db *sql.DB, table string) repository.SnapshotStore {
	return &ChainSnapshotStore{db: db, table: table}
}

func (s *ChainSnapshotStore) Init(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		snapshot_date Date,
		symbol String,
		provider String,
		underlying_price Float64,
		contract_symbol String,
		expiration Date,
		strike Float64,
		option_type String,
		last_price Float64,
		bid Float64,
		ask Float64,
		volume Int64,
		open_interest Int64,
		implied_vol Float64,
		delta Float64,
		gamma Float64,
		theta Float64,
		vega Float64
	) ENGINE = ReplacingMergeTree
	ORDER BY (symbol, snapshot_date, contract_symbol)`, s.table)
	_, err := s.db.ExecContext(ctx, q)
	return err
}

func (s *ChainSnapshotStore) StoreSnapshots(ctx context.Context, snaps []*models.ChainSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	// Flatten to contract rows, then insert in chunks to bound statement
	// size.
	type row struct {
		snap *models.ChainSnapshot
		c    models.OptionContract
	}
	var rows []row
	for _, snap := range snaps {
		for _, c := range snap.Contracts {
			rows = append(rows, row{snap: snap, c: c})
		}
	}

	const chunkSize = 2000
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*18)
		for _, r := range rows[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				r.snap.SnapshotDate,
				r.snap.Symbol,
				r.snap.Provider,
				r.snap.UnderlyingPrice,
				r.c.ContractSymbol,
				r.c.Expiration,
				r.c.Strike,
				string(r.c.Type),
				r.c.LastPrice,
				r.c.Bid,
				r.c.Ask,
				r.c.Volume,
				r.c.OpenInterest,
				r.c.ImpliedVol,
				r.c.Delta,
				r.c.Gamma,
				r.c.Theta,
				r.c.Vega,
			)
		}
		q := fmt.Sprintf(
			"INSERT INTO %s (snapshot_date, symbol, provider, underlying_price, contract_symbol, expiration, strike, option_type, last_price, bid, ask, volume, open_interest, implied_vol, delta, gamma, theta, vega) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert snapshots: %w", err)
		}
	}
	return nil
}

func (s *ChainSnapshotStore) GetSnapshot(ctx context.Context, symbol string, date time.Time) (*models.ChainSnapshot, error) {
	q := fmt.Sprintf(`SELECT provider, underlying_price, contract_symbol, expiration, strike, option_type,
		last_price, bid, ask, volume, open_interest, implied_vol, delta, gamma, theta, vega
		FROM %s FINAL
		WHERE symbol = ? AND snapshot_date = ?
		ORDER BY contract_symbol`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := &models.ChainSnapshot{Symbol: symbol, SnapshotDate: date}
	for rows.Next() {
		var c models.OptionContract
		var typ string
		if err := rows.Scan(&snap.Provider, &snap.UnderlyingPrice, &c.ContractSymbol, &c.Expiration,
			&c.Strike, &typ, &c.LastPrice, &c.Bid, &c.Ask, &c.Volume, &c.OpenInterest,
			&c.ImpliedVol, &c.Delta, &c.Gamma, &c.Theta, &c.Vega); err != nil {
			return nil, err
		}
		c.Symbol = symbol
		c.Type = models.OptionType(typ)
		snap.Contracts = append(snap.Contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(snap.Contracts) == 0 {
		return nil, sql.ErrNoRows
	}
	return snap, nil
}

func (s *ChainSnapshotStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ChainSnapshotStore) Close() error {
	return nil // pool managed by pkg/clickhouse
}
