package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"ChainWatch/internal/domain/models"
	"ChainWatch/internal/domain/repository"
)

// BaselineOption configures ClickHouseBaselines.
type BaselineOption func(*ClickHouseBaselines)

// ClickHouseBaselines derives rolling per-symbol statistics from stored
// snapshots. Volume series are IQR-trimmed before the mean so one past
// anomaly does not inflate its own baseline.
type ClickHouseBaselines struct {
	db            *sql.DB
	table         string
	windowDays    int
	shortTermDays int
	otmPct        float64
}

// NewClickHouseBaselines creates the baseline reader over the snapshot
// table.
func NewClickHouseBaselines(db *sql.DB, table string, opts ...BaselineOption) *ClickHouseBaselines {
	b := &ClickHouseBaselines{
		db:            db,
		table:         table,
		windowDays:    30,
		shortTermDays: 7,
		otmPct:        10.0,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// WithWindowDays sets the lookback window.
func WithWindowDays(n int) BaselineOption {
	return func(b *ClickHouseBaselines) {
		if n > 0 {
			b.windowDays = n
		}
	}
}

// WithBaselineShortTermDays aligns the short-term window with the detector.
func WithBaselineShortTermDays(n int) BaselineOption {
	return func(b *ClickHouseBaselines) {
		if n > 0 {
			b.shortTermDays = n
		}
	}
}

// WithBaselineOTMPercentage aligns the OTM strike cutoff with the detector.
func WithBaselineOTMPercentage(v float64) BaselineOption {
	return func(b *ClickHouseBaselines) { b.otmPct = v }
}

type dailyStat struct {
	date       time.Time
	callVol    float64
	putVol     float64
	totalOI    float64
	shortShare float64
	otmShare   float64
}

// GetBaseline aggregates the window strictly before asOf. Today's own
// snapshot never contributes to today's baseline.
func (b *ClickHouseBaselines) GetBaseline(ctx context.Context, symbol string, asOf time.Time) (*models.BaselineStats, error) {
	from := asOf.AddDate(0, 0, -b.windowDays)
	q := fmt.Sprintf(`SELECT snapshot_date,
		sumIf(volume, option_type = 'CALL') AS call_vol,
		sumIf(volume, option_type = 'PUT') AS put_vol,
		sum(open_interest) AS total_oi,
		if(sum(volume) > 0, sumIf(volume, expiration <= addDays(snapshot_date, %d)) / sum(volume), 0) AS short_share,
		if(sum(volume) > 0, sumIf(volume, option_type = 'CALL' AND strike > underlying_price * %f) / sum(volume), 0) AS otm_share
		FROM %s FINAL
		WHERE symbol = ? AND snapshot_date >= ? AND snapshot_date < ?
		GROUP BY snapshot_date
		ORDER BY snapshot_date`, b.shortTermDays, 1+b.otmPct/100, b.table)

	rows, err := b.db.QueryContext(ctx, q, symbol, from, asOf)
	if err != nil {
		return nil, fmt.Errorf("baseline query: %w", err)
	}
	defer rows.Close()

	var days []dailyStat
	for rows.Next() {
		var d dailyStat
		if err := rows.Scan(&d.date, &d.callVol, &d.putVol, &d.totalOI, &d.shortShare, &d.otmShare); err != nil {
			return nil, fmt.Errorf("baseline scan: %w", err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, repository.ErrBaselineNotFound
	}

	return buildBaseline(symbol, asOf, b.windowDays, days), nil
}

func buildBaseline(symbol string, asOf time.Time, window int, days []dailyStat) *models.BaselineStats {
	callVols := make([]float64, len(days))
	putVols := make([]float64, len(days))
	shortShares := make([]float64, len(days))
	otmShares := make([]float64, len(days))
	for i, d := range days {
		callVols[i] = d.callVol
		putVols[i] = d.putVol
		shortShares[i] = d.shortShare
		otmShares[i] = d.otmShare
	}

	var oiChanges []float64
	for i := 1; i < len(days); i++ {
		oiChanges = append(oiChanges, days[i].totalOI-days[i-1].totalOI)
	}

	callMean, callStd := meanStdDev(trimOutliers(callVols))
	putMean, putStd := meanStdDev(trimOutliers(putVols))
	oiMean, oiStd := meanStdDev(oiChanges)

	return &models.BaselineStats{
		Symbol:             symbol,
		AsOf:               asOf,
		Window:             window,
		CallVolumeMean:     callMean,
		CallVolumeStdDev:   callStd,
		PutVolumeMean:      putMean,
		PutVolumeStdDev:    putStd,
		OIChangeMean:       oiMean,
		OIChangeStdDev:     oiStd,
		PrevOpenInterest:   int64(days[len(days)-1].totalOI),
		ShortTermShareMean: stat.Mean(shortShares, nil),
		OTMShareMean:       stat.Mean(otmShares, nil),
		Observations:       len(days),
	}
}

// trimOutliers drops values outside 1.5 IQR of the quartiles. Series too
// short to estimate quartiles pass through untouched.
func trimOutliers(xs []float64) []float64 {
	if len(xs) < 4 {
		return xs
	}

	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
	iqr := q3 - q1
	lo, hi := q1-1.5*iqr, q3+1.5*iqr

	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if x >= lo && x <= hi {
			out = append(out, x)
		}
	}
	if len(out) == 0 {
		return xs
	}
	return out
}

func meanStdDev(xs []float64) (float64, float64) {
	switch len(xs) {
	case 0:
		return 0, 0
	case 1:
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}
