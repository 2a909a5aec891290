package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/database"
)

const metricColumns = `as_of_date, combo, ticker, side, horizon_days, signals, fills, win_rate,
	avg_return, avg_win, avg_loss, profit_factor, avg_days_in_trade`

// MetricRepository implements contracts.MetricStore
type MetricRepository struct {
	db *database.DB
}

// NewMetricRepository creates a new metric repository
func NewMetricRepository(db *database.DB) *MetricRepository {
	return &MetricRepository{db: db}
}

// ReplaceMetrics overwrites the as_of_date partition in one transaction
func (r *MetricRepository) ReplaceMetrics(ctx context.Context, asOf time.Time, rows []contracts.MetricRow) error {
	asOf = contracts.Day(asOf)

	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM backtest_metrics WHERE as_of_date = $1`, asOf); err != nil {
			return fmt.Errorf("failed to delete metrics: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, m := range rows {
			var side *string
			if m.Side != nil {
				s := string(*m.Side)
				side = &s
			}
			batch.Queue(`
				INSERT INTO backtest_metrics (`+metricColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
				asOf, string(m.Combo), m.Ticker, side, m.HorizonDays, m.Signals, m.Fills, ratio(m.WinRate),
				ratioPtr(m.AvgReturn), ratioPtr(m.AvgWin), ratioPtr(m.AvgLoss), ratioPtr(m.ProfitFactor),
				ratioPtr(m.AvgDaysInTrade),
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range rows {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("failed to insert metric row: %w", err)
			}
		}
		return br.Close()
	})
}

// LatestSnapshot returns every row at MAX(as_of_date), empty when the table is empty
func (r *MetricRepository) LatestSnapshot(ctx context.Context) ([]contracts.MetricRow, error) {
	query := `SELECT ` + metricColumns + `
		FROM backtest_metrics
		WHERE as_of_date = (SELECT MAX(as_of_date) FROM backtest_metrics)
		ORDER BY horizon_days, combo, ticker NULLS FIRST, side NULLS FIRST`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics snapshot: %w", err)
	}
	defer rows.Close()

	out := []contracts.MetricRow{}
	for rows.Next() {
		var m contracts.MetricRow
		var combo string
		var side *string
		err := rows.Scan(
			&m.AsOfDate, &combo, &m.Ticker, &side, &m.HorizonDays, &m.Signals, &m.Fills, &m.WinRate,
			&m.AvgReturn, &m.AvgWin, &m.AvgLoss, &m.ProfitFactor, &m.AvgDaysInTrade,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metric row: %w", err)
		}
		m.Combo = contracts.ComboClass(combo)
		if side != nil {
			s := contracts.Side(*side)
			m.Side = &s
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return out, nil
}

// CountMetrics returns the number of rows at asOf
func (r *MetricRepository) CountMetrics(ctx context.Context, asOf time.Time) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM backtest_metrics WHERE as_of_date = $1`,
		contracts.Day(asOf),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count metrics: %w", err)
	}
	return n, nil
}
