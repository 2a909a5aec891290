package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/database"
)

const tradeColumns = `date_ref, valid_for, ticker, side, entry, target, stop, horizon_days, model_version,
	entry_hit, entry_fill_date, exit_date, exit_reason, exit_price, return_pct, mfe_pct, mae_pct`

// TradeRepository implements contracts.TradeStore
type TradeRepository struct {
	db *database.DB
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db *database.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// ReplaceTrades overwrites the date_ref partition in one transaction
func (r *TradeRepository) ReplaceTrades(ctx context.Context, dateRef time.Time, trades []contracts.BacktestTrade, createdAt time.Time) error {
	dateRef = contracts.Day(dateRef)

	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM backtest_trades WHERE date_ref = $1`, dateRef); err != nil {
			return fmt.Errorf("failed to delete trades: %w", err)
		}
		if len(trades) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, t := range trades {
			batch.Queue(`
				INSERT INTO backtest_trades (`+tradeColumns+`, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
				dateRef, contracts.Day(t.ValidFor), t.Ticker, string(t.Side),
				price(t.Entry), price(t.Target), price(t.Stop), t.HorizonDays, t.ModelVersion,
				t.EntryHit, t.EntryFillDate, t.ExitDate, string(t.ExitReason), pricePtr(t.ExitPrice),
				ratio(t.ReturnPct), ratioPtr(t.MFEPct), ratioPtr(t.MAEPct),
				createdAt,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range trades {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("failed to insert trade: %w", err)
			}
		}
		return br.Close()
	})
}

// GetTrades returns the trades simulated for dateRef
func (r *TradeRepository) GetTrades(ctx context.Context, dateRef time.Time) ([]contracts.BacktestTrade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM backtest_trades
		WHERE date_ref = $1
		ORDER BY ticker, side`

	return r.query(ctx, query, contracts.Day(dateRef))
}

// GetHistory returns every trade with date_ref in [from, to]
func (r *TradeRepository) GetHistory(ctx context.Context, from, to time.Time) ([]contracts.BacktestTrade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM backtest_trades
		WHERE date_ref BETWEEN $1 AND $2
		ORDER BY date_ref, ticker, side`

	return r.query(ctx, query, contracts.Day(from), contracts.Day(to))
}

func (r *TradeRepository) query(ctx context.Context, query string, args ...interface{}) ([]contracts.BacktestTrade, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []contracts.BacktestTrade
	for rows.Next() {
		var t contracts.BacktestTrade
		var side, reason string
		err := rows.Scan(
			&t.DateRef, &t.ValidFor, &t.Ticker, &side, &t.Entry, &t.Target, &t.Stop, &t.HorizonDays, &t.ModelVersion,
			&t.EntryHit, &t.EntryFillDate, &t.ExitDate, &reason, &t.ExitPrice, &t.ReturnPct, &t.MFEPct, &t.MAEPct,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = contracts.Side(side)
		t.ExitReason = contracts.ExitReason(reason)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return out, nil
}
