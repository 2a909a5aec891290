package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/database"
)

const signalColumns = `date_ref, valid_for, ticker, side, entry, target, stop, x_rule,
	y_target_pct, y_stop_pct, rank, score, ranking_key, horizon_days, model_version,
	volume, close`

// SignalRepository implements contracts.SignalStore and contracts.SignalAuditor
// ⭐ SSOT: Signal 데이터 저장/조회는 여기서만
type SignalRepository struct {
	db *database.DB
}

// NewSignalRepository creates a new signal repository
func NewSignalRepository(db *database.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// ReplaceSignals overwrites the date_ref partition in one transaction
func (r *SignalRepository) ReplaceSignals(ctx context.Context, dateRef time.Time, signals []contracts.ConditionalSignal, meta contracts.RunMetadata) error {
	dateRef = contracts.Day(dateRef)

	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM signals WHERE date_ref = $1`, dateRef); err != nil {
			return fmt.Errorf("failed to delete signals: %w", err)
		}
		if len(signals) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, s := range signals {
			batch.Queue(`
				INSERT INTO signals (`+signalColumns+`,
					job_run_id, config_version, code_version, source_snapshot, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
					$18, $19, $20, $21, $22)`,
				dateRef, contracts.Day(s.ValidFor), s.Ticker, string(s.Side),
				price(s.Entry), price(s.Target), price(s.Stop), s.XRule,
				ratio(s.TargetPct), ratio(s.StopPct), s.Rank, ratio(s.Score),
				s.RankingKey, s.HorizonDays, s.ModelVersion,
				s.Liquidity, price(s.Close),
				meta.JobRunID, meta.ConfigVersion, meta.CodeVersion, meta.SourceSnapshot, meta.CreatedAt,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range signals {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("failed to insert signal: %w", err)
			}
		}
		return br.Close()
	})
}

// GetSignals returns the typed signals of dateRef ordered by rank
func (r *SignalRepository) GetSignals(ctx context.Context, dateRef time.Time) ([]contracts.ConditionalSignal, error) {
	query := `SELECT ` + signalColumns + `
		FROM signals
		WHERE date_ref = $1
		ORDER BY rank, ticker`

	rows, err := r.db.Pool.Query(ctx, query, contracts.Day(dateRef))
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var out []contracts.ConditionalSignal
	for rows.Next() {
		var s contracts.ConditionalSignal
		var side string
		var volume, closePrice *float64
		err := rows.Scan(
			&s.DateRef, &s.ValidFor, &s.Ticker, &side, &s.Entry, &s.Target, &s.Stop, &s.XRule,
			&s.TargetPct, &s.StopPct, &s.Rank, &s.Score, &s.RankingKey, &s.HorizonDays, &s.ModelVersion,
			&volume, &closePrice,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		s.Side = contracts.Side(side)
		if volume != nil {
			s.Liquidity = *volume
		}
		if closePrice != nil {
			s.Close = *closePrice
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return out, nil
}

// GetSignalRecords returns raw rows for the backtest payload parser
func (r *SignalRepository) GetSignalRecords(ctx context.Context, dateRef time.Time) ([]contracts.Record, error) {
	query := `SELECT date_ref, valid_for, ticker, side, entry, target, stop, horizon_days, model_version
		FROM signals
		WHERE date_ref = $1
		ORDER BY rank, ticker`

	rows, err := r.db.Pool.Query(ctx, query, contracts.Day(dateRef))
	if err != nil {
		return nil, fmt.Errorf("failed to query signal records: %w", err)
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to scan signal records: %w", err)
	}

	records := make([]contracts.Record, len(maps))
	for i, m := range maps {
		records[i] = contracts.Record(m)
	}
	return records, nil
}

// CountSignalIssues counts rows whose levels contradict their side
func (r *SignalRepository) CountSignalIssues(ctx context.Context, dateRef time.Time) (contracts.SignalIssues, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE side NOT IN ('BUY', 'SELL')),
			COUNT(*) FILTER (WHERE side = 'BUY' AND target <= entry),
			COUNT(*) FILTER (WHERE side = 'BUY' AND stop >= entry),
			COUNT(*) FILTER (WHERE side = 'SELL' AND target >= entry),
			COUNT(*) FILTER (WHERE side = 'SELL' AND stop <= entry)
		FROM signals
		WHERE date_ref = $1`

	var s contracts.SignalIssues
	err := r.db.Pool.QueryRow(ctx, query, contracts.Day(dateRef)).Scan(
		&s.Total, &s.InvalidSide, &s.InvalidBuy, &s.InvalidBuyStop, &s.InvalidSell, &s.InvalidSellStop,
	)
	if err != nil {
		return contracts.SignalIssues{}, fmt.Errorf("failed to count signal issues: %w", err)
	}
	return s, nil
}
