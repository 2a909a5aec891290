package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/database"
	"github.com/wonny/eodsignals/pkg/logger"
)

const candleColumns = `ticker, trade_date, open, high, low, close, turnover, volume, quantity`

// CandleRepository implements contracts.CandleStore and contracts.CandleAuditor
// ⭐ SSOT: daily_bars 조회는 여기서만
type CandleRepository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewCandleRepository creates a new candle repository
func NewCandleRepository(db *database.DB, log *logger.Logger) *CandleRepository {
	return &CandleRepository{db: db, logger: log}
}

// GetDailyBars returns every valid bar of one session; malformed rows are skipped and logged
func (r *CandleRepository) GetDailyBars(ctx context.Context, date time.Time) ([]contracts.DailyBar, error) {
	query := `SELECT ` + candleColumns + `
		FROM daily_bars
		WHERE trade_date = $1
		ORDER BY ticker`

	rows, err := r.db.Pool.Query(ctx, query, contracts.Day(date))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily bars: %w", err)
	}
	return r.collectBars(rows)
}

// GetBarsRange returns bars for tickers in [from, to], ascending by (ticker, date).
// Tickers match case- and whitespace-insensitively on both sides.
func (r *CandleRepository) GetBarsRange(ctx context.Context, tickers []string, from, to time.Time) ([]contracts.DailyBar, error) {
	tickers = normalizeTickers(tickers)
	if len(tickers) == 0 {
		return []contracts.DailyBar{}, nil
	}

	query := `SELECT ` + candleColumns + `
		FROM daily_bars
		WHERE upper(trim(ticker)) = ANY($1) AND trade_date BETWEEN $2 AND $3
		ORDER BY upper(trim(ticker)), trade_date`

	rows, err := r.db.Pool.Query(ctx, query, tickers, contracts.Day(from), contracts.Day(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query bar range: %w", err)
	}
	return r.collectBars(rows)
}

func (r *CandleRepository) collectBars(rows pgx.Rows) ([]contracts.DailyBar, error) {
	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to scan daily bars: %w", err)
	}

	bars := make([]contracts.DailyBar, 0, len(records))
	skipped := 0
	for _, rec := range records {
		bar, err := contracts.ParseDailyBar(contracts.Record(rec))
		if err != nil {
			skipped++
			continue
		}
		bars = append(bars, bar)
	}

	if skipped > 0 {
		r.logger.WithFields(map[string]interface{}{
			"rows":    len(records),
			"skipped": skipped,
		}).Warn("Skipped malformed daily bars")
	}
	return bars, nil
}

// CountTickers returns the distinct tickers with a bar on date
func (r *CandleRepository) CountTickers(ctx context.Context, date time.Time) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT ticker) FROM daily_bars WHERE trade_date = $1`,
		contracts.Day(date),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count tickers: %w", err)
	}
	return n, nil
}

// CountDuplicates returns the number of (ticker, date) keys with more than one row
func (r *CandleRepository) CountDuplicates(ctx context.Context, date time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM (
			SELECT ticker
			FROM daily_bars
			WHERE trade_date = $1
			GROUP BY ticker
			HAVING COUNT(*) > 1
		) d`

	var n int
	if err := r.db.Pool.QueryRow(ctx, query, contracts.Day(date)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count duplicates: %w", err)
	}
	return n, nil
}

// CountInvalidOHLC returns rows whose high or low contradicts open/close
func (r *CandleRepository) CountInvalidOHLC(ctx context.Context, date time.Time) (int, int, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE high < GREATEST(open, close, low)),
			COUNT(*) FILTER (WHERE low > LEAST(open, close, high))
		FROM daily_bars
		WHERE trade_date = $1`

	var invalidHigh, invalidLow int
	if err := r.db.Pool.QueryRow(ctx, query, contracts.Day(date)).Scan(&invalidHigh, &invalidLow); err != nil {
		return 0, 0, fmt.Errorf("failed to count invalid ohlc: %w", err)
	}
	return invalidHigh, invalidLow, nil
}

// CountActiveTickers returns the size of the active universe
func (r *CandleRepository) CountActiveTickers(ctx context.Context) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickers WHERE active`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active tickers: %w", err)
	}
	return n, nil
}

// normalizeTickers uppercases, trims and dedupes; blanks are dropped
func normalizeTickers(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = contracts.NormalizeTicker(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
