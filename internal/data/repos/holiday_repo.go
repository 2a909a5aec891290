package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/database"
)

// HolidayRepository implements contracts.HolidayStore
type HolidayRepository struct {
	db *database.DB
}

// NewHolidayRepository creates a new holiday repository
func NewHolidayRepository(db *database.DB) *HolidayRepository {
	return &HolidayRepository{db: db}
}

// ListHolidays returns holidays in [from, to]; zero bounds are open
func (r *HolidayRepository) ListHolidays(ctx context.Context, from, to time.Time) ([]contracts.Holiday, error) {
	query := `
		SELECT holiday_date, name
		FROM holidays
		WHERE ($1::date IS NULL OR holiday_date >= $1)
		  AND ($2::date IS NULL OR holiday_date <= $2)
		ORDER BY holiday_date`

	rows, err := r.db.Pool.Query(ctx, query, optionalDay(from), optionalDay(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}

	holidays, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (contracts.Holiday, error) {
		var h contracts.Holiday
		err := row.Scan(&h.Date, &h.Name)
		h.Date = contracts.Day(h.Date)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan holidays: %w", err)
	}
	return holidays, nil
}

// UpsertHolidays inserts or renames holidays
func (r *HolidayRepository) UpsertHolidays(ctx context.Context, holidays []contracts.Holiday) error {
	if len(holidays) == 0 {
		return nil
	}

	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, h := range holidays {
			batch.Queue(`
				INSERT INTO holidays (holiday_date, name)
				VALUES ($1, $2)
				ON CONFLICT (holiday_date) DO UPDATE SET
					name = EXCLUDED.name,
					updated_at = NOW()`,
				contracts.Day(h.Date), h.Name,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range holidays {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("failed to upsert holiday: %w", err)
			}
		}
		return br.Close()
	})
}

func optionalDay(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	d := contracts.Day(t)
	return &d
}
