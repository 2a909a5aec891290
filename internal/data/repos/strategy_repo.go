package repos

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/eodsignals/internal/strategyconfig"
	"github.com/wonny/eodsignals/pkg/database"
)

// StrategyRepository implements strategyconfig.Store
type StrategyRepository struct {
	db *database.DB
}

// NewStrategyRepository creates a new strategy_params repository
func NewStrategyRepository(db *database.DB) *StrategyRepository {
	return &StrategyRepository{db: db}
}

// LatestStrategyConfig returns the newest row for configID, nil when none exists
func (r *StrategyRepository) LatestStrategyConfig(ctx context.Context, configID string) (*strategyconfig.Row, error) {
	query := `
		SELECT config_id, x_pct, target_pct, stop_pct, allow_sell, horizon_days, max_signals, updated_at
		FROM strategy_params
		WHERE config_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`

	var row strategyconfig.Row
	err := r.db.Pool.QueryRow(ctx, query, configID).Scan(
		&row.ConfigID, &row.XPct, &row.TargetPct, &row.StopPct,
		&row.AllowSell, &row.HorizonDays, &row.MaxSignals, &row.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy_params: %w", err)
	}
	return &row, nil
}
