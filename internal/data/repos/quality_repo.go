package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/database"
)

// QualityRepository implements contracts.QualityStore
type QualityRepository struct {
	db *database.DB
}

// NewQualityRepository creates a new dq_checks repository
func NewQualityRepository(db *database.DB) *QualityRepository {
	return &QualityRepository{db: db}
}

// SaveChecks replaces the results of checkDate with this run's results
func (r *QualityRepository) SaveChecks(ctx context.Context, checkDate time.Time, runID string, results []contracts.CheckResult) error {
	checkDate = contracts.Day(checkDate)

	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM dq_checks WHERE check_date = $1`, checkDate); err != nil {
			return fmt.Errorf("failed to delete dq checks: %w", err)
		}

		for _, res := range results {
			details, err := json.Marshal(res.Details)
			if err != nil {
				return fmt.Errorf("failed to marshal details of %s: %w", res.Name, err)
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO dq_checks (check_date, check_name, status, severity, details, run_id)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				checkDate, res.Name, string(res.Status), res.Severity, details, runID,
			)
			if err != nil {
				return fmt.Errorf("failed to insert dq check %s: %w", res.Name, err)
			}
		}
		return nil
	})
}
