package jobs

import (
	"context"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/logger"
)

// HolidaySyncer refreshes the stored exchange holidays
type HolidaySyncer interface {
	Sync(ctx context.Context, store contracts.HolidayStore) (int, error)
}

// HolidaySyncJob refreshes the holidays table from the configured source
type HolidaySyncJob struct {
	syncer HolidaySyncer
	store  contracts.HolidayStore
	logger *logger.Logger
}

// NewHolidaySyncJob creates a new holiday sync job
func NewHolidaySyncJob(syncer HolidaySyncer, store contracts.HolidayStore, log *logger.Logger) *HolidaySyncJob {
	return &HolidaySyncJob{
		syncer: syncer,
		store:  store,
		logger: log,
	}
}

// Name returns the job name
func (j *HolidaySyncJob) Name() string {
	return "holiday_sync"
}

// Schedule returns the cron schedule (Mondays 06:00)
func (j *HolidaySyncJob) Schedule() string {
	return HolidaySyncSchedule
}

// Run executes the holiday sync
func (j *HolidaySyncJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled holiday sync")

	count, err := j.syncer.Sync(ctx, j.store)
	if err != nil {
		return err
	}

	if count > 0 {
		j.logger.WithField("upserted", count).Info("Holiday sync completed")
	}

	return nil
}
