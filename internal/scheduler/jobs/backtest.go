package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/internal/pipeline"
	"github.com/wonny/eodsignals/pkg/logger"
)

// BacktestDailyJob simulates stored signals and refreshes backtest_metrics
type BacktestDailyJob struct {
	pipeline *pipeline.BacktestPipeline
	logger   *logger.Logger
}

// NewBacktestDailyJob creates a new backtest_daily job
func NewBacktestDailyJob(p *pipeline.BacktestPipeline, log *logger.Logger) *BacktestDailyJob {
	return &BacktestDailyJob{
		pipeline: p,
		logger:   log,
	}
}

// Name returns the job name
func (j *BacktestDailyJob) Name() string {
	return pipeline.BacktestJobName
}

// Schedule returns the cron schedule (19:00 on weekdays)
func (j *BacktestDailyJob) Schedule() string {
	return BacktestDailySchedule
}

// Run executes the backtest for the default date
func (j *BacktestDailyJob) Run(ctx context.Context) error {
	resp, err := j.pipeline.Run(ctx, pipeline.BacktestRequest{})
	if err != nil {
		return err
	}
	j.logger.WithFields(map[string]interface{}{
		"status":   resp.Status,
		"date_ref": resp.DateRef,
		"trades":   resp.Trades,
		"metrics":  resp.Metrics,
	}).Debug("Scheduled backtest finished")
	return nil
}

// QualityFactory builds a checker bound to the current calendar
type QualityFactory func(ctx context.Context) (pipeline.QualityRunner, error)

// DQChecksJob runs the data-quality checks for today in market time
type DQChecksJob struct {
	newChecker QualityFactory
	loc        *time.Location
	now        func() time.Time
}

// NewDQChecksJob creates a new dq_checks job
func NewDQChecksJob(newChecker QualityFactory, loc *time.Location) *DQChecksJob {
	return &DQChecksJob{
		newChecker: newChecker,
		loc:        loc,
		now:        time.Now,
	}
}

// Name returns the job name
func (j *DQChecksJob) Name() string {
	return "dq_checks"
}

// Schedule returns the cron schedule (19:30 on weekdays, after the backtest)
func (j *DQChecksJob) Schedule() string {
	return DQChecksSchedule
}

// Run executes the checks; failing checks are reported, not returned as errors
func (j *DQChecksJob) Run(ctx context.Context) error {
	checker, err := j.newChecker(ctx)
	if err != nil {
		return fmt.Errorf("dq checks: %w", err)
	}
	if _, err := checker.Run(ctx, contracts.Day(j.now().In(j.loc))); err != nil {
		return fmt.Errorf("dq checks: %w", err)
	}
	return nil
}
