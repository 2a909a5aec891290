package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/internal/pipeline"
	"github.com/wonny/eodsignals/pkg/logger"
)

// Weekday schedules in market time (with seconds)
const (
	EODSignalsSchedule    = "0 30 18 * * MON-FRI"
	SignalAlertsSchedule  = "0 45 18 * * MON-FRI"
	BacktestDailySchedule = "0 0 19 * * MON-FRI"
	DQChecksSchedule      = "0 30 19 * * MON-FRI"
	HolidaySyncSchedule   = "0 0 6 * * MON"
)

// EODSignalsJob generates the conditional signals after the close
// ⭐ SSOT: eod_signals 스케줄은 이 Job에서만
type EODSignalsJob struct {
	pipeline *pipeline.SignalPipeline
	logger   *logger.Logger
}

// NewEODSignalsJob creates a new eod_signals job
func NewEODSignalsJob(p *pipeline.SignalPipeline, log *logger.Logger) *EODSignalsJob {
	return &EODSignalsJob{
		pipeline: p,
		logger:   log,
	}
}

// Name returns the job name
func (j *EODSignalsJob) Name() string {
	return pipeline.SignalJobName
}

// Schedule returns the cron schedule (18:30 on weekdays, after the 18:00 cutoff)
func (j *EODSignalsJob) Schedule() string {
	return EODSignalsSchedule
}

// Run executes the signal pipeline for yesterday's session
func (j *EODSignalsJob) Run(ctx context.Context) error {
	resp, err := j.pipeline.Run(ctx, pipeline.SignalRequest{Reason: "schedule", Mode: "cron"})
	if err != nil {
		return err
	}
	j.logger.WithFields(map[string]interface{}{
		"status":   resp.Status,
		"date_ref": resp.DateRef,
		"stored":   resp.Stored,
	}).Debug("Scheduled signal run finished")
	return nil
}

// SignalAlertsJob pushes the signals stored by eod_signals to Telegram
type SignalAlertsJob struct {
	alerts pipeline.AlertRunner
	loc    *time.Location
	now    func() time.Time
}

// NewSignalAlertsJob creates a new signal_alerts job
func NewSignalAlertsJob(alerts pipeline.AlertRunner, loc *time.Location) *SignalAlertsJob {
	return &SignalAlertsJob{
		alerts: alerts,
		loc:    loc,
		now:    time.Now,
	}
}

// Name returns the job name
func (j *SignalAlertsJob) Name() string {
	return "signal_alerts"
}

// Schedule returns the cron schedule (18:45 on weekdays)
func (j *SignalAlertsJob) Schedule() string {
	return SignalAlertsSchedule
}

// Run sends the summary for the date eod_signals defaults to (yesterday in market time)
func (j *SignalAlertsJob) Run(ctx context.Context) error {
	dateRef := contracts.Day(j.now().In(j.loc).AddDate(0, 0, -1))
	if _, err := j.alerts.Run(ctx, dateRef); err != nil {
		return fmt.Errorf("signal alerts: %w", err)
	}
	return nil
}
