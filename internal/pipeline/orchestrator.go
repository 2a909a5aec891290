package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/internal/notify"
	"github.com/wonny/eodsignals/internal/quality"
	"github.com/wonny/eodsignals/pkg/logger"
)

// AlertRunner sends the signal summary of a date
type AlertRunner interface {
	Run(ctx context.Context, dateRef time.Time) (notify.AlertResult, error)
}

// QualityRunner runs the data-quality checks of a date
type QualityRunner interface {
	Run(ctx context.Context, date time.Time) (quality.Report, error)
}

// Stage names in execution order
const (
	StageSignals  = "eod_signals"
	StageBacktest = "backtest_daily"
	StageQuality  = "dq_checks"
	StageAlerts   = "signal_alerts"
)

// DailyRequest configures one chained run
type DailyRequest struct {
	DateRef *time.Time `json:"date_ref,omitempty"`
	Force   bool       `json:"force"`
	Reason  string     `json:"reason,omitempty"`
}

// DailyResult holds the outcome of every stage that ran
type DailyResult struct {
	Success         bool                `json:"success"`
	Error           string              `json:"error,omitempty"`
	CompletedStages []string            `json:"completed_stages"`
	Signals         *SignalResponse     `json:"signals,omitempty"`
	Alerts          *notify.AlertResult `json:"alerts,omitempty"`
	Backtest        *BacktestResponse   `json:"backtest,omitempty"`
	Quality         *quality.Report     `json:"quality,omitempty"`
	Duration        time.Duration       `json:"duration"`
}

// Orchestrator chains the daily jobs the scheduler otherwise runs one by one.
// Alerts and quality are optional.
// ⭐ SSOT: 일일 파이프라인 조율은 여기서만
type Orchestrator struct {
	signals  *SignalPipeline
	backtest *BacktestPipeline
	alerts   AlertRunner
	quality  QualityRunner
	logger   *logger.Logger
}

// NewOrchestrator creates a new orchestrator; alerts and dq may be nil
func NewOrchestrator(signals *SignalPipeline, backtest *BacktestPipeline, alerts AlertRunner, dq QualityRunner, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		signals:  signals,
		backtest: backtest,
		alerts:   alerts,
		quality:  dq,
		logger:   log,
	}
}

// Run executes eod_signals → backtest_daily → dq_checks → signal_alerts.
// The backtest runs on the signal date, so the chain replays one session end to end.
// A stage error stops the chain; skipped signals stop it without error.
func (o *Orchestrator) Run(ctx context.Context, req DailyRequest) (*DailyResult, error) {
	start := time.Now()
	result := &DailyResult{CompletedStages: make([]string, 0, 4)}
	done := func(err error) (*DailyResult, error) {
		result.Duration = time.Since(start)
		if err != nil {
			result.Error = err.Error()
			o.logger.WithError(err).WithField("completed", result.CompletedStages).Error("Daily pipeline failed")
			return result, err
		}
		result.Success = true
		o.logger.WithFields(map[string]interface{}{
			"completed": result.CompletedStages,
			"duration":  result.Duration,
		}).Info("Daily pipeline completed")
		return result, nil
	}

	sig, err := o.signals.Run(ctx, SignalRequest{DateRef: req.DateRef, Force: req.Force, Reason: req.Reason, Mode: "daily"})
	result.Signals = &sig
	if err != nil {
		return done(fmt.Errorf("%s: %w", StageSignals, err))
	}
	result.CompletedStages = append(result.CompletedStages, StageSignals)
	if sig.Status == StatusSkipped {
		return done(nil)
	}

	dateRef, err := contracts.ParseDay(sig.DateRef)
	if err != nil {
		return done(fmt.Errorf("%s: %w", StageSignals, err))
	}

	bt, err := o.backtest.Run(ctx, BacktestRequest{DateRef: &dateRef})
	result.Backtest = &bt
	if err != nil {
		return done(fmt.Errorf("%s: %w", StageBacktest, err))
	}
	result.CompletedStages = append(result.CompletedStages, StageBacktest)

	if o.quality != nil {
		report, err := o.quality.Run(ctx, dateRef)
		result.Quality = &report
		if err != nil {
			return done(fmt.Errorf("%s: %w", StageQuality, err))
		}
		result.CompletedStages = append(result.CompletedStages, StageQuality)
	}

	if o.alerts != nil {
		alert, err := o.alerts.Run(ctx, dateRef)
		result.Alerts = &alert
		if err != nil {
			return done(fmt.Errorf("%s: %w", StageAlerts, err))
		}
		result.CompletedStages = append(result.CompletedStages, StageAlerts)
	}

	return done(nil)
}
