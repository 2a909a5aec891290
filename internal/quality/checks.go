package quality

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wonny/eodsignals/internal/calendar"
	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/logger"
	"github.com/wonny/eodsignals/pkg/monitoring"
)

// JobName is the run-log job name of the data-quality pipeline
const JobName = "dq_checks"

// Config holds the check thresholds
type Config struct {
	DailyCoverage   float64
	MaxSignals      int
	ExpectedTickers int // 0 = count active tickers
}

// Report is the outcome of one dq_checks run
type Report struct {
	DateRef    time.Time               `json:"date_ref"`
	RunID      string                  `json:"run_id"`
	TradingDay bool                    `json:"trading_day"`
	Checks     int                     `json:"checks"`
	Failures   int                     `json:"failures"`
	Results    []contracts.CheckResult `json:"results"`
}

// Checker runs the daily data-quality checks
// ⭐ SSOT: 데이터 품질 검사는 여기서만
type Checker struct {
	candles  contracts.CandleAuditor
	signals  contracts.SignalAuditor
	metrics  contracts.MetricStore
	store    contracts.QualityStore
	cal      *calendar.Calendar
	cfg      Config
	recorder *monitoring.Recorder
	logger   *logger.Logger
	sink     logger.RunSink
}

// NewChecker wires a checker; store may be nil to skip persistence
func NewChecker(
	candles contracts.CandleAuditor,
	signals contracts.SignalAuditor,
	metrics contracts.MetricStore,
	store contracts.QualityStore,
	cal *calendar.Calendar,
	cfg Config,
	recorder *monitoring.Recorder,
	log *logger.Logger,
	sink logger.RunSink,
) *Checker {
	return &Checker{
		candles:  candles,
		signals:  signals,
		metrics:  metrics,
		store:    store,
		cal:      cal,
		cfg:      cfg,
		recorder: recorder,
		logger:   log,
		sink:     sink,
	}
}

type checkFunc func(ctx context.Context, date time.Time, tradingDay bool) (contracts.CheckResult, error)

// Run evaluates every check for date. A check that errors is recorded as FAIL.
func (c *Checker) Run(ctx context.Context, date time.Time) (Report, error) {
	start := time.Now()
	date = contracts.Day(date)
	run := logger.NewRunLogger(c.logger, JobName, c.sink).With("date_ref", date.Format(contracts.DateLayout))
	run.Started("Data quality checks started")

	tradingDay := c.cal.IsTradingDay(date)
	checks := []struct {
		name string
		fn   checkFunc
	}{
		{"daily_freshness", c.dailyFreshness},
		{"daily_uniqueness", c.dailyUniqueness},
		{"ohlc_validity", c.ohlcValidity},
		{"signals_limits", c.signalsLimits},
		{"backtest_metrics", c.backtestMetrics},
	}

	report := Report{DateRef: date, RunID: run.RunID(), TradingDay: tradingDay}
	for _, check := range checks {
		result, err := check.fn(ctx, date, tradingDay)
		if err != nil {
			c.logger.WithError(err).WithField("check", check.name).Warn("Check failed to execute")
			result = newResult(check.name, contracts.CheckFail, map[string]interface{}{"error": err.Error()})
		}
		c.recorder.RecordCheck(result.Name, string(result.Status))
		if result.Status == contracts.CheckFail {
			report.Failures++
		}
		report.Results = append(report.Results, result)
	}
	report.Checks = len(report.Results)

	if c.store != nil {
		if err := c.store.SaveChecks(ctx, date, run.RunID(), report.Results); err != nil {
			run.Exception(err, "Failed to persist data quality results")
			c.recorder.RecordRun(JobName, "error", time.Since(start))
			return report, fmt.Errorf("failed to save dq checks: %w", err)
		}
	}

	fields := map[string]interface{}{"total": report.Checks, "failures": report.Failures}
	if report.Failures > 0 {
		run.Warn("Checks completed with failures", fields)
		c.recorder.RecordRun(JobName, "warn", time.Since(start))
	} else {
		run.OK("Checks completed", fields)
		c.recorder.RecordRun(JobName, "ok", time.Since(start))
	}
	return report, nil
}

func newResult(name string, status contracts.CheckStatus, details map[string]interface{}) contracts.CheckResult {
	return contracts.CheckResult{
		Name:     name,
		Status:   status,
		Severity: status.Severity(),
		Details:  details,
	}
}

// CoverageStatus is PASS when available/expected reaches threshold; expected 0 is WARN
func CoverageStatus(available, expected int, threshold float64) (contracts.CheckStatus, float64) {
	if expected <= 0 {
		return contracts.CheckWarn, 0
	}
	coverage := float64(available) / float64(expected)
	if coverage >= threshold {
		return contracts.CheckPass, coverage
	}
	return contracts.CheckFail, coverage
}

func (c *Checker) dailyFreshness(ctx context.Context, date time.Time, _ bool) (contracts.CheckResult, error) {
	expected := c.cfg.ExpectedTickers
	if expected <= 0 {
		n, err := c.candles.CountActiveTickers(ctx)
		if err != nil {
			return contracts.CheckResult{}, err
		}
		expected = n
	}
	available, err := c.candles.CountTickers(ctx, date)
	if err != nil {
		return contracts.CheckResult{}, err
	}

	status, coverage := CoverageStatus(available, expected, c.cfg.DailyCoverage)
	details := map[string]interface{}{
		"expected_tickers":  expected,
		"available_tickers": available,
		"coverage_pct":      math.Round(coverage*10000) / 10000,
		"threshold":         c.cfg.DailyCoverage,
	}
	if expected == 0 {
		details["warning"] = "ticker universe is empty"
	}
	return newResult("daily_freshness", status, details), nil
}

func (c *Checker) dailyUniqueness(ctx context.Context, date time.Time, _ bool) (contracts.CheckResult, error) {
	duplicates, err := c.candles.CountDuplicates(ctx, date)
	if err != nil {
		return contracts.CheckResult{}, err
	}
	status := contracts.CheckPass
	if duplicates > 0 {
		status = contracts.CheckFail
	}
	return newResult("daily_uniqueness", status, map[string]interface{}{"duplicates": duplicates}), nil
}

func (c *Checker) ohlcValidity(ctx context.Context, date time.Time, _ bool) (contracts.CheckResult, error) {
	invalidHigh, invalidLow, err := c.candles.CountInvalidOHLC(ctx, date)
	if err != nil {
		return contracts.CheckResult{}, err
	}
	status := contracts.CheckPass
	if invalidHigh+invalidLow > 0 {
		status = contracts.CheckFail
	}
	return newResult("ohlc_validity", status, map[string]interface{}{
		"invalid_high": invalidHigh,
		"invalid_low":  invalidLow,
	}), nil
}

func (c *Checker) signalsLimits(ctx context.Context, date time.Time, tradingDay bool) (contracts.CheckResult, error) {
	if !tradingDay {
		return newResult("signals_limits", contracts.CheckWarn, map[string]interface{}{"reason": "non_trading_day"}), nil
	}

	issues, err := c.signals.CountSignalIssues(ctx, date)
	if err != nil {
		return contracts.CheckResult{}, err
	}

	status := contracts.CheckPass
	if issues.Total == 0 || issues.Total > c.cfg.MaxSignals || issues.Levels() > 0 {
		status = contracts.CheckFail
	}
	return newResult("signals_limits", status, map[string]interface{}{
		"total":          issues.Total,
		"limit":          c.cfg.MaxSignals,
		"invalid_side":   issues.InvalidSide,
		"invalid_levels": issues.Levels(),
	}), nil
}

func (c *Checker) backtestMetrics(ctx context.Context, date time.Time, tradingDay bool) (contracts.CheckResult, error) {
	if !tradingDay {
		return newResult("backtest_metrics", contracts.CheckWarn, map[string]interface{}{"reason": "non_trading_day"}), nil
	}

	rows, err := c.metrics.CountMetrics(ctx, date)
	if err != nil {
		return contracts.CheckResult{}, err
	}
	status := contracts.CheckFail
	if rows > 0 {
		status = contracts.CheckPass
	}
	return newResult("backtest_metrics", status, map[string]interface{}{"rows": rows}), nil
}
