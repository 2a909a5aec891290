package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/eodsignals/internal/backtest"
	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/internal/metrics"
	"github.com/wonny/eodsignals/pkg/config"
	"github.com/wonny/eodsignals/pkg/logger"
	"github.com/wonny/eodsignals/pkg/monitoring"
)

// BacktestJobName is the run-log job name of the backtest pipeline
const BacktestJobName = "backtest_daily"

// BacktestRequest triggers one backtest_daily run.
// A nil DateRef means today when it is a trading day, else the previous trading day.
type BacktestRequest struct {
	DateRef *time.Time `json:"date_ref,omitempty"`
}

// BacktestResponse is the outcome of one backtest_daily run
type BacktestResponse struct {
	Status           Status           `json:"status"`
	Reason           string           `json:"reason,omitempty"`
	Message          string           `json:"message,omitempty"`
	RunID            string           `json:"run_id"`
	DateRef          string           `json:"date_ref,omitempty"`
	ProcessedSignals int              `json:"processed_signals"`
	SkippedSignals   int              `json:"skipped_signals"`
	Trades           int              `json:"trades"`
	Metrics          int              `json:"metrics"`
	Summary          backtest.Summary `json:"summary"`
}

// BacktestPipeline simulates the stored signals of a date and refreshes the rolling metrics
// ⭐ SSOT: backtest_daily 실행 흐름은 여기서만
type BacktestPipeline struct {
	stores     Stores
	cfg        *config.Config
	engine     *backtest.Engine
	aggregator *metrics.Aggregator
	recorder   *monitoring.Recorder
	logger     *logger.Logger
	sink       logger.RunSink
	now        func() time.Time
}

// NewBacktestPipeline wires the backtest pipeline with the stop-first same-bar policy
func NewBacktestPipeline(stores Stores, cfg *config.Config, recorder *monitoring.Recorder, log *logger.Logger, sink logger.RunSink) *BacktestPipeline {
	return &BacktestPipeline{
		stores:     stores,
		cfg:        cfg,
		engine:     backtest.NewEngine(backtest.StopFirst, log),
		aggregator: metrics.NewAggregator(log.Zerolog()),
		recorder:   recorder,
		logger:     log,
		sink:       sink,
		now:        time.Now,
	}
}

// WithClock replaces the wall clock used for the default date
func (p *BacktestPipeline) WithClock(now func() time.Time) *BacktestPipeline {
	p.now = now
	return p
}

// WithPolicy replaces the same-bar policy
func (p *BacktestPipeline) WithPolicy(policy backtest.SameBarPolicy) *BacktestPipeline {
	p.engine = backtest.NewEngine(policy, p.logger)
	return p
}

// Run executes backtest_daily
func (p *BacktestPipeline) Run(ctx context.Context, req BacktestRequest) (BacktestResponse, error) {
	start := time.Now()
	run := logger.NewRunLogger(p.logger, BacktestJobName, p.sink)
	resp := BacktestResponse{RunID: run.RunID()}

	finish := func(status string) { p.recorder.RecordRun(BacktestJobName, status, time.Since(start)) }
	fail := func(err error, msg string) (BacktestResponse, error) {
		run.Exception(err, msg)
		finish("error")
		return resp, fmt.Errorf("%s: %w", msg, err)
	}

	cal, err := loadCalendar(ctx, p.stores.Holidays)
	if err != nil {
		return fail(err, "failed to load calendar")
	}

	var dateRef time.Time
	if req.DateRef != nil {
		dateRef = contracts.Day(*req.DateRef)
	} else {
		loc, err := p.cfg.Location()
		if err != nil {
			return fail(err, "invalid market timezone")
		}
		dateRef = contracts.Day(p.now().In(loc))
		if !cal.IsTradingDay(dateRef) {
			if dateRef, err = cal.Previous(dateRef); err != nil {
				return fail(err, "failed to resolve previous trading day")
			}
		}
	}
	resp.DateRef = fmtDay(dateRef)
	run.With("date_ref", resp.DateRef)
	run.Started("Backtest started")

	if !cal.IsTradingDay(dateRef) {
		resp.Status = StatusSkipped
		resp.Reason = ReasonNonTradingDay
		resp.Message = fmt.Sprintf("%s is not a trading day", resp.DateRef)
		run.Warn(resp.Message, map[string]interface{}{"reason": ReasonNonTradingDay})
		finish("skipped")
		return resp, nil
	}

	records, err := p.stores.Signals.GetSignalRecords(ctx, dateRef)
	if err != nil {
		return fail(err, "failed to fetch signals")
	}
	payloads, skipped, err := p.engine.ParsePayloads(records)
	resp.SkippedSignals = skipped
	if err != nil {
		return fail(err, "failed to parse signals")
	}
	if len(payloads) == 0 {
		resp.Status = StatusEmpty
		resp.Reason = ReasonMissingSignals
		resp.Message = fmt.Sprintf("no signals found for %s", resp.DateRef)
		run.Warn(resp.Message, map[string]interface{}{"reason": ReasonMissingSignals})
		finish("warn")
		return resp, nil
	}
	resp.ProcessedSignals = len(payloads)

	tickers, from, to := candleWindow(payloads)
	bars, err := p.stores.Candles.GetBarsRange(ctx, tickers, from, to)
	if err != nil {
		return fail(err, "failed to fetch candles")
	}

	trades, err := p.engine.RunParallel(ctx, payloads, backtest.BuildCandleLookup(bars), p.cfg.Pipeline.BacktestWorkers)
	if err != nil {
		return fail(err, "backtest failed")
	}
	resp.Summary = backtest.Summarize(trades, time.Since(start))

	createdAt := time.Now().UTC()
	if err := p.stores.Trades.ReplaceTrades(ctx, dateRef, trades, createdAt); err != nil {
		return fail(err, "failed to store trades")
	}
	resp.Trades = len(trades)
	for _, t := range trades {
		p.recorder.RecordTrade(string(t.ExitReason))
	}

	lookback := p.cfg.Pipeline.LookbackDays
	if lookback <= 0 {
		lookback = contracts.DefaultLookbackDays
	}
	history, err := p.stores.Trades.GetHistory(ctx, dateRef.AddDate(0, 0, -lookback), dateRef)
	if err != nil {
		return fail(err, "failed to fetch trade history")
	}
	rows := p.aggregator.Aggregate(history, dateRef)
	if err := p.stores.Metrics.ReplaceMetrics(ctx, dateRef, rows); err != nil {
		return fail(err, "failed to store metrics")
	}
	resp.Metrics = len(rows)
	resp.Status = StatusOK

	run.OK("Daily backtest updated", map[string]interface{}{
		"processed_signals": resp.ProcessedSignals,
		"trades":            resp.Trades,
		"metrics":           resp.Metrics,
		"history":           len(history),
	})
	finish("ok")
	return resp, nil
}

// candleWindow returns the distinct tickers and [min ValidFor, max ValidFor + 2×max horizon]
func candleWindow(payloads []contracts.SignalPayload) ([]string, time.Time, time.Time) {
	seen := make(map[string]struct{}, len(payloads))
	var tickers []string
	from, to := payloads[0].ValidFor, payloads[0].ValidFor
	maxHorizon := 0
	for _, s := range payloads {
		if _, ok := seen[s.Ticker]; !ok {
			seen[s.Ticker] = struct{}{}
			tickers = append(tickers, s.Ticker)
		}
		if s.ValidFor.Before(from) {
			from = s.ValidFor
		}
		if s.ValidFor.After(to) {
			to = s.ValidFor
		}
		if s.HorizonDays > maxHorizon {
			maxHorizon = s.HorizonDays
		}
	}
	return tickers, from, to.AddDate(0, 0, 2*maxHorizon)
}
