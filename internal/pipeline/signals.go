package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/internal/signals"
	"github.com/wonny/eodsignals/internal/strategyconfig"
	"github.com/wonny/eodsignals/pkg/config"
	"github.com/wonny/eodsignals/pkg/logger"
	"github.com/wonny/eodsignals/pkg/monitoring"
)

// SignalJobName is the run-log job name of the signal pipeline
const SignalJobName = "eod_signals"

// SignalRequest triggers one eod_signals run. A nil DateRef means yesterday in market time.
type SignalRequest struct {
	DateRef *time.Time `json:"date_ref,omitempty"`
	Force   bool       `json:"force"`
	Reason  string     `json:"reason,omitempty"`
	Mode    string     `json:"mode,omitempty"`
}

// SignalResponse is the outcome of one eod_signals run
type SignalResponse struct {
	Status        Status                        `json:"status"`
	Reason        string                        `json:"reason,omitempty"`
	Message       string                        `json:"message,omitempty"`
	RunID         string                        `json:"run_id"`
	DateRef       string                        `json:"date_ref,omitempty"`
	ValidFor      string                        `json:"valid_for,omitempty"`
	Requested     int                           `json:"requested"`
	Generated     int                           `json:"generated"`
	Stored        int                           `json:"stored"`
	MaxSignals    int                           `json:"max_signals,omitempty"`
	ConfigVersion string                        `json:"config_version,omitempty"`
	RequestReason string                        `json:"request_reason,omitempty"`
	Mode          string                        `json:"mode,omitempty"`
	Force         bool                          `json:"force"`
	Signals       []contracts.ConditionalSignal `json:"signals,omitempty"`
}

// SignalPipeline generates and persists the conditional signals of one session
// ⭐ SSOT: eod_signals 실행 흐름은 여기서만
type SignalPipeline struct {
	stores   Stores
	cfg      *config.Config
	recorder *monitoring.Recorder
	logger   *logger.Logger
	sink     logger.RunSink
	now      func() time.Time
}

// NewSignalPipeline wires the signal pipeline; sink may be nil
func NewSignalPipeline(stores Stores, cfg *config.Config, recorder *monitoring.Recorder, log *logger.Logger, sink logger.RunSink) *SignalPipeline {
	return &SignalPipeline{
		stores:   stores,
		cfg:      cfg,
		recorder: recorder,
		logger:   log,
		sink:     sink,
		now:      time.Now,
	}
}

// WithClock replaces the wall clock used for the cutoff and the default date
func (p *SignalPipeline) WithClock(now func() time.Time) *SignalPipeline {
	p.now = now
	return p
}

// Run executes eod_signals. Skips and empty inputs are reported in the response, not as errors.
func (p *SignalPipeline) Run(ctx context.Context, req SignalRequest) (SignalResponse, error) {
	start := time.Now()
	run := logger.NewRunLogger(p.logger, SignalJobName, p.sink)
	run.With("reason", req.Reason).With("mode", req.Mode).With("force", req.Force)

	resp := SignalResponse{
		RunID:         run.RunID(),
		RequestReason: req.Reason,
		Mode:          req.Mode,
		Force:         req.Force,
	}
	finish := func(status string) { p.recorder.RecordRun(SignalJobName, status, time.Since(start)) }
	fail := func(err error, msg string) (SignalResponse, error) {
		run.Exception(err, msg)
		finish("error")
		return resp, fmt.Errorf("%s: %w", msg, err)
	}

	loc, err := p.cfg.Location()
	if err != nil {
		return fail(err, "invalid market timezone")
	}
	now := p.now().In(loc)

	before, err := p.beforeCutoff(now)
	if err != nil {
		return fail(err, "invalid signal cutoff")
	}
	if before && !req.Force && !p.cfg.Signal.AllowEarly {
		resp.Status = StatusSkipped
		resp.Reason = ReasonBeforeCutoff
		resp.Message = fmt.Sprintf("signals are generated after %s %s", p.cfg.Pipeline.SignalCutoff, loc)
		run.Warn(resp.Message, map[string]interface{}{"reason": ReasonBeforeCutoff})
		finish("skipped")
		return resp, nil
	}

	dateRef := contracts.Day(now.AddDate(0, 0, -1))
	if req.DateRef != nil {
		dateRef = contracts.Day(*req.DateRef)
	}
	resp.DateRef = fmtDay(dateRef)
	run.With("date_ref", resp.DateRef)

	cal, err := loadCalendar(ctx, p.stores.Holidays)
	if err != nil {
		return fail(err, "failed to load calendar")
	}
	if !cal.IsTradingDay(dateRef) {
		resp.Status = StatusSkipped
		resp.Reason = ReasonNonTradingDay
		resp.Message = fmt.Sprintf("%s is not a trading day", resp.DateRef)
		run.Warn(resp.Message, map[string]interface{}{"reason": ReasonNonTradingDay})
		finish("skipped")
		return resp, nil
	}

	strategy, err := strategyconfig.Resolve(ctx, p.cfg.Signal.StrategyFile, p.stores.Strategies, strategyconfig.Defaults(p.cfg.Signal), p.logger)
	if err != nil {
		return fail(err, "failed to resolve strategy config")
	}
	resp.MaxSignals = strategy.MaxSignals
	resp.ConfigVersion = strategy.Version
	run.With("model_version", strategy.ModelVersion).
		With("ranking_key", strategy.RankingKey).
		With("config_version", strategy.Version)

	validFor, err := cal.Next(dateRef)
	if err != nil {
		return fail(err, "failed to resolve valid_for")
	}
	resp.ValidFor = fmtDay(validFor)
	run.With("valid_for", resp.ValidFor)
	run.Started("Generating signals")

	bars, err := p.stores.Candles.GetDailyBars(ctx, dateRef)
	if err != nil {
		return fail(err, "failed to fetch daily bars")
	}
	resp.Requested = len(bars)
	if len(bars) == 0 {
		resp.Status = StatusEmpty
		resp.Reason = ReasonEmptyFrame
		resp.Message = fmt.Sprintf("no daily bars for %s", resp.DateRef)
		run.Warn(resp.Message, map[string]interface{}{"reason": ReasonEmptyFrame})
		finish("warn")
		return resp, nil
	}

	if minVolume := p.cfg.Signal.MinVolume; minVolume > 0 {
		bars = filterTurnover(bars, minVolume)
		if len(bars) == 0 {
			resp.Status = StatusFiltered
			resp.Reason = ReasonVolume
			resp.Message = fmt.Sprintf("no ticker above min volume %.0f", minVolume)
			run.Warn(resp.Message, map[string]interface{}{
				"reason":     "volume_filter",
				"requested":  resp.Requested,
				"min_volume": minVolume,
			})
			finish("warn")
			return resp, nil
		}
	}

	snapshot, err := p.stores.Metrics.LatestSnapshot(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to load backtest metrics, ranking without history")
		snapshot = nil
	}

	result, err := signals.NewGenerator(cal, p.logger).Generate(dateRef, bars, strategy.SignalConfig(), snapshot)
	if err != nil {
		return fail(err, "signal generation failed")
	}
	resp.Generated = len(result.Signals)

	meta := contracts.RunMetadata{
		JobRunID:       run.RunID(),
		ConfigVersion:  strategy.Version,
		CodeVersion:    p.cfg.Pipeline.CodeVersion,
		SourceSnapshot: result.SourceSnapshot,
		CreatedAt:      time.Now().UTC(),
	}
	if err := p.stores.Signals.ReplaceSignals(ctx, dateRef, result.Signals, meta); err != nil {
		return fail(err, "failed to store signals")
	}
	resp.Stored = len(result.Signals)
	resp.Signals = result.Signals
	resp.Status = StatusOK
	p.recorder.RecordSignals(resp.Stored)

	fields := map[string]interface{}{
		"requested": resp.Requested,
		"generated": resp.Generated,
		"stored":    resp.Stored,
	}
	if resp.Stored > 0 {
		run.OK("Signals stored", fields)
		finish("ok")
	} else {
		run.Warn("No signals generated", fields)
		finish("warn")
	}
	return resp, nil
}

func (p *SignalPipeline) beforeCutoff(now time.Time) (bool, error) {
	hour, minute, err := p.cfg.Cutoff()
	if err != nil {
		return false, err
	}
	return now.Hour()*60+now.Minute() < hour*60+minute, nil
}

// filterTurnover keeps bars whose turnover reaches minVolume
func filterTurnover(bars []contracts.DailyBar, minVolume float64) []contracts.DailyBar {
	kept := make([]contracts.DailyBar, 0, len(bars))
	for _, b := range bars {
		if b.Turnover >= minVolume {
			kept = append(kept, b)
		}
	}
	return kept
}
