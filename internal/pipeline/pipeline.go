// Package pipeline runs the scheduled jobs that wire stores to the pure components:
// eod_signals (generator), backtest_daily (simulator + aggregator) and the daily chain.
package pipeline

import (
	"context"
	"time"

	"github.com/wonny/eodsignals/internal/calendar"
	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/internal/strategyconfig"
)

// Status is the outcome of one pipeline run
type Status string

const (
	StatusOK       Status = "ok"
	StatusSkipped  Status = "skipped"
	StatusEmpty    Status = "empty"
	StatusFiltered Status = "filtered"
)

// Skip and empty reasons
const (
	ReasonBeforeCutoff   = "before_cutoff"
	ReasonNonTradingDay  = "non_trading_day"
	ReasonEmptyFrame     = "empty_daily_frame"
	ReasonVolume         = "volume"
	ReasonMissingSignals = "missing_signals"
)

// Stores groups the persistence the pipelines read and write.
// Strategies may be nil; env defaults are used then.
type Stores struct {
	Candles    contracts.CandleStore
	Signals    contracts.SignalStore
	Trades     contracts.TradeStore
	Metrics    contracts.MetricStore
	Holidays   contracts.HolidayStore
	Strategies strategyconfig.Store
}

// loadCalendar reads every stored holiday; the calendar is rebuilt per run so
// `calendar add` / `calendar sync` take effect without a restart.
func loadCalendar(ctx context.Context, holidays contracts.HolidayStore) (*calendar.Calendar, error) {
	return calendar.Load(ctx, holidays, time.Time{}, time.Time{})
}

func fmtDay(t time.Time) string {
	return t.Format(contracts.DateLayout)
}
