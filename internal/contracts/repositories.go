package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: Repository 인터페이스 정의는 여기서만
// Every write is a delete-then-insert of one date partition inside a single transaction.

// CandleStore is the read-only daily bar source
type CandleStore interface {
	GetDailyBars(ctx context.Context, date time.Time) ([]DailyBar, error)
	GetBarsRange(ctx context.Context, tickers []string, from, to time.Time) ([]DailyBar, error)
}

// CandleAuditor exposes the counts the data-quality checks need
type CandleAuditor interface {
	CountTickers(ctx context.Context, date time.Time) (int, error)
	CountDuplicates(ctx context.Context, date time.Time) (int, error)
	CountInvalidOHLC(ctx context.Context, date time.Time) (invalidHigh, invalidLow int, err error)
	CountActiveTickers(ctx context.Context) (int, error)
}

// SignalStore persists generated signals per date_ref
type SignalStore interface {
	ReplaceSignals(ctx context.Context, dateRef time.Time, signals []ConditionalSignal, meta RunMetadata) error
	GetSignals(ctx context.Context, dateRef time.Time) ([]ConditionalSignal, error)
	GetSignalRecords(ctx context.Context, dateRef time.Time) ([]Record, error)
}

// SignalAuditor exposes signal sanity counts for data-quality checks
type SignalAuditor interface {
	CountSignalIssues(ctx context.Context, dateRef time.Time) (SignalIssues, error)
}

// SignalIssues counts stored signals whose levels contradict their side
type SignalIssues struct {
	Total           int `json:"total"`
	InvalidSide     int `json:"invalid_side"`
	InvalidBuy      int `json:"invalid_buy"`
	InvalidBuyStop  int `json:"invalid_buy_stop"`
	InvalidSell     int `json:"invalid_sell"`
	InvalidSellStop int `json:"invalid_sell_stop"`
}

// Levels is the number of rows with inconsistent entry/target/stop or side
func (s SignalIssues) Levels() int {
	return s.InvalidSide + s.InvalidBuy + s.InvalidBuyStop + s.InvalidSell + s.InvalidSellStop
}

// TradeStore persists simulated trades per date_ref
type TradeStore interface {
	ReplaceTrades(ctx context.Context, dateRef time.Time, trades []BacktestTrade, createdAt time.Time) error
	GetTrades(ctx context.Context, dateRef time.Time) ([]BacktestTrade, error)
	GetHistory(ctx context.Context, from, to time.Time) ([]BacktestTrade, error)
}

// MetricStore persists aggregated metrics per as_of_date
type MetricStore interface {
	ReplaceMetrics(ctx context.Context, asOf time.Time, rows []MetricRow) error
	LatestSnapshot(ctx context.Context) ([]MetricRow, error)
	CountMetrics(ctx context.Context, asOf time.Time) (int, error)
}

// HolidayStore holds exchange holidays
type HolidayStore interface {
	ListHolidays(ctx context.Context, from, to time.Time) ([]Holiday, error)
	UpsertHolidays(ctx context.Context, holidays []Holiday) error
}

// Holiday is one exchange closure
type Holiday struct {
	Date time.Time `json:"date"`
	Name string    `json:"name"`
}

// QualityStore persists data-quality check results
type QualityStore interface {
	SaveChecks(ctx context.Context, checkDate time.Time, runID string, results []CheckResult) error
}
