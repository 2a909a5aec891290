package contracts

import "time"

// DefaultLookbackDays is the trade history window rolled into backtest_metrics
const DefaultLookbackDays = 60

// ComboClass identifies which grouping produced a MetricRow
type ComboClass string

const (
	ComboGlobal     ComboClass = "global"
	ComboSide       ComboClass = "side"
	ComboTicker     ComboClass = "ticker"
	ComboTickerSide ComboClass = "ticker_side"
)

// MetricRow is rolling performance for one (ticker?, side?, horizon, as-of) key.
// A nil Ticker means all tickers, a nil Side means all sides.
type MetricRow struct {
	AsOfDate       time.Time  `json:"as_of_date"`
	Combo          ComboClass `json:"combo"`
	Ticker         *string    `json:"ticker"`
	Side           *Side      `json:"side"`
	HorizonDays    int        `json:"horizon_days"`
	Signals        int        `json:"signals"`
	Fills          int        `json:"fills"`
	WinRate        float64    `json:"win_rate"`
	AvgReturn      *float64   `json:"avg_return"`
	AvgWin         *float64   `json:"avg_win"`
	AvgLoss        *float64   `json:"avg_loss"`
	ProfitFactor   *float64   `json:"profit_factor"`
	AvgDaysInTrade *float64   `json:"avg_days_in_trade"`
}

// Key returns (ticker, side) with "" for the wildcard parts
func (m MetricRow) Key() (string, Side) {
	var ticker string
	var side Side
	if m.Ticker != nil {
		ticker = *m.Ticker
	}
	if m.Side != nil {
		side = *m.Side
	}
	return ticker, side
}
