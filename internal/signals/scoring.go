package signals

import (
	"math"

	"github.com/wonny/eodsignals/internal/contracts"
)

// Scoring weights (score_v1)
const (
	weightBacktest  = 0.6
	weightLiquidity = 0.4

	weightWinRate      = 0.7
	weightProfitFactor = 0.3
	profitFactorCap    = 3.0

	neutralBacktest = 0.5

	liquidityFloorLog = 4.0 // 10^4
	liquiditySpanLog  = 6.0 // 10^4 .. 10^10

	rangeCeiling    = 0.12
	maxRangePenalty = 0.1
)

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// LiquidityComponent maps turnover onto [0,1] on a log scale
func LiquidityComponent(liquidity float64) float64 {
	if liquidity <= 0 || math.IsNaN(liquidity) || math.IsInf(liquidity, 0) {
		return 0
	}
	return clamp01((math.Log10(liquidity) - liquidityFloorLog) / liquiditySpanLog)
}

// BacktestComponent blends win rate and profit factor; neutral without history
func BacktestComponent(stats *HistoryStats) float64 {
	if stats == nil {
		return neutralBacktest
	}
	return weightWinRate*stats.WinRate + weightProfitFactor*math.Min(1, stats.ProfitFactor/profitFactorCap)
}

// VolatilityPenalty penalizes unusually wide daily ranges
func VolatilityPenalty(high, low, close float64) float64 {
	if close <= 0 {
		return 0
	}
	return math.Min(math.Max(high-low, 0)/close/rangeCeiling, 1) * maxRangePenalty
}

// Score is the score_v1 ranking value, always in [0,1]
func Score(bar contracts.DailyBar, stats *HistoryStats) float64 {
	raw := weightBacktest*BacktestComponent(stats) +
		weightLiquidity*LiquidityComponent(bar.Liquidity()) -
		VolatilityPenalty(bar.High, bar.Low, bar.Close)
	return clamp01(raw)
}

// HistoryStats is the part of a metrics row the score reads
type HistoryStats struct {
	WinRate      float64
	ProfitFactor float64
	HorizonDays  int
}

// History indexes a metrics snapshot by (ticker, side)
type History struct {
	horizon int
	rows    map[historyKey]HistoryStats
}

type historyKey struct {
	ticker string
	side   contracts.Side
}

// NewHistory keeps ticker_side rows only; win rate is clamped to [0,1] and
// profit factor floored at 0. When a key has several horizons the one equal to
// horizon wins, otherwise the first row seen is kept.
func NewHistory(rows []contracts.MetricRow, horizon int) *History {
	h := &History{horizon: horizon, rows: make(map[historyKey]HistoryStats)}
	for _, row := range rows {
		if row.Ticker == nil || row.Side == nil {
			continue
		}
		ticker := contracts.NormalizeTicker(*row.Ticker)
		if ticker == "" || !row.Side.Valid() {
			continue
		}

		pf := 0.0
		if row.ProfitFactor != nil && *row.ProfitFactor > 0 && !math.IsNaN(*row.ProfitFactor) {
			pf = *row.ProfitFactor
		}
		stats := HistoryStats{
			WinRate:      clamp01(row.WinRate),
			ProfitFactor: pf,
			HorizonDays:  row.HorizonDays,
		}

		key := historyKey{ticker: ticker, side: *row.Side}
		if prev, ok := h.rows[key]; ok && (prev.HorizonDays == horizon || stats.HorizonDays != horizon) {
			continue
		}
		h.rows[key] = stats
	}
	return h
}

// Lookup returns the stats for (ticker, side), or nil without history
func (h *History) Lookup(ticker string, side contracts.Side) *HistoryStats {
	if h == nil {
		return nil
	}
	stats, ok := h.rows[historyKey{ticker: ticker, side: side}]
	if !ok {
		return nil
	}
	return &stats
}

// Len is the number of indexed keys
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.rows)
}
