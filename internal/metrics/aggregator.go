package metrics

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/eodsignals/internal/contracts"
)

// Aggregator rolls backtest trades up into performance rows
// ⭐ SSOT: backtest_metrics 집계는 여기서만
type Aggregator struct {
	log zerolog.Logger
}

// NewAggregator creates an aggregator
func NewAggregator(log zerolog.Logger) *Aggregator {
	return &Aggregator{
		log: log.With().Str("component", "metrics.aggregator").Logger(),
	}
}

// Aggregate groups trades by horizon (ascending) and emits, per horizon,
// the global row, one row per side, per ticker and per ticker×side.
// Empty combos are skipped.
func (a *Aggregator) Aggregate(trades []contracts.BacktestTrade, asOf time.Time) []contracts.MetricRow {
	asOf = contracts.Day(asOf)
	if len(trades) == 0 {
		return []contracts.MetricRow{}
	}

	byHorizon := groupByKey(trades, func(t contracts.BacktestTrade) int { return t.HorizonDays })
	horizons := sortedKeys(byHorizon, func(a, b int) bool { return a < b })

	var rows []contracts.MetricRow
	for _, h := range horizons {
		rows = append(rows, a.aggregateHorizon(byHorizon[h], h, asOf)...)
	}

	a.log.Info().
		Int("trades", len(trades)).
		Int("horizons", len(horizons)).
		Int("rows", len(rows)).
		Str("as_of_date", asOf.Format(contracts.DateLayout)).
		Msg("aggregation completed")

	return rows
}

func (a *Aggregator) aggregateHorizon(trades []contracts.BacktestTrade, horizon int, asOf time.Time) []contracts.MetricRow {
	for i := range trades {
		trades[i].Ticker = contracts.NormalizeTicker(trades[i].Ticker)
	}

	bySide := groupByKey(trades, func(t contracts.BacktestTrade) contracts.Side { return t.Side })
	byTicker := groupByKey(trades, func(t contracts.BacktestTrade) string { return t.Ticker })
	sides := sortedKeys(bySide, func(a, b contracts.Side) bool { return a < b })
	tickers := sortedKeys(byTicker, func(a, b string) bool { return a < b })

	rows := make([]contracts.MetricRow, 0, 1+len(sides)+len(tickers)*(1+len(sides)))

	// 1. global
	rows = append(rows, buildRow(trades, contracts.ComboGlobal, nil, nil, horizon, asOf))

	// 2. side
	for _, side := range sides {
		side := side
		rows = append(rows, buildRow(bySide[side], contracts.ComboSide, nil, &side, horizon, asOf))
	}

	// 3. ticker
	for _, ticker := range tickers {
		ticker := ticker
		rows = append(rows, buildRow(byTicker[ticker], contracts.ComboTicker, &ticker, nil, horizon, asOf))
	}

	// 4. ticker × side
	for _, ticker := range tickers {
		perSide := groupByKey(byTicker[ticker], func(t contracts.BacktestTrade) contracts.Side { return t.Side })
		for _, side := range sides {
			subset, ok := perSide[side]
			if !ok {
				continue
			}
			ticker, side := ticker, side
			rows = append(rows, buildRow(subset, contracts.ComboTickerSide, &ticker, &side, horizon, asOf))
		}
	}

	return rows
}

func buildRow(trades []contracts.BacktestTrade, combo contracts.ComboClass, ticker *string, side *contracts.Side, horizon int, asOf time.Time) contracts.MetricRow {
	row := contracts.MetricRow{
		AsOfDate:    asOf,
		Combo:       combo,
		Ticker:      ticker,
		Side:        side,
		HorizonDays: horizon,
		Signals:     len(trades),
	}

	var filled, wins, losses, days []float64
	for _, t := range trades {
		if !t.EntryHit {
			continue
		}
		filled = append(filled, t.ReturnPct)
		switch {
		case t.ReturnPct > 0:
			wins = append(wins, t.ReturnPct)
		case t.ReturnPct < 0:
			losses = append(losses, t.ReturnPct)
		}
		if n, ok := t.DaysInTrade(); ok {
			days = append(days, float64(n))
		}
	}

	row.Fills = len(filled)
	if row.Fills > 0 {
		row.WinRate = float64(len(wins)) / float64(row.Fills)
	}
	row.AvgReturn = mean(filled)
	row.AvgWin = mean(wins)
	row.AvgLoss = mean(losses)
	row.AvgDaysInTrade = mean(days)

	if sumLosses := sum(losses); sumLosses < 0 {
		pf := sum(wins) / -sumLosses
		row.ProfitFactor = &pf
	}

	return row
}

func mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	m := sum(values) / float64(len(values))
	return &m
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

// groupByKey 키 함수로 그룹화 (입력 순서 유지)
func groupByKey[K comparable](trades []contracts.BacktestTrade, keyFn func(contracts.BacktestTrade) K) map[K][]contracts.BacktestTrade {
	groups := make(map[K][]contracts.BacktestTrade)
	for _, t := range trades {
		k := keyFn(t)
		groups[k] = append(groups[k], t)
	}
	return groups
}

func sortedKeys[K comparable, V any](m map[K]V, less func(a, b K) bool) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return keys
}
