package metrics

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/eodsignals/internal/contracts"
)

var asOf = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func filledTrade(ticker string, side contracts.Side, horizon int, ret float64, fill, exit string) contracts.BacktestTrade {
	f, _ := contracts.ParseDay(fill)
	e, _ := contracts.ParseDay(exit)
	return contracts.BacktestTrade{
		SignalPayload: contracts.SignalPayload{Ticker: ticker, Side: side, HorizonDays: horizon},
		EntryHit:      true,
		EntryFillDate: &f,
		ExitDate:      &e,
		ExitReason:    contracts.ExitExpire,
		ReturnPct:     ret,
	}
}

func unfilled(ticker string, side contracts.Side, horizon int) contracts.BacktestTrade {
	return contracts.BacktestTrade{
		SignalPayload: contracts.SignalPayload{Ticker: ticker, Side: side, HorizonDays: horizon},
		ExitReason:    contracts.ExitNoFill,
	}
}

func describe(row contracts.MetricRow) string {
	ticker, side := row.Key()
	return string(row.Combo) + ":" + ticker + ":" + string(side)
}

func TestAggregate_TwoTrades(t *testing.T) {
	trades := []contracts.BacktestTrade{
		filledTrade("AAA", contracts.SideBuy, 10, 0.05, "2024-01-03", "2024-01-05"),
		filledTrade("BBB", contracts.SideSell, 10, -0.02, "2024-01-03", "2024-01-03"),
	}

	rows := NewAggregator(zerolog.Nop()).Aggregate(trades, asOf)

	var keys []string
	for _, r := range rows {
		keys = append(keys, describe(r))
		assert.Equal(t, asOf, r.AsOfDate)
		assert.Equal(t, 10, r.HorizonDays)
	}
	assert.Equal(t, []string{
		"global::",
		"side::BUY",
		"side::SELL",
		"ticker:AAA:",
		"ticker:BBB:",
		"ticker_side:AAA:BUY",
		"ticker_side:BBB:SELL",
	}, keys)

	global := rows[0]
	assert.Equal(t, 2, global.Signals)
	assert.Equal(t, 2, global.Fills)
	assert.Equal(t, 0.5, global.WinRate)
	assert.InDelta(t, 0.015, *global.AvgReturn, 1e-12)
	assert.InDelta(t, 0.05, *global.AvgWin, 1e-12)
	assert.InDelta(t, -0.02, *global.AvgLoss, 1e-12)
	assert.InDelta(t, 2.5, *global.ProfitFactor, 1e-12)
	assert.InDelta(t, 2.0, *global.AvgDaysInTrade, 1e-12) // (3 + 1) / 2

	aaa := rows[5]
	assert.Equal(t, 1.0, aaa.WinRate)
	assert.Nil(t, aaa.ProfitFactor, "no losses means no profit factor")
	assert.Nil(t, aaa.AvgLoss)
}

func TestAggregate_HorizonsAndUnfilled(t *testing.T) {
	trades := []contracts.BacktestTrade{
		unfilled("ccc", contracts.SideBuy, 20),
		filledTrade("AAA", contracts.SideBuy, 5, 0.01, "2024-01-03", "2024-01-04"),
		unfilled("AAA", contracts.SideBuy, 5),
	}

	rows := NewAggregator(zerolog.Nop()).Aggregate(trades, asOf)
	require.NotEmpty(t, rows)

	assert.Equal(t, 5, rows[0].HorizonDays)
	assert.Equal(t, contracts.ComboGlobal, rows[0].Combo)
	assert.Equal(t, 2, rows[0].Signals)
	assert.Equal(t, 1, rows[0].Fills)

	last := rows[len(rows)-1]
	assert.Equal(t, 20, last.HorizonDays)
	assert.Equal(t, "CCC", *last.Ticker)
	assert.Equal(t, 0, last.Fills)
	assert.Equal(t, 0.0, last.WinRate)
	assert.Nil(t, last.AvgReturn)
	assert.Nil(t, last.AvgDaysInTrade)

	// 4 rows per horizon: global, side, ticker, ticker_side
	assert.Len(t, rows, 8)
}

func TestAggregate_Empty(t *testing.T) {
	rows := NewAggregator(zerolog.Nop()).Aggregate(nil, asOf)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestAggregate_SkipsEmptyTickerSide(t *testing.T) {
	trades := []contracts.BacktestTrade{
		filledTrade("AAA", contracts.SideBuy, 10, 0.03, "2024-01-03", "2024-01-04"),
		filledTrade("BBB", contracts.SideSell, 10, 0.01, "2024-01-03", "2024-01-04"),
	}
	rows := NewAggregator(zerolog.Nop()).Aggregate(trades, asOf)

	counts := map[contracts.ComboClass]int{}
	for _, r := range rows {
		counts[r.Combo]++
	}
	assert.Equal(t, 1, counts[contracts.ComboGlobal])
	assert.Equal(t, 2, counts[contracts.ComboSide])
	assert.Equal(t, 2, counts[contracts.ComboTicker])
	assert.Equal(t, 2, counts[contracts.ComboTickerSide]) // AAA×SELL and BBB×BUY skipped
}
