package backtest

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/logger"
)

func d(s string) time.Time {
	t, err := contracts.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func bar(ticker, date string, o, h, l, c float64) contracts.DailyBar {
	return contracts.DailyBar{Ticker: ticker, Date: d(date), Open: o, High: h, Low: l, Close: c}
}

func test3Signal() contracts.SignalPayload {
	return contracts.SignalPayload{
		DateRef:     d("2024-01-02"),
		ValidFor:    d("2024-01-03"),
		Ticker:      "TEST3",
		Side:        contracts.SideBuy,
		Entry:       10.0,
		Target:      10.5,
		Stop:        9.5,
		HorizonDays: 3,
	}
}

func TestSimulate_BuyHitsTarget(t *testing.T) {
	lookup := BuildCandleLookup([]contracts.DailyBar{
		bar("TEST3", "2024-01-03", 10, 10.1, 9.8, 10.0),
		bar("TEST3", "2024-01-04", 10, 10.6, 9.9, 10.55),
	})

	trade := Simulate(test3Signal(), lookup, StopFirst)

	assert.True(t, trade.EntryHit)
	assert.Equal(t, contracts.ExitTarget, trade.ExitReason)
	require.NotNil(t, trade.EntryFillDate)
	assert.Equal(t, d("2024-01-03"), *trade.EntryFillDate)
	require.NotNil(t, trade.ExitDate)
	assert.Equal(t, d("2024-01-04"), *trade.ExitDate)
	assert.Equal(t, 10.5, *trade.ExitPrice)
	assert.Greater(t, trade.ReturnPct, 0.0)
	assert.InDelta(t, 0.05, trade.ReturnPct, 1e-12)
	assert.InDelta(t, 0.06, *trade.MFEPct, 1e-12)
	assert.InDelta(t, -0.02, *trade.MAEPct, 1e-12)
}

func TestSimulate_SameBarStopWins(t *testing.T) {
	lookup := BuildCandleLookup([]contracts.DailyBar{
		bar("TEST3", "2024-01-03", 10, 10.6, 9.4, 9.9),
	})

	trade := Simulate(test3Signal(), lookup, StopFirst)
	assert.Equal(t, contracts.ExitStop, trade.ExitReason)
	assert.Equal(t, 9.5, *trade.ExitPrice)
	assert.Less(t, trade.ReturnPct, 0.0)

	optimistic := Simulate(test3Signal(), lookup, TargetFirst)
	assert.Equal(t, contracts.ExitTarget, optimistic.ExitReason)
}

func TestSimulate_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		signal     func() contracts.SignalPayload
		bars       []contracts.DailyBar
		wantReason contracts.ExitReason
		wantHit    bool
		wantReturn float64
		wantExit   string
	}{
		{
			name:       "no bars at all",
			signal:     test3Signal,
			wantReason: contracts.ExitNoData,
		},
		{
			name:   "only bars before valid_for",
			signal: test3Signal,
			bars: []contracts.DailyBar{
				bar("TEST3", "2024-01-02", 10, 10.6, 9.4, 10),
			},
			wantReason: contracts.ExitNoData,
		},
		{
			name:   "entry never touched",
			signal: test3Signal,
			bars: []contracts.DailyBar{
				bar("TEST3", "2024-01-03", 10.5, 10.8, 10.2, 10.6),
				bar("TEST3", "2024-01-04", 10.6, 11.0, 10.1, 10.9),
			},
			wantReason: contracts.ExitNoFill,
		},
		{
			name:   "expires at last window close",
			signal: func() contracts.SignalPayload { s := test3Signal(); s.HorizonDays = 2; return s },
			bars: []contracts.DailyBar{
				bar("TEST3", "2024-01-03", 10, 10.2, 9.9, 10.1),
				bar("TEST3", "2024-01-04", 10.1, 10.3, 9.8, 10.2),
				bar("TEST3", "2024-01-05", 10.2, 11.0, 10.1, 10.9), // outside horizon
			},
			wantReason: contracts.ExitExpire,
			wantHit:    true,
			wantReturn: 0.02,
			wantExit:   "2024-01-04",
		},
		{
			name: "sell hits target",
			signal: func() contracts.SignalPayload {
				s := test3Signal()
				s.Side, s.Target, s.Stop = contracts.SideSell, 9.5, 10.5
				return s
			},
			bars: []contracts.DailyBar{
				bar("TEST3", "2024-01-03", 9.9, 10.2, 9.7, 9.8),
				bar("TEST3", "2024-01-04", 9.8, 9.9, 9.4, 9.5),
			},
			wantReason: contracts.ExitTarget,
			wantHit:    true,
			wantReturn: 0.05,
			wantExit:   "2024-01-04",
		},
		{
			name: "sell stopped out",
			signal: func() contracts.SignalPayload {
				s := test3Signal()
				s.Side, s.Target, s.Stop = contracts.SideSell, 9.5, 10.5
				return s
			},
			bars: []contracts.DailyBar{
				bar("TEST3", "2024-01-03", 10, 10.7, 9.9, 10.6),
			},
			wantReason: contracts.ExitStop,
			wantHit:    true,
			wantReturn: -0.05,
			wantExit:   "2024-01-03",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade := Simulate(tt.signal(), BuildCandleLookup(tt.bars), StopFirst)

			assert.Equal(t, tt.wantReason, trade.ExitReason)
			assert.Equal(t, tt.wantHit, trade.EntryHit)
			assert.InDelta(t, tt.wantReturn, trade.ReturnPct, 1e-9)
			if tt.wantExit == "" {
				assert.Nil(t, trade.ExitDate)
				assert.Nil(t, trade.ExitPrice)
				return
			}
			require.NotNil(t, trade.ExitDate)
			assert.Equal(t, d(tt.wantExit), *trade.ExitDate)
		})
	}
}

func TestSimulate_ZeroEntry(t *testing.T) {
	s := test3Signal()
	s.Entry, s.Target, s.Stop = 0, 0.5, -1

	trade := Simulate(s, BuildCandleLookup([]contracts.DailyBar{
		bar("TEST3", "2024-01-03", 0.1, 0.2, 0, 0.1),
	}), StopFirst)

	assert.True(t, trade.EntryHit)
	assert.Nil(t, trade.MFEPct)
	assert.Nil(t, trade.MAEPct)
	assert.Equal(t, 0.0, trade.ReturnPct)
}

func randomCase(r *rand.Rand) (contracts.SignalPayload, []contracts.DailyBar) {
	side := contracts.SideBuy
	if r.Intn(2) == 0 {
		side = contracts.SideSell
	}
	entry := 5 + r.Float64()*10
	s := contracts.SignalPayload{
		ValidFor:    d("2024-03-04"),
		Ticker:      "RND3",
		Side:        side,
		Entry:       entry,
		Target:      entry * (1 + 0.07),
		Stop:        entry * (1 - 0.07),
		HorizonDays: 1 + r.Intn(10),
	}
	if side == contracts.SideSell {
		s.Target, s.Stop = entry*(1-0.07), entry*(1+0.07)
	}

	var bars []contracts.DailyBar
	start := d("2024-02-26")
	n := r.Intn(25)
	for i := 0; i < n; i++ {
		mid := entry * (0.85 + r.Float64()*0.3)
		bars = append(bars, contracts.DailyBar{
			Ticker: "RND3", Date: start.AddDate(0, 0, i),
			Open: mid, High: mid * (1 + r.Float64()*0.1), Low: mid * (1 - r.Float64()*0.1), Close: mid,
		})
	}
	return s, bars
}

func TestSimulate_Totality(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		s, bars := randomCase(r)
		trade := Simulate(s, BuildCandleLookup(bars), StopFirst)

		require.True(t, trade.ExitReason.Valid())
		switch trade.ExitReason {
		case contracts.ExitNoData, contracts.ExitNoFill:
			assert.False(t, trade.EntryHit)
			assert.Equal(t, 0.0, trade.ReturnPct)
		case contracts.ExitTarget:
			assert.Greater(t, trade.ReturnPct, 0.0)
		case contracts.ExitStop:
			assert.Less(t, trade.ReturnPct, 0.0)
		}
		if trade.EntryHit {
			require.NotNil(t, trade.ExitDate)
			days, ok := trade.DaysInTrade()
			require.True(t, ok)
			assert.GreaterOrEqual(t, days, 1)
		}
	}
}

func TestCandleLookup_Window(t *testing.T) {
	lookup := BuildCandleLookup([]contracts.DailyBar{
		bar("aaa", "2024-01-05", 1, 1, 1, 1),
		bar("AAA", "2024-01-03", 1, 1, 1, 1),
		bar("AAA", "2024-01-04", 1, 1, 1, 1),
		bar("AAA", "2024-01-04", 2, 2, 2, 2), // repeated date, last wins
	})

	w := lookup.Window("AAA", d("2024-01-04"), 5)
	require.Len(t, w, 2)
	assert.Equal(t, d("2024-01-04"), w[0].Date)
	assert.Equal(t, 2.0, w[0].Close)
	assert.Len(t, lookup.Window("AAA", d("2024-01-01"), 2), 2)
	assert.Empty(t, lookup.Window("ZZZ", d("2024-01-01"), 2))
}

func TestEngine_RunParallelKeepsOrder(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	var signals []contracts.SignalPayload
	var bars []contracts.DailyBar
	for i := 0; i < 40; i++ {
		s, b := randomCase(r)
		s.Ticker = string(rune('A'+i%26)) + string(rune('A'+i/26)) + "3"
		for j := range b {
			b[j].Ticker = s.Ticker
		}
		signals = append(signals, s)
		bars = append(bars, b...)
	}
	lookup := BuildCandleLookup(bars)
	engine := NewEngine(StopFirst, logger.Nop())

	sequential := engine.Run(signals, lookup)
	parallel, err := engine.RunParallel(context.Background(), signals, lookup, 4)
	require.NoError(t, err)
	assert.Equal(t, sequential, parallel)

	summary := Summarize(parallel, 0)
	total := 0
	for _, n := range summary.ByReason {
		total += n
	}
	assert.Equal(t, len(signals), total)
}

func TestEngine_RunParallelCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(StopFirst, logger.Nop()).RunParallel(ctx, []contracts.SignalPayload{test3Signal()}, CandleLookup{}, 2)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEngine_ParsePayloads(t *testing.T) {
	engine := NewEngine(StopFirst, logger.Nop())
	records := []contracts.Record{
		{"date_ref": "2024-01-02", "valid_for": "2024-01-03", "ticker": "TEST3", "entry": 10.0, "horizon_days": 3},
		{"date_ref": "2024-01-02", "valid_for": "2024-01-03", "ticker": "", "horizon_days": 3},
	}

	payloads, skipped, err := engine.ParsePayloads(records)
	require.NoError(t, err)
	assert.Len(t, payloads, 1)
	assert.Equal(t, 1, skipped)

	_, _, err = engine.ParsePayloads(records[1:])
	assert.ErrorIs(t, err, contracts.ErrAllRecordsInvalid)
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    SameBarPolicy
		wantErr bool
	}{
		{"", StopFirst, false},
		{"stop_first", StopFirst, false},
		{"target_first", TargetFirst, false},
		{"coin_flip", StopFirst, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if tt.wantErr {
			assert.True(t, contracts.IsConfigError(err))
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
