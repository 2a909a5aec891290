package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/internal/data/memstore"
	"github.com/wonny/eodsignals/internal/notify"
	"github.com/wonny/eodsignals/internal/quality"
	"github.com/wonny/eodsignals/internal/strategyconfig"
	"github.com/wonny/eodsignals/pkg/config"
	"github.com/wonny/eodsignals/pkg/logger"
	"github.com/wonny/eodsignals/pkg/monitoring"
)

var (
	tuesday   = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	wednesday = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	saturday  = time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
)

func testConfig() *config.Config {
	return &config.Config{
		Signal: config.SignalConfig{
			XPct:            0.02,
			TargetPct:       0.07,
			StopPct:         0.07,
			AllowSell:       true,
			HorizonDays:     10,
			MaxSignals:      5,
			RankingKey:      "score_v1",
			StrategyID:      "signals_v1",
			StrategyVersion: "env-default",
		},
		Pipeline: config.PipelineConfig{
			MarketTimezone:  "America/Sao_Paulo",
			SignalCutoff:    "18:00",
			LookbackDays:    60,
			BacktestWorkers: 2,
			CodeVersion:     "test",
		},
	}
}

// clockAt returns a clock fixed at hh:mm market time on day
func clockAt(t *testing.T, day time.Time, hour, minute int) func() time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	at := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
	return func() time.Time { return at }
}

func bar(t *testing.T, ticker string, date time.Time, open, high, low, close, turnover float64) contracts.DailyBar {
	t.Helper()
	b, err := contracts.NewDailyBar(ticker, date, open, high, low, close)
	require.NoError(t, err)
	return b.WithLiquidity(turnover, 0, 0)
}

func stores(s *memstore.Store) Stores {
	return Stores{Candles: s, Signals: s, Trades: s, Metrics: s, Holidays: s, Strategies: s}
}

func newSignalPipeline(t *testing.T, s *memstore.Store, cfg *config.Config, hour int) (*SignalPipeline, *monitoring.Recorder) {
	rec := monitoring.New()
	p := NewSignalPipeline(stores(s), cfg, rec, logger.Nop(), nil).WithClock(clockAt(t, wednesday, hour, 30))
	return p, rec
}

func TestSignalPipeline_Run(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.AddBars(
		bar(t, "AAA", tuesday, 10, 11, 9, 10.5, 2_000_000),
		bar(t, "BBB", tuesday, 20, 21, 19, 19.5, 500_000),
	)

	p, rec := newSignalPipeline(t, store, testConfig(), 19)
	resp, err := p.Run(ctx, SignalRequest{Reason: "scheduler", Mode: "auto"})
	require.NoError(t, err)

	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, "2024-01-02", resp.DateRef)
	assert.Equal(t, "2024-01-03", resp.ValidFor)
	assert.Equal(t, 2, resp.Requested)
	assert.Equal(t, 2, resp.Generated)
	assert.Equal(t, 2, resp.Stored)
	assert.Equal(t, 5, resp.MaxSignals)
	assert.Equal(t, "env-default", resp.ConfigVersion)
	assert.Equal(t, "scheduler", resp.RequestReason)

	stored, err := store.GetSignals(ctx, tuesday)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for i, s := range stored {
		assert.Equal(t, i+1, s.Rank)
		assert.True(t, s.ValidFor.Equal(wednesday))
	}

	meta, ok := store.Metadata(tuesday)
	require.True(t, ok)
	assert.Equal(t, resp.RunID, meta.JobRunID)
	assert.Equal(t, "env-default", meta.ConfigVersion)
	assert.Equal(t, "test", meta.CodeVersion)
	assert.NotEmpty(t, meta.SourceSnapshot)

	expected := `
# HELP eodsignals_signals_stored Signals stored by the last eod_signals run
# TYPE eodsignals_signals_stored gauge
eodsignals_signals_stored 2
`
	assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(expected), "eodsignals_signals_stored"))
}

func TestSignalPipeline_Outcomes(t *testing.T) {
	ctx := context.Background()
	sat := saturday

	tests := []struct {
		name       string
		hour       int
		req        SignalRequest
		minVolume  float64
		allowEarly bool
		noBars     bool
		wantStatus Status
		wantReason string
	}{
		{name: "before cutoff", hour: 10, wantStatus: StatusSkipped, wantReason: ReasonBeforeCutoff},
		{name: "forced before cutoff", hour: 10, req: SignalRequest{Force: true}, wantStatus: StatusOK},
		{name: "early run allowed", hour: 10, allowEarly: true, wantStatus: StatusOK},
		{name: "non trading day", hour: 19, req: SignalRequest{DateRef: &sat}, wantStatus: StatusSkipped, wantReason: ReasonNonTradingDay},
		{name: "no bars", hour: 19, noBars: true, wantStatus: StatusEmpty, wantReason: ReasonEmptyFrame},
		{name: "volume filter", hour: 19, minVolume: 5_000_000, wantStatus: StatusFiltered, wantReason: ReasonVolume},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New()
			if !tt.noBars {
				store.AddBars(bar(t, "AAA", tuesday, 10, 11, 9, 10.5, 1_000_000))
			}
			cfg := testConfig()
			cfg.Signal.MinVolume = tt.minVolume
			cfg.Signal.AllowEarly = tt.allowEarly

			p, _ := newSignalPipeline(t, store, cfg, tt.hour)
			resp, err := p.Run(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantReason, resp.Reason)

			stored, err := store.GetSignals(ctx, tuesday)
			require.NoError(t, err)
			if tt.wantStatus == StatusOK {
				assert.Len(t, stored, 1)
			} else {
				assert.Empty(t, stored)
			}
		})
	}
}

func TestSignalPipeline_StrategyRow(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.AddBars(
		bar(t, "AAA", tuesday, 10, 11, 9, 10.5, 0),
		bar(t, "BBB", tuesday, 20, 21, 19, 19.5, 0),
	)
	one := 1
	store.PutStrategy(strategyconfig.Row{ConfigID: "signals_v1", MaxSignals: &one})

	p, _ := newSignalPipeline(t, store, testConfig(), 19)
	resp, err := p.Run(ctx, SignalRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Stored)
	assert.Equal(t, 1, resp.MaxSignals)
	assert.Equal(t, "signals_v1", resp.ConfigVersion)
}

func TestSignalPipeline_InvalidStrategyRowAborts(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.AddBars(bar(t, "AAA", tuesday, 10, 11, 9, 10.5, 0))
	stop := -0.05
	store.PutStrategy(strategyconfig.Row{ConfigID: "signals_v1", StopPct: &stop})

	p, _ := newSignalPipeline(t, store, testConfig(), 19)
	_, err := p.Run(ctx, SignalRequest{})
	require.Error(t, err)
	assert.True(t, contracts.IsConfigError(err))

	stored, err := store.GetSignals(ctx, tuesday)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSignalPipeline_StoreError(t *testing.T) {
	store := memstore.New()
	store.Err = errors.New("connection refused")

	p, rec := newSignalPipeline(t, store, testConfig(), 19)
	_, err := p.Run(context.Background(), SignalRequest{})
	require.Error(t, err)
	expected := `
# HELP eodsignals_job_runs_total Pipeline job runs by final status
# TYPE eodsignals_job_runs_total counter
eodsignals_job_runs_total{job="eod_signals",status="error"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(expected), "eodsignals_job_runs_total"))
}

func seedSignal(t *testing.T, store *memstore.Store) {
	t.Helper()
	signal := contracts.ConditionalSignal{
		DateRef: tuesday, ValidFor: wednesday, Ticker: "AAA", Side: contracts.SideBuy,
		Entry: 9.8, Target: 10.486, Stop: 9.114, Rank: 1, HorizonDays: 10,
		ModelVersion: contracts.DefaultModelVersion,
	}
	require.NoError(t, store.ReplaceSignals(context.Background(), tuesday, []contracts.ConditionalSignal{signal}, contracts.RunMetadata{}))
}

func TestBacktestPipeline_Run(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedSignal(t, store)
	store.AddBars(
		bar(t, "AAA", wednesday, 10, 10.6, 9.7, 10.5, 0),
		bar(t, "ZZZ", wednesday, 10, 10.6, 9.7, 10.5, 0),
	)

	rec := monitoring.New()
	p := NewBacktestPipeline(stores(store), testConfig(), rec, logger.Nop(), nil)
	day := tuesday
	resp, err := p.Run(ctx, BacktestRequest{DateRef: &day})
	require.NoError(t, err)

	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, "2024-01-02", resp.DateRef)
	assert.Equal(t, 1, resp.ProcessedSignals)
	assert.Equal(t, 1, resp.Trades)
	assert.Equal(t, 4, resp.Metrics) // global, side, ticker, ticker_side

	trades, err := store.GetTrades(ctx, tuesday)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, contracts.ExitTarget, trades[0].ExitReason)
	assert.True(t, trades[0].EntryHit)

	latest, err := store.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 4)
	assert.True(t, latest[0].AsOfDate.Equal(tuesday))
	expected := `
# HELP eodsignals_trades_total Simulated trades by exit reason
# TYPE eodsignals_trades_total counter
eodsignals_trades_total{exit_reason="TARGET"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(expected), "eodsignals_trades_total"))
}

func TestBacktestPipeline_Outcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("non trading day", func(t *testing.T) {
		p := NewBacktestPipeline(stores(memstore.New()), testConfig(), monitoring.New(), logger.Nop(), nil)
		day := saturday
		resp, err := p.Run(ctx, BacktestRequest{DateRef: &day})
		require.NoError(t, err)
		assert.Equal(t, StatusSkipped, resp.Status)
		assert.Equal(t, ReasonNonTradingDay, resp.Reason)
	})

	t.Run("no signals", func(t *testing.T) {
		p := NewBacktestPipeline(stores(memstore.New()), testConfig(), monitoring.New(), logger.Nop(), nil)
		day := tuesday
		resp, err := p.Run(ctx, BacktestRequest{DateRef: &day})
		require.NoError(t, err)
		assert.Equal(t, StatusEmpty, resp.Status)
		assert.Equal(t, ReasonMissingSignals, resp.Reason)
	})

	t.Run("default date falls back to previous trading day", func(t *testing.T) {
		store := memstore.New()
		seedSignal(t, store)
		// Sunday 2024-01-07 → Friday 2024-01-05, which has no signals
		p := NewBacktestPipeline(stores(store), testConfig(), monitoring.New(), logger.Nop(), nil).
			WithClock(clockAt(t, time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), 12, 0))
		resp, err := p.Run(ctx, BacktestRequest{})
		require.NoError(t, err)
		assert.Equal(t, "2024-01-05", resp.DateRef)
		assert.Equal(t, StatusEmpty, resp.Status)
	})

	t.Run("missing candles", func(t *testing.T) {
		store := memstore.New()
		seedSignal(t, store)
		p := NewBacktestPipeline(stores(store), testConfig(), monitoring.New(), logger.Nop(), nil)
		day := tuesday
		resp, err := p.Run(ctx, BacktestRequest{DateRef: &day})
		require.NoError(t, err)
		assert.Equal(t, StatusOK, resp.Status)
		assert.Equal(t, 1, resp.Summary.ByReason[contracts.ExitNoData])
	})
}

func TestCandleWindow(t *testing.T) {
	payloads := []contracts.SignalPayload{
		{Ticker: "AAA", ValidFor: wednesday, HorizonDays: 10},
		{Ticker: "BBB", ValidFor: tuesday, HorizonDays: 5},
		{Ticker: "AAA", ValidFor: wednesday, HorizonDays: 3},
	}
	tickers, from, to := candleWindow(payloads)
	assert.Equal(t, []string{"AAA", "BBB"}, tickers)
	assert.True(t, from.Equal(tuesday))
	assert.True(t, to.Equal(wednesday.AddDate(0, 0, 20)))
}

type stubAlerts struct{ calls []time.Time }

func (s *stubAlerts) Run(ctx context.Context, dateRef time.Time) (notify.AlertResult, error) {
	s.calls = append(s.calls, dateRef)
	return notify.AlertResult{DateRef: dateRef}, nil
}

type stubQuality struct{ err error }

func (s stubQuality) Run(ctx context.Context, date time.Time) (quality.Report, error) {
	return quality.Report{DateRef: date}, s.err
}

func TestOrchestrator_Run(t *testing.T) {
	ctx := context.Background()
	newOrchestrator := func(store *memstore.Store, hour int, dq QualityRunner) (*Orchestrator, *stubAlerts) {
		sig, _ := newSignalPipeline(t, store, testConfig(), hour)
		bt := NewBacktestPipeline(stores(store), testConfig(), monitoring.New(), logger.Nop(), nil)
		alerts := &stubAlerts{}
		return NewOrchestrator(sig, bt, alerts, dq, logger.Nop()), alerts
	}

	t.Run("full chain", func(t *testing.T) {
		store := memstore.New()
		store.AddBars(
			bar(t, "AAA", tuesday, 10, 11, 9, 10.5, 0),
			bar(t, "AAA", wednesday, 10.5, 10.6, 10, 10.2, 0),
		)
		o, alerts := newOrchestrator(store, 19, stubQuality{})
		result, err := o.Run(ctx, DailyRequest{})
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, []string{StageSignals, StageBacktest, StageQuality, StageAlerts}, result.CompletedStages)
		require.Len(t, alerts.calls, 1)
		assert.True(t, alerts.calls[0].Equal(tuesday))
		assert.Equal(t, 1, result.Backtest.Trades)
	})

	t.Run("skipped signals stop the chain", func(t *testing.T) {
		o, alerts := newOrchestrator(memstore.New(), 10, stubQuality{})
		result, err := o.Run(ctx, DailyRequest{})
		require.NoError(t, err)
		assert.Equal(t, []string{StageSignals}, result.CompletedStages)
		assert.Empty(t, alerts.calls)
	})

	t.Run("quality error", func(t *testing.T) {
		store := memstore.New()
		store.AddBars(bar(t, "AAA", tuesday, 10, 11, 9, 10.5, 0))
		o, alerts := newOrchestrator(store, 19, stubQuality{err: errors.New("boom")})
		result, err := o.Run(ctx, DailyRequest{})
		require.Error(t, err)
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, StageQuality)
		assert.Equal(t, []string{StageSignals, StageBacktest}, result.CompletedStages)
		assert.Empty(t, alerts.calls)
	})
}
