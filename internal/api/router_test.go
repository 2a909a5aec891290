package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/eodsignals/internal/api/handlers"
	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/internal/data/memstore"
	"github.com/wonny/eodsignals/internal/pipeline"
	"github.com/wonny/eodsignals/internal/realtime"
	"github.com/wonny/eodsignals/internal/strategyconfig"
	"github.com/wonny/eodsignals/pkg/config"
	"github.com/wonny/eodsignals/pkg/logger"
	"github.com/wonny/eodsignals/pkg/monitoring"
)

func testConfig() *config.Config {
	return &config.Config{
		Signal: config.SignalConfig{
			XPct: 0.02, TargetPct: 0.07, StopPct: 0.07, HorizonDays: 10, MaxSignals: 5,
			RankingKey: "score_v1", StrategyID: "signals_v1",
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

func newTestRouter(t *testing.T, store *memstore.Store, now time.Time) http.Handler {
	t.Helper()
	cfg := testConfig()
	log := logger.Nop()
	rec := monitoring.New()
	hub := realtime.NewHub(time.Hour, log)
	t.Cleanup(hub.Close)

	stores := pipeline.Stores{Candles: store, Signals: store, Trades: store, Metrics: store, Holidays: store, Strategies: store}
	clock := func() time.Time { return now }
	signals := pipeline.NewSignalPipeline(stores, cfg, rec, log, hub).WithClock(clock)
	bt := pipeline.NewBacktestPipeline(stores, cfg, rec, log, hub).WithClock(clock)

	return NewRouter(Routes{
		Data:     handlers.NewDataHandler(store, store, store, store, log),
		Pipeline: handlers.NewPipelineHandler(signals, bt, log),
		Hub:      hub,
		Metrics:  rec.Handler(),
	}, log)
}

func marketTime(t *testing.T, year int, month time.Month, day, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t, memstore.New(), time.Now())

	w, body := do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "eodsignals-api", body["service"])

	w, _ = do(t, r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ReadEndpoints(t *testing.T) {
	r := newTestRouter(t, memstore.New(), time.Now())

	tests := []struct {
		name       string
		path       string
		wantStatus int
		check      func(t *testing.T, body map[string]interface{})
	}{
		{
			name:       "no signals is an empty list",
			path:       "/api/signals/2024-01-02",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, []interface{}{}, body["signals"])
				assert.EqualValues(t, 0, body["count"])
			},
		},
		{
			name:       "bad date",
			path:       "/api/trades/02-01-2024",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty metrics snapshot",
			path:       "/api/metrics/latest",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Nil(t, body["as_of_date"])
			},
		},
		{
			name:       "friday rolls to monday",
			path:       "/api/calendar/next/2024-01-05",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "2024-01-08", body["next"])
				assert.Equal(t, "2024-01-04", body["previous"])
				assert.Equal(t, true, body["trading_day"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := do(t, r, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func TestRouter_RunSignals(t *testing.T) {
	store := memstore.New()
	b, err := contracts.NewDailyBar("AAA", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 10, 11, 9, 10.5)
	require.NoError(t, err)
	store.AddBars(b)

	t.Run("before cutoff is a bad request", func(t *testing.T) {
		r := newTestRouter(t, store, marketTime(t, 2024, 1, 3, 17, 0))
		w, body := do(t, r, http.MethodPost, "/api/pipeline/signals", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, pipeline.ReasonBeforeCutoff, body["reason"])
	})

	t.Run("force bypasses the cutoff", func(t *testing.T) {
		r := newTestRouter(t, store, marketTime(t, 2024, 1, 3, 17, 0))
		w, body := do(t, r, http.MethodPost, "/api/pipeline/signals", map[string]interface{}{
			"date_ref": "2024-01-02",
			"force":    true,
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "api", body["request_reason"])
		assert.Equal(t, "2024-01-03", body["valid_for"])

		w, body = do(t, r, http.MethodGet, "/api/signals/2024-01-02", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 1, body["count"])
	})

	t.Run("invalid date_ref", func(t *testing.T) {
		r := newTestRouter(t, store, marketTime(t, 2024, 1, 3, 19, 0))
		w, _ := do(t, r, http.MethodPost, "/api/pipeline/signals", map[string]interface{}{"date_ref": "yesterday"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid strategy row is unprocessable", func(t *testing.T) {
		bad := memstore.New()
		bad.AddBars(b)
		stop := -0.05
		bad.PutStrategy(strategyconfig.Row{ConfigID: "signals_v1", StopPct: &stop})

		r := newTestRouter(t, bad, marketTime(t, 2024, 1, 3, 19, 30))
		w, _ := do(t, r, http.MethodPost, "/api/pipeline/signals", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		w, body := do(t, r, http.MethodGet, "/api/signals/2024-01-02", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 0, body["count"])
	})
}

func TestRouter_Simulate(t *testing.T) {
	r := newTestRouter(t, memstore.New(), time.Now())

	body := map[string]interface{}{
		"signals": []map[string]interface{}{
			{
				"ticker": "TEST3", "side": "BUY", "date_ref": "2024-01-02", "valid_for": "2024-01-03",
				"entry": 10.0, "target": 10.5, "stop": 9.5, "horizon_days": 3,
			},
			{"ticker": "", "side": "BUY"},
		},
		"candles": []map[string]interface{}{
			{"ticker": "TEST3", "date": "2024-01-03", "open": 10, "high": 10.1, "low": 9.8, "close": 10.0},
			{"ticker": "TEST3", "date": "2024-01-04", "open": 10, "high": 10.6, "low": 9.9, "close": 10.55},
			{"ticker": "TEST3", "date": "2024-01-05"},
		},
		"as_of": "2024-01-10",
	}

	w, out := do(t, r, http.MethodPost, "/api/backtest/simulate", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stop_first", out["policy"])
	assert.EqualValues(t, 1, out["skipped_signals"])
	assert.EqualValues(t, 1, out["skipped_candles"])

	trades, ok := out["trades"].([]interface{})
	require.True(t, ok)
	require.Len(t, trades, 1)
	assert.Equal(t, "TARGET", trades[0].(map[string]interface{})["exit_reason"])
	assert.NotEmpty(t, out["metrics"])

	body["policy"] = "coin_flip"
	w, _ = do(t, r, http.MethodPost, "/api/backtest/simulate", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
