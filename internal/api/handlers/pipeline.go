package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/wonny/eodsignals/internal/backtest"
	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/internal/metrics"
	"github.com/wonny/eodsignals/internal/pipeline"
	"github.com/wonny/eodsignals/pkg/logger"
)

// PipelineHandler triggers the pipelines and ad-hoc simulations
// ⭐ SSOT: 파이프라인 API 핸들러는 여기서만
type PipelineHandler struct {
	signals  *pipeline.SignalPipeline
	backtest *pipeline.BacktestPipeline
	logger   *logger.Logger
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(signals *pipeline.SignalPipeline, bt *pipeline.BacktestPipeline, log *logger.Logger) *PipelineHandler {
	return &PipelineHandler{
		signals:  signals,
		backtest: bt,
		logger:   log,
	}
}

// SignalRunRequest is the body of POST /api/pipeline/signals
type SignalRunRequest struct {
	DateRef string `json:"date_ref"` // Optional: YYYY-MM-DD, default yesterday
	Force   bool   `json:"force"`
	Reason  string `json:"reason"`
	Mode    string `json:"mode"`
}

// RunSignals triggers eod_signals
// POST /api/pipeline/signals
func (h *PipelineHandler) RunSignals(w http.ResponseWriter, r *http.Request) {
	var req SignalRunRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	dateRef, ok := optionalDate(w, req.DateRef)
	if !ok {
		return
	}
	if req.Reason == "" {
		req.Reason = "api"
	}

	resp, err := h.signals.Run(r.Context(), pipeline.SignalRequest{
		DateRef: dateRef,
		Force:   req.Force,
		Reason:  req.Reason,
		Mode:    req.Mode,
	})
	if err != nil {
		h.logger.WithError(err).Error("Signal pipeline failed")
		status := http.StatusInternalServerError
		if contracts.IsConfigError(err) {
			status = http.StatusUnprocessableEntity
		}
		respondError(w, status, err.Error())
		return
	}

	status := http.StatusOK
	if resp.Status == pipeline.StatusSkipped && resp.Reason == pipeline.ReasonBeforeCutoff {
		status = http.StatusBadRequest
	}
	respondJSON(w, status, resp)
}

// BacktestRunRequest is the body of POST /api/pipeline/backtest
type BacktestRunRequest struct {
	DateRef string `json:"date_ref"` // Optional: YYYY-MM-DD, default latest trading day
}

// RunBacktest triggers backtest_daily
// POST /api/pipeline/backtest
func (h *PipelineHandler) RunBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRunRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	dateRef, ok := optionalDate(w, req.DateRef)
	if !ok {
		return
	}

	resp, err := h.backtest.Run(r.Context(), pipeline.BacktestRequest{DateRef: dateRef})
	if err != nil {
		h.logger.WithError(err).Error("Backtest pipeline failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// SimulateRequest carries raw signal and candle records for an ad-hoc backtest
type SimulateRequest struct {
	Signals []contracts.Record `json:"signals"`
	Candles []contracts.Record `json:"candles"`
	Policy  string             `json:"policy"` // stop_first (default) or target_first
	AsOf    string             `json:"as_of"`  // Optional: metrics as_of_date
}

// SimulateResponse is the outcome of an ad-hoc backtest; nothing is persisted
type SimulateResponse struct {
	Policy         string                    `json:"policy"`
	SkippedSignals int                       `json:"skipped_signals"`
	SkippedCandles int                       `json:"skipped_candles"`
	Trades         []contracts.BacktestTrade `json:"trades"`
	Summary        backtest.Summary          `json:"summary"`
	Metrics        []contracts.MetricRow     `json:"metrics"`
}

// Simulate runs the simulator and the aggregator on the request body
// POST /api/backtest/simulate
func (h *PipelineHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	policy, err := backtest.ParsePolicy(req.Policy)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	asOf := time.Now().UTC()
	if req.AsOf != "" {
		if asOf, err = contracts.ParseDay(req.AsOf); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'as_of' date format (expected YYYY-MM-DD)")
			return
		}
	}

	engine := backtest.NewEngine(policy, h.logger)
	payloads, skippedSignals, err := engine.ParsePayloads(req.Signals)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	bars := make([]contracts.DailyBar, 0, len(req.Candles))
	skippedCandles := 0
	for _, rec := range req.Candles {
		bar, err := contracts.ParseDailyBar(rec)
		if contracts.IsDataError(err) {
			skippedCandles++
			continue
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		bars = append(bars, bar)
	}

	start := time.Now()
	trades := engine.Run(payloads, backtest.BuildCandleLookup(bars))
	rows := metrics.NewAggregator(h.logger.Zerolog()).Aggregate(trades, asOf)

	respondJSON(w, http.StatusOK, SimulateResponse{
		Policy:         policy.String(),
		SkippedSignals: skippedSignals,
		SkippedCandles: skippedCandles,
		Trades:         trades,
		Summary:        backtest.Summarize(trades, time.Since(start)),
		Metrics:        rows,
	})
}

// decodeOptional decodes a JSON body; an empty body leaves v untouched
func decodeOptional(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func optionalDate(w http.ResponseWriter, value string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	date, err := contracts.ParseDay(value)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid 'date_ref' format (expected YYYY-MM-DD)")
		return nil, false
	}
	return &date, true
}
