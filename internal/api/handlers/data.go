package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/eodsignals/internal/calendar"
	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/logger"
)

// DataHandler serves the stored signals, trades, metrics and the calendar
// ⭐ SSOT: 조회 API 핸들러는 이 구조체에서만
type DataHandler struct {
	signals  contracts.SignalStore
	trades   contracts.TradeStore
	metrics  contracts.MetricStore
	holidays contracts.HolidayStore
	logger   *logger.Logger
}

// NewDataHandler creates a new data handler
func NewDataHandler(
	signals contracts.SignalStore,
	trades contracts.TradeStore,
	metrics contracts.MetricStore,
	holidays contracts.HolidayStore,
	log *logger.Logger,
) *DataHandler {
	return &DataHandler{
		signals:  signals,
		trades:   trades,
		metrics:  metrics,
		holidays: holidays,
		logger:   log,
	}
}

// SignalsResponse lists the signals of one date_ref
type SignalsResponse struct {
	DateRef string                        `json:"date_ref"`
	Count   int                           `json:"count"`
	Signals []contracts.ConditionalSignal `json:"signals"`
}

// GetSignals returns the signals stored for a date
// GET /api/signals/{date}
func (h *DataHandler) GetSignals(w http.ResponseWriter, r *http.Request) {
	date, ok := pathDate(w, r)
	if !ok {
		return
	}

	signals, err := h.signals.GetSignals(r.Context(), date)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get signals")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve signals")
		return
	}
	if signals == nil {
		signals = []contracts.ConditionalSignal{}
	}

	respondJSON(w, http.StatusOK, SignalsResponse{
		DateRef: date.Format(contracts.DateLayout),
		Count:   len(signals),
		Signals: signals,
	})
}

// TradesResponse lists the simulated trades of one date_ref
type TradesResponse struct {
	DateRef string                    `json:"date_ref"`
	Count   int                       `json:"count"`
	Trades  []contracts.BacktestTrade `json:"trades"`
}

// GetTrades returns the backtest trades stored for a date
// GET /api/trades/{date}
func (h *DataHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	date, ok := pathDate(w, r)
	if !ok {
		return
	}

	trades, err := h.trades.GetTrades(r.Context(), date)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get trades")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve trades")
		return
	}
	if trades == nil {
		trades = []contracts.BacktestTrade{}
	}

	respondJSON(w, http.StatusOK, TradesResponse{
		DateRef: date.Format(contracts.DateLayout),
		Count:   len(trades),
		Trades:  trades,
	})
}

// MetricsResponse is the latest backtest_metrics snapshot
type MetricsResponse struct {
	AsOfDate *string               `json:"as_of_date"`
	Count    int                   `json:"count"`
	Metrics  []contracts.MetricRow `json:"metrics"`
}

// GetLatestMetrics returns the most recent metrics snapshot
// GET /api/metrics/latest
func (h *DataHandler) GetLatestMetrics(w http.ResponseWriter, r *http.Request) {
	rows, err := h.metrics.LatestSnapshot(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to get metrics snapshot")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	resp := MetricsResponse{Count: len(rows), Metrics: rows}
	if len(rows) > 0 {
		asOf := rows[0].AsOfDate.Format(contracts.DateLayout)
		resp.AsOfDate = &asOf
	}
	respondJSON(w, http.StatusOK, resp)
}

// CalendarResponse answers a trading calendar query
type CalendarResponse struct {
	Date       string `json:"date"`
	TradingDay bool   `json:"trading_day"`
	Holiday    bool   `json:"holiday"`
	Next       string `json:"next"`
	Previous   string `json:"previous"`
}

// GetNextTradingDay returns the next and previous sessions around a date
// GET /api/calendar/next/{date}
func (h *DataHandler) GetNextTradingDay(w http.ResponseWriter, r *http.Request) {
	date, ok := pathDate(w, r)
	if !ok {
		return
	}

	cal, err := calendar.Load(r.Context(), h.holidays, time.Time{}, time.Time{})
	if err != nil {
		h.logger.WithError(err).Error("Failed to load calendar")
		respondError(w, http.StatusInternalServerError, "Failed to load calendar")
		return
	}

	next, err := cal.Next(date)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	prev, err := cal.Previous(date)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, CalendarResponse{
		Date:       date.Format(contracts.DateLayout),
		TradingDay: cal.IsTradingDay(date),
		Holiday:    cal.IsHoliday(date),
		Next:       next.Format(contracts.DateLayout),
		Previous:   prev.Format(contracts.DateLayout),
	})
}

// Helper functions

func pathDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	date, err := contracts.ParseDay(mux.Vars(r)["date"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid date format (expected YYYY-MM-DD)")
		return time.Time{}, false
	}
	return date, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
