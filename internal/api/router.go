package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/eodsignals/internal/api/handlers"
	"github.com/wonny/eodsignals/internal/realtime"
	"github.com/wonny/eodsignals/pkg/logger"
)

// Routes groups the handlers mounted by NewRouter; Metrics and Hub may be nil
type Routes struct {
	Data     *handlers.DataHandler
	Pipeline *handlers.PipelineHandler
	Hub      *realtime.Hub
	Metrics  http.Handler
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(routes Routes, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	if routes.Metrics != nil {
		r.Handle("/metrics", routes.Metrics).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Read endpoints
	api.HandleFunc("/signals/{date}", routes.Data.GetSignals).Methods("GET")
	api.HandleFunc("/trades/{date}", routes.Data.GetTrades).Methods("GET")
	api.HandleFunc("/metrics/latest", routes.Data.GetLatestMetrics).Methods("GET")
	api.HandleFunc("/calendar/next/{date}", routes.Data.GetNextTradingDay).Methods("GET")

	// Pipeline triggers
	api.HandleFunc("/pipeline/signals", routes.Pipeline.RunSignals).Methods("POST")
	api.HandleFunc("/pipeline/backtest", routes.Pipeline.RunBacktest).Methods("POST")
	api.HandleFunc("/backtest/simulate", routes.Pipeline.Simulate).Methods("POST")

	// Run-log stream
	if routes.Hub != nil {
		api.HandleFunc("/runs", routes.Hub.ServeStatus).Methods("GET")
		r.HandleFunc("/ws/runs", routes.Hub.ServeWS).Methods("GET")
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "eodsignals-api",
	})
}

// statusRecorder captures the response status for the access log
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// The websocket upgrade needs the raw writer (http.Hijacker)
			if r.URL.Path == "/ws/runs" {
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
