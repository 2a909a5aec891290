package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exports pipeline telemetry to Prometheus
// ⭐ SSOT: Prometheus 메트릭 정의는 여기서만
type Recorder struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	signalsStored  prometheus.Gauge
	tradesByReason *prometheus.CounterVec
	dqChecks       *prometheus.CounterVec
	lastSuccess    *prometheus.GaugeVec
}

// New creates a recorder with its own registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eodsignals_job_runs_total",
				Help: "Pipeline job runs by final status",
			},
			[]string{"job", "status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eodsignals_job_duration_seconds",
				Help:    "Pipeline job duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),
		signalsStored: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "eodsignals_signals_stored",
				Help: "Signals stored by the last eod_signals run",
			},
		),
		tradesByReason: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eodsignals_trades_total",
				Help: "Simulated trades by exit reason",
			},
			[]string{"exit_reason"},
		),
		dqChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eodsignals_dq_checks_total",
				Help: "Data quality check results",
			},
			[]string{"check", "status"},
		),
		lastSuccess: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eodsignals_job_last_success_timestamp",
				Help: "Unix time of the last successful job run",
			},
			[]string{"job"},
		),
	}
}

// RecordRun records one finished job run
func (r *Recorder) RecordRun(job, status string, took time.Duration) {
	r.runsTotal.WithLabelValues(job, status).Inc()
	r.runDuration.WithLabelValues(job).Observe(took.Seconds())
	if status != "error" {
		r.lastSuccess.WithLabelValues(job).Set(float64(time.Now().Unix()))
	}
}

// RecordSignals sets the number of stored signals
func (r *Recorder) RecordSignals(n int) {
	r.signalsStored.Set(float64(n))
}

// RecordTrade counts a simulated trade
func (r *Recorder) RecordTrade(exitReason string) {
	r.tradesByReason.WithLabelValues(exitReason).Inc()
}

// RecordCheck counts a data quality result
func (r *Recorder) RecordCheck(check, status string) {
	r.dqChecks.WithLabelValues(check, status).Inc()
}

// Registry exposes the underlying registry (tests, extra collectors)
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
