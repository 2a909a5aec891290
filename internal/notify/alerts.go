package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/logger"
	"github.com/wonny/eodsignals/pkg/monitoring"
)

// JobName is the run-log job name of the alert pipeline
const JobName = "signal_alerts"

// AlertResult is the outcome of one alert run
type AlertResult struct {
	DateRef time.Time `json:"date_ref"`
	Signals int       `json:"signals"`
	Sent    bool      `json:"sent"`
	Message string    `json:"message"`
}

// Alerter summarizes the stored signals of a date and sends them
type Alerter struct {
	signals  contracts.SignalStore
	sender   Sender
	recorder *monitoring.Recorder
	logger   *logger.Logger
	sink     logger.RunSink
}

// NewAlerter wires an alerter
func NewAlerter(signals contracts.SignalStore, sender Sender, recorder *monitoring.Recorder, log *logger.Logger, sink logger.RunSink) *Alerter {
	return &Alerter{
		signals:  signals,
		sender:   sender,
		recorder: recorder,
		logger:   log,
		sink:     sink,
	}
}

// Run sends the summary of dateRef's signals. No signals is not an error: nothing is sent.
func (a *Alerter) Run(ctx context.Context, dateRef time.Time) (AlertResult, error) {
	start := time.Now()
	dateRef = contracts.Day(dateRef)
	run := logger.NewRunLogger(a.logger, JobName, a.sink).With("date_ref", dateRef.Format(contracts.DateLayout))
	run.Started("Signal alerts started")

	signals, err := a.signals.GetSignals(ctx, dateRef)
	if err != nil {
		run.Exception(err, "Failed to load signals")
		a.recorder.RecordRun(JobName, "error", time.Since(start))
		return AlertResult{}, fmt.Errorf("failed to load signals: %w", err)
	}

	result := AlertResult{DateRef: dateRef, Signals: len(signals)}
	if len(signals) == 0 {
		result.Message = fmt.Sprintf("No signals for %s", dateRef.Format(contracts.DateLayout))
		run.Warn(result.Message, nil)
		a.recorder.RecordRun(JobName, "warn", time.Since(start))
		return result, nil
	}

	result.Message = FormatSignals(dateRef, signals)
	err = a.sender.Send(ctx, result.Message)
	switch {
	case errors.Is(err, ErrDisabled):
		run.Warn("Telegram disabled, alert only logged", map[string]interface{}{"signals": len(signals)})
		a.recorder.RecordRun(JobName, "warn", time.Since(start))
		return result, nil
	case err != nil:
		run.Exception(err, "Failed to send alert")
		a.recorder.RecordRun(JobName, "error", time.Since(start))
		return result, err
	}

	result.Sent = true
	run.OK("Alert sent", map[string]interface{}{"signals": len(signals)})
	a.recorder.RecordRun(JobName, "ok", time.Since(start))
	return result, nil
}

// FormatSignals renders the "Sinais <date>" summary, one line per signal in rank order
func FormatSignals(dateRef time.Time, signals []contracts.ConditionalSignal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sinais %s", dateRef.Format(contracts.DateLayout))
	for _, s := range signals {
		fmt.Fprintf(&b, "\n%d. %s %s entry %.4f target %.4f stop %.4f valid %s",
			s.Rank, s.Ticker, s.Side, s.Entry, s.Target, s.Stop, s.ValidFor.Format(contracts.DateLayout))
	}
	return b.String()
}
