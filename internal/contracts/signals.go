package contracts

import (
	"fmt"
	"strings"
	"time"
)

// Defaults shared by the generator, the payload parser and the config layer
const (
	DefaultModelVersion = "signals_v1"
	DefaultRankingKey   = "score_v1"
	DefaultHorizonDays  = 10
	MaxSignalsPerDay    = 5
)

// Side is the trade direction of a conditional signal
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes s; blank defaults to BUY
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case "", SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

// Valid reports whether s is BUY or SELL
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// ConditionalSignal is one ranked entry instruction for the next session
type ConditionalSignal struct {
	DateRef      time.Time `json:"date_ref"`
	ValidFor     time.Time `json:"valid_for"`
	Ticker       string    `json:"ticker"`
	Side         Side      `json:"side"`
	Entry        float64   `json:"entry"`
	Target       float64   `json:"target"`
	Stop         float64   `json:"stop"`
	Rank         int       `json:"rank"`
	Score        float64   `json:"score"`
	RankingKey   string    `json:"ranking_key"`
	HorizonDays  int       `json:"horizon_days"`
	ModelVersion string    `json:"model_version"`

	XRule     string  `json:"x_rule"`       // e.g. close(D)*0.9800
	TargetPct float64 `json:"y_target_pct"` // take-profit distance used
	StopPct   float64 `json:"y_stop_pct"`   // stop-loss distance used
	Liquidity float64 `json:"volume"`
	Close     float64 `json:"close"`
}

// RunMetadata is the provenance stamped on every persisted signal row
type RunMetadata struct {
	JobRunID       string    `json:"job_run_id"`
	ConfigVersion  string    `json:"config_version"`
	CodeVersion    string    `json:"code_version"`
	SourceSnapshot string    `json:"source_snapshot"`
	CreatedAt      time.Time `json:"created_at"`
}

// SignalPayload is the part of a stored signal that the backtest consumes
type SignalPayload struct {
	DateRef      time.Time `json:"date_ref"`
	ValidFor     time.Time `json:"valid_for"`
	Ticker       string    `json:"ticker"`
	Side         Side      `json:"side"`
	Entry        float64   `json:"entry"`
	Target       float64   `json:"target"`
	Stop         float64   `json:"stop"`
	HorizonDays  int       `json:"horizon_days"`
	ModelVersion string    `json:"model_version"`
}

// ParseSignalPayload validates a stored signal record
func ParseSignalPayload(r Record) (SignalPayload, error) {
	ticker := NormalizeTicker(r.String("ticker"))
	if ticker == "" {
		return SignalPayload{}, &DataError{Field: "ticker", Message: "required"}
	}

	side, err := ParseSide(r.String("side"))
	if err != nil {
		return SignalPayload{}, &DataError{Field: "side", Message: err.Error()}
	}

	dateRef, err := r.Date("date_ref")
	if err != nil {
		return SignalPayload{}, &DataError{Field: "date_ref", Message: err.Error()}
	}
	validFor, err := r.Date("valid_for", "entry_date")
	if err != nil {
		return SignalPayload{}, &DataError{Field: "valid_for", Message: err.Error()}
	}

	horizon := r.Int("horizon_days", "horizon")
	if horizon <= 0 {
		return SignalPayload{}, &DataError{Field: "horizon_days", Message: "must be positive"}
	}

	modelVersion := r.String("model_version")
	if modelVersion == "" {
		modelVersion = DefaultModelVersion
	}

	return SignalPayload{
		DateRef:      dateRef,
		ValidFor:     validFor,
		Ticker:       ticker,
		Side:         side,
		Entry:        r.FloatOr("entry", 0),
		Target:       r.FloatOr("target", 0),
		Stop:         r.FloatOr("stop", 0),
		HorizonDays:  horizon,
		ModelVersion: modelVersion,
	}, nil
}

// ParseSignalPayloads parses every record, skipping malformed ones.
// It fails only when the batch is non-empty and every record is malformed.
func ParseSignalPayloads(records []Record) ([]SignalPayload, []error, error) {
	payloads := make([]SignalPayload, 0, len(records))
	var rejected []error
	for i, rec := range records {
		p, err := ParseSignalPayload(rec)
		if err != nil {
			rejected = append(rejected, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		payloads = append(payloads, p)
	}
	if len(records) > 0 && len(payloads) == 0 {
		return nil, rejected, fmt.Errorf("%d signal records: %w", len(records), ErrAllRecordsInvalid)
	}
	return payloads, rejected, nil
}
