package contracts

import "time"

// ExitReason is the terminal state of a simulated signal
type ExitReason string

const (
	ExitTarget ExitReason = "TARGET"
	ExitStop   ExitReason = "STOP"
	ExitExpire ExitReason = "EXPIRE"
	ExitNoFill ExitReason = "NO_FILL"
	ExitNoData ExitReason = "NO_DATA"
)

// AllExitReasons lists every state the simulator can return
func AllExitReasons() []ExitReason {
	return []ExitReason{ExitTarget, ExitStop, ExitExpire, ExitNoFill, ExitNoData}
}

// Valid reports whether r is one of AllExitReasons
func (r ExitReason) Valid() bool {
	switch r {
	case ExitTarget, ExitStop, ExitExpire, ExitNoFill, ExitNoData:
		return true
	}
	return false
}

// BacktestTrade is the simulated outcome of one signal
type BacktestTrade struct {
	SignalPayload

	EntryHit      bool       `json:"entry_hit"`
	EntryFillDate *time.Time `json:"entry_fill_date"`
	ExitDate      *time.Time `json:"exit_date"`
	ExitReason    ExitReason `json:"exit_reason"`
	ExitPrice     *float64   `json:"exit_price"`
	ReturnPct     float64    `json:"return_pct"`
	MFEPct        *float64   `json:"mfe_pct"`
	MAEPct        *float64   `json:"mae_pct"`
}

// DaysInTrade is exit - fill + 1 in calendar days; ok is false unless both dates are set
func (t BacktestTrade) DaysInTrade() (int, bool) {
	if t.EntryFillDate == nil || t.ExitDate == nil {
		return 0, false
	}
	days := int(Day(*t.ExitDate).Sub(Day(*t.EntryFillDate)).Hours()/24) + 1
	return days, true
}
