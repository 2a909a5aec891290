package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/wonny/eodsignals/internal/contracts"
)

// SameBarPolicy decides the exit when one daily bar touches both stop and target.
// Daily bars carry no intraday order, so this is a modeling assumption.
type SameBarPolicy int

const (
	// StopFirst assumes the stop traded first (conservative, the production policy)
	StopFirst SameBarPolicy = iota
	// TargetFirst assumes the target traded first (optimistic bound, for sensitivity runs)
	TargetFirst
)

func (p SameBarPolicy) String() string {
	if p == TargetFirst {
		return "target_first"
	}
	return "stop_first"
}

// ParsePolicy reads a policy name; empty means StopFirst
func ParsePolicy(s string) (SameBarPolicy, error) {
	switch s {
	case "", "stop_first":
		return StopFirst, nil
	case "target_first":
		return TargetFirst, nil
	}
	return StopFirst, &contracts.ConfigError{Field: "policy", Message: fmt.Sprintf("unknown same-bar policy %q", s)}
}

// CandleLookup indexes daily bars by ticker then date
type CandleLookup map[string]map[time.Time]contracts.DailyBar

// BuildCandleLookup groups bars by ticker/date; a repeated (ticker, date) keeps the last bar
func BuildCandleLookup(bars []contracts.DailyBar) CandleLookup {
	lookup := make(CandleLookup)
	for _, bar := range bars {
		ticker := contracts.NormalizeTicker(bar.Ticker)
		if ticker == "" {
			continue
		}
		byDate, ok := lookup[ticker]
		if !ok {
			byDate = make(map[time.Time]contracts.DailyBar)
			lookup[ticker] = byDate
		}
		bar.Ticker = ticker
		bar.Date = contracts.Day(bar.Date)
		byDate[bar.Date] = bar
	}
	return lookup
}

// Window returns up to n bars of ticker on or after from, ascending
func (l CandleLookup) Window(ticker string, from time.Time, n int) []contracts.DailyBar {
	byDate := l[ticker]
	if len(byDate) == 0 || n <= 0 {
		return nil
	}
	from = contracts.Day(from)

	window := make([]contracts.DailyBar, 0, len(byDate))
	for date, bar := range byDate {
		if !date.Before(from) {
			window = append(window, bar)
		}
	}
	sort.Slice(window, func(i, j int) bool { return window[i].Date.Before(window[j].Date) })
	if len(window) > n {
		window = window[:n]
	}
	return window
}

// Simulate resolves one signal against its candle window.
// It never fails: every signal ends in exactly one ExitReason.
func Simulate(signal contracts.SignalPayload, lookup CandleLookup, policy SameBarPolicy) contracts.BacktestTrade {
	trade := contracts.BacktestTrade{
		SignalPayload: signal,
		ExitReason:    contracts.ExitNoFill,
	}

	window := lookup.Window(signal.Ticker, signal.ValidFor, signal.HorizonDays)
	if len(window) == 0 {
		trade.ExitReason = contracts.ExitNoData
		return trade
	}

	var mfe, mae *float64
	for _, bar := range window {
		if !trade.EntryHit {
			if !entryTouched(signal, bar) {
				continue
			}
			trade.EntryHit = true
			fill := bar.Date
			trade.EntryFillDate = &fill
		}

		mfe, mae = updateExcursions(signal, bar, mfe, mae)

		if reason, price, ok := checkExit(signal, bar, policy); ok {
			exitDate := bar.Date
			trade.ExitReason = reason
			trade.ExitDate = &exitDate
			trade.ExitPrice = &price
			break
		}
	}

	trade.MFEPct, trade.MAEPct = mfe, mae

	if !trade.EntryHit {
		return trade
	}

	if trade.ExitPrice == nil {
		last := window[len(window)-1]
		price, date := last.Close, last.Date
		trade.ExitReason = contracts.ExitExpire
		trade.ExitPrice = &price
		trade.ExitDate = &date
	}

	trade.ReturnPct = Return(signal.Side, signal.Entry, *trade.ExitPrice)
	return trade
}

// Return is the signed return of a position; 0 when entry is 0
func Return(side contracts.Side, entry, exit float64) float64 {
	if entry == 0 {
		return 0
	}
	if side == contracts.SideSell {
		return (entry - exit) / entry
	}
	return (exit - entry) / entry
}

func entryTouched(signal contracts.SignalPayload, bar contracts.DailyBar) bool {
	if signal.Side == contracts.SideSell {
		return bar.High >= signal.Entry
	}
	return bar.Low <= signal.Entry
}

func updateExcursions(signal contracts.SignalPayload, bar contracts.DailyBar, mfe, mae *float64) (*float64, *float64) {
	e := signal.Entry
	if e <= 0 {
		return mfe, mae
	}

	favorable := (bar.High - e) / e
	adverse := (bar.Low - e) / e
	if signal.Side == contracts.SideSell {
		favorable = (e - bar.Low) / e
		adverse = (e - bar.High) / e
	}

	if mfe == nil || favorable > *mfe {
		mfe = &favorable
	}
	if mae == nil || adverse < *mae {
		mae = &adverse
	}
	return mfe, mae
}

func checkExit(signal contracts.SignalPayload, bar contracts.DailyBar, policy SameBarPolicy) (contracts.ExitReason, float64, bool) {
	var hitStop, hitTarget bool
	if signal.Side == contracts.SideSell {
		hitStop = bar.High >= signal.Stop
		hitTarget = bar.Low <= signal.Target
	} else {
		hitStop = bar.Low <= signal.Stop
		hitTarget = bar.High >= signal.Target
	}

	switch {
	case hitStop && hitTarget && policy == TargetFirst:
		return contracts.ExitTarget, signal.Target, true
	case hitStop:
		return contracts.ExitStop, signal.Stop, true
	case hitTarget:
		return contracts.ExitTarget, signal.Target, true
	}
	return "", 0, false
}
