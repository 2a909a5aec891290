package contracts

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the civil date format used at every boundary (DB, HTTP, CLI)
const DateLayout = "2006-01-02"

// Day truncates t to its civil date at 00:00 UTC.
// All date keys in the pipeline go through Day so map lookups and comparisons agree.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string (RFC3339 timestamps are accepted too)
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Day(t), nil
}

// NormalizeTicker trims and uppercases a symbol
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// DailyBar is one ticker's OHLC for one session
// ⭐ SSOT: 캔들 불변식(high/low 범위)은 NewDailyBar에서만 검증
type DailyBar struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`

	// Liquidity fields are optional; zero means the source did not report it
	Turnover float64 `json:"turnover,omitempty"`
	Volume   float64 `json:"volume,omitempty"`
	Quantity float64 `json:"quantity,omitempty"`
}

// NewDailyBar validates and builds a DailyBar
func NewDailyBar(ticker string, date time.Time, open, high, low, close float64) (DailyBar, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return DailyBar{}, &DataError{Field: "ticker", Message: "required"}
	}
	if date.IsZero() {
		return DailyBar{}, &DataError{Field: "date", Message: "required"}
	}
	for _, p := range []struct {
		name  string
		value float64
	}{{"open", open}, {"high", high}, {"low", low}, {"close", close}} {
		if math.IsNaN(p.value) || math.IsInf(p.value, 0) {
			return DailyBar{}, &DataError{Field: p.name, Message: "must be a finite number"}
		}
	}
	if high < math.Max(math.Max(open, close), low) {
		return DailyBar{}, &DataError{Field: "high", Message: fmt.Sprintf("%s %s: high below open/close/low", ticker, date.Format(DateLayout))}
	}
	if low > math.Min(math.Min(open, close), high) {
		return DailyBar{}, &DataError{Field: "low", Message: fmt.Sprintf("%s %s: low above open/close/high", ticker, date.Format(DateLayout))}
	}

	return DailyBar{
		Ticker: ticker,
		Date:   Day(date),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
	}, nil
}

// WithLiquidity returns a copy carrying turnover, volume and quantity traded
func (b DailyBar) WithLiquidity(turnover, volume, quantity float64) DailyBar {
	b.Turnover = turnover
	b.Volume = volume
	b.Quantity = quantity
	return b
}

// Liquidity returns turnover, else volume, else quantity traded, else 0.
// Non-finite values count as absent.
func (b DailyBar) Liquidity() float64 {
	for _, v := range []float64{b.Turnover, b.Volume, b.Quantity} {
		if v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v
		}
	}
	return 0
}

// ParseDailyBar converts a generic record into a DailyBar.
// Missing open/high/low fall back to close; an unparsable close is a DataError.
func ParseDailyBar(r Record) (DailyBar, error) {
	ticker := NormalizeTicker(r.String("ticker"))
	if ticker == "" {
		return DailyBar{}, &DataError{Field: "ticker", Message: "required"}
	}

	date, err := r.Date("date", "trade_date")
	if err != nil {
		return DailyBar{}, &DataError{Field: "date", Message: err.Error()}
	}

	closePrice, ok := r.Float("close")
	if !ok {
		return DailyBar{}, &DataError{Field: "close", Message: "missing or not numeric"}
	}
	open := r.FloatOr("open", closePrice)
	high := r.FloatOr("high", closePrice)
	low := r.FloatOr("low", closePrice)

	bar, err := NewDailyBar(ticker, date, open, high, low, closePrice)
	if err != nil {
		return DailyBar{}, err
	}

	return bar.WithLiquidity(
		r.FloatOr("turnover", 0),
		r.FloatOr("volume", 0),
		r.FloatOr("quantity", 0),
	), nil
}
