package calendar

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/eodsignals/internal/contracts"
)

// MaxSearchDays bounds Next/Previous. Real holiday sets never close the exchange this long.
const MaxSearchDays = 30

// ErrSearchExhausted means no trading day was found within MaxSearchDays
var ErrSearchExhausted = errors.New("no trading day within search window")

// Calendar answers session questions for one exchange
// ⭐ SSOT: 영업일 판단은 이 타입에서만
type Calendar struct {
	holidays map[time.Time]struct{}
}

// New builds a calendar from holiday dates (time of day is ignored)
func New(holidays ...time.Time) *Calendar {
	c := &Calendar{holidays: make(map[time.Time]struct{}, len(holidays))}
	for _, h := range holidays {
		c.holidays[contracts.Day(h)] = struct{}{}
	}
	return c
}

// FromStrings builds a calendar from YYYY-MM-DD strings, dropping malformed entries.
// The number of dropped entries is returned so callers can log it.
func FromStrings(values []string) (*Calendar, int) {
	dates, dropped := NormalizeHolidays(values)
	return New(dates...), dropped
}

// FromHolidays builds a calendar from stored holidays
func FromHolidays(holidays []contracts.Holiday) *Calendar {
	dates := make([]time.Time, 0, len(holidays))
	for _, h := range holidays {
		dates = append(dates, h.Date)
	}
	return New(dates...)
}

// NormalizeHolidays parses holiday strings, silently dropping malformed ones
func NormalizeHolidays(values []string) ([]time.Time, int) {
	seen := make(map[time.Time]struct{}, len(values))
	dates := make([]time.Time, 0, len(values))
	dropped := 0
	for _, v := range values {
		d, err := contracts.ParseDay(v)
		if err != nil {
			dropped++
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, dropped
}

// IsHoliday reports whether date is in the holiday set
func (c *Calendar) IsHoliday(date time.Time) bool {
	_, ok := c.holidays[contracts.Day(date)]
	return ok
}

// IsTradingDay is false on weekends and holidays
func (c *Calendar) IsTradingDay(date time.Time) bool {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.IsHoliday(date)
}

// Next returns the first trading day strictly after date
func (c *Calendar) Next(date time.Time) (time.Time, error) {
	return c.step(date, 1)
}

// Previous returns the last trading day strictly before date
func (c *Calendar) Previous(date time.Time) (time.Time, error) {
	return c.step(date, -1)
}

// AddTradingDays moves |delta| sessions in the sign of delta.
// delta 0 returns date itself when it is a session, otherwise the next session.
func (c *Calendar) AddTradingDays(date time.Time, delta int) (time.Time, error) {
	day := contracts.Day(date)
	if delta == 0 {
		if c.IsTradingDay(day) {
			return day, nil
		}
		return c.Next(day)
	}

	dir := 1
	if delta < 0 {
		dir = -1
		delta = -delta
	}

	var err error
	for i := 0; i < delta; i++ {
		if day, err = c.step(day, dir); err != nil {
			return time.Time{}, err
		}
	}
	return day, nil
}

func (c *Calendar) step(date time.Time, dir int) (time.Time, error) {
	day := contracts.Day(date)
	for i := 0; i < MaxSearchDays; i++ {
		day = day.AddDate(0, 0, dir)
		if c.IsTradingDay(day) {
			return day, nil
		}
	}
	return time.Time{}, fmt.Errorf("from %s (dir %+d, %d days): %w",
		contracts.Day(date).Format(contracts.DateLayout), dir, MaxSearchDays, ErrSearchExhausted)
}
