package calendar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/config"
	"github.com/wonny/eodsignals/pkg/httputil"
	"github.com/wonny/eodsignals/pkg/logger"
)

func day(s string) time.Time {
	d, err := contracts.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestIsTradingDay(t *testing.T) {
	cal := New(day("2024-01-01"))

	tests := []struct {
		date string
		want bool
	}{
		{"2024-01-01", false}, // Monday holiday
		{"2024-01-02", true},
		{"2024-01-05", true},  // Friday
		{"2024-01-06", false}, // Saturday
		{"2024-01-07", false}, // Sunday
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cal.IsTradingDay(day(tt.date)), tt.date)
	}
}

func TestNextPrevious(t *testing.T) {
	cal := New(day("2024-01-01"), day("2024-02-12"), day("2024-02-13"))

	tests := []struct {
		name     string
		from     string
		next     string
		previous string
	}{
		{"friday rolls over weekend", "2024-01-05", "2024-01-08", "2024-01-04"},
		{"skips holiday", "2023-12-29", "2024-01-02", "2023-12-28"},
		{"carnival", "2024-02-09", "2024-02-14", "2024-02-08"},
		{"from a sunday", "2024-01-07", "2024-01-08", "2024-01-05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := cal.Next(day(tt.from))
			require.NoError(t, err)
			assert.Equal(t, day(tt.next), next)

			prev, err := cal.Previous(day(tt.from))
			require.NoError(t, err)
			assert.Equal(t, day(tt.previous), prev)
		})
	}
}

func TestNext_SearchExhausted(t *testing.T) {
	var closed []time.Time
	start := day("2024-03-01")
	for i := 1; i <= MaxSearchDays+5; i++ {
		closed = append(closed, start.AddDate(0, 0, i))
	}
	cal := New(closed...)

	_, err := cal.Next(start)
	assert.True(t, errors.Is(err, ErrSearchExhausted))

	_, err = cal.Previous(start.AddDate(0, 0, MaxSearchDays+6))
	assert.True(t, errors.Is(err, ErrSearchExhausted))
}

func TestAddTradingDays(t *testing.T) {
	cal := New(day("2024-01-01"))

	tests := []struct {
		from  string
		delta int
		want  string
	}{
		{"2024-01-02", 0, "2024-01-02"},
		{"2024-01-06", 0, "2024-01-08"}, // Saturday resolves forward
		{"2024-01-01", 0, "2024-01-02"}, // holiday resolves forward
		{"2024-01-04", 2, "2024-01-08"},
		{"2024-01-08", -1, "2024-01-05"},
		{"2024-01-03", -2, "2023-12-29"},
	}

	for _, tt := range tests {
		got, err := cal.AddTradingDays(day(tt.from), tt.delta)
		require.NoError(t, err)
		assert.Equal(t, day(tt.want), got, "%s %+d", tt.from, tt.delta)
	}
}

func TestNormalizeHolidays(t *testing.T) {
	dates, dropped := NormalizeHolidays([]string{"2024-12-25", "bad", "", "2024-01-01", "2024-12-25"})
	assert.Equal(t, 2, dropped)
	assert.Equal(t, []time.Time{day("2024-01-01"), day("2024-12-25")}, dates)

	cal, dropped := FromStrings([]string{"2024-12-25", "31/12/2024"})
	assert.Equal(t, 1, dropped)
	assert.False(t, cal.IsTradingDay(day("2024-12-25")))
	assert.True(t, cal.IsTradingDay(day("2024-12-31")))
}

const holidayPage = `<html><body>
<table>
  <tr><th>Data</th><th>Feriado</th></tr>
  <tr><td>01/01/2024</td><td>Confraternização Universal</td></tr>
  <tr><td>2024-02-12</td><td>Carnaval</td></tr>
  <tr><td>2024.02.13</td><td>  Carnaval  </td></tr>
  <tr><td>a definir</td><td>Eleições</td></tr>
  <tr><td>01/01/2024</td><td>duplicate</td></tr>
</table>
</body></html>`

func TestParseHolidayHTML(t *testing.T) {
	holidays, skipped, err := ParseHolidayHTML(holidayPage)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, holidays, 3)
	assert.Equal(t, day("2024-01-01"), holidays[0].Date)
	assert.Equal(t, "Carnaval", holidays[2].Name)
}

type memoryHolidays struct {
	stored []contracts.Holiday
}

func (m *memoryHolidays) ListHolidays(ctx context.Context, from, to time.Time) ([]contracts.Holiday, error) {
	var out []contracts.Holiday
	for _, h := range m.stored {
		if !h.Date.Before(from) && !h.Date.After(to) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memoryHolidays) UpsertHolidays(ctx context.Context, holidays []contracts.Holiday) error {
	m.stored = append(m.stored, holidays...)
	return nil
}

func TestHolidayScraper_Sync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(holidayPage))
	}))
	defer srv.Close()

	client := httputil.New(&config.Config{}, logger.Nop()).WithRetry(0, 0)
	scraper := NewHolidayScraper(client, logger.Nop(), srv.URL)
	store := &memoryHolidays{}

	n, err := scraper.Sync(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	cal, err := Load(context.Background(), store, day("2024-01-01"), day("2024-12-31"))
	require.NoError(t, err)
	next, err := cal.Next(day("2024-02-09"))
	require.NoError(t, err)
	assert.Equal(t, day("2024-02-14"), next)
}

func TestHolidayScraper_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := httputil.New(&config.Config{}, logger.Nop()).WithRetry(0, 0)

	_, err := NewHolidayScraper(client, logger.Nop(), srv.URL).Fetch(context.Background())
	assert.Error(t, err)

	_, err = NewHolidayScraper(client, logger.Nop(), "").Fetch(context.Background())
	assert.Error(t, err)
}
