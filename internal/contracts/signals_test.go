package contracts

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{"", SideBuy, false},
		{"buy", SideBuy, false},
		{" SELL ", SideSell, false},
		{"short", "", true},
	}

	for _, tt := range tests {
		got, err := ParseSide(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseSignalPayload(t *testing.T) {
	base := func() Record {
		return Record{
			"date_ref":     "2024-01-02",
			"valid_for":    "2024-01-03",
			"ticker":       "test3",
			"side":         "",
			"entry":        10.0,
			"target":       10.5,
			"stop":         9.5,
			"horizon_days": int64(3),
		}
	}

	t.Run("defaults", func(t *testing.T) {
		p, err := ParseSignalPayload(base())
		require.NoError(t, err)
		assert.Equal(t, "TEST3", p.Ticker)
		assert.Equal(t, SideBuy, p.Side)
		assert.Equal(t, DefaultModelVersion, p.ModelVersion)
		assert.Equal(t, 3, p.HorizonDays)
		assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), p.ValidFor)
	})

	t.Run("valid_for falls back to entry_date", func(t *testing.T) {
		r := base()
		delete(r, "valid_for")
		r["entry_date"] = time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
		p, err := ParseSignalPayload(r)
		require.NoError(t, err)
		assert.Equal(t, 4, p.ValidFor.Day())
	})

	t.Run("blank ticker", func(t *testing.T) {
		r := base()
		r["ticker"] = "   "
		_, err := ParseSignalPayload(r)
		assert.True(t, IsDataError(err))
	})

	t.Run("non-positive horizon", func(t *testing.T) {
		r := base()
		r["horizon_days"] = 0
		_, err := ParseSignalPayload(r)
		var de *DataError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "horizon_days", de.Field)
	})
}

func TestParseSignalPayloads(t *testing.T) {
	good := Record{"date_ref": "2024-01-02", "valid_for": "2024-01-03", "ticker": "AAA", "horizon_days": 5}
	bad := Record{"date_ref": "2024-01-02", "valid_for": "2024-01-03", "ticker": "", "horizon_days": 5}

	payloads, rejected, err := ParseSignalPayloads([]Record{good, bad})
	require.NoError(t, err)
	assert.Len(t, payloads, 1)
	assert.Len(t, rejected, 1)

	_, _, err = ParseSignalPayloads([]Record{bad, bad})
	assert.True(t, errors.Is(err, ErrAllRecordsInvalid))

	payloads, _, err = ParseSignalPayloads(nil)
	require.NoError(t, err)
	assert.Empty(t, payloads)
}

func TestBacktestTrade_DaysInTrade(t *testing.T) {
	fill := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	exit := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	trade := BacktestTrade{EntryHit: true, EntryFillDate: &fill, ExitDate: &exit}
	days, ok := trade.DaysInTrade()
	require.True(t, ok)
	assert.Equal(t, 3, days)

	_, ok = BacktestTrade{EntryHit: true, EntryFillDate: &fill}.DaysInTrade()
	assert.False(t, ok)
}

func TestBacktestTrade_JSONFlattensPayload(t *testing.T) {
	trade := BacktestTrade{
		SignalPayload: SignalPayload{Ticker: "AAA", Side: SideSell, HorizonDays: 10},
		ExitReason:    ExitNoData,
	}

	data, err := json.Marshal(trade)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "AAA", decoded["ticker"])
	assert.Equal(t, "NO_DATA", decoded["exit_reason"])
	assert.Nil(t, decoded["exit_price"])
}

func TestExitReason_Valid(t *testing.T) {
	for _, r := range AllExitReasons() {
		assert.True(t, r.Valid(), r)
	}
	assert.False(t, ExitReason("CANCEL").Valid())
}
