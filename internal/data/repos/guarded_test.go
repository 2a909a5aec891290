package repos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/logger"
)

type flakyCandles struct {
	err   error
	calls int
	bars  []contracts.DailyBar
}

func (f *flakyCandles) GetDailyBars(ctx context.Context, date time.Time) ([]contracts.DailyBar, error) {
	f.calls++
	return f.bars, f.err
}

func (f *flakyCandles) GetBarsRange(ctx context.Context, tickers []string, from, to time.Time) ([]contracts.DailyBar, error) {
	f.calls++
	return f.bars, f.err
}

func TestGuardedCandleStore_Passthrough(t *testing.T) {
	bar, err := contracts.NewDailyBar("AAA", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 10, 11, 9, 10.5)
	require.NoError(t, err)
	inner := &flakyCandles{bars: []contracts.DailyBar{bar}}
	store := NewGuardedCandleStore(inner, DefaultBreakerSettings(), logger.Nop())

	got, err := store.GetDailyBars(context.Background(), bar.Date)
	require.NoError(t, err)
	assert.Equal(t, []contracts.DailyBar{bar}, got)

	got, err = store.GetBarsRange(context.Background(), []string{"AAA"}, bar.Date, bar.Date)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "closed", store.State())
}

func TestGuardedCandleStore_Trips(t *testing.T) {
	inner := &flakyCandles{err: errors.New("connection refused")}
	store := NewGuardedCandleStore(inner, BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute}, logger.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := store.GetDailyBars(ctx, time.Now())
		assert.EqualError(t, err, "connection refused")
	}
	assert.Equal(t, "open", store.State())

	_, err := store.GetDailyBars(ctx, time.Now())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls, "open breaker must not reach the store")
}
