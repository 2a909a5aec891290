package repos

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/logger"
)

// GuardedCandleStore trips after repeated candle read failures so a dead
// database fails the pipeline fast instead of stacking timeouts.
type GuardedCandleStore struct {
	inner   contracts.CandleStore
	breaker *gobreaker.CircuitBreaker
}

// BreakerSettings tunes the candle breaker
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// DefaultBreakerSettings trips after 3 consecutive failures and half-opens again after 60s
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 3, OpenTimeout: 60 * time.Second}
}

// NewGuardedCandleStore wraps inner with a circuit breaker
func NewGuardedCandleStore(inner contracts.CandleStore, settings BreakerSettings, log *logger.Logger) *GuardedCandleStore {
	st := gobreaker.Settings{
		Name:     "candles",
		Interval: 60 * time.Second,
		Timeout:  settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}
	return &GuardedCandleStore{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// GetDailyBars delegates through the breaker
func (g *GuardedCandleStore) GetDailyBars(ctx context.Context, date time.Time) ([]contracts.DailyBar, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.GetDailyBars(ctx, date)
	})
	if err != nil {
		return nil, err
	}
	return out.([]contracts.DailyBar), nil
}

// GetBarsRange delegates through the breaker
func (g *GuardedCandleStore) GetBarsRange(ctx context.Context, tickers []string, from, to time.Time) ([]contracts.DailyBar, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.GetBarsRange(ctx, tickers, from, to)
	})
	if err != nil {
		return nil, err
	}
	return out.([]contracts.DailyBar), nil
}

// State returns the breaker state name (closed, half-open, open)
func (g *GuardedCandleStore) State() string {
	return g.breaker.State().String()
}
