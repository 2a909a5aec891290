package repos

import (
	"context"
	"time"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/logger"
	"github.com/wonny/eodsignals/pkg/redis"
)

// CachedSignalStore caches the signals of each date_ref.
// ReplaceSignals drops the cached partition.
type CachedSignalStore struct {
	inner  contracts.SignalStore
	cache  *redis.Cache
	logger *logger.Logger
}

// NewCachedSignalStore wraps inner; a disabled redis client makes every call a pass-through
func NewCachedSignalStore(inner contracts.SignalStore, cache *redis.Cache, log *logger.Logger) *CachedSignalStore {
	return &CachedSignalStore{inner: inner, cache: cache, logger: log}
}

func signalsKey(dateRef time.Time) string {
	return redis.SignalsKey(contracts.Day(dateRef).Format(contracts.DateLayout))
}

// ReplaceSignals writes through and drops the cached date_ref
func (c *CachedSignalStore) ReplaceSignals(ctx context.Context, dateRef time.Time, signals []contracts.ConditionalSignal, meta contracts.RunMetadata) error {
	if err := c.inner.ReplaceSignals(ctx, dateRef, signals, meta); err != nil {
		return err
	}
	if err := c.cache.Delete(ctx, signalsKey(dateRef)); err != nil {
		c.logger.WithError(err).Warn("Failed to invalidate signals cache")
	}
	return nil
}

// GetSignals serves from cache when present
func (c *CachedSignalStore) GetSignals(ctx context.Context, dateRef time.Time) ([]contracts.ConditionalSignal, error) {
	var signals []contracts.ConditionalSignal
	err := c.cache.GetOrSet(ctx, signalsKey(dateRef), &signals, redis.TTLLong, func() (interface{}, error) {
		return c.inner.GetSignals(ctx, dateRef)
	})
	if err != nil {
		return nil, err
	}
	return signals, nil
}

// GetSignalRecords is not cached
func (c *CachedSignalStore) GetSignalRecords(ctx context.Context, dateRef time.Time) ([]contracts.Record, error) {
	return c.inner.GetSignalRecords(ctx, dateRef)
}
