package repos

import (
	"context"
	"time"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/logger"
	"github.com/wonny/eodsignals/pkg/redis"
)

// CachedMetricStore is a read-through cache over the latest metrics snapshot.
// ReplaceMetrics invalidates the cached snapshot.
type CachedMetricStore struct {
	inner  contracts.MetricStore
	cache  *redis.Cache
	logger *logger.Logger
}

// NewCachedMetricStore wraps inner; a disabled redis client makes every call a pass-through
func NewCachedMetricStore(inner contracts.MetricStore, cache *redis.Cache, log *logger.Logger) *CachedMetricStore {
	return &CachedMetricStore{inner: inner, cache: cache, logger: log}
}

// ReplaceMetrics writes through and drops the cached snapshot
func (c *CachedMetricStore) ReplaceMetrics(ctx context.Context, asOf time.Time, rows []contracts.MetricRow) error {
	if err := c.inner.ReplaceMetrics(ctx, asOf, rows); err != nil {
		return err
	}
	if err := c.cache.Delete(ctx, redis.LatestMetricsKey()); err != nil {
		c.logger.WithError(err).Warn("Failed to invalidate metrics cache")
	}
	return nil
}

// LatestSnapshot serves from cache when present
func (c *CachedMetricStore) LatestSnapshot(ctx context.Context) ([]contracts.MetricRow, error) {
	var rows []contracts.MetricRow
	found, err := c.cache.Get(ctx, redis.LatestMetricsKey(), &rows)
	if err != nil {
		c.logger.WithError(err).Warn("Metrics cache read failed")
	}
	if found {
		return rows, nil
	}

	rows, err = c.inner.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, redis.LatestMetricsKey(), rows, redis.TTLMedium); err != nil {
		c.logger.WithError(err).Warn("Metrics cache write failed")
	}
	return rows, nil
}

// CountMetrics is not cached
func (c *CachedMetricStore) CountMetrics(ctx context.Context, asOf time.Time) (int, error) {
	return c.inner.CountMetrics(ctx, asOf)
}
