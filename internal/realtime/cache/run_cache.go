package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/wonny/eodsignals/pkg/logger"
)

// RunCache keeps the latest run event of every job for websocket snapshots
// ⭐ SSOT: 최근 실행 상태 캐싱은 이 구조체에서만
type RunCache struct {
	mu     sync.RWMutex
	events map[string]logger.RunEvent
	ttl    time.Duration
	logger *logger.Logger
}

// NewRunCache creates a new run cache; events older than ttl are stale
func NewRunCache(ttl time.Duration, log *logger.Logger) *RunCache {
	return &RunCache{
		events: make(map[string]logger.RunEvent),
		ttl:    ttl,
		logger: log,
	}
}

// Update stores event as the job's latest.
// Older events are rejected; the same timestamp is accepted only for a different run.
func (c *RunCache) Update(event logger.RunEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, exists := c.events[event.JobName]
	if exists {
		if event.Timestamp.Before(existing.Timestamp) {
			c.logger.WithFields(map[string]interface{}{
				"job":      event.JobName,
				"new_time": event.Timestamp,
				"old_time": existing.Timestamp,
			}).Debug("Rejected older run event")
			return false
		}
		if event.Timestamp.Equal(existing.Timestamp) && event.RunID == existing.RunID && event.Status == existing.Status {
			return false
		}
	}

	c.events[event.JobName] = event
	return true
}

// All returns the latest event of every job, sorted by job name
func (c *RunCache) All() []logger.RunEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]logger.RunEvent, 0, len(c.events))
	for _, event := range c.events {
		result = append(result, event)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].JobName < result[j].JobName })
	return result
}

// CleanStale removes events older than the ttl
func (c *RunCache) CleanStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	count := 0
	for job, event := range c.events {
		if now.Sub(event.Timestamp) > c.ttl {
			delete(c.events, job)
			count++
		}
	}

	if count > 0 {
		c.logger.WithField("count", count).Info("Cleaned stale run events from cache")
	}
	return count
}

// Stats returns cache statistics
func (c *RunCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{TotalCount: len(c.events)}
	now := time.Now()
	for _, event := range c.events {
		if now.Sub(event.Timestamp) > c.ttl {
			stats.StaleCount++
		}
		switch event.Status {
		case logger.RunStarted:
			stats.RunningCount++
		case logger.RunError:
			stats.ErrorCount++
		}
	}
	stats.FreshCount = stats.TotalCount - stats.StaleCount
	return stats
}

// CacheStats represents cache statistics
type CacheStats struct {
	TotalCount   int `json:"total_count"`
	FreshCount   int `json:"fresh_count"`
	StaleCount   int `json:"stale_count"`
	RunningCount int `json:"running_count"`
	ErrorCount   int `json:"error_count"`
}
