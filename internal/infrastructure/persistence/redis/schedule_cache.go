package redis

import (
	"context"
	"errors"
	"time"

	"github.com/eduhub/assessment-engine/internal/application/query"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE PROJECTION CACHE
// ══════════════════════════════════════════════════════════════════════════════

// ScheduleCache implements query.ScheduleCache on Redis.
// Projections are stored under the key the query layer builds
// ("schedule:<student>:<from>:<to>"), so invalidation can match all
// ranges of one student with a single pattern.
type ScheduleCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewScheduleCache creates a schedule projection cache.
// A non-positive ttl falls back to TTLScheduleProjection.
func NewScheduleCache(cache *Cache, ttl time.Duration) *ScheduleCache {
	if ttl <= 0 {
		ttl = TTLScheduleProjection
	}
	return &ScheduleCache{cache: cache, ttl: ttl}
}

// Get returns a cached projection or (nil, nil) on a miss.
func (c *ScheduleCache) Get(ctx context.Context, key string) (*query.ScheduleDTO, error) {
	var dto query.ScheduleDTO
	err := c.cache.Get(ctx, key, &dto)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &dto, nil
}

// Set stores a projection with the configured TTL.
func (c *ScheduleCache) Set(ctx context.Context, key string, dto *query.ScheduleDTO) error {
	return c.cache.Set(ctx, key, dto, c.ttl)
}

// InvalidateStudent drops every cached projection of a student.
// Called when a submission links or a sweep marks a record missed.
func (c *ScheduleCache) InvalidateStudent(ctx context.Context, studentID string) error {
	return c.cache.DeleteByPattern(ctx, StudentSchedulePattern(studentID))
}
