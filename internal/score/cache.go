package score

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps classroom scoreboards in Redis for a short window. A miss or a
// Redis outage just falls through to the database; check-ins invalidate the
// classroom's key via the worker.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a cache. ttl bounds staleness when invalidation is delayed.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(classroomID int64) string {
	return fmt.Sprintf("rollcall:scores:%d", classroomID)
}

// Get returns a cached report, if any. Safe on a nil cache.
func (c *Cache) Get(ctx context.Context, classroomID int64) (*Report, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, cacheKey(classroomID)).Bytes()
	if err != nil {
		return nil, false
	}
	var rep Report
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, false
	}
	return &rep, true
}

// Set stores a report, best effort.
func (c *Cache) Set(ctx context.Context, rep *Report) {
	if c == nil || c.client == nil || rep == nil {
		return
	}
	raw, err := json.Marshal(rep)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(rep.ClassroomID), raw, c.ttl).Err(); err != nil {
		slog.Warn("score cache set failed", "classroom_id", rep.ClassroomID, "error", err)
	}
}

// Invalidate drops a classroom's cached report.
func (c *Cache) Invalidate(ctx context.Context, classroomID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey(classroomID)).Err()
}
