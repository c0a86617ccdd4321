package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wayfarerhq/tripbook/internal/gcal"
	"github.com/wayfarerhq/tripbook/pkg/logging"
)

// BusyCache keeps short-lived snapshots of calendar busy intervals in Redis
// so repeated availability queries for the same specialist and date don't
// hammer the calendar API. Cache failures are never surfaced; callers fall
// through to the gateway.
type BusyCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

type cachedInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewBusyCache creates a busy-interval cache with the given TTL.
func NewBusyCache(rdb *redis.Client, ttl time.Duration, logger *logging.Logger) *BusyCache {
	if rdb == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &BusyCache{rdb: rdb, ttl: ttl, logger: logger}
}

func busyKey(specialistID string, day time.Time) string {
	return fmt.Sprintf("busy:%s:%s", specialistID, day.Format("2006-01-02"))
}

// Get returns the cached busy intervals for a specialist and day, if present.
func (c *BusyCache) Get(ctx context.Context, specialistID string, day time.Time) ([]gcal.Interval, bool) {
	raw, err := c.rdb.Get(ctx, busyKey(specialistID, day)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("availability: busy cache read failed", "error", err)
		}
		return nil, false
	}
	var cached []cachedInterval
	if err := json.Unmarshal(raw, &cached); err != nil {
		c.logger.Warn("availability: busy cache decode failed", "error", err)
		return nil, false
	}
	intervals := make([]gcal.Interval, 0, len(cached))
	for _, ci := range cached {
		intervals = append(intervals, gcal.Interval{Start: ci.Start, End: ci.End})
	}
	return intervals, true
}

// Set stores busy intervals for a specialist and day, best effort.
func (c *BusyCache) Set(ctx context.Context, specialistID string, day time.Time, intervals []gcal.Interval) {
	cached := make([]cachedInterval, 0, len(intervals))
	for _, iv := range intervals {
		cached = append(cached, cachedInterval{Start: iv.Start, End: iv.End})
	}
	raw, err := json.Marshal(cached)
	if err != nil {
		c.logger.Warn("availability: busy cache encode failed", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, busyKey(specialistID, day), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("availability: busy cache write failed", "error", err)
	}
}
