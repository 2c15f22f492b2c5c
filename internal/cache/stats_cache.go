package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/coupon-groups/internal/model"
)

const statsKeyPrefix = "coupon-groups:stats:"

// Cmdable is the subset of the go-redis client used by StatsCache.
type Cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// StatsCache keeps group stats in Redis for a fixed TTL. Entries are not
// invalidated on redemption; readers accept stats up to ttl old.
type StatsCache struct {
	client Cmdable
	ttl    time.Duration
}

// NewStatsCache creates a StatsCache.
func NewStatsCache(client Cmdable, ttl time.Duration) *StatsCache {
	return &StatsCache{client: client, ttl: ttl}
}

// NewClient opens a go-redis client for addr.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func statsKey(groupID int64) string {
	return fmt.Sprintf("%s%d", statsKeyPrefix, groupID)
}

// Get returns the cached stats. The bool is false on a miss.
func (c *StatsCache) Get(ctx context.Context, groupID int64) (*model.GroupStats, bool, error) {
	raw, err := c.client.Get(ctx, statsKey(groupID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached stats: %w", err)
	}

	var stats model.GroupStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, false, fmt.Errorf("decode cached stats: %w", err)
	}
	return &stats, true, nil
}

// Set stores stats for the configured TTL.
func (c *StatsCache) Set(ctx context.Context, groupID int64, stats *model.GroupStats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if err := c.client.Set(ctx, statsKey(groupID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached stats: %w", err)
	}
	return nil
}
