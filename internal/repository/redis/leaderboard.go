package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// leaderboardKey holds the rendered leaderboard JSON. Versioned so a format
// change invalidates stale caches on deploy.
const leaderboardKey = "leaderboard:v1"

// CachedLeaderboard returns the cached leaderboard JSON, or nil on a miss.
func (c *Client) CachedLeaderboard(ctx context.Context) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, leaderboardKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}
	return json.RawMessage(data), nil
}

// CacheLeaderboard stores the rendered leaderboard for ttl.
func (c *Client) CacheLeaderboard(ctx context.Context, data json.RawMessage, ttl time.Duration) error {
	return c.rdb.Set(ctx, leaderboardKey, []byte(data), ttl).Err()
}

// InvalidateLeaderboard drops the cache, forcing a recompute on next read.
func (c *Client) InvalidateLeaderboard(ctx context.Context) error {
	return c.rdb.Del(ctx, leaderboardKey).Err()
}
