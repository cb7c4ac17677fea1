package redis

import (
	"context"
	"time"
)

// TurnDeadlineKey is the timer key for the global turn. When it expires,
// Redis keyspace notifications trigger turn advancement.
const TurnDeadlineKey = "game:turn:deadline"

// turnGracePeriod is the extra time after the displayed deadline before
// advancement triggers, giving in-flight actions a few seconds of leeway.
const turnGracePeriod = 5 * time.Second

// SetTurnDeadline creates the turn timer key with a TTL that expires slightly
// after the displayed deadline.
func (c *Client) SetTurnDeadline(ctx context.Context, deadline time.Time) error {
	ttl := time.Until(deadline) + turnGracePeriod
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.rdb.Set(ctx, TurnDeadlineKey, deadline.Unix(), ttl).Err()
}

// ClearTurnDeadline removes the turn timer.
func (c *Client) ClearTurnDeadline(ctx context.Context) error {
	return c.rdb.Del(ctx, TurnDeadlineKey).Err()
}
