// Package redis backs the volatile half of the game state: login sessions,
// the cached leaderboard, and the turn deadline key the scheduler watches.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dialTimeout = 5 * time.Second

// Client wraps a redis connection. Session, leaderboard, and turn-deadline
// operations hang off it as methods.
type Client struct {
	rdb *redis.Client
}

// NewClient connects using a redis:// URL and verifies the server answers
// before handing the client out.
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying exposes the raw client for keyspace-notification subscriptions
// and health checks.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
