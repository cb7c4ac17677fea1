package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/freeholdgames/stellar-dominion/internal/repository"
)

// Key patterns for session storage.
func sessionKey(sessionID string) string       { return "session:" + sessionID }
func playerSessionsKey(playerID string) string { return "player:" + playerID + ":sessions" }

// CreateSession stores a session hash with the player binding and the hash of
// its refresh token, expiring with the refresh TTL. The session is also
// indexed per player so RevokeAllSessions can find it.
func (c *Client) CreateSession(ctx context.Context, sessionID, playerID, refreshHash string, ttl time.Duration) error {
	key := sessionKey(sessionID)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, "player_id", playerID, "refresh_hash", refreshHash)
	pipe.Expire(ctx, key, ttl)
	pipe.SAdd(ctx, playerSessionsKey(playerID), sessionID)
	pipe.Expire(ctx, playerSessionsKey(playerID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// SessionPlayer returns the player bound to a session, or "" when the
// session does not exist or has expired.
func (c *Client) SessionPlayer(ctx context.Context, sessionID string) (string, error) {
	playerID, err := c.rdb.HGet(ctx, sessionKey(sessionID), "player_id").Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get session player: %w", err)
	}
	return playerID, nil
}

// SessionRefreshHash returns the stored refresh token hash, or "" when the
// session is gone.
func (c *Client) SessionRefreshHash(ctx context.Context, sessionID string) (string, error) {
	hash, err := c.rdb.HGet(ctx, sessionKey(sessionID), "refresh_hash").Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get refresh hash: %w", err)
	}
	return hash, nil
}

// RotateRefresh swaps in a fresh refresh token hash and renews the session
// TTL. Rotating a dead session fails with ErrStateConflict.
func (c *Client) RotateRefresh(ctx context.Context, sessionID, refreshHash string, ttl time.Duration) error {
	key := sessionKey(sessionID)
	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("session %s gone: %w", sessionID, repository.ErrStateConflict)
	}
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, "refresh_hash", refreshHash)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rotate refresh: %w", err)
	}
	return nil
}

// DeleteSession removes one session (logout).
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	playerID, err := c.SessionPlayer(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if playerID != "" {
		if err := c.rdb.SRem(ctx, playerSessionsKey(playerID), sessionID).Err(); err != nil {
			return fmt.Errorf("unindex session: %w", err)
		}
	}
	return nil
}

// RevokeAllSessions drops every session of a player and returns how many it
// removed. Used on password change.
func (c *Client) RevokeAllSessions(ctx context.Context, playerID string) (int, error) {
	setKey := playerSessionsKey(playerID)
	sessionIDs, err := c.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	keys := make([]string, 0, len(sessionIDs)+1)
	for _, id := range sessionIDs {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, setKey)
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	return len(sessionIDs), nil
}
