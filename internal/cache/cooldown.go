// Package cache holds optional Redis-backed markers for active quest
// cooldowns. Markers only let repeated claims fail fast; the database stays
// authoritative, so every error here is safe to ignore.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/rewards-backend/internal/config"
	"github.com/tbourn/rewards-backend/internal/domain"
)

const keyPrefix = "cooldown:"

// Open connects to Redis and pings it.
func Open(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Cooldowns stores one expiring key per (account, quest kind).
type Cooldowns struct {
	rdb redis.UniversalClient
}

// NewCooldowns wraps a Redis client.
func NewCooldowns(rdb redis.UniversalClient) *Cooldowns {
	return &Cooldowns{rdb: rdb}
}

// Key returns the marker key for an account and quest kind.
func Key(accountID int64, kind domain.QuestKind) string {
	return fmt.Sprintf("%s%d:%s", keyPrefix, accountID, kind)
}

// Remaining returns the time left on the marker, if one exists.
func (c *Cooldowns) Remaining(ctx context.Context, accountID int64, kind domain.QuestKind) (time.Duration, bool, error) {
	d, err := c.rdb.PTTL(ctx, Key(accountID, kind)).Result()
	if err != nil {
		return 0, false, err
	}
	// -2: no key, -1: no expiry. Neither is a live marker.
	if d <= 0 {
		return 0, false, nil
	}
	return d, true, nil
}

// Mark sets the marker for ttl.
func (c *Cooldowns) Mark(ctx context.Context, accountID int64, kind domain.QuestKind, ttl time.Duration) error {
	return c.rdb.Set(ctx, Key(accountID, kind), 1, ttl).Err()
}

// Purge deletes every cooldown marker.
func (c *Cooldowns) Purge(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 500).Iterator()
	batch := make([]string, 0, 500)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return c.rdb.Del(ctx, batch...).Err()
	}
	return nil
}
