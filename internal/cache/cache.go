// Package cache is a read-through, time-bounded cache in front of the
// persisted signal rows. It is never a write path and never a second
// source of truth: a miss, a corrupt entry or a redis outage all fall
// through to the store, and entries expire on their own.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"signaldrop/internal/models"
)

type SignalCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewSignalCache(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *SignalCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "signaldrop"
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &SignalCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *SignalCache) key(userID string) string {
	return fmt.Sprintf("%s:active:%s", c.prefix, userID)
}

// GetActive returns the cached active set for a user. A miss and a
// redis error look the same to the caller: not cached.
func (c *SignalCache) GetActive(ctx context.Context, userID string) ([]models.DistributedSignal, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.key(userID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("cache get failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, false
	}
	var rows []models.DistributedSignal
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		c.logger.Warn("cache entry corrupt, dropped", zap.String("user_id", userID), zap.Error(err))
		_ = c.client.Del(ctx, c.key(userID)).Err()
		return nil, false
	}
	return rows, true
}

func (c *SignalCache) SetActive(ctx context.Context, userID string, rows []models.DistributedSignal) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		c.logger.Warn("cache marshal failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.key(userID), raw, c.ttl).Err(); err != nil {
		c.logger.Debug("cache set failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// InvalidateUser drops the user's cached set, called when one of their
// rows mutates so the next poll reads the store.
func (c *SignalCache) InvalidateUser(ctx context.Context, userID string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		c.logger.Debug("cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}
