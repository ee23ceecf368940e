package docsink

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tgrelay/internal/constants"
)

// DedupCache is a best-effort fast path in front of the Mongo lookup.
// A SETNX miss is authoritative evidence of a duplicate; a hit still falls
// through to the store, which remains the source of truth.
type DedupCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDedupCache(client *redis.Client, ttlSeconds int) *DedupCache {
	return &DedupCache{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}
}

// Seen marks the pair as observed and reports whether it had been observed
// before within the TTL window.
func (c *DedupCache) Seen(ctx context.Context, chatID, messageID int64) (bool, error) {
	key := fmt.Sprintf("%s%d:%d", constants.CacheKeyPrefixDedup, chatID, messageID)

	inserted, err := c.client.SetNX(ctx, key, time.Now().Unix(), c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX failed: %w", err)
	}
	return !inserted, nil
}
