package gcal

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// KnownIDCache remembers remote event ids the importer has already seen, per
// professional, so repeated runs skip the appointment scan for them. It is an
// optimization layer only: the window-bounded scan of appointments stays the
// source of truth, and a cold or absent cache just means more scanning.
type KnownIDCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewKnownIDCache wraps a redis client. A nil client disables the cache.
func NewKnownIDCache(client *redis.Client, ttl time.Duration) *KnownIDCache {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &KnownIDCache{client: client, ttl: ttl}
}

func (c *KnownIDCache) key(professionalID string) string {
	return "gcal:known:" + professionalID
}

// Known returns the cached ids for a professional. Errors degrade to an empty
// set; the importer falls back to its scan.
func (c *KnownIDCache) Known(ctx context.Context, professionalID string) map[string]bool {
	if c == nil || c.client == nil {
		return nil
	}
	ids, err := c.client.SMembers(ctx, c.key(professionalID)).Result()
	if err != nil {
		return nil
	}
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	return known
}

// Add records ids as seen for a professional.
func (c *KnownIDCache) Add(ctx context.Context, professionalID string, ids ...string) {
	if c == nil || c.client == nil || len(ids) == 0 {
		return
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	key := c.key(professionalID)
	if err := c.client.SAdd(ctx, key, members...).Err(); err != nil {
		return
	}
	c.client.Expire(ctx, key, c.ttl)
}
