package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const hotCacheVersionKey = "perm:version"

// HotCache is a short-lived redis layer in front of the CacheStore. Keys
// embed a global version; bumping the version on any invalidation retires
// every hot entry at once, and the TTL bounds staleness when a bump is
// missed.
type HotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewHotCache instantiates the redis layer. A nil client degrades to a
// no-op cache.
func NewHotCache(client *redis.Client, ttl time.Duration) *HotCache {
	return &HotCache{client: client, ttl: ttl}
}

func (c *HotCache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, hotCacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, hotCacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *HotCache) key(ctx context.Context, node NodeRef, userID int64) (string, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("perm:%s:%d:u%d:v%d", node.Kind, node.ID, userID, ver), nil
}

// Get returns the hot decision for (node, user), nil on miss.
func (c *HotCache) Get(ctx context.Context, node NodeRef, userID int64) (*Decision, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	key, err := c.key(ctx, node, userID)
	if err != nil {
		return nil, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var decision Decision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return nil, err
	}
	if decision.ExpiresAt != nil && !decision.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return &decision, nil
}

// Put stores the decision under the current version with the configured TTL.
func (c *HotCache) Put(ctx context.Context, node NodeRef, userID int64, decision Decision) error {
	if c == nil || c.client == nil {
		return nil
	}
	key, err := c.key(ctx, node, userID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(decision)
	if err != nil {
		return err
	}
	ttl := c.ttl
	if decision.ExpiresAt != nil {
		if until := time.Until(*decision.ExpiresAt); until < ttl {
			ttl = until
		}
	}
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

// Bump retires every current hot entry by advancing the global version.
func (c *HotCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, hotCacheVersionKey).Err()
}
