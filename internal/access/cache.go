package access

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const grantsVersionKey = "access:grants:version"

// Cache keeps per-user grant lists in Redis behind a global version counter.
// A nil Cache or a Cache without a client always calls the loader.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache builds the grant cache. ttl <= 0 falls back to five minutes.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, grantsVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		// SetNX so a concurrent Bump is never overwritten.
		if err := c.client.SetNX(ctx, grantsVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, grantsVersionKey).Int64()
	}
	return ver, err
}

// Grants returns the cached grants for userID or populates them from load.
func (c *Cache) Grants(ctx context.Context, userID int64, load func(context.Context) ([]Grant, error)) ([]Grant, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}
	ver, err := c.version(ctx)
	if err != nil {
		return load(ctx)
	}
	key := "access:grants:" + strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(ver, 10)
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var grants []Grant
		if err := json.Unmarshal(raw, &grants); err == nil {
			return grants, nil
		}
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		grants, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(grants); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
		return grants, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Grant), nil
}

// Bump invalidates every cached grant list.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, grantsVersionKey).Err()
}
