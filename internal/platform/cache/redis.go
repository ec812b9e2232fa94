package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// Options selects the redis instance. Addr may be host:port or a redis:// URL;
// a URL overrides Password and DB.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

func (o Options) redisOptions() (*redis.Options, error) {
	if strings.HasPrefix(o.Addr, "redis://") || strings.HasPrefix(o.Addr, "rediss://") {
		parsed, err := redis.ParseURL(o.Addr)
		if err != nil {
			return nil, fmt.Errorf("platform/cache: parse url: %w", err)
		}
		if o.PoolSize > 0 {
			parsed.PoolSize = o.PoolSize
		}
		return parsed, nil
	}
	return &redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
		PoolSize: o.PoolSize,
	}, nil
}

// New creates a client and pings it; an unreachable server closes the client.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	ro, err := opts.redisOptions()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(ro)

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", ro.Addr, err)
	}
	return client, nil
}
