package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig tunes the connection pool. Zero values keep pgxpool defaults.
type PoolConfig struct {
	MaxConns        int32
	MaxConnLifetime time.Duration
	// ApplicationName tags sessions in pg_stat_activity.
	ApplicationName string
	// LockTimeout caps how long a ledger write waits on a stock row lock.
	LockTimeout time.Duration
}

func (o PoolConfig) apply(config *pgxpool.Config) {
	if o.MaxConns > 0 {
		config.MaxConns = o.MaxConns
	}
	if o.MaxConnLifetime > 0 {
		config.MaxConnLifetime = o.MaxConnLifetime
	}
	params := config.ConnConfig.RuntimeParams
	if o.ApplicationName != "" {
		params["application_name"] = o.ApplicationName
	}
	if o.LockTimeout > 0 {
		params["lock_timeout"] = strconv.FormatInt(o.LockTimeout.Milliseconds(), 10)
	}
}

// New opens a pool against dsn and pings it before returning.
func New(ctx context.Context, dsn string, opts PoolConfig) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}
	opts.apply(config)

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}
	return pool, nil
}
