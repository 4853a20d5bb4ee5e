package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig is the subset of redis.Options the service exposes.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// IOTimeout bounds dial, read and write individually.
	IOTimeout   time.Duration
	PoolSize    int
	PingTimeout time.Duration
}

func (c RedisConfig) options() (*redis.Options, error) {
	if c.Addr == "" {
		return nil, errors.New("redis: addr is required")
	}
	io := c.IOTimeout
	if io <= 0 {
		io = 2 * time.Second
	}
	pool := c.PoolSize
	if pool <= 0 {
		pool = 10
	}
	return &redis.Options{
		Addr:            c.Addr,
		Password:        c.Password,
		DB:              c.DB,
		DialTimeout:     io + time.Second,
		ReadTimeout:     io,
		WriteTimeout:    io,
		PoolSize:        pool,
		ConnMaxIdleTime: 5 * time.Minute,
	}, nil
}

// OpenRedis builds a client and fails fast when the server does not answer PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	wait := cfg.PingTimeout
	if wait <= 0 {
		wait = 2 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}
