package db

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisOpts struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration

	// PoolSize must exceed the delivery worker count: each worker holds
	// a connection open in a blocking BLMOVE while others ack and retry.
	PoolSize int
}

// NewRedisClient connects and verifies the connection with a ping.
func NewRedisClient(ctx context.Context, opts RedisOpts) (*redis.Client, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
		PoolSize:    opts.PoolSize,
	})

	ctx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
