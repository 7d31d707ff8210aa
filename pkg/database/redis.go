package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConnection definition redis sentinel setting
type RedisConnection struct {
	MasterName    string
	SentinelAddrs []string
	DB            int

	RetryCount    int
	RetryInterval time.Duration
}

// NewRedisClient init Redis Sentinel connection with retry
func NewRedisClient(c RedisConnection) (*redis.Client, error) {
	rdb := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:    c.MasterName,
		SentinelAddrs: c.SentinelAddrs,
		Password:      "",
		DB:            c.DB,
	})

	var err error
	for i := 0; i <= c.RetryCount; i++ {
		if err = rdb.Ping(context.Background()).Err(); err == nil {
			return rdb, nil
		}
		if i < c.RetryCount {
			time.Sleep(c.RetryInterval)
		}
	}

	rdb.Close()
	return nil, fmt.Errorf("failed to connect to redis sentinel after %d retries: %w", c.RetryCount, err)
}
