package reportcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/guestledger/pkg/revenue"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "guestledger:revenue:"

// RedisCache implements revenue.ReportCache on top of redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisClient builds a redis client for addr.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (cache *RedisCache) Get(ctx context.Context, key string) (revenue.Report, bool, error) {
	if cache.client == nil {
		return revenue.Report{}, false, fmt.Errorf("redis client is nil")
	}
	value, err := cache.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return revenue.Report{}, false, nil
	}
	if err != nil {
		return revenue.Report{}, false, fmt.Errorf("get report from redis: %w", err)
	}
	var report revenue.Report
	if err := json.Unmarshal(value, &report); err != nil {
		return revenue.Report{}, false, fmt.Errorf("unmarshal report: %w", err)
	}
	return report, true, nil
}

func (cache *RedisCache) Set(ctx context.Context, key string, report revenue.Report, ttl time.Duration) error {
	if cache.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := cache.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set report in redis: %w", err)
	}
	return nil
}

// Ping checks the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}
