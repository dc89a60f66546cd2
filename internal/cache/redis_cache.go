package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tillpoint/internal/domain"
)

type RedisCashUpCache struct {
	client *redis.Client
}

func NewRedisCashUpCache(addr string, password string, db int) *RedisCashUpCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCashUpCache{client: client}
}

func (c *RedisCashUpCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCashUpCache) Close() error {
	return c.client.Close()
}

func (c *RedisCashUpCache) Get(ctx context.Context, shiftID string) (*domain.CashUpReport, bool, error) {
	val, err := c.client.Get(ctx, "cashup:"+shiftID).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var report domain.CashUpReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (c *RedisCashUpCache) Set(ctx context.Context, shiftID string, report domain.CashUpReport, ttl time.Duration) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "cashup:"+shiftID, payload, ttl).Err()
}
