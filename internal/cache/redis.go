package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/seatledger/config"
	"github.com/Domenick1991/seatledger/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(cfg config.RedisConfig) *RedisCache {
	return NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}))
}

func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) GetSeatInfo(ctx context.Context, serviceID uint64) (*domain.SeatInfo, error) {
	var info domain.SeatInfo
	ok, err := c.get(ctx, seatInfoKey(serviceID), &info)
	if err != nil || !ok {
		return nil, err
	}
	return &info, nil
}

func (c *RedisCache) SetSeatInfo(ctx context.Context, info domain.SeatInfo, ttl time.Duration) error {
	return c.set(ctx, seatInfoKey(info.ServiceID), info, ttl)
}

func (c *RedisCache) DeleteSeatInfo(ctx context.Context, serviceID uint64) error {
	return c.client.Del(ctx, seatInfoKey(serviceID)).Err()
}

func (c *RedisCache) GetListing(ctx context.Context) ([]domain.Service, error) {
	var services []domain.Service
	ok, err := c.get(ctx, listingKey(), &services)
	if err != nil || !ok {
		return nil, err
	}
	if services == nil {
		services = []domain.Service{}
	}
	return services, nil
}

func (c *RedisCache) SetListing(ctx context.Context, services []domain.Service, ttl time.Duration) error {
	return c.set(ctx, listingKey(), services, ttl)
}

func (c *RedisCache) DeleteListing(ctx context.Context) error {
	return c.client.Del(ctx, listingKey()).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) get(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *RedisCache) set(ctx context.Context, key string, v any, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func seatInfoKey(serviceID uint64) string {
	return fmt.Sprintf("seatinfo:%d", serviceID)
}

func listingKey() string {
	return "listing:all"
}
