package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"stationledger/backend/internal/domain"
)

const topologyKeyPrefix = "stationledger:topology:"

type RedisTopologyCache struct {
	client *redis.Client
}

func NewRedisTopologyCache(addr string, password string, db int) *RedisTopologyCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisTopologyCache{client: client}
}

func (c *RedisTopologyCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisTopologyCache) Close() error {
	return c.client.Close()
}

func (c *RedisTopologyCache) Get(ctx context.Context, stationID string) (*domain.StationSnapshot, bool, error) {
	val, err := c.client.Get(ctx, topologyKey(stationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var snap domain.StationSnapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, false, err
	}
	return &snap, true, nil
}

func (c *RedisTopologyCache) Set(ctx context.Context, stationID string, value *domain.StationSnapshot, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, topologyKey(stationID), payload, ttl).Err()
}

func (c *RedisTopologyCache) Delete(ctx context.Context, stationID string) error {
	return c.client.Del(ctx, topologyKey(stationID)).Err()
}

func topologyKey(stationID string) string {
	return topologyKeyPrefix + stationID
}
