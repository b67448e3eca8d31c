// Package cache provides Redis-based caching for quick state reads.
// Dashboards poll the company status far more often than it changes;
// the cache absorbs those reads (not the source of truth).
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// RedisClient is an interface for Redis operations.
// This allows for easy mocking in tests.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, values ...interface{}) error
}

// goRedisClient adapts *redis.Client to the RedisClient interface.
type goRedisClient struct {
	rdb *redis.Client
}

// NewGoRedisClient connects to Redis at the given address.
func NewGoRedisClient(addr string) (RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return &goRedisClient{rdb: rdb}, nil
}

func (c *goRedisClient) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrCacheMiss
	}
	return val, err
}

func (c *goRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.rdb.Set(ctx, key, value, expiration).Err()
}

func (c *goRedisClient) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *goRedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, key).Result()
}

func (c *goRedisClient) HSet(ctx context.Context, key string, values ...interface{}) error {
	return c.rdb.HSet(ctx, key, values...).Err()
}

// StatusCache provides fast access to company status snapshots.
type StatusCache struct {
	client     RedisClient
	expiration time.Duration
}

// NewStatusCache creates a new status cache instance.
func NewStatusCache(client RedisClient) *StatusCache {
	return &StatusCache{
		client:     client,
		expiration: 15 * time.Minute, // Cache expires after 15 minutes
	}
}

// CompanyStatus represents the cached state of the company.
type CompanyStatus struct {
	SaveID     string  `json:"save_id"`
	GameDay    int     `json:"game_day"`
	Funds      int64   `json:"funds"`
	Reputation float64 `json:"reputation"`
	ActiveVMs  int     `json:"active_vms"`
	Pending    int     `json:"pending"`
	LastSync   int64   `json:"last_sync"` // Unix timestamp
}

// RackStatus represents the cached state of one rack.
type RackStatus struct {
	RackID   string `json:"rack_id"`
	Max      int    `json:"max"`
	Unlocked int    `json:"unlocked"`
	Occupied int    `json:"occupied"`
}

// SetCompanyStatus caches the current company status.
func (c *StatusCache) SetCompanyStatus(ctx context.Context, status CompanyStatus) error {
	key := c.companyKey(status.SaveID)

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal company status: %w", err)
	}

	return c.client.Set(ctx, key, data, c.expiration)
}

// GetCompanyStatus retrieves the cached company status.
func (c *StatusCache) GetCompanyStatus(ctx context.Context, saveID string) (*CompanyStatus, error) {
	key := c.companyKey(saveID)

	data, err := c.client.Get(ctx, key)
	if err != nil {
		return nil, err // Cache miss or error
	}

	var status CompanyStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal company status: %w", err)
	}

	return &status, nil
}

// SetRackStates caches the current state of all racks.
// Uses Redis Hash for efficient storage.
func (c *StatusCache) SetRackStates(ctx context.Context, saveID string, racks map[string]RackStatus) error {
	key := c.racksKey(saveID)

	values := make([]interface{}, 0, len(racks)*2)
	for id, rk := range racks {
		data, err := json.Marshal(rk)
		if err != nil {
			return fmt.Errorf("failed to marshal rack %s: %w", id, err)
		}
		values = append(values, id, string(data))
	}

	return c.client.HSet(ctx, key, values...)
}

// GetRackStates retrieves the cached state of all racks.
func (c *StatusCache) GetRackStates(ctx context.Context, saveID string) (map[string]RackStatus, error) {
	key := c.racksKey(saveID)

	data, err := c.client.HGetAll(ctx, key)
	if err != nil {
		return nil, err
	}

	racks := make(map[string]RackStatus)
	for id, jsonStr := range data {
		var rk RackStatus
		if err := json.Unmarshal([]byte(jsonStr), &rk); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rack %s: %w", id, err)
		}
		racks[id] = rk
	}

	return racks, nil
}

// Invalidate removes all cached state for a save slot.
func (c *StatusCache) Invalidate(ctx context.Context, saveID string) error {
	return c.client.Del(ctx, c.companyKey(saveID), c.racksKey(saveID))
}

// companyKey generates the Redis key for the company status.
func (c *StatusCache) companyKey(saveID string) string {
	return fmt.Sprintf("vps:%s:status", saveID)
}

// racksKey generates the Redis key for the rack hash.
func (c *StatusCache) racksKey(saveID string) string {
	return fmt.Sprintf("vps:%s:racks", saveID)
}
