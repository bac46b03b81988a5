package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides JSON caching under a key prefix
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) fullKey(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Get retrieves a cached value. found=false on miss or when Redis is disabled.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.fullKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}
	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}
	return c.client.Redis().Set(ctx, c.fullKey(key), data, ttl).Err()
}

// DeleteTenant drops every cached entry of a tenant (after a new weight
// version or benchmark is published)
func (c *Cache) DeleteTenant(ctx context.Context, tenant string) error {
	if !c.client.Enabled() {
		return nil
	}

	pattern := c.fullKey(fmt.Sprintf("tenant:%s:*", tenant))
	iter := c.client.Redis().Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Redis().Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Predefined TTLs
const (
	TTLShort  = 1 * time.Minute  // 테스트, 단기 조회
	TTLMedium = 10 * time.Minute // 예측 결과
	TTLLong   = 1 * time.Hour    // 벤치마크 이력
)

// ForecastKey caches a tenant forecast for a horizon
func ForecastKey(tenant string, weeks int) string {
	return fmt.Sprintf("tenant:%s:forecast:%d", tenant, weeks)
}

// BenchmarksKey caches a tenant's latest benchmark records
func BenchmarksKey(tenant string, limit int) string {
	return fmt.Sprintf("tenant:%s:benchmarks:%d", tenant, limit)
}

// HistoryKey caches a tenant history analysis for a lookback
func HistoryKey(tenant string, weeks int) string {
	return fmt.Sprintf("tenant:%s:history:%d", tenant, weeks)
}
