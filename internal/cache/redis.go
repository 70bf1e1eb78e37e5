package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ghost-forensics/ghost/internal/domain"
	"github.com/redis/go-redis/v9"
)

// incrScript bumps a counter and arms its expiry in one atomic step, so a
// window cannot be left without a TTL if the client dies between commands.
var incrScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// RedisCache is the lab tier cache and the remote layer of the two-phase
// cache.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection before
// returning.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get returns the cached value or nil on miss.
func (c *RedisCache) Get(ctx context.Context, caseID string, key string) ([]byte, error) {
	if caseID == "" {
		return nil, fmt.Errorf("caseID is required")
	}

	val, err := c.client.Get(ctx, c.redisKey(caseID, key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value with the given TTL.
func (c *RedisCache) Set(ctx context.Context, caseID string, key string, value []byte, ttl time.Duration) error {
	if caseID == "" {
		return fmt.Errorf("caseID is required")
	}
	return c.client.Set(ctx, c.redisKey(caseID, key), value, ttl).Err()
}

// Delete removes a value.
func (c *RedisCache) Delete(ctx context.Context, caseID string, key string) error {
	if caseID == "" {
		return fmt.Errorf("caseID is required")
	}
	return c.client.Del(ctx, c.redisKey(caseID, key)).Err()
}

// GetSummary retrieves a cached case summary by run ID.
func (c *RedisCache) GetSummary(ctx context.Context, caseID string, runID string) (*domain.CaseSummary, error) {
	data, err := c.Get(ctx, caseID, summaryKey(runID))
	return summaryFromCache(data, err)
}

// SetSummary caches a completed case summary.
func (c *RedisCache) SetSummary(ctx context.Context, caseID string, runID string, summary *domain.CaseSummary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.Set(ctx, caseID, summaryKey(runID), data, ttl)
}

// IncrementCounter bumps a windowed counter atomically across nodes.
func (c *RedisCache) IncrementCounter(ctx context.Context, caseID string, key string, window time.Duration) (int64, error) {
	if caseID == "" {
		return 0, fmt.Errorf("caseID is required")
	}

	full := c.redisKey(caseID, counterKey(key))
	return incrScript.Run(ctx, c.client, []string{full}, window.Milliseconds()).Int64()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) redisKey(caseID, key string) string {
	return "ghost:" + caseID + ":" + key
}
