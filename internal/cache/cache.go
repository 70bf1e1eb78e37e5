// Package cache provides the caching implementations behind domain.Cache:
// an in-process LRU for the standalone tier, Redis for the lab tier, and a
// two-phase combination of both.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ghost-forensics/ghost/internal/domain"
)

// New selects a cache implementation from configuration.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// Key prefixes shared by every implementation so summaries and counters
// never collide with raw entries.
func summaryKey(runID string) string { return "summary:" + runID }
func counterKey(key string) string   { return "counter:" + key }

// summaryFromCache turns a raw Get result into a summary. Misses stay nil
// without error.
func summaryFromCache(data []byte, err error) (*domain.CaseSummary, error) {
	if err != nil || data == nil {
		return nil, err
	}
	var s domain.CaseSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// TwoPhaseCache layers a local LRU over Redis. Reads try the LRU first and
// repopulate it on a Redis hit; writes go to both, the local copy on a
// shorter leash.
type TwoPhaseCache struct {
	local    *LRUCache
	remote   *RedisCache
	localTTL time.Duration
}

// NewTwoPhaseCache builds the layered cache from one config.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	localTTL := cfg.LocalTTL
	if localTTL == 0 {
		localTTL = 5 * time.Minute
	}

	return &TwoPhaseCache{
		local:    NewLRUCache(cfg.LocalMaxSize),
		remote:   remote,
		localTTL: localTTL,
	}, nil
}

func (c *TwoPhaseCache) Get(ctx context.Context, caseID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, caseID, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.remote.Get(ctx, caseID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, caseID, key, val, c.localTTL)
	}
	return val, nil
}

func (c *TwoPhaseCache) Set(ctx context.Context, caseID string, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, caseID, key, value, c.clampLocal(ttl)); err != nil {
		return err
	}
	return c.remote.Set(ctx, caseID, key, value, ttl)
}

func (c *TwoPhaseCache) Delete(ctx context.Context, caseID string, key string) error {
	if err := c.local.Delete(ctx, caseID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, caseID, key)
}

// GetSummary reads through the layers like Get, repopulating the local side
// on a remote hit.
func (c *TwoPhaseCache) GetSummary(ctx context.Context, caseID string, runID string) (*domain.CaseSummary, error) {
	s, err := c.local.GetSummary(ctx, caseID, runID)
	if err != nil || s != nil {
		return s, err
	}

	s, err = c.remote.GetSummary(ctx, caseID, runID)
	if err != nil {
		return nil, err
	}
	if s != nil {
		_ = c.local.SetSummary(ctx, caseID, runID, s, c.localTTL)
	}
	return s, nil
}

func (c *TwoPhaseCache) SetSummary(ctx context.Context, caseID string, runID string, summary *domain.CaseSummary, ttl time.Duration) error {
	if err := c.local.SetSummary(ctx, caseID, runID, summary, c.clampLocal(ttl)); err != nil {
		return err
	}
	return c.remote.SetSummary(ctx, caseID, runID, summary, ttl)
}

// IncrementCounter always goes to Redis; a local counter would drift across
// nodes.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, caseID string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, caseID, key, window)
}

func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats reports the local layer.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}

// clampLocal keeps the local copy's TTL at or below the caller's.
func (c *TwoPhaseCache) clampLocal(ttl time.Duration) time.Duration {
	if ttl < c.localTTL {
		return ttl
	}
	return c.localTTL
}
