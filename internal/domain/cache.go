package domain

import (
	"context"
	"time"
)

// Cache is the read-through store for hot run artifacts. Every method takes
// the caseID because cached evidence from one investigation must never be
// visible to another, regardless of backend.
//
// The standalone tier runs on an in-process LRU; the lab tier layers Redis
// behind it so multiple nodes share summaries and counters.
type Cache interface {
	// Get returns the raw value for key, or nil with no error on a miss.
	Get(ctx context.Context, caseID string, key string) ([]byte, error)

	// Set stores value under key until ttl elapses.
	Set(ctx context.Context, caseID string, key string, value []byte, ttl time.Duration) error

	// Delete drops key. Deleting an absent key is not an error.
	Delete(ctx context.Context, caseID string, key string) error

	// GetSummary returns the cached summary for a run, or nil on a miss.
	GetSummary(ctx context.Context, caseID string, runID string) (*CaseSummary, error)

	// SetSummary caches a completed run's summary.
	SetSummary(ctx context.Context, caseID string, runID string, summary *CaseSummary, ttl time.Duration) error

	// IncrementCounter bumps a windowed counter and returns the new count.
	// The window restarts when the previous one expires.
	IncrementCounter(ctx context.Context, caseID string, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects and tunes the cache backend.
type CacheConfig struct {
	// Type is "memory" or "redis".
	Type string

	// In-process LRU settings.
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EnableTwoPhase fronts Redis with the local LRU so repeat reads on
	// the same node skip the network.
	EnableTwoPhase bool
}
