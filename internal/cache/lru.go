package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ghost-forensics/ghost/internal/domain"
)

const defaultCacheSize = 10000

// LRUCache is the standalone tier cache and the local layer of the two-phase
// cache: a case-keyed LRU with per-entry TTLs and windowed counters, all in
// process memory.
type LRUCache struct {
	mu      sync.RWMutex
	limit   int
	index   map[string]*list.Element
	lru     *list.List
	windows map[string]*windowCounter
}

type lruItem struct {
	key      string
	data     []byte
	deadline time.Time
}

func (it *lruItem) expired(now time.Time) bool {
	return now.After(it.deadline)
}

type windowCounter struct {
	n       int64
	resetAt time.Time
}

// NewLRUCache creates an LRU cache holding at most limit entries.
func NewLRUCache(limit int) *LRUCache {
	if limit <= 0 {
		limit = defaultCacheSize
	}
	return &LRUCache{
		limit:   limit,
		index:   make(map[string]*list.Element),
		lru:     list.New(),
		windows: make(map[string]*windowCounter),
	}
}

// Get returns the cached value or nil on miss. Expired entries are removed
// on the way out.
func (c *LRUCache) Get(ctx context.Context, caseID string, key string) ([]byte, error) {
	if caseID == "" {
		return nil, fmt.Errorf("caseID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[caseKey(caseID, key)]
	if !ok {
		return nil, nil
	}

	it := el.Value.(*lruItem)
	if it.expired(time.Now()) {
		c.remove(el)
		return nil, nil
	}

	c.lru.MoveToFront(el)
	return it.data, nil
}

// Set stores a value under the case-scoped key, evicting from the cold end
// when over capacity.
func (c *LRUCache) Set(ctx context.Context, caseID string, key string, value []byte, ttl time.Duration) error {
	if caseID == "" {
		return fmt.Errorf("caseID is required")
	}
	full := caseKey(caseID, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[full]; ok {
		c.lru.MoveToFront(el)
		it := el.Value.(*lruItem)
		it.data = value
		it.deadline = time.Now().Add(ttl)
		return nil
	}

	c.index[full] = c.lru.PushFront(&lruItem{
		key:      full,
		data:     value,
		deadline: time.Now().Add(ttl),
	})

	for c.lru.Len() > c.limit {
		if back := c.lru.Back(); back != nil {
			c.remove(back)
		}
	}
	return nil
}

// Delete removes a value. Deleting an absent key is not an error.
func (c *LRUCache) Delete(ctx context.Context, caseID string, key string) error {
	if caseID == "" {
		return fmt.Errorf("caseID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[caseKey(caseID, key)]; ok {
		c.remove(el)
	}
	return nil
}

// GetSummary retrieves a cached case summary by run ID.
func (c *LRUCache) GetSummary(ctx context.Context, caseID string, runID string) (*domain.CaseSummary, error) {
	data, err := c.Get(ctx, caseID, summaryKey(runID))
	return summaryFromCache(data, err)
}

// SetSummary caches a completed case summary.
func (c *LRUCache) SetSummary(ctx context.Context, caseID string, runID string, summary *domain.CaseSummary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.Set(ctx, caseID, summaryKey(runID), data, ttl)
}

// IncrementCounter bumps a windowed counter, starting a fresh window when
// the previous one has lapsed.
func (c *LRUCache) IncrementCounter(ctx context.Context, caseID string, key string, window time.Duration) (int64, error) {
	if caseID == "" {
		return 0, fmt.Errorf("caseID is required")
	}
	full := caseKey(caseID, counterKey(key))

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	w, ok := c.windows[full]
	if !ok || now.After(w.resetAt) {
		c.windows[full] = &windowCounter{n: 1, resetAt: now.Add(window)}
		return 1, nil
	}

	w.n++
	return w.n, nil
}

// Ping always succeeds; the cache lives in the same process.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close discards all entries.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*list.Element)
	c.lru = list.New()
	c.windows = make(map[string]*windowCounter)
	return nil
}

// Stats returns the current entry count and the configured capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len(), c.limit
}

func caseKey(caseID, key string) string {
	return caseID + ":" + key
}

// remove unlinks an element from both the order list and the index. Callers
// hold the write lock.
func (c *LRUCache) remove(el *list.Element) {
	c.lru.Remove(el)
	delete(c.index, el.Value.(*lruItem).key)
}
