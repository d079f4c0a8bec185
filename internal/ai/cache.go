package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/upbo/upbotrading/internal/logger"
	"github.com/upbo/upbotrading/internal/storage"
)

// CacheKey is the KV key holding the whole response cache document.
const CacheKey = "upbo_ai_cache_v1"

// cacheCeiling bounds how long any entry survives, regardless of its TTL.
const cacheCeiling = 24 * time.Hour

type cacheEntry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // unix millis
}

// Cache is the durable response cache. The document is read-modify-written
// whole; every read purges entries older than the ceiling. Storage failures
// are logged and treated as an empty cache.
type Cache struct {
	kv     storage.KV
	logger *logger.Logger
	now    func() time.Time

	mu sync.Mutex
}

func NewCache(kv storage.KV, log *logger.Logger) *Cache {
	return &Cache{kv: kv, logger: log, now: time.Now}
}

// Get returns the entry for key together with its age.
func (c *Cache) Get(ctx context.Context, key string) (json.RawMessage, time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc := c.load(ctx)
	e, ok := doc[key]
	if !ok {
		return nil, 0, false
	}
	return e.Data, c.now().Sub(time.UnixMilli(e.Timestamp)), true
}

func (c *Cache) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	doc := c.load(ctx)
	doc[key] = cacheEntry{Data: data, Timestamp: c.now().UnixMilli()}
	return c.store(ctx, doc)
}

func (c *Cache) load(ctx context.Context) map[string]cacheEntry {
	doc := make(map[string]cacheEntry)
	raw, ok, err := c.kv.Get(ctx, CacheKey)
	if err != nil {
		c.logger.Warn("read ai cache", "error", err)
		return doc
	}
	if !ok {
		return doc
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		c.logger.Warn("malformed ai cache, starting empty", "error", err)
		return make(map[string]cacheEntry)
	}

	now := c.now()
	purged := 0
	for key, e := range doc {
		if now.Sub(time.UnixMilli(e.Timestamp)) >= cacheCeiling {
			delete(doc, key)
			purged++
		}
	}
	if purged > 0 {
		if err := c.store(ctx, doc); err != nil {
			c.logger.Warn("write purged ai cache", "error", err)
		}
		c.logger.Debug("purged expired ai cache entries", "count", purged)
	}
	return doc
}

func (c *Cache) store(ctx context.Context, doc map[string]cacheEntry) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode ai cache: %w", err)
	}
	if err := c.kv.Set(ctx, CacheKey, string(data)); err != nil {
		return fmt.Errorf("write ai cache: %w", err)
	}
	return nil
}
