package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"recipechat/internal/domain"
	"recipechat/internal/port"
)

var _ port.Embedder = (*CachedEmbedder)(nil)

// Cache is an LRU cache of query embeddings with a TTL.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   []string
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	vector    domain.EmbeddingVector
	timestamp time.Time
}

// NewCache creates a cache holding at most maxSize vectors for ttl.
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(model, text string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(hash[:16])
}

// Get returns a copy of the cached vector.
func (c *Cache) Get(model, text string) (domain.EmbeddingVector, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(model, text)
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.timestamp) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return nil, false
	}

	c.moveToEnd(key)
	return append(domain.EmbeddingVector(nil), entry.vector...), true
}

// Put stores a copy of vector.
func (c *Cache) Put(model, text string, vector domain.EmbeddingVector) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(model, text)
	entry := &cacheEntry{
		vector:    append(domain.EmbeddingVector(nil), vector...),
		timestamp: c.now(),
	}

	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = entry
	c.order = append(c.order, key)
}

// Size returns the number of cached vectors.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *Cache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *Cache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// CachedEmbedder serves repeated single-text embeddings from a Cache.
// Batch calls bypass the cache.
type CachedEmbedder struct {
	port.Embedder
	cache *Cache
}

// NewCachedEmbedder wraps embedder with cache.
func NewCachedEmbedder(embedder port.Embedder, cache *Cache) *CachedEmbedder {
	return &CachedEmbedder{Embedder: embedder, cache: cache}
}

// Embed returns the cached vector for text or computes and stores it.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingVector, error) {
	model := e.Embedder.ModelName()
	if v, hit := e.cache.Get(model, text); hit {
		return v, nil
	}

	v, err := e.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Put(model, text, v)
	return v, nil
}
