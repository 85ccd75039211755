package marketdata

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Cache is a short-TTL price cache. When a Redis client is configured it is
// the primary backend so multiple instances share one quota against the
// upstream APIs; a small in-process map covers Redis outages and the
// redis-less dev setup.
type Cache struct {
	rdb *goredis.Client // nil when Redis is not configured
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	data    []byte
	expires time.Time
}

// NewCache creates a Cache with the given TTL. rdb may be nil.
func NewCache(rdb *goredis.Client, ttl time.Duration) *Cache {
	return &Cache{
		rdb:     rdb,
		ttl:     ttl,
		entries: make(map[string]memEntry),
	}
}

// Get unmarshals the cached value for key into dest. Returns false on miss.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) bool {
	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, "mdcache:"+key).Bytes()
		if err == nil {
			if json.Unmarshal(data, dest) == nil {
				return true
			}
		} else if err != goredis.Nil {
			log.Printf("[mdcache] redis get failed, using memory: %v", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expires) {
		return false
	}
	return json.Unmarshal(e.data, dest) == nil
}

// Set stores v under key with the cache TTL.
func (c *Cache) Set(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, "mdcache:"+key, data, c.ttl).Err(); err != nil {
			log.Printf("[mdcache] redis set failed: %v", err)
		}
	}

	c.mu.Lock()
	c.entries[key] = memEntry{data: data, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}
