package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// lruCache is the in-process Cache implementation, an expirable LRU with a
// fixed entry cap and a single TTL for all entries.
type lruCache struct {
	lru *expirable.LRU[string, []byte]
}

// NewLRU creates an in-process cache holding at most size entries, each
// expiring ttl after its last Set.
func NewLRU(size int, ttl time.Duration) Cache {
	if size <= 0 {
		size = 1024
	}
	return &lruCache{
		lru: expirable.NewLRU[string, []byte](size, nil, ttl),
	}
}

func (c *lruCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

func (c *lruCache) Set(_ context.Context, key string, value []byte) error {
	// Copy so callers can reuse their buffer after Set returns.
	buf := make([]byte, len(value))
	copy(buf, value)
	c.lru.Add(key, buf)
	return nil
}

func (c *lruCache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

func (c *lruCache) Clear(_ context.Context) error {
	c.lru.Purge()
	return nil
}

func (c *lruCache) Len(_ context.Context) (int, error) {
	return c.lru.Len(), nil
}
