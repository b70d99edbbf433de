package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUCache is an in process implementation of Cache
type LRUCache struct {
	entries *lru.Cache[string, []byte]
}

var _ Cache = (*LRUCache)(nil)

// NewLRUCache returns an empty in memory cache holding at most capacity entries
func NewLRUCache(capacity int) (*LRUCache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidCapacity, capacity)
	}

	entries, err := lru.New[string, []byte](capacity)
	if err != nil {
		return nil, err
	}

	return &LRUCache{entries: entries}, nil
}

// NewLRUFactory returns a Factory creating in memory caches
func NewLRUFactory() Factory {
	return func(_ string, capacity int) (Cache, error) {
		return NewLRUCache(capacity)
	}
}

// Set stores data under key, evicting the least recently used entry when full
func (c *LRUCache) Set(_ context.Context, key string, data []byte) error {
	c.entries.Add(key, data)
	return nil
}

// Get returns the data stored under key and marks it as most recently used
func (c *LRUCache) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := c.entries.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// Len returns the number of entries currently held
func (c *LRUCache) Len(_ context.Context) (int, error) {
	return c.entries.Len(), nil
}

func (c *LRUCache) Healthcheck(_ context.Context) error {
	return nil
}
