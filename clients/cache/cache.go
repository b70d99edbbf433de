// package cache provides the bounded least recently used stores
// backing the per-method response caches of the gateway
package cache

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("value not found in the cache")
	ErrInvalidCapacity = errors.New("cache capacity must be greater than zero")
)

// Cache is a bounded store evicting the least recently used entry
// once more than its capacity entries are held. A successful Get
// counts as a use of the entry.
type Cache interface {
	Set(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Len(ctx context.Context) (int, error)
	Healthcheck(ctx context.Context) error
}

// Factory creates the cache owned by one method, namespace identifies
// the method so backends sharing storage keep methods apart
type Factory func(namespace string, capacity int) (Cache, error)
