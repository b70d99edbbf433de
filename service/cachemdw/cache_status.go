package cachemdw

import (
	"context"
	"sync/atomic"
)

type cacheStatusContextKey struct{}

// CacheStatus records whether a call was answered from a cache
type CacheStatus struct {
	hit atomic.Bool
}

// Hit returns true when a cache stage answered the call
func (s *CacheStatus) Hit() bool {
	return s.hit.Load()
}

// WithCacheStatus returns a context carrying a fresh CacheStatus
// that cache stages further down the chain mark on a hit
func WithCacheStatus(ctx context.Context) (context.Context, *CacheStatus) {
	status := &CacheStatus{}
	return context.WithValue(ctx, cacheStatusContextKey{}, status), status
}

// MarkCacheHit marks the CacheStatus carried by ctx (if any) as a hit
func MarkCacheHit(ctx context.Context) {
	if status, ok := ctx.Value(cacheStatusContextKey{}).(*CacheStatus); ok {
		status.hit.Store(true)
	}
}

// IsRequestCached returns whether the call carried by ctx was answered from a cache
func IsRequestCached(ctx context.Context) bool {
	status, ok := ctx.Value(cacheStatusContextKey{}).(*CacheStatus)
	return ok && status.Hit()
}
