package cachemdw

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kava-labs/kava-rpc-gateway/clients/cache"
	"github.com/kava-labs/kava-rpc-gateway/logging"
	"github.com/kava-labs/kava-rpc-gateway/service/callmdw"
)

// CacheMiddleware answers repeated calls of one method from a bounded cache.
// It holds no lock around the rest of the chain, so concurrent identical misses
// may all reach the upstream.
type CacheMiddleware struct {
	cacheClient cache.Cache
	// cachePrefix is used as prefix for any key in the cache
	cachePrefix string

	*logging.ServiceLogger
}

var _ callmdw.Middleware = (*CacheMiddleware)(nil)

func NewCacheMiddleware(
	cacheClient cache.Cache,
	cachePrefix string,
	logger *logging.ServiceLogger,
) (*CacheMiddleware, error) {
	if cachePrefix == "" {
		return nil, ErrEmptyCachePrefix
	}

	return &CacheMiddleware{
		cacheClient:   cacheClient,
		cachePrefix:   cachePrefix,
		ServiceLogger: logger,
	}, nil
}

// IsCacheable checks if a successful result may be stored
func IsCacheable(result json.RawMessage) bool {
	return len(result) > 0
}

// Handle implements middleware.Middleware
func (c *CacheMiddleware) Handle(ctx context.Context, req callmdw.CallRequest, next callmdw.Next) (json.RawMessage, error) {
	key, err := GetQueryKey(c.cachePrefix, req)
	if err != nil {
		c.Logger.Error().
			Str("method", req.Method).
			Err(err).
			Msg("can't build cache key, skipping cache")

		return next(ctx, req)
	}

	cached, err := c.cacheClient.Get(ctx, key)
	switch {
	case err == nil:
		c.Logger.Trace().
			Str("method", req.Method).
			Str("key", key).
			Msg("cache hit")

		MarkCacheHit(ctx)
		return cached, nil
	case !errors.Is(err, cache.ErrNotFound):
		// a broken cache must not fail the call
		c.Logger.Error().
			Str("method", req.Method).
			Err(err).
			Msg("error during getting response from cache")
	}

	result, err := next(ctx, req)
	if err != nil {
		return nil, err
	}

	if !IsCacheable(result) {
		return result, nil
	}

	if err := c.cacheClient.Set(ctx, key, result); err != nil {
		c.Logger.Error().
			Str("method", req.Method).
			Err(err).
			Msg("error during caching response")
	}

	return result, nil
}

func (c *CacheMiddleware) Healthcheck(ctx context.Context) error {
	return c.cacheClient.Healthcheck(ctx)
}

// Len returns the number of results currently cached
func (c *CacheMiddleware) Len(ctx context.Context) (int, error) {
	return c.cacheClient.Len(ctx)
}
