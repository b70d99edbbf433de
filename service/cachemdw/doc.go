// Package cachemdw is responsible for caching method responses and provides the corresponding stage.
// package can work with any underlying storage which implements the bounded cache.Cache interface
//
// CacheMiddleware runs after any injection stages and before the upstream stage:
// - on a hit it answers from the cache without calling the rest of the chain
// - on a miss it calls the rest of the chain and stores a successful result
//
// A stage that wants to know whether a call was answered from the cache
// creates a CacheStatus with WithCacheStatus before calling down the chain.
package cachemdw
