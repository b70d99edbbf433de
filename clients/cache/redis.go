package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kava-labs/kava-rpc-gateway/logging"
)

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// Prefix namespaces every key written by the gateway
	Prefix string
}

// RedisClient holds the connection shared by every RedisCache
type RedisClient struct {
	client *redis.Client
	prefix string
	*logging.ServiceLogger
}

// RedisCache is an implementation of Cache that uses Redis as the caching backend.
// Entries are plain string keys, recency is tracked in a sorted set per cache
// scored by a per cache logical clock, so eviction order is exact across gateway instances.
type RedisCache struct {
	client   *redis.Client
	capacity int
	indexKey string
	clockKey string
	*logging.ServiceLogger
}

var _ Cache = (*RedisCache)(nil)

// KEYS[1] entry, KEYS[2] recency index, KEYS[3] clock
// ARGV[1] value, ARGV[2] capacity
var setScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[1])
local tick = redis.call('INCR', KEYS[3])
redis.call('ZADD', KEYS[2], tick, KEYS[1])
local excess = redis.call('ZCARD', KEYS[2]) - tonumber(ARGV[2])
if excess > 0 then
	local evicted = redis.call('ZRANGE', KEYS[2], 0, excess - 1)
	redis.call('ZREMRANGEBYRANK', KEYS[2], 0, excess - 1)
	redis.call('DEL', unpack(evicted))
end
return excess
`)

// KEYS[1] entry, KEYS[2] recency index, KEYS[3] clock
var getScript = redis.NewScript(`
local value = redis.call('GET', KEYS[1])
if value then
	local tick = redis.call('INCR', KEYS[3])
	redis.call('ZADD', KEYS[2], tick, KEYS[1])
end
return value
`)

func NewRedisClient(
	cfg *RedisConfig,
	logger *logging.ServiceLogger,
) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisClient{
		client:        client,
		prefix:        cfg.Prefix,
		ServiceLogger: logger,
	}
}

// NewCache returns the cache for namespace holding at most capacity entries
func (rc *RedisClient) NewCache(namespace string, capacity int) (*RedisCache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidCapacity, capacity)
	}

	indexKey := fmt.Sprintf("lru:%s:%s", rc.prefix, namespace)

	return &RedisCache{
		client:        rc.client,
		capacity:      capacity,
		indexKey:      indexKey,
		clockKey:      indexKey + ":clock",
		ServiceLogger: rc.ServiceLogger,
	}, nil
}

// Factory returns a Factory creating caches on this connection
func (rc *RedisClient) Factory() Factory {
	return func(namespace string, capacity int) (Cache, error) {
		return rc.NewCache(namespace, capacity)
	}
}

func (rc *RedisClient) Healthcheck(ctx context.Context) error {
	rc.Logger.Trace().Msg("redis healthcheck was called")

	// Check if we can connect to Redis
	_, err := rc.client.Ping(ctx).Result()
	if err != nil {
		rc.Logger.Error().
			Err(err).
			Msg("can't ping redis")
		return fmt.Errorf("error connecting to Redis: %v", err)
	}

	rc.Logger.Trace().Msg("redis healthcheck was successful")

	return nil
}

func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// Set stores value under key, evicting the least recently used entries beyond capacity.
func (rc *RedisCache) Set(
	ctx context.Context,
	key string,
	value []byte,
) error {
	rc.Logger.Trace().
		Str("key", key).
		Str("value", string(value)).
		Msg("setting value in redis")

	evicted, err := setScript.Run(ctx, rc.client, []string{key, rc.indexKey, rc.clockKey}, value, rc.capacity).Int()
	if err != nil {
		rc.Logger.Error().
			Str("key", key).
			Err(err).
			Msg("error during setting value in redis")
		return err
	}

	if evicted > 0 {
		rc.Logger.Trace().
			Str("index", rc.indexKey).
			Int("evicted", evicted).
			Msg("evicted least recently used values from redis")
	}

	return nil
}

// Get gets the value for the given key in the cache and marks it as most recently used.
func (rc *RedisCache) Get(
	ctx context.Context,
	key string,
) ([]byte, error) {
	rc.Logger.Trace().
		Str("key", key).
		Msg("getting value from redis")

	val, err := getScript.Run(ctx, rc.client, []string{key, rc.indexKey, rc.clockKey}).Text()
	if err == redis.Nil {
		rc.Logger.Trace().
			Str("key", key).
			Msgf("value not found in redis")
		return nil, ErrNotFound
	}
	if err != nil {
		rc.Logger.Error().
			Str("key", key).
			Err(err).
			Msg("error during getting value from redis")
		return nil, err
	}

	rc.Logger.Trace().
		Str("key", key).
		Str("value", val).
		Msg("successfully got value from redis")

	return []byte(val), nil
}

// Len returns the number of entries tracked by the recency index
func (rc *RedisCache) Len(ctx context.Context) (int, error) {
	count, err := rc.client.ZCard(ctx, rc.indexKey).Result()
	return int(count), err
}

func (rc *RedisCache) Healthcheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}
