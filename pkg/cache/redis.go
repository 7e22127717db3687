package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces cache keys so Clear never touches keys the
// cache does not own.
const DefaultRedisPrefix = "cache"

// redisEnvelope is the persisted shape of one entry. Values round-trip
// through JSON, so numbers come back as float64.
type redisEnvelope struct {
	Value      any       `json:"value"`
	CachedAt   time.Time `json:"cached_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	StaleUntil time.Time `json:"stale_until"`
}

// RedisCache implements the cache contract over a shared Redis backend, for
// deployments where several processes should reuse each other's lookups.
// Redis expires entries at the stale boundary; freshness inside that bound
// is judged locally from the stored timestamps. Hit and miss counters are
// per-process.
type RedisCache struct {
	client *redis.Client
	prefix string
	config Config
	logger ectologger.Logger
	now    func() time.Time

	mu          sync.Mutex
	hits        int64
	misses      int64
	expirations int64
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache wraps an existing Redis client. All keys live under the
// given prefix; an empty prefix falls back to DefaultRedisPrefix.
func NewRedisCache(client *redis.Client, prefix string, config Config, logger ectologger.Logger) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultTTL
	}

	return &RedisCache{
		client: client,
		prefix: prefix,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Set stores a value with its freshness timestamps. The Redis expiry covers
// the TTL plus the stale window, so Redis garbage-collects exactly when the
// entry stops being servable.
func (c *RedisCache) Set(ctx context.Context, key string, value any, opts SetOptions) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}
	staleWindow := opts.StaleWindow
	if staleWindow <= 0 {
		staleWindow = c.config.DefaultStaleWindow
	}

	now := c.now()
	envelope := redisEnvelope{
		Value:      value,
		CachedAt:   now,
		ExpiresAt:  now.Add(ttl),
		StaleUntil: now.Add(ttl + staleWindow),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, c.namespaced(key), payload, ttl+staleWindow).Err()
}

// Get looks a key up. Backend failures count as misses so a degraded Redis
// never degrades the caller.
func (c *RedisCache) Get(ctx context.Context, key string, opts GetOptions) (Hit, bool) {
	payload, err := c.client.Get(ctx, c.namespaced(key)).Bytes()
	if err == redis.Nil {
		c.recordMiss()
		return Hit{}, false
	}
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"key": key,
		}).Warn("Redis cache read failed")
		c.recordMiss()
		return Hit{}, false
	}

	var envelope redisEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"key": key,
		}).Warn("Redis cache entry is not decodable, dropping it")
		c.client.Del(ctx, c.namespaced(key))
		c.recordMiss()
		return Hit{}, false
	}

	now := c.now()
	if now.After(envelope.StaleUntil) {
		c.client.Del(ctx, c.namespaced(key))
		c.mu.Lock()
		c.expirations++
		c.misses++
		c.mu.Unlock()
		if c.config.OnEvict != nil {
			c.config.OnEvict(key, EvictionExpired)
		}
		return Hit{}, false
	}

	isStale := now.After(envelope.ExpiresAt)
	if isStale && !opts.AllowStale {
		c.recordMiss()
		return Hit{}, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()

	return Hit{Value: envelope.Value, IsStale: isStale, CachedAt: envelope.CachedAt}, true
}

// Delete removes a key, reporting whether it existed.
func (c *RedisCache) Delete(ctx context.Context, key string) bool {
	removed, err := c.client.Del(ctx, c.namespaced(key)).Result()
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"key": key,
		}).Warn("Redis cache delete failed")
		return false
	}
	if removed > 0 && c.config.OnEvict != nil {
		c.config.OnEvict(key, EvictionManual)
	}
	return removed > 0
}

// Clear removes every key under the cache's prefix and resets the local
// counters.
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.hits = 0
	c.misses = 0
	c.expirations = 0
	c.mu.Unlock()
	return nil
}

// Stats snapshots the per-process counters. Entry counts and byte totals
// live in Redis and are not tracked here.
func (c *RedisCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Expirations: c.expirations,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

func (c *RedisCache) namespaced(key string) string {
	return c.prefix + ":" + key
}

func (c *RedisCache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}
