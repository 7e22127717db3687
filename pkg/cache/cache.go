// Package cache provides the result cache the service executor reads
// through: an in-process LRU with TTL and stale windows, plus a Redis-backed
// variant for deployments that want lookups shared across processes.
package cache

import (
	"context"
	"time"
)

// DefaultTTL applies when neither the call nor the cache config names one.
const DefaultTTL = 300 * time.Second

// EvictionReason tells an eviction callback why an entry left the cache.
type EvictionReason string

const (
	// EvictionLRU means the entry was pushed out by a size or byte cap.
	EvictionLRU EvictionReason = "lru"
	// EvictionExpired means the entry outlived its stale window.
	EvictionExpired EvictionReason = "expired"
	// EvictionManual means a caller deleted the entry.
	EvictionManual EvictionReason = "manual"
)

// EvictionCallback observes entries leaving the cache. It is always invoked
// outside the cache lock, so it may call back into the cache.
type EvictionCallback func(key string, reason EvictionReason)

// SetOptions tunes a single Set. Zero values fall back to the cache config.
type SetOptions struct {
	// TTL is how long the entry stays fresh.
	TTL time.Duration
	// StaleWindow extends the entry's life past expiry for callers that
	// accept stale reads.
	StaleWindow time.Duration
	// SizeBytes is the caller-declared weight of the entry for byte caps.
	SizeBytes int64
}

// GetOptions tunes a single Get.
type GetOptions struct {
	// AllowStale returns entries past expiry but inside the stale window,
	// marked stale, instead of treating them as misses.
	AllowStale bool
	// UpdateAccess controls whether a hit reorders the entry to most
	// recently used and bumps its access stats. Defaults to true.
	UpdateAccess *bool
}

func (o GetOptions) updateAccess() bool {
	return o.UpdateAccess == nil || *o.UpdateAccess
}

// Hit is a successful Get.
type Hit struct {
	// Value is the cached value.
	Value any
	// IsStale is true when the entry is past expiry but was returned
	// because the caller allowed stale reads.
	IsStale bool
	// CachedAt is when the entry was stored.
	CachedAt time.Time
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	Size        int     `json:"size"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
	// OldestEntry is when the longest-lived current entry was cached.
	OldestEntry *time.Time `json:"oldest_entry,omitempty"`
	// TotalBytes sums the declared sizes of current entries.
	TotalBytes int64 `json:"total_bytes"`
	// AverageAge is the mean age of current entries.
	AverageAge time.Duration `json:"average_age"`
}

// Cache is the surface the service executor caches against. MemoryCache
// satisfies it without touching the context; remote backends use it for
// I/O deadlines.
type Cache interface {
	Get(ctx context.Context, key string, opts GetOptions) (Hit, bool)
	Set(ctx context.Context, key string, value any, opts SetOptions) error
	Delete(ctx context.Context, key string) bool
	Clear(ctx context.Context) error
	Stats() Stats
}
