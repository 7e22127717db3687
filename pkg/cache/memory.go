package cache

import (
	"context"
	stderrors "errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
)

// Config tunes a MemoryCache. Zero caps mean unbounded; a zero TTL falls
// back to DefaultTTL.
type Config struct {
	// MaxSize caps the number of entries. Inserting past the cap evicts
	// from the least recently used end.
	MaxSize int
	// MaxTotalBytes caps the declared byte weight of all entries.
	MaxTotalBytes int64
	// DefaultTTL applies to Sets that name no TTL.
	DefaultTTL time.Duration
	// DefaultStaleWindow applies to Sets that name no stale window.
	DefaultStaleWindow time.Duration
	// JanitorInterval is how often the janitor prunes expired entries
	// once started.
	JanitorInterval time.Duration
	// OnEvict observes every entry leaving the cache. Called outside the
	// cache lock.
	OnEvict EvictionCallback
}

// DefaultJanitorInterval applies when the janitor is started without one.
const DefaultJanitorInterval = time.Minute

// entry is an LRU list node. Entries link into a circular list with the
// most recently used at head and the eviction candidate at head.prev.
type entry struct {
	key            string
	value          any
	cachedAt       time.Time
	expiresAt      time.Time
	staleUntil     time.Time
	sizeBytes      int64
	accessCount    int64
	lastAccessedAt time.Time

	prev, next *entry
}

// MemoryCache is a mutex-guarded LRU with per-entry TTL and stale windows.
// LRU order is insertion order; a hit reorders by moving the entry back to
// the most recently used end.
type MemoryCache struct {
	config Config
	logger ectologger.Logger
	now    func() time.Time

	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry
	totalBytes int64

	hits        int64
	misses      int64
	evictions   int64
	expirations int64

	janitorMu      sync.Mutex
	janitorRunning bool
	janitorStop    chan struct{}
	janitorStopped chan struct{}
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty cache.
func NewMemoryCache(config Config, logger ectologger.Logger) *MemoryCache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultTTL
	}

	return &MemoryCache{
		config:  config,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Set stores a value. Overwriting an existing key refreshes its timestamps
// and byte weight in place; inserting a new key past a cap evicts least
// recently used entries until the cache fits again.
func (c *MemoryCache) Set(_ context.Context, key string, value any, opts SetOptions) error {
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
	var evicted []string

	c.mu.Lock()

	if e, ok := c.entries[key]; ok {
		c.totalBytes -= e.sizeBytes
		e.value = value
		e.cachedAt = now
		e.expiresAt = now.Add(ttl)
		e.staleUntil = e.expiresAt.Add(staleWindow)
		e.sizeBytes = opts.SizeBytes
		c.totalBytes += e.sizeBytes
		c.moveToFront(e)
	} else {
		e := &entry{
			key:       key,
			value:     value,
			cachedAt:  now,
			expiresAt: now.Add(ttl),
			sizeBytes: opts.SizeBytes,
		}
		e.staleUntil = e.expiresAt.Add(staleWindow)
		e.prev, e.next = e, e
		c.moveToFront(e)
		c.entries[key] = e
		c.totalBytes += e.sizeBytes

		if c.config.MaxSize > 0 {
			for len(c.entries) > c.config.MaxSize {
				evicted = append(evicted, c.evictLRU().key)
			}
		}
	}

	if c.config.MaxTotalBytes > 0 {
		// the entry just written sits at the MRU end, so it survives
		for c.totalBytes > c.config.MaxTotalBytes && len(c.entries) > 1 {
			evicted = append(evicted, c.evictLRU().key)
		}
	}

	onEvict := c.config.OnEvict
	c.mu.Unlock()

	if onEvict != nil {
		for _, k := range evicted {
			onEvict(k, EvictionLRU)
		}
	}
	return nil
}

// Get looks a key up. An entry past its stale window is deleted and counted
// as an expiration; one past expiry but inside the window is a hit only when
// the caller allows stale reads. Hits move to the MRU end and bump access
// stats unless the caller opts out.
func (c *MemoryCache) Get(_ context.Context, key string, opts GetOptions) (Hit, bool) {
	now := c.now()

	c.mu.Lock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		c.mu.Unlock()
		return Hit{}, false
	}

	if now.After(e.staleUntil) {
		c.remove(e)
		c.expirations++
		c.misses++
		onEvict := c.config.OnEvict
		c.mu.Unlock()
		if onEvict != nil {
			onEvict(key, EvictionExpired)
		}
		return Hit{}, false
	}

	isStale := now.After(e.expiresAt)
	if isStale && !opts.AllowStale {
		c.misses++
		c.mu.Unlock()
		return Hit{}, false
	}

	c.hits++
	if opts.updateAccess() {
		e.accessCount++
		e.lastAccessedAt = now
		c.moveToFront(e)
	}
	hit := Hit{Value: e.value, IsStale: isStale, CachedAt: e.cachedAt}

	c.mu.Unlock()
	return hit, true
}

// GetMany looks up a batch of keys, returning only the hits.
func (c *MemoryCache) GetMany(ctx context.Context, keys []string, opts GetOptions) map[string]Hit {
	hits := make(map[string]Hit, len(keys))
	for _, key := range keys {
		if hit, ok := c.Get(ctx, key, opts); ok {
			hits[key] = hit
		}
	}
	return hits
}

// SetMany stores a batch of values under shared options. Keys are written
// in sorted order so the resulting LRU order is deterministic.
func (c *MemoryCache) SetMany(ctx context.Context, values map[string]any, opts SetOptions) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := c.Set(ctx, key, values[key], opts); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a key, reporting whether it existed.
func (c *MemoryCache) Delete(_ context.Context, key string) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	c.remove(e)
	onEvict := c.config.OnEvict
	c.mu.Unlock()

	if onEvict != nil {
		onEvict(key, EvictionManual)
	}
	return true
}

// Clear drops every entry and resets the stats counters.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.head = nil
	c.totalBytes = 0
	c.hits = 0
	c.misses = 0
	c.evictions = 0
	c.expirations = 0
	c.mu.Unlock()
	return nil
}

// Keys returns the keys matching a glob pattern, sorted. "*" matches any
// run of characters; an empty pattern matches everything.
func (c *MemoryCache) Keys(pattern string) []string {
	var re *regexp.Regexp
	if pattern != "" && pattern != "*" {
		re = regexp.MustCompile("^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$")
	}

	c.mu.Lock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		if re == nil || re.MatchString(key) {
			keys = append(keys, key)
		}
	}
	c.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// Prune removes every entry past its stale window and returns how many it
// removed.
func (c *MemoryCache) Prune() int {
	now := c.now()

	c.mu.Lock()
	var expired []string
	for key, e := range c.entries {
		if now.After(e.staleUntil) {
			expired = append(expired, key)
		}
	}
	sort.Strings(expired)
	for _, key := range expired {
		c.remove(c.entries[key])
		c.expirations++
	}
	onEvict := c.config.OnEvict
	c.mu.Unlock()

	if onEvict != nil {
		for _, key := range expired {
			onEvict(key, EvictionExpired)
		}
	}
	return len(expired)
}

// Stats snapshots the cache counters and entry ages.
func (c *MemoryCache) Stats() Stats {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Size:        len(c.entries),
		Evictions:   c.evictions,
		Expirations: c.expirations,
		TotalBytes:  c.totalBytes,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}

	var ageSum time.Duration
	var oldest time.Time
	for _, e := range c.entries {
		ageSum += now.Sub(e.cachedAt)
		if oldest.IsZero() || e.cachedAt.Before(oldest) {
			oldest = e.cachedAt
		}
	}
	if len(c.entries) > 0 {
		stats.AverageAge = ageSum / time.Duration(len(c.entries))
		oldestCopy := oldest
		stats.OldestEntry = &oldestCopy
	}
	return stats
}

// StartJanitor launches a background loop that prunes expired entries on
// the configured interval.
func (c *MemoryCache) StartJanitor(ctx context.Context) error {
	c.janitorMu.Lock()
	if c.janitorRunning {
		c.janitorMu.Unlock()
		return stderrors.New("cache janitor already running")
	}
	c.janitorRunning = true
	c.janitorStop = make(chan struct{})
	c.janitorStopped = make(chan struct{})
	stop, stopped := c.janitorStop, c.janitorStopped
	c.janitorMu.Unlock()

	interval := c.config.JanitorInterval
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"interval": interval.String(),
	}).Info("Starting cache janitor")

	go c.janitorLoop(ctx, interval, stop, stopped)
	return nil
}

// StopJanitor shuts the janitor down, waiting for an in-flight prune to
// finish or the context to expire.
func (c *MemoryCache) StopJanitor(ctx context.Context) error {
	c.janitorMu.Lock()
	if !c.janitorRunning {
		c.janitorMu.Unlock()
		return nil
	}
	c.janitorRunning = false
	stop, stopped := c.janitorStop, c.janitorStopped
	c.janitorMu.Unlock()

	close(stop)

	select {
	case <-stopped:
		c.logger.WithContext(ctx).Info("Cache janitor stopped")
		return nil
	case <-ctx.Done():
		c.logger.WithContext(ctx).Warn("Cache janitor shutdown timed out")
		return ctx.Err()
	}
}

func (c *MemoryCache) janitorLoop(ctx context.Context, interval time.Duration, stop, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := c.Prune(); pruned > 0 {
				c.logger.WithContext(ctx).WithFields(map[string]any{
					"pruned": pruned,
				}).Debug("Pruned expired cache entries")
			}
		}
	}
}

// moveToFront splices an entry to the MRU end. Callers must hold c.mu.
func (c *MemoryCache) moveToFront(e *entry) {
	if c.head == e {
		return
	}
	if c.head != nil {
		unlink(e)
		e.next = c.head
		e.prev = c.head.prev
		c.head.prev = e
		e.prev.next = e
	}
	c.head = e
}

// remove unlinks an entry and drops it from the map. Callers must hold c.mu.
func (c *MemoryCache) remove(e *entry) {
	if e == c.head {
		if e.next == e {
			c.head = nil
		} else {
			c.head = e.next
		}
	}
	unlink(e)
	delete(c.entries, e.key)
	c.totalBytes -= e.sizeBytes
}

// evictLRU removes and returns the least recently used entry. Callers must
// hold c.mu and ensure the cache is non-empty.
func (c *MemoryCache) evictLRU() *entry {
	tail := c.head.prev
	c.remove(tail)
	c.evictions++
	return tail
}

// unlink splices an entry out of its list, leaving it self-linked.
func unlink(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = e
	e.next = e
}
