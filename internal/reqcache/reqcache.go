// Package reqcache implements RequestCache: a fingerprint-keyed cache
// with single-flight collapsing of concurrent loads, TTL eviction, and
// an optional bounded LRU backend once MaxEntries is exceeded.
package reqcache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/reqsprint/reqsprint/internal/fingerprint"
	"github.com/reqsprint/reqsprint/internal/reqerr"
	"go.uber.org/zap"
	xsync "golang.org/x/sync/singleflight"
)

// Clock is a testable time source, matching the teacher cache's Clock
// interface so deterministic tests can inject a fake.
type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Entry mirrors CacheEntry from the data model.
type Entry struct {
	Fingerprint string
	Value       any
	StoredAt    time.Time
	ExpiresAt   time.Time
}

// Config is CacheConfig from the external configuration surface.
type Config struct {
	TTL              time.Duration
	MaxEntries       int
	HashAlgorithm    fingerprint.Algorithm
	MaxKeyLength     int
	IncludeHeaders   bool
	HeadersWhitelist []string
	EnableHashCache  bool
}

func DefaultConfig() Config {
	return Config{
		TTL:          5 * time.Minute,
		MaxEntries:   10000,
		HashAlgorithm: fingerprint.AlgoXXHash,
		MaxKeyLength: 512,
	}
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Size    int
	Hits    int64
	Misses  int64
	HitRate float64
}

// Cache maps a fingerprint to a stored value or a single in-flight
// load. It is the Go form of RequestCache (spec §4.7).
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	lru     *lru.Cache // nil unless MaxEntries > 0
	group   xsync.Group
	cfg     Config
	logger  *zap.Logger
	clock   Clock

	hits   int64
	misses int64
}

func New(cfg Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		entries: make(map[string]*Entry),
		cfg:     cfg,
		logger:  logger,
		clock:   realClock{},
	}
	if cfg.MaxEntries > 0 {
		// hashicorp/golang-lru evicts by its own recency order; we keep
		// our own map as the source of truth and use the LRU purely to
		// decide eviction order once capacity is exceeded. The LRU runs
		// this callback synchronously inside Add/Remove/Purge, and every
		// such call is made with c.mu already held, so it must not lock.
		l, err := lru.NewWithEvict(cfg.MaxEntries, func(key interface{}, value interface{}) {
			delete(c.entries, key.(string))
		})
		if err != nil {
			logger.Warn("failed to create LRU backend, falling back to unbounded map", zap.Error(err))
		} else {
			c.lru = l
		}
	}
	return c
}

// SetClock allows tests to inject a fake clock for deterministic TTL
// expiry, matching the teacher cache's Clock-injection pattern.
func (c *Cache) SetClock(clk Clock) { c.clock = clk }

// Key computes the fingerprint for a request under this cache's
// configured algorithm and whitelist.
func (c *Cache) Key(req fingerprint.Request) string {
	return fingerprint.Key(req, fingerprint.Config{
		Algorithm:        c.cfg.HashAlgorithm,
		MaxKeyLength:     c.cfg.MaxKeyLength,
		HeadersWhitelist: c.whitelistForRequest(),
	})
}

func (c *Cache) whitelistForRequest() []string {
	if !c.cfg.IncludeHeaders {
		return nil
	}
	return c.cfg.HeadersWhitelist
}

// GetOrLoad returns the cached value for key if present and unexpired;
// otherwise it calls loader exactly once even under concurrent
// callers sharing the same key (single-flight), stores the result with
// ttl (falling back to the cache's default TTL), and returns it.
func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader func(context.Context) (any, error)) (any, error) {
	if v, ok := c.get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check without touching hit/miss counters: this caller's
		// miss was already counted above.
		c.mu.RLock()
		e, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && !c.clock.Now().After(e.ExpiresAt) {
			return e.Value, nil
		}
		val, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if ttl <= 0 {
			ttl = c.cfg.TTL
		}
		c.set(key, val, ttl)
		return val, nil
	})
	if err != nil {
		return nil, reqerr.Wrap(reqerr.KindCache, "CACHE_LOAD_FAILED", err)
	}
	return v, nil
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.clock.Now().After(e.ExpiresAt) {
		delete(c.entries, key)
		if c.lru != nil {
			c.lru.Remove(key)
		}
		c.misses++
		return nil, false
	}
	c.hits++
	if c.lru != nil {
		c.lru.Get(key) // touch for recency
	}
	return e.Value, true
}

func (c *Cache) set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	now := c.clock.Now()
	c.entries[key] = &Entry{Fingerprint: key, Value: value, StoredAt: now, ExpiresAt: now.Add(ttl)}
	if c.lru != nil {
		c.lru.Add(key, struct{}{})
	}
	c.mu.Unlock()
}

// Clear removes one fingerprint, or every entry if key is empty.
func (c *Cache) Clear(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key == "" {
		c.entries = make(map[string]*Entry)
		if c.lru != nil {
			c.lru.Purge()
		}
		return
	}
	delete(c.entries, key)
	if c.lru != nil {
		c.lru.Remove(key)
	}
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{Size: len(c.entries), Hits: c.hits, Misses: c.misses, HitRate: rate}
}

// Warmup pre-populates the cache for a set of requests using loader,
// skipping any fingerprint already present and unexpired.
func (c *Cache) Warmup(ctx context.Context, reqs []fingerprint.Request, loader func(context.Context, fingerprint.Request) (any, error)) {
	for _, req := range reqs {
		key := c.Key(req)
		if _, ok := c.get(key); ok {
			continue
		}
		if v, err := loader(ctx, req); err == nil {
			c.set(key, v, c.cfg.TTL)
		}
	}
}
