// Package ratelimit implements the rate-limit extension point: a
// per-key token bucket that an interceptor consults before a request
// is allowed to reach the transport.
package ratelimit

import (
	"sync"
	"time"

	"github.com/reqsprint/reqsprint/internal/reqerr"
	"golang.org/x/time/rate"
)

// Config is the rate-limit extension's external configuration: a
// sustained rate plus a burst allowance, applied independently per key
// (the interceptor's default key is the request URL's host).
type Config struct {
	RequestsPerSecond float64
	Burst             int
	// IdleEvictAfter removes a key's bucket once unused for this long,
	// bounding memory for a caller hitting many distinct keys.
	IdleEvictAfter time.Duration
}

func DefaultConfig() Config {
	return Config{RequestsPerSecond: 10, Burst: 20, IdleEvictAfter: 10 * time.Minute}
}

type bucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Limiter maintains one token bucket per key.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	buckets map[string]*bucket
}

func New(cfg Config) *Limiter {
	return &Limiter{cfg: cfg, buckets: make(map[string]*bucket)}
}

// Allow reports whether a request tagged with key may proceed now. It
// never blocks: the caller decides whether to queue, drop, or
// propagate a CONCURRENT error on a false result.
func (l *Limiter) Allow(key string) bool {
	return l.bucketFor(key).limiter.Allow()
}

// Check is Allow expressed as the ErrorModel's vocabulary, convenient
// for wiring directly into an onRequest interceptor.
func (l *Limiter) Check(key string) error {
	if l.Allow(key) {
		return nil
	}
	return reqerr.New(reqerr.KindConcurrent, "RATE_LIMITED", "rate limit exceeded for key "+key, true)
}

func (l *Limiter) bucketFor(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.lastUsed = time.Now()
	return b
}

// EvictIdle removes buckets unused for longer than cfg.IdleEvictAfter.
// Nothing in this module calls it; buckets are only removed when a
// caller invokes it.
func (l *Limiter) EvictIdle() int {
	if l.cfg.IdleEvictAfter <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-l.cfg.IdleEvictAfter)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k, b := range l.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(l.buckets, k)
			removed++
		}
	}
	return removed
}

func (l *Limiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
