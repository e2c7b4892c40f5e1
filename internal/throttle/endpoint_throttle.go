// Package throttle scores endpoint health from a history of successes
// and failures, exponentially decaying older observations so one
// stale outage does not permanently depress an endpoint that has
// since recovered. A Transport decorator consults ShouldThrottle
// before dispatching a request to a given URL.
package throttle

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/reqsprint/reqsprint/internal/metrics"
	"go.uber.org/zap"
)

// Status is a point-in-time snapshot of one endpoint's health.
type Status struct {
	URL            string
	SuccessCount   int64
	FailureCount   int64
	LastSuccess    time.Time
	LastFailure    time.Time
	NextRetry      time.Time
	CurrentBackoff time.Duration
	Score          float64
}

// Config holds the scoring and backoff parameters. Field comments
// carry the defaults since the zero value of each is not a sane
// default on its own.
type Config struct {
	MinSuccessRate    float64       // 0.90
	BonusIfAbove      float64       // 0.10
	RecentSuccessMax  float64       // 0.05
	RecentFailureMax  float64       // 0.10
	SuccessHalfLife   time.Duration // 10 * time.Minute
	FailureHalfLife   time.Duration // 60 * time.Minute
	Cap               float64       // 1.15
	Floor             float64       // 0.20, scores are clamped to this; a score at it throttles the endpoint
	InitialBackoff    time.Duration // 10 * time.Second
	MaxBackoff        time.Duration // 5 * time.Minute
	BackoffMultiplier float64       // 2.0
}

func DefaultConfig() Config {
	return Config{
		MinSuccessRate:    0.90,
		BonusIfAbove:      0.10,
		RecentSuccessMax:  0.05,
		RecentFailureMax:  0.10,
		SuccessHalfLife:   10 * time.Minute,
		FailureHalfLife:   60 * time.Minute,
		Cap:               1.15,
		Floor:             0.20,
		InitialBackoff:    10 * time.Second,
		MaxBackoff:        5 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

type endpoint struct {
	status         Status
	currentBackoff time.Duration
}

// Throttle tracks per-URL success/failure history and derives a
// throttling decision from an exponentially-decayed score.
type Throttle struct {
	mu        sync.RWMutex
	endpoints map[string]*endpoint
	cfg       Config
	logger    *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Throttle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Throttle{endpoints: make(map[string]*endpoint), cfg: cfg, logger: logger}
}

func (t *Throttle) ensure(url string) *endpoint {
	e, ok := t.endpoints[url]
	if !ok {
		e = &endpoint{status: Status{URL: url, Score: 1.0}, currentBackoff: t.cfg.InitialBackoff}
		t.endpoints[url] = e
	}
	return e
}

// RecordSuccess registers a successful call to url and resets its
// backoff.
func (t *Throttle) RecordSuccess(url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.ensure(url)
	e.status.SuccessCount++
	e.status.LastSuccess = time.Now()
	e.currentBackoff = t.cfg.InitialBackoff
	e.status.CurrentBackoff = e.currentBackoff
	e.status.NextRetry = time.Time{}
	t.scoreLocked(e)
}

// RecordFailure registers a failed call to url and grows its backoff
// multiplicatively, capped at MaxBackoff.
func (t *Throttle) RecordFailure(url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.ensure(url)
	e.status.FailureCount++
	e.status.LastFailure = time.Now()

	e.currentBackoff = time.Duration(float64(e.currentBackoff) * t.cfg.BackoffMultiplier)
	if e.currentBackoff > t.cfg.MaxBackoff {
		e.currentBackoff = t.cfg.MaxBackoff
	}
	e.status.CurrentBackoff = e.currentBackoff
	e.status.NextRetry = time.Now().Add(e.currentBackoff)
	t.scoreLocked(e)
}

func (t *Throttle) scoreLocked(e *endpoint) {
	total := e.status.SuccessCount + e.status.FailureCount
	successRate := 1.0
	if total > 0 {
		successRate = float64(e.status.SuccessCount) / float64(total)
	}
	var lastFailureAgo *time.Duration
	if !e.status.LastFailure.IsZero() {
		d := time.Since(e.status.LastFailure)
		lastFailureAgo = &d
	}
	lastSuccessAgo := time.Since(e.status.LastSuccess)
	if e.status.LastSuccess.IsZero() {
		lastSuccessAgo = t.cfg.SuccessHalfLife * 10 // treat "never succeeded" as long decayed
	}
	e.status.Score = calculateScore(successRate, lastSuccessAgo, lastFailureAgo, t.cfg)
	metrics.EndpointScore.WithLabelValues(e.status.URL).Set(e.status.Score)
}

// ShouldThrottle reports whether url is currently in backoff or has a
// health score at or below the configured floor.
func (t *Throttle) ShouldThrottle(url string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.endpoints[url]
	if !ok {
		return false
	}
	if time.Now().Before(e.status.NextRetry) {
		return true
	}
	return e.status.Score <= t.cfg.Floor
}

func expDecay(dt time.Duration, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 0
	}
	return math.Exp(-math.Ln2 * float64(dt) / float64(halfLife))
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func calculateScore(successRate float64, lastSuccessAgo time.Duration, lastFailureAgo *time.Duration, cfg Config) float64 {
	score := clamp(successRate, 0, 1)
	if successRate >= cfg.MinSuccessRate {
		score += cfg.BonusIfAbove
	}
	score += cfg.RecentSuccessMax * expDecay(lastSuccessAgo, cfg.SuccessHalfLife)
	if lastFailureAgo != nil {
		score -= cfg.RecentFailureMax * expDecay(*lastFailureAgo, cfg.FailureHalfLife)
	}
	return clamp(score, cfg.Floor, cfg.Cap)
}

// GetStatus returns a copy of the current status for url.
func (t *Throttle) GetStatus(url string) (Status, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.endpoints[url]
	if !ok {
		return Status{}, fmt.Errorf("endpoint not found: %s", url)
	}
	return e.status, nil
}

// GetAllStatuses returns a copy of every tracked endpoint's status.
func (t *Throttle) GetAllStatuses() map[string]Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Status, len(t.endpoints))
	for url, e := range t.endpoints {
		out[url] = e.status
	}
	return out
}

// Reset clears all endpoint history.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endpoints = make(map[string]*endpoint)
	t.logger.Info("endpoint throttle reset")
}
