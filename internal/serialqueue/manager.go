package serialqueue

import (
	"sync"
	"time"

	"github.com/reqsprint/reqsprint/internal/reqerr"
	"go.uber.org/zap"
)

// ManagerConfig controls queue creation caps and idle reaping.
type ManagerConfig struct {
	DefaultQueueConfig Config
	MaxQueues          int
	CleanupInterval    time.Duration
	AutoCleanup        bool
	Debug              bool
}

func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		CleanupInterval: 30 * time.Second,
		AutoCleanup:     true,
	}
}

// ManagerStats aggregates per-queue stats across the whole manager.
type ManagerStats struct {
	QueueCount        int
	ActiveQueueCount  int
	TotalTasks        int64
	Completed         int64
	Failed            int64
	WeightedAvgMs     float64
}

// Manager owns a key→Queue mapping. The first enqueue for a key
// creates its queue and binds its config permanently: later enqueues
// for the same key that pass a different Config are admitted under
// the queue's bound config, and the later Config is ignored.
type Manager struct {
	mu      sync.RWMutex
	queues  map[string]*Queue
	cfg     ManagerConfig
	logger  *zap.Logger
	shutdown chan struct{}
	destroyed bool
}

func NewManager(cfg ManagerConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		queues:   make(map[string]*Queue),
		cfg:      cfg,
		logger:   logger,
		shutdown: make(chan struct{}),
	}
	if cfg.AutoCleanup {
		interval := cfg.CleanupInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		go m.reapLoop(interval)
	}
	return m
}

func (m *Manager) reapLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-m.shutdown:
			return
		}
	}
}

// GetOrCreate returns the queue bound to key, creating it (with cfg)
// if this is the first reference. If the queue already exists, cfg is
// ignored even if it differs from the queue's bound config — first
// enqueue's config wins, by design.
func (m *Manager) GetOrCreate(key string, cfg Config) (*Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return nil, reqerr.NewValidationError("SERIAL_MANAGER_DESTROYED", "serial manager destroyed")
	}
	if q, ok := m.queues[key]; ok {
		return q, nil
	}
	if m.cfg.MaxQueues > 0 && len(m.queues) >= m.cfg.MaxQueues {
		return nil, reqerr.NewValidationError("SERIAL_MAX_QUEUES", "Maximum number of serial queues reached")
	}
	q := New(key, cfg, m.logger)
	m.queues[key] = q
	return q, nil
}

// Enqueue routes execute to the queue for key, creating the queue with
// cfg if needed.
func (m *Manager) Enqueue(key string, cfg Config, execute func() (any, error)) <-chan Result {
	q, err := m.GetOrCreate(key, cfg)
	if err != nil {
		done := make(chan Result, 1)
		done <- Result{Err: err}
		return done
	}
	return q.Enqueue(execute)
}

func (m *Manager) Clear(key string) {
	m.mu.RLock()
	q, ok := m.queues[key]
	m.mu.RUnlock()
	if ok {
		q.Clear()
	}
}

func (m *Manager) ClearAll() {
	m.mu.RLock()
	queues := make([]*Queue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.RUnlock()
	for _, q := range queues {
		q.Clear()
	}
}

func (m *Manager) Remove(key string) {
	m.mu.Lock()
	q, ok := m.queues[key]
	if ok {
		delete(m.queues, key)
	}
	m.mu.Unlock()
	if ok {
		q.Destroy()
	}
}

func (m *Manager) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.queues[key]
	return ok
}

func (m *Manager) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.queues))
	for k := range m.queues {
		keys = append(keys, k)
	}
	return keys
}

// Cleanup reaps idle queues (no waiting tasks, not executing).
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	var idle []string
	var reaped []*Queue
	for k, q := range m.queues {
		if q.IsIdle() {
			idle = append(idle, k)
			reaped = append(reaped, q)
		}
	}
	for _, k := range idle {
		delete(m.queues, k)
	}
	m.mu.Unlock()
	for _, q := range reaped {
		q.Destroy()
	}
	return len(idle)
}

func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out ManagerStats
	var weightedSum float64
	var settledTotal int64
	out.QueueCount = len(m.queues)
	for _, q := range m.queues {
		s := q.Stats()
		out.TotalTasks += s.TotalTasks
		out.Completed += s.Completed
		out.Failed += s.Failed
		settled := s.Completed + s.Failed
		weightedSum += s.AvgProcessingMs * float64(settled)
		settledTotal += settled
		if s.Pending > 0 || s.IsProcessing {
			out.ActiveQueueCount++
		}
	}
	if settledTotal > 0 {
		out.WeightedAvgMs = weightedSum / float64(settledTotal)
	}
	return out
}

// Destroy stops the reaper and rejects waiters on every queue.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	queues := make([]*Queue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.queues = make(map[string]*Queue)
	m.mu.Unlock()

	close(m.shutdown)
	for _, q := range queues {
		q.Destroy()
	}
}
