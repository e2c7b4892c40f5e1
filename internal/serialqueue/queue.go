// Package serialqueue implements a single-worker, FIFO, per-key queue
// (SerialQueue) and the key→queue manager that owns a population of
// them (SerialManager). At most one task per key is ever in flight.
package serialqueue

import (
	"container/list"
	"sync"
	"time"

	"github.com/reqsprint/reqsprint/internal/reqerr"
	"go.uber.org/zap"
)

// Task is one item queued against a key. Execute is supplied by the
// pipeline and performs the actual transport call; its result (or
// error) is delivered on Done.
type Task struct {
	ID        string
	CreatedAt time.Time
	Execute   func() (any, error)
	Done      chan Result
	enqueuedAt time.Time
}

type Result struct {
	Value any
	Err   error
}

// Config controls one queue's admission and timeout behavior.
type Config struct {
	MaxQueueSize  int
	QueueTimeout  time.Duration
	OnQueueFull   func(key string)
	OnTaskTimeout func(task *Task)
	Debug         bool
}

// Stats is a point-in-time snapshot of a queue's counters.
type Stats struct {
	TotalTasks     int64
	Pending        int
	Completed      int64
	Failed         int64
	AvgProcessingMs float64
	IsProcessing   bool
	LastProcessedAt *time.Time
}

// Queue is a single-worker FIFO queue bound to one key.
type Queue struct {
	mu         sync.Mutex
	key        string
	cfg        Config
	logger     *zap.Logger
	waiting    *list.List // of *Task
	executing  bool
	destroyed  bool

	totalTasks      int64
	completed       int64
	failed          int64
	totalDurationMs float64
	lastProcessedAt *time.Time

	wake chan struct{}
}

func New(key string, cfg Config, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		key:     key,
		cfg:     cfg,
		logger:  logger,
		waiting: list.New(),
		wake:    make(chan struct{}, 1),
	}
	go q.run()
	return q
}

// Enqueue admits a task and returns a channel that receives exactly
// one result once the task settles (or is rejected at admission or
// at dequeue-time timeout).
func (q *Queue) Enqueue(execute func() (any, error)) <-chan Result {
	done := make(chan Result, 1)

	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		done <- Result{Err: reqerr.NewValidationError("SERIAL_QUEUE_DESTROYED", "serial queue destroyed")}
		return done
	}
	inFlight := 0
	if q.executing {
		inFlight = 1
	}
	if q.cfg.MaxQueueSize > 0 && q.waiting.Len()+inFlight >= q.cfg.MaxQueueSize {
		q.mu.Unlock()
		if q.cfg.OnQueueFull != nil {
			q.cfg.OnQueueFull(q.key)
		}
		done <- Result{Err: reqerr.New(reqerr.KindValidation, "SERIAL_QUEUE_FULL", "serial queue is full", false)}
		return done
	}
	t := &Task{
		CreatedAt:  time.Now(),
		enqueuedAt: time.Now(),
		Execute:    execute,
		Done:       done,
	}
	q.totalTasks++
	q.waiting.PushBack(t)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return done
}

func (q *Queue) run() {
	for range q.wake {
		q.drainOne()
	}
}

func (q *Queue) drainOne() {
	for {
		q.mu.Lock()
		if q.destroyed {
			q.mu.Unlock()
			return
		}
		front := q.waiting.Front()
		if front == nil {
			q.mu.Unlock()
			return
		}
		t := front.Value.(*Task)
		q.waiting.Remove(front)

		if q.cfg.QueueTimeout > 0 && time.Since(t.enqueuedAt) > q.cfg.QueueTimeout {
			q.mu.Unlock()
			if q.cfg.OnTaskTimeout != nil {
				q.cfg.OnTaskTimeout(t)
			}
			t.Done <- Result{Err: reqerr.New(reqerr.KindTimeout, "SERIAL_TASK_TIMEOUT", "serial task timed out waiting in queue", true)}
			continue
		}

		q.executing = true
		q.mu.Unlock()

		start := time.Now()
		value, err := t.Execute()
		elapsed := float64(time.Since(start).Milliseconds())

		q.mu.Lock()
		q.executing = false
		now := time.Now()
		q.lastProcessedAt = &now
		q.totalDurationMs += elapsed
		if err != nil {
			q.failed++
		} else {
			q.completed++
		}
		q.mu.Unlock()

		t.Done <- Result{Value: value, Err: err}
		// loop to pick up the next queued task, rather than waiting
		// on wake again, so a burst enqueued while this one ran drains
		// promptly.
	}
}

func (q *Queue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting.Len()
}

func (q *Queue) IsIdle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting.Len() == 0 && !q.executing
}

// Clear rejects every waiting task; the currently executing task (if
// any) is left to complete normally.
func (q *Queue) Clear() {
	q.mu.Lock()
	var rejected []*Task
	for e := q.waiting.Front(); e != nil; e = e.Next() {
		rejected = append(rejected, e.Value.(*Task))
	}
	q.waiting.Init()
	q.mu.Unlock()

	for _, t := range rejected {
		t.Done <- Result{Err: reqerr.New(reqerr.KindValidation, "SERIAL_QUEUE_CLEARED", "serial queue cleared", false)}
	}
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	avg := 0.0
	if q.completed+q.failed > 0 {
		avg = q.totalDurationMs / float64(q.completed+q.failed)
	}
	return Stats{
		TotalTasks:      q.totalTasks,
		Pending:         q.waiting.Len(),
		Completed:       q.completed,
		Failed:          q.failed,
		AvgProcessingMs: avg,
		IsProcessing:    q.executing,
		LastProcessedAt: q.lastProcessedAt,
	}
}

// Destroy stops the worker and rejects all waiters. The currently
// executing task, if any, is allowed to settle and its result is still
// delivered on its Done channel; the worker then exits.
func (q *Queue) Destroy() {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return
	}
	q.destroyed = true
	var rejected []*Task
	for e := q.waiting.Front(); e != nil; e = e.Next() {
		rejected = append(rejected, e.Value.(*Task))
	}
	q.waiting.Init()
	q.mu.Unlock()
	close(q.wake)

	for _, t := range rejected {
		t.Done <- Result{Err: reqerr.New(reqerr.KindValidation, "SERIAL_QUEUE_DESTROYED", "serial queue destroyed", false)}
	}
}
