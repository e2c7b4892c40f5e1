// Package executor implements the bounded-parallelism batch runner:
// a fixed pool of permits gates concurrent execution of a slice of
// tasks, with fail-fast or permissive settlement semantics and an
// optional batch-wide timeout.
package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reqsprint/reqsprint/internal/collector"
	"github.com/reqsprint/reqsprint/internal/reqerr"
	"github.com/reqsprint/reqsprint/internal/semaphore"
)

// maxBatchTimeout clamps an absurdly large configured timeout to a
// platform-safe maximum.
const maxBatchTimeout = 24 * time.Hour

// Config is ConcurrentConfig from the external configuration surface.
type Config struct {
	MaxConcurrency int
	FailFast       bool
	Timeout        time.Duration
}

// Result mirrors RequestResult<T> from the data model.
type Result struct {
	Success    bool
	Data       any
	Error      error
	Index      int
	Duration   time.Duration
	RetryCount int
}

// Stats mirrors ConcurrentStats from the data model.
type Stats struct {
	Total              int
	Completed          int
	Successful         int
	Failed             int
	AvgDuration        time.Duration
	MaxConcurrencyUsed int
}

// Task is one unit of work submitted to RunAll/RunMultiple.
type Task func(ctx context.Context) (any, error)

// Executor runs batches of Task under bounded concurrency.
type Executor struct {
	mu    sync.Mutex
	stats Stats
}

func New() *Executor {
	return &Executor{}
}

// RunAll executes tasks with bounded parallelism per cfg and returns
// one Result per task, indexed by original position.
func (e *Executor) RunAll(ctx context.Context, tasks []Task, cfg Config) ([]Result, error) {
	n := len(tasks)
	if n == 0 {
		return nil, nil
	}
	if cfg.MaxConcurrency < 0 {
		return nil, reqerr.NewValidationError("INVALID_CONCURRENCY", "Max concurrency must be positive")
	}

	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency == 0 || maxConcurrency >= n {
		maxConcurrency = n
	}

	timeout := cfg.Timeout
	if timeout > maxBatchTimeout {
		timeout = maxBatchTimeout
	}

	batchCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		batchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sem := semaphore.New(maxConcurrency)
	results := collector.New[Result](n)

	var failed int32
	var permitsInUse int32
	var maxPermitsInUse int32
	var completed int32
	var successCount int32
	var failCount int32
	var totalDuration int64 // nanoseconds, successful tasks only

	var wg sync.WaitGroup
	batchDone := make(chan struct{})

	for i, task := range tasks {
		i, task := i, task
		if cfg.FailFast && atomic.LoadInt32(&failed) == 1 {
			results.Set(i, Result{Success: false, Index: i, Error: reqerr.New(reqerr.KindConcurrent, "BATCH_CANCELLED", "batch cancelled after an earlier failure", false)})
			atomic.AddInt32(&completed, 1)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := sem.Acquire(batchCtx); err != nil {
				results.Set(i, Result{Success: false, Index: i, Error: reqerr.WrapAny(err, reqerr.Context{})})
				atomic.AddInt32(&completed, 1)
				return
			}
			cur := atomic.AddInt32(&permitsInUse, 1)
			for {
				m := atomic.LoadInt32(&maxPermitsInUse)
				if cur <= m || atomic.CompareAndSwapInt32(&maxPermitsInUse, m, cur) {
					break
				}
			}

			if cfg.FailFast && atomic.LoadInt32(&failed) == 1 {
				atomic.AddInt32(&permitsInUse, -1)
				sem.Release()
				results.Set(i, Result{Success: false, Index: i, Error: reqerr.New(reqerr.KindConcurrent, "BATCH_CANCELLED", "batch cancelled after an earlier failure", false)})
				atomic.AddInt32(&completed, 1)
				return
			}

			start := time.Now()
			data, err := task(batchCtx)
			duration := time.Since(start)

			atomic.AddInt32(&permitsInUse, -1)
			sem.Release()

			if err != nil {
				atomic.StoreInt32(&failed, 1)
				atomic.AddInt32(&failCount, 1)
				results.Set(i, Result{Success: false, Index: i, Error: err, Duration: duration})
			} else {
				atomic.AddInt32(&successCount, 1)
				atomic.AddInt64(&totalDuration, int64(duration))
				results.Set(i, Result{Success: true, Data: data, Index: i, Duration: duration})
			}
			atomic.AddInt32(&completed, 1)
		}()
	}

	go func() {
		wg.Wait()
		close(batchDone)
	}()

	select {
	case <-batchDone:
	case <-batchCtx.Done():
		if timeout > 0 && batchCtx.Err() == context.DeadlineExceeded {
			e.recordStats(n, int(atomic.LoadInt32(&completed)), int(atomic.LoadInt32(&successCount)), int(atomic.LoadInt32(&failCount)), totalDuration, int(atomic.LoadInt32(&maxPermitsInUse)))
			return nil, reqerr.New(reqerr.KindTimeout, "BATCH_TIMEOUT", fmt.Sprintf("batch did not settle within %dms", timeout.Milliseconds()), false)
		}
	}

	out := results.Results()

	if cfg.FailFast {
		for _, r := range out {
			if !r.Success && r.Error != nil {
				e.recordStats(n, int(atomic.LoadInt32(&completed)), int(atomic.LoadInt32(&successCount)), int(atomic.LoadInt32(&failCount)), totalDuration, int(atomic.LoadInt32(&maxPermitsInUse)))
				return out, r.Error
			}
		}
	}

	e.recordStats(n, int(atomic.LoadInt32(&completed)), int(atomic.LoadInt32(&successCount)), int(atomic.LoadInt32(&failCount)), totalDuration, int(atomic.LoadInt32(&maxPermitsInUse)))
	return out, nil
}

// RunMultiple runs count copies of the same task, indexed 0..count-1.
func (e *Executor) RunMultiple(ctx context.Context, task Task, count int, cfg Config) ([]Result, error) {
	tasks := make([]Task, count)
	for i := range tasks {
		tasks[i] = task
	}
	return e.RunAll(ctx, tasks, cfg)
}

func (e *Executor) recordStats(total, completed, success, failed int, totalSuccessDurationNs int64, maxConcurrencyUsed int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Total = total
	e.stats.Completed = completed
	e.stats.Successful = success
	e.stats.Failed = failed
	e.stats.MaxConcurrencyUsed = maxConcurrencyUsed
	if success > 0 {
		e.stats.AvgDuration = time.Duration(totalSuccessDurationNs / int64(success))
	}
}

func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
