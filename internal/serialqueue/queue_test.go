package serialqueue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFIFOExecutionOrder(t *testing.T) {
	q := New("k", Config{}, nil)
	defer q.Destroy()

	var mu sync.Mutex
	var order []int
	var done []<-chan Result
	for i := 0; i < 5; i++ {
		i := i
		done = append(done, q.Enqueue(func() (any, error) {
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		}))
	}
	for _, d := range done {
		<-d
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestAtMostOneExecutingAtATime(t *testing.T) {
	q := New("k", Config{}, nil)
	defer q.Destroy()

	var concurrent int32
	var maxConcurrent int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		d := q.Enqueue(func() (any, error) {
			c := atomic.AddInt32(&concurrent, 1)
			for {
				m := atomic.LoadInt32(&maxConcurrent)
				if c <= m || atomic.CompareAndSwapInt32(&maxConcurrent, m, c) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&concurrent, -1)
			return nil, nil
		})
		go func() { defer wg.Done(); <-d }()
	}
	wg.Wait()
	require.Equal(t, int32(1), atomic.LoadInt32(&maxConcurrent))
}

func TestQueueFullRejectsSynchronously(t *testing.T) {
	var fullCalled string
	q := New("k", Config{MaxQueueSize: 1, OnQueueFull: func(key string) { fullCalled = key }}, nil)
	defer q.Destroy()

	block := make(chan struct{})
	first := q.Enqueue(func() (any, error) {
		<-block
		return nil, nil
	})
	time.Sleep(5 * time.Millisecond) // ensure first is executing

	second := q.Enqueue(func() (any, error) { return nil, nil })
	res := <-second
	require.Error(t, res.Err)
	require.Equal(t, "k", fullCalled)

	close(block)
	<-first
}

func TestTaskTimeoutAtDequeue(t *testing.T) {
	var timedOut bool
	q := New("k", Config{QueueTimeout: 10 * time.Millisecond, OnTaskTimeout: func(task *Task) { timedOut = true }}, nil)
	defer q.Destroy()

	block := make(chan struct{})
	first := q.Enqueue(func() (any, error) {
		<-block
		return nil, nil
	})
	second := q.Enqueue(func() (any, error) { return "ok", nil })

	time.Sleep(30 * time.Millisecond)
	close(block)
	<-first

	res := <-second
	require.Error(t, res.Err)
	require.True(t, timedOut)
}

func TestClearRejectsWaitersNotExecuting(t *testing.T) {
	q := New("k", Config{}, nil)
	defer q.Destroy()

	block := make(chan struct{})
	first := q.Enqueue(func() (any, error) {
		<-block
		return "first", nil
	})
	second := q.Enqueue(func() (any, error) { return "second", nil })
	time.Sleep(5 * time.Millisecond)

	q.Clear()
	res := <-second
	require.Error(t, res.Err)

	close(block)
	firstRes := <-first
	require.NoError(t, firstRes.Err)
	require.Equal(t, "first", firstRes.Value)
}

func TestFailureDoesNotHaltQueue(t *testing.T) {
	q := New("k", Config{}, nil)
	defer q.Destroy()

	first := q.Enqueue(func() (any, error) { return nil, assertErr })
	second := q.Enqueue(func() (any, error) { return "ok", nil })

	r1 := <-first
	require.Error(t, r1.Err)
	r2 := <-second
	require.NoError(t, r2.Err)
	require.Equal(t, "ok", r2.Value)
}

var assertErr = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
