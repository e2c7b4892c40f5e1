package semaphore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseBasic(t *testing.T) {
	s := New(2)
	require.NoError(t, s.Acquire(context.Background()))
	require.NoError(t, s.Acquire(context.Background()))
	require.Equal(t, 0, s.Available())
	s.Release()
	require.Equal(t, 1, s.Available())
}

func TestFIFOOrdering(t *testing.T) {
	s := New(1)
	require.NoError(t, s.Acquire(context.Background()))

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Stagger the queueing so ordering is deterministic.
			time.Sleep(time.Duration(n) * 5 * time.Millisecond)
			require.NoError(t, s.Acquire(context.Background()))
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			s.Release()
		}(i)
		time.Sleep(2 * time.Millisecond)
	}

	s.Release() // release the initial holder
	wg.Wait()

	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestAcquireTimeout(t *testing.T) {
	s := New(1)
	require.NoError(t, s.Acquire(context.Background()))

	err := s.TryAcquireTimeout(20 * time.Millisecond)
	require.Error(t, err)
}

func TestDestroyRejectsQueuedWaitersAndZeroesAvailable(t *testing.T) {
	s := New(1)
	require.NoError(t, s.Acquire(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Acquire(context.Background()) }()
	time.Sleep(10 * time.Millisecond)

	s.Destroy()

	select {
	case err := <-done:
		require.Error(t, err)
		require.Contains(t, err.Error(), "Semaphore destroyed")
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after Destroy")
	}
	require.Equal(t, 0, s.Available())
}

func TestAcquireAfterDestroyFailsImmediately(t *testing.T) {
	s := New(1)
	s.Destroy()

	err := s.Acquire(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "Semaphore destroyed")
}

func TestAcquireCancelledContext(t *testing.T) {
	s := New(1)
	require.NoError(t, s.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Acquire(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after context cancellation")
	}
}
