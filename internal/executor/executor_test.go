package executor

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reqsprint/reqsprint/internal/reqerr"
	"github.com/stretchr/testify/require"
)

func TestRunAllPreservesIndexOrder(t *testing.T) {
	e := New()
	tasks := make([]Task, 10)
	for i := 0; i < 10; i++ {
		i := i
		tasks[i] = func(ctx context.Context) (any, error) {
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			return i, nil
		}
	}
	results, err := e.RunAll(context.Background(), tasks, Config{})
	require.NoError(t, err)
	for i, r := range results {
		require.True(t, r.Success)
		require.Equal(t, i, r.Data)
		require.Equal(t, i, r.Index)
	}
}

func TestBoundedConcurrency(t *testing.T) {
	e := New()
	var current, max int32
	tasks := make([]Task, 20)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (any, error) {
			c := atomic.AddInt32(&current, 1)
			for {
				m := atomic.LoadInt32(&max)
				if c <= m || atomic.CompareAndSwapInt32(&max, m, c) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return nil, nil
		}
	}
	_, err := e.RunAll(context.Background(), tasks, Config{MaxConcurrency: 3})
	require.NoError(t, err)
	require.LessOrEqual(t, atomic.LoadInt32(&max), int32(3))
	require.Equal(t, 20, e.Stats().Total)
	require.Equal(t, 3, e.Stats().MaxConcurrencyUsed)
}

func TestFailFastReturnsFirstError(t *testing.T) {
	e := New()
	boom := reqerr.New(reqerr.KindNetwork, "BOOM", "boom", true)
	tasks := []Task{
		func(ctx context.Context) (any, error) { return "ok", nil },
		func(ctx context.Context) (any, error) { return nil, boom },
		func(ctx context.Context) (any, error) {
			time.Sleep(50 * time.Millisecond)
			return "late", nil
		},
	}
	_, err := e.RunAll(context.Background(), tasks, Config{FailFast: true, MaxConcurrency: 1})
	require.Error(t, err)
}

func TestPermissiveSettlesAllSlots(t *testing.T) {
	e := New()
	tasks := []Task{
		func(ctx context.Context) (any, error) { return "ok", nil },
		func(ctx context.Context) (any, error) { return nil, fmt.Errorf("bad") },
	}
	results, err := e.RunAll(context.Background(), tasks, Config{FailFast: false})
	require.NoError(t, err)
	require.True(t, results[0].Success)
	require.False(t, results[1].Success)
}

func TestBatchTimeoutRejectsBatch(t *testing.T) {
	e := New()
	tasks := []Task{
		func(ctx context.Context) (any, error) {
			time.Sleep(200 * time.Millisecond)
			return "slow", nil
		},
	}
	_, err := e.RunAll(context.Background(), tasks, Config{Timeout: 20 * time.Millisecond})
	require.Error(t, err)
	var re *reqerr.RequestError
	require.ErrorAs(t, err, &re)
	require.Equal(t, reqerr.KindTimeout, re.Kind)
}

func TestNegativeConcurrencyRejected(t *testing.T) {
	e := New()
	_, err := e.RunAll(context.Background(), []Task{func(ctx context.Context) (any, error) { return nil, nil }}, Config{MaxConcurrency: -1})
	require.Error(t, err)
}

func TestRunMultiple(t *testing.T) {
	e := New()
	var count int32
	results, err := e.RunMultiple(context.Background(), func(ctx context.Context) (any, error) {
		return atomic.AddInt32(&count, 1), nil
	}, 5, Config{})
	require.NoError(t, err)
	require.Len(t, results, 5)
}
