package ratelimit

import (
	"testing"
	"time"

	"github.com/reqsprint/reqsprint/internal/reqerr"
	"github.com/stretchr/testify/require"
)

func TestAllowRespectsBurstThenThrottles(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, Burst: 2})
	require.True(t, l.Allow("k"))
	require.True(t, l.Allow("k"))
	require.False(t, l.Allow("k"))
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, Burst: 1})
	require.True(t, l.Allow("a"))
	require.True(t, l.Allow("b"))
	require.False(t, l.Allow("a"))
}

func TestCheckReturnsConcurrentKindError(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, Burst: 1})
	require.NoError(t, l.Check("k"))
	err := l.Check("k")
	require.Error(t, err)
	var re *reqerr.RequestError
	require.ErrorAs(t, err, &re)
	require.Equal(t, reqerr.KindConcurrent, re.Kind)
}

func TestEvictIdleRemovesStaleBuckets(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, Burst: 1, IdleEvictAfter: time.Millisecond})
	l.Allow("k")
	require.Equal(t, 1, l.Count())
	time.Sleep(5 * time.Millisecond)
	removed := l.EvictIdle()
	require.Equal(t, 1, removed)
	require.Equal(t, 0, l.Count())
}
