package ratelimit

import (
	"testing"

	"github.com/reqsprint/reqsprint/internal/interceptor"
	"github.com/stretchr/testify/require"
)

func TestInterceptorAllowsThenRejectsOverBurst(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, Burst: 1})
	x := NewInterceptor(l, nil)

	desc := interceptor.Descriptor{"url": "http://x.test/path"}
	_, err := x.OnRequest(desc)
	require.NoError(t, err)

	_, err = x.OnRequest(desc)
	require.Error(t, err)
}

func TestDefaultKeyFuncBucketsByHost(t *testing.T) {
	require.Equal(t, "x.test", DefaultKeyFunc(interceptor.Descriptor{"url": "http://x.test/a"}))
	require.Equal(t, "x.test", DefaultKeyFunc(interceptor.Descriptor{"url": "http://x.test/b"}))
}
