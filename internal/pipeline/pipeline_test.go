package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/reqsprint/reqsprint/internal/interceptor"
	"github.com/reqsprint/reqsprint/internal/reqcache"
	"github.com/reqsprint/reqsprint/internal/reqerr"
	"github.com/reqsprint/reqsprint/internal/transport"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, mock *transport.MockTransport) *Pipeline {
	return New(mock, DefaultGlobalConfig(), nil)
}

func TestExecuteRejectsMissingURL(t *testing.T) {
	p := newTestPipeline(t, transport.NewMockTransport())
	_, err := p.Execute(context.Background(), Descriptor{Method: "GET"})
	require.Error(t, err)
	var re *reqerr.RequestError
	require.ErrorAs(t, err, &re)
	require.Equal(t, reqerr.KindValidation, re.Kind)
}

func TestExecuteRejectsInvalidMethod(t *testing.T) {
	p := newTestPipeline(t, transport.NewMockTransport())
	_, err := p.Execute(context.Background(), Descriptor{URL: "http://x", Method: "FETCH"})
	require.Error(t, err)
}

func TestExecuteRoutesDirectlyToTransport(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.On("http://x", func(ctx context.Context, d transport.Descriptor) (any, error) {
		return "direct", nil
	})
	p := newTestPipeline(t, mock)
	v, err := p.Execute(context.Background(), Descriptor{URL: "http://x", Method: "GET"})
	require.NoError(t, err)
	require.Equal(t, "direct", v)
}

func TestExecuteResolvesRelativeURLAgainstBaseURL(t *testing.T) {
	mock := transport.NewMockTransport()
	var gotURL string
	mock.Default = func(ctx context.Context, d transport.Descriptor) (any, error) {
		gotURL = d.URL
		return "ok", nil
	}
	p := New(mock, GlobalConfig{BaseURL: "http://api.example.com/", Timeout: time.Second}, nil)
	_, err := p.Execute(context.Background(), Descriptor{URL: "/users", Method: "GET"})
	require.NoError(t, err)
	require.Equal(t, "http://api.example.com/users", gotURL)
}

func TestExecuteSerialKeyOrdersCallsFIFO(t *testing.T) {
	mock := transport.NewMockTransport()
	var mu sync.Mutex
	var order []string
	mock.Default = func(ctx context.Context, d transport.Descriptor) (any, error) {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		order = append(order, d.Tag)
		mu.Unlock()
		return d.Tag, nil
	}
	p := newTestPipeline(t, mock)

	var wg sync.WaitGroup
	for _, tag := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(tag string) {
			defer wg.Done()
			_, err := p.Execute(context.Background(), Descriptor{URL: "http://x", Method: "GET", SerialKey: "K", Tag: tag})
			require.NoError(t, err)
		}(tag)
		time.Sleep(time.Millisecond) // stagger enqueue order
	}
	wg.Wait()
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestExecuteCacheConfigCollapsesRepeatedCalls(t *testing.T) {
	mock := transport.NewMockTransport()
	var calls int
	mock.Default = func(ctx context.Context, d transport.Descriptor) (any, error) {
		calls++
		return "cached", nil
	}
	p := newTestPipeline(t, mock)
	cfg := reqcache.DefaultConfig()

	for i := 0; i < 3; i++ {
		v, err := p.Execute(context.Background(), Descriptor{URL: "http://x", Method: "GET", CacheConfig: &cfg})
		require.NoError(t, err)
		require.Equal(t, "cached", v)
	}
	require.Equal(t, 1, calls)
}

func TestExecuteOnRequestInterceptorMutatesURL(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.On("http://rewritten", func(ctx context.Context, d transport.Descriptor) (any, error) {
		return "rewritten", nil
	})
	p := newTestPipeline(t, mock)
	_ = p.AddInterceptor(interceptor.Interceptor{
		Name: "rewrite",
		OnRequest: func(d interceptor.Descriptor) (interceptor.Descriptor, error) {
			d["url"] = "http://rewritten"
			return d, nil
		},
	})
	v, err := p.Execute(context.Background(), Descriptor{URL: "http://original", Method: "GET"})
	require.NoError(t, err)
	require.Equal(t, "rewritten", v)
}

func TestExecuteErrorInterceptorRecovers(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.Default = func(ctx context.Context, d transport.Descriptor) (any, error) {
		return nil, reqerr.NewNetworkError("boom", reqerr.Context{})
	}
	p := newTestPipeline(t, mock)
	_ = p.AddInterceptor(interceptor.Interceptor{
		Name: "fallback",
		OnError: func(err *reqerr.RequestError, d interceptor.Descriptor) (any, error) {
			return "fallback-value", nil
		},
	})
	v, err := p.Execute(context.Background(), Descriptor{URL: "http://x", Method: "GET"})
	require.NoError(t, err)
	require.Equal(t, "fallback-value", v)
}

func TestExecutePropagatesUnrecoveredError(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.Default = func(ctx context.Context, d transport.Descriptor) (any, error) {
		return nil, reqerr.NewNetworkError("boom", reqerr.Context{})
	}
	p := newTestPipeline(t, mock)
	_, err := p.Execute(context.Background(), Descriptor{URL: "http://x", Method: "GET"})
	require.Error(t, err)
}
