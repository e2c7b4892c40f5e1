// Package client is the caller-facing façade over the request
// pipeline: it either builds a pipeline from a Transport or accepts a
// pre-built one, and forwards management operations to it.
package client

import (
	"context"
	"errors"

	"github.com/reqsprint/reqsprint/internal/executor"
	"github.com/reqsprint/reqsprint/internal/interceptor"
	"github.com/reqsprint/reqsprint/internal/pipeline"
	"github.com/reqsprint/reqsprint/internal/ratelimit"
	"github.com/reqsprint/reqsprint/internal/reqcache"
	"github.com/reqsprint/reqsprint/internal/retry"
	"github.com/reqsprint/reqsprint/internal/serialqueue"
	"github.com/reqsprint/reqsprint/internal/throttle"
	"github.com/reqsprint/reqsprint/internal/transport"
	"go.uber.org/zap"
)

// Re-exported configuration surface (spec.md §6) for caller
// convenience, so importers of client do not also need to import the
// internal packages directly.
type (
	Descriptor          = pipeline.Descriptor
	GlobalConfig        = pipeline.GlobalConfig
	SerialConfig        = serialqueue.Config
	SerialManagerConfig = serialqueue.ManagerConfig
	ConcurrentConfig    = executor.Config
	CacheConfig         = reqcache.Config
	Interceptor         = interceptor.Interceptor
)

// Options configures client construction. Exactly one of Transport or
// Pipeline must be set.
//
// RetryConfig, RateLimitConfig, and ThrottleConfig wire the optional
// extension points named in spec.md §9: when set, RetryConfig and
// ThrottleConfig decorate the Transport (throttle checked first, so a
// host already in backoff fails fast before the retry loop ever
// dials out) and RateLimitConfig registers an onRequest interceptor
// on the pipeline's chain. They have no effect when a pre-built
// Pipeline is supplied directly.
type Options struct {
	Transport       transport.Transport
	Pipeline        *pipeline.Pipeline
	Global          GlobalConfig
	Logger          *zap.Logger
	RetryConfig     *retry.Config
	RateLimitConfig *ratelimit.Config
	ThrottleConfig  *throttle.Config
}

// Client is the outer façade (spec.md §6's "Outer façade").
type Client struct {
	pipeline *pipeline.Pipeline
	executor *executor.Executor
}

// New builds a Client. It fails if neither a Transport nor a
// pre-built Pipeline is supplied.
func New(opts Options) (*Client, error) {
	if opts.Transport == nil && opts.Pipeline == nil {
		return nil, errors.New("must provide either a transport or a request core")
	}
	p := opts.Pipeline
	if p == nil {
		t := opts.Transport
		if opts.RetryConfig != nil {
			t = retry.WrapTransport(t, retry.New(*opts.RetryConfig, opts.Logger))
		}
		if opts.ThrottleConfig != nil {
			t = throttle.WrapTransport(t, throttle.New(*opts.ThrottleConfig, opts.Logger))
		}

		global := opts.Global
		if global.Timeout == 0 {
			global = pipeline.DefaultGlobalConfig()
		}
		p = pipeline.New(t, global, opts.Logger)

		if opts.RateLimitConfig != nil {
			_ = p.AddInterceptor(ratelimit.NewInterceptor(ratelimit.New(*opts.RateLimitConfig), nil))
		}
	}
	return &Client{pipeline: p, executor: executor.New()}, nil
}

// Execute runs a single descriptor through the pipeline.
func (c *Client) Execute(ctx context.Context, desc Descriptor) (any, error) {
	return c.pipeline.Execute(ctx, desc)
}

// RunAll runs a batch of descriptors with bounded parallelism,
// delegating concurrency control to internal/executor and the actual
// per-descriptor work to the pipeline.
func (c *Client) RunAll(ctx context.Context, descs []Descriptor, cfg ConcurrentConfig) ([]executor.Result, error) {
	tasks := make([]executor.Task, len(descs))
	for i, d := range descs {
		d := d
		tasks[i] = func(ctx context.Context) (any, error) {
			return c.pipeline.Execute(ctx, d)
		}
	}
	return c.executor.RunAll(ctx, tasks, cfg)
}

// RunMultiple runs count copies of the same descriptor concurrently.
func (c *Client) RunMultiple(ctx context.Context, desc Descriptor, count int, cfg ConcurrentConfig) ([]executor.Result, error) {
	return c.executor.RunMultiple(ctx, func(ctx context.Context) (any, error) {
		return c.pipeline.Execute(ctx, desc)
	}, count, cfg)
}

func (c *Client) SetGlobalConfig(g GlobalConfig) { c.pipeline.SetGlobalConfig(g) }

func (c *Client) AddInterceptor(x Interceptor) error { return c.pipeline.AddInterceptor(x) }

func (c *Client) ClearInterceptors() { c.pipeline.ClearInterceptors() }

func (c *Client) ClearCache(key string) { c.pipeline.ClearCache(key) }

func (c *Client) GetCacheStats() reqcache.Stats { return c.pipeline.CacheStats() }

// AllStats bundles every component's introspection snapshot behind
// one call, per spec.md §6's getAllStats().
type AllStats struct {
	Cache        reqcache.Stats
	Serial       serialqueue.ManagerStats
	ExecutorLast executor.Stats
}

func (c *Client) GetAllStats() AllStats {
	return AllStats{
		Cache:        c.pipeline.CacheStats(),
		Serial:       c.pipeline.SerialStats(),
		ExecutorLast: c.executor.Stats(),
	}
}

func (c *Client) Destroy() { c.pipeline.Destroy() }
