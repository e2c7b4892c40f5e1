// Package pipeline implements RequestPipeline: the top-level
// execute() entry point that validates a request descriptor, merges
// global and per-call configuration, runs it through the interceptor
// chain, and routes it to the serial manager, the cache, or directly
// to the transport.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/reqsprint/reqsprint/internal/fingerprint"
	"github.com/reqsprint/reqsprint/internal/interceptor"
	"github.com/reqsprint/reqsprint/internal/reqcache"
	"github.com/reqsprint/reqsprint/internal/reqerr"
	"github.com/reqsprint/reqsprint/internal/serialqueue"
	"github.com/reqsprint/reqsprint/internal/transport"
	"go.uber.org/zap"
)

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true,
}

// Descriptor is RequestDescriptor from the data model (spec.md §3).
type Descriptor struct {
	URL          string
	Method       string
	Params       map[string]any
	Body         any
	Headers      map[string]string
	Timeout      time.Duration
	ResponseForm transport.ResponseForm
	AbortSignal  context.Context
	SerialKey    string
	Tag          string
	Metadata     map[string]any
	Debug        bool

	SerialConfig *serialqueue.Config
	CacheConfig  *reqcache.Config
}

// GlobalConfig is the pipeline-wide Global configuration surface.
type GlobalConfig struct {
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
	Debug   bool
}

func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{Timeout: 10 * time.Second}
}

// Pipeline is the Go form of RequestPipeline. It exclusively owns its
// InterceptorChain, SerialManager, RequestCache, and Transport
// reference, per spec.md §3's ownership rule.
type Pipeline struct {
	global    GlobalConfig
	chain     *interceptor.Chain
	serial    *serialqueue.Manager
	cache     *reqcache.Cache
	transport transport.Transport
	logger    *zap.Logger
}

func New(t transport.Transport, global GlobalConfig, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		global:    global,
		chain:     interceptor.New(),
		serial:    serialqueue.NewManager(serialqueue.DefaultManagerConfig(), logger),
		cache:     reqcache.New(reqcache.DefaultConfig(), logger),
		transport: t,
		logger:    logger,
	}
}

func (p *Pipeline) SetGlobalConfig(g GlobalConfig) { p.global = g }

func (p *Pipeline) AddInterceptor(x interceptor.Interceptor) error { return p.chain.Add(x) }

func (p *Pipeline) ClearInterceptors() { p.chain.Clear() }

func (p *Pipeline) ClearCache(key string) { p.cache.Clear(key) }

func (p *Pipeline) CacheStats() reqcache.Stats { return p.cache.Stats() }

func (p *Pipeline) SerialStats() serialqueue.ManagerStats { return p.serial.Stats() }

func (p *Pipeline) Destroy() {
	p.serial.Destroy()
	p.chain.Clear()
}

// Execute is RequestPipeline.execute: validate, merge, route,
// intercept, emit, exactly once.
func (p *Pipeline) Execute(ctx context.Context, desc Descriptor) (any, error) {
	if err := validate(desc); err != nil {
		return nil, err
	}
	merged := p.merge(desc)

	timeout := merged.Timeout
	if timeout <= 0 {
		timeout = p.global.Timeout
	}
	mergedCtx, cancel, classify := reqerr.MergeAbort(coalesceCtx(ctx, merged.AbortSignal), timeout)
	defer cancel()

	idesc := toInterceptorDescriptor(merged)
	idesc, err := p.chain.RunRequest(idesc)
	if err != nil {
		return p.handleError(reqerr.WrapAny(err, reqerr.Context{URL: merged.URL, Method: merged.Method}), idesc)
	}
	merged = fromInterceptorDescriptor(idesc, merged)

	value, err := p.route(mergedCtx, merged)
	if err != nil {
		if classified := classify(); classified != nil && mergedCtx.Err() != nil {
			err = classified
		}
		return p.handleError(reqerr.WrapAny(err, reqerr.Context{URL: merged.URL, Method: merged.Method, Tag: merged.Tag}), idesc)
	}

	value, err = p.chain.RunResponse(value, idesc)
	if err != nil {
		return p.handleError(reqerr.WrapAny(err, reqerr.Context{URL: merged.URL, Method: merged.Method}), idesc)
	}
	return value, nil
}

func coalesceCtx(ctx context.Context, abort context.Context) context.Context {
	if abort != nil {
		return abort
	}
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func (p *Pipeline) handleError(err *reqerr.RequestError, desc interceptor.Descriptor) (any, error) {
	value, rerr := p.chain.RunError(err, desc)
	if rerr == nil {
		return value, nil
	}
	return nil, rerr
}

func (p *Pipeline) route(ctx context.Context, desc Descriptor) (any, error) {
	switch {
	case desc.SerialKey != "":
		return p.routeSerial(ctx, desc)
	case desc.CacheConfig != nil:
		return p.routeCache(ctx, desc)
	default:
		return p.transport.Request(ctx, toTransportDescriptor(desc))
	}
}

func (p *Pipeline) routeSerial(ctx context.Context, desc Descriptor) (any, error) {
	var cfg serialqueue.Config
	if desc.SerialConfig != nil {
		cfg = *desc.SerialConfig
	}
	q, err := p.serial.GetOrCreate(desc.SerialKey, cfg)
	if err != nil {
		return nil, err
	}
	done := q.Enqueue(func() (any, error) {
		return p.transport.Request(ctx, toTransportDescriptor(desc))
	})
	select {
	case res := <-done:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, reqerr.New(reqerr.KindTimeout, "REQUEST_ABORTED", "Request aborted", false)
	}
}

func (p *Pipeline) routeCache(ctx context.Context, desc Descriptor) (any, error) {
	cfg := reqcache.DefaultConfig()
	if desc.CacheConfig != nil {
		cfg = *desc.CacheConfig
	}
	key := p.cache.Key(fingerprint.Request{
		Method:  desc.Method,
		URL:     desc.URL,
		Params:  desc.Params,
		Body:    desc.Body,
		Headers: desc.Headers,
	})
	return p.cache.GetOrLoad(ctx, key, cfg.TTL, func(ctx context.Context) (any, error) {
		return p.transport.Request(ctx, toTransportDescriptor(desc))
	})
}

func (p *Pipeline) merge(desc Descriptor) Descriptor {
	if desc.URL != "" && !strings.Contains(desc.URL, "://") && p.global.BaseURL != "" {
		desc.URL = joinURL(p.global.BaseURL, desc.URL)
	}
	if desc.Headers == nil {
		desc.Headers = map[string]string{}
	}
	for k, v := range p.global.Headers {
		if _, exists := desc.Headers[k]; !exists {
			desc.Headers[k] = v
		}
	}
	return desc
}

func joinURL(base, rel string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(rel, "/")
}

func validate(desc Descriptor) error {
	if desc.URL == "" {
		return reqerr.NewValidationError("MISSING_URL", "url is required")
	}
	if desc.Method == "" || !validMethods[strings.ToUpper(desc.Method)] {
		return reqerr.NewValidationError("INVALID_METHOD", fmt.Sprintf("unsupported method %q", desc.Method))
	}
	if desc.Timeout < 0 {
		return reqerr.NewValidationError("INVALID_TIMEOUT", "timeout must be positive")
	}
	return nil
}

func toTransportDescriptor(desc Descriptor) transport.Descriptor {
	return transport.Descriptor{
		URL: desc.URL, Method: strings.ToUpper(desc.Method), Params: desc.Params,
		Body: desc.Body, Headers: desc.Headers, Timeout: desc.Timeout,
		ResponseForm: desc.ResponseForm, Tag: desc.Tag,
	}
}

func toInterceptorDescriptor(desc Descriptor) interceptor.Descriptor {
	return interceptor.Descriptor{
		"url": desc.URL, "method": desc.Method, "params": desc.Params,
		"body": desc.Body, "headers": desc.Headers, "tag": desc.Tag,
	}
}

func fromInterceptorDescriptor(idesc interceptor.Descriptor, orig Descriptor) Descriptor {
	if v, ok := idesc["url"].(string); ok {
		orig.URL = v
	}
	if v, ok := idesc["method"].(string); ok {
		orig.Method = v
	}
	if v, ok := idesc["headers"].(map[string]string); ok {
		orig.Headers = v
	}
	if v, ok := idesc["params"].(map[string]any); ok {
		orig.Params = v
	}
	if v, ok := idesc["body"]; ok {
		orig.Body = v
	}
	return orig
}
