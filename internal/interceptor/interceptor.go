// Package interceptor implements the InterceptorChain: a registration-
// ordered sequence of request/response/error hooks with error-recovery
// semantics, sitting around a pipeline's terminal transport or
// cache-miss call.
package interceptor

import (
	"github.com/reqsprint/reqsprint/internal/reqerr"
)

// Descriptor is the minimal shape an interceptor operates on. The
// pipeline's richer request type embeds or converts to this.
type Descriptor = map[string]any

// OnRequest may rewrite the outgoing descriptor. Returning nil is
// treated as "no valid descriptor produced".
type OnRequest func(desc Descriptor) (Descriptor, error)

// OnResponse may rewrite the value returned by the terminal call.
type OnResponse func(value any, desc Descriptor) (any, error)

// OnError is given a RequestError and the originating descriptor. If
// it returns a value with a nil error, that value becomes the chain's
// result and no further error interceptors run (recovery). If it
// returns an error, that error replaces the propagating one and the
// next error interceptor is tried.
type OnError func(err *reqerr.RequestError, desc Descriptor) (any, error)

// Interceptor binds any subset of the three hooks; Add rejects one
// that binds none of them.
type Interceptor struct {
	Name       string
	OnRequest  OnRequest
	OnResponse OnResponse
	OnError    OnError
}

func (i Interceptor) empty() bool {
	return i.OnRequest == nil && i.OnResponse == nil && i.OnError == nil
}

// Stats is a point-in-time introspection snapshot.
type Stats struct {
	Count         int
	RequestHooks  int
	ResponseHooks int
	ErrorHooks    int
}

// Chain holds interceptors in registration order. All methods are
// safe only for the single-owner usage the pipeline imposes (the
// RequestPipeline exclusively owns its InterceptorChain per spec.md
// §3's ownership rule); no internal locking is needed.
type Chain struct {
	interceptors []Interceptor
}

func New() *Chain { return &Chain{} }

// Add registers x, validating it binds at least one hook.
func (c *Chain) Add(x Interceptor) error {
	if x.empty() {
		return reqerr.NewValidationError("INTERCEPTOR_EMPTY", "interceptor must bind at least one of onRequest, onResponse, onError")
	}
	c.interceptors = append(c.interceptors, x)
	return nil
}

// Remove drops the first interceptor registered under name, if any.
func (c *Chain) Remove(name string) bool {
	for i, x := range c.interceptors {
		if x.Name == name {
			c.interceptors = append(c.interceptors[:i], c.interceptors[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Chain) Clear() { c.interceptors = nil }

func (c *Chain) Count() int { return len(c.interceptors) }

func (c *Chain) Stats() Stats {
	s := Stats{Count: len(c.interceptors)}
	for _, x := range c.interceptors {
		if x.OnRequest != nil {
			s.RequestHooks++
		}
		if x.OnResponse != nil {
			s.ResponseHooks++
		}
		if x.OnError != nil {
			s.ErrorHooks++
		}
	}
	return s
}

// RunRequest applies every onRequest hook in registration order. A
// hook returning a nil descriptor (with no error) is treated as
// producing an invalid descriptor per spec.md §4.8.
func (c *Chain) RunRequest(desc Descriptor) (Descriptor, error) {
	for _, x := range c.interceptors {
		if x.OnRequest == nil {
			continue
		}
		next, err := x.OnRequest(desc)
		if err != nil {
			return nil, reqerr.WrapAny(err, reqerr.Context{})
		}
		if next == nil {
			return nil, reqerr.NewValidationError("INVALID_REQUEST_DESCRIPTOR", "Request interceptor must return a valid config object")
		}
		desc = next
	}
	return desc, nil
}

// RunResponse applies every onResponse hook in registration order.
func (c *Chain) RunResponse(value any, desc Descriptor) (any, error) {
	for _, x := range c.interceptors {
		if x.OnResponse == nil {
			continue
		}
		next, err := x.OnResponse(value, desc)
		if err != nil {
			return nil, reqerr.WrapAny(err, reqerr.Context{})
		}
		value = next
	}
	return value, nil
}

// RunError walks the error-interceptor chain in registration order
// with recovery semantics: the first onError that returns a nil error
// short-circuits the chain and its value becomes the result. If every
// onError re-raises, the last raised error is returned.
func (c *Chain) RunError(err *reqerr.RequestError, desc Descriptor) (any, *reqerr.RequestError) {
	current := err
	for _, x := range c.interceptors {
		if x.OnError == nil {
			continue
		}
		value, rerr := x.OnError(current, desc)
		if rerr == nil {
			return value, nil
		}
		current = reqerr.WrapAny(rerr, current.Context)
	}
	return nil, current
}
