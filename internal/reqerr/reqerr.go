// Package reqerr defines the single error taxonomy shared across every
// package boundary in the runtime, and the abort-signal merge used to
// distinguish a caller-initiated cancellation from an internally
// imposed timeout.
package reqerr

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind closes the set of ways a request can fail. Callers switch
// on Kind rather than inspecting error strings.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "NETWORK"
	KindHTTP       ErrorKind = "HTTP"
	KindTimeout    ErrorKind = "TIMEOUT"
	KindValidation ErrorKind = "VALIDATION"
	KindCache      ErrorKind = "CACHE"
	KindConcurrent ErrorKind = "CONCURRENT"
	KindRetry      ErrorKind = "RETRY"
	KindUnknown    ErrorKind = "UNKNOWN"
)

// Context carries the ambient details every RequestError needs to
// drive logging and retry decisions.
type Context struct {
	URL       string
	Method    string
	Tag       string
	Timestamp time.Time
	Metadata  map[string]any
}

// RequestError is the only error type that crosses a package boundary
// in this module. Other packages wrap foreign errors into one exactly
// once, at the point they first observe them.
type RequestError struct {
	Kind      ErrorKind
	Message   string
	Status    int
	Code      string
	Context   Context
	Cause     error
	Retryable bool
}

func (e *RequestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, &RequestError{Kind: KindTimeout}) match any
// RequestError of the same kind, regardless of message/cause.
func (e *RequestError) Is(target error) bool {
	var re *RequestError
	if !errors.As(target, &re) {
		return false
	}
	return re.Kind == e.Kind
}

func New(kind ErrorKind, code, message string, retryable bool) *RequestError {
	return &RequestError{Kind: kind, Code: code, Message: message, Retryable: retryable, Context: Context{Timestamp: time.Now()}}
}

func NewValidationError(code, message string) *RequestError {
	return New(KindValidation, code, message, false)
}

// NewTimeoutError builds a TIMEOUT error. Per the cancellation model,
// both an internally-armed timer and a caller-initiated abort
// classify as TIMEOUT; callers distinguish the two by message and by
// Code ("REQUEST_TIMEOUT" vs "REQUEST_ABORTED").
func NewTimeoutError(code, message string) *RequestError {
	return New(KindTimeout, code, message, true)
}

// NewHTTPError builds an HTTP error for a non-OK response status.
func NewHTTPError(status int, message string, ctx Context) *RequestError {
	e := New(KindHTTP, "HTTP_STATUS", message, status >= 500)
	e.Status = status
	e.Context = ctx
	return e
}

// NewNetworkError builds a NETWORK error for a transport-level
// failure that is not a timeout or an HTTP status.
func NewNetworkError(message string, ctx Context) *RequestError {
	e := New(KindNetwork, "NETWORK_ERROR", message, true)
	e.Context = ctx
	return e
}

// Wrap folds a foreign error into a RequestError of the given kind,
// unless it already is one (in which case it is returned unchanged so
// repeated wrapping never nests).
func Wrap(kind ErrorKind, code string, err error) *RequestError {
	if err == nil {
		return nil
	}
	var re *RequestError
	if errors.As(err, &re) {
		return re
	}
	return &RequestError{
		Kind: kind, Code: code, Message: err.Error(), Cause: err,
		Retryable: kind == KindNetwork || kind == KindTimeout,
		Context:   Context{Timestamp: time.Now()},
	}
}

// WrapAny is wrapError from spec.md §4.9: any non-RequestError value
// is folded into an UNKNOWN RequestError preserving the original as
// Cause, so error interceptors always see a RequestError.
func WrapAny(err error, ctx Context) *RequestError {
	if err == nil {
		return nil
	}
	var re *RequestError
	if errors.As(err, &re) {
		return re
	}
	return &RequestError{Kind: KindUnknown, Message: err.Error(), Cause: err, Context: ctx}
}

// MergeAbort races ctx against an internally-imposed deadline and
// returns a classifier that, once the merged context is done,
// reports whether the internal timer fired first (TIMEOUT, "Request
// timeout after Nms") or the caller aborted first (TIMEOUT, "Request
// aborted").
//
// A nil ctx is treated as context.Background().
func MergeAbort(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, func() *RequestError) {
	if ctx == nil {
		ctx = context.Background()
	}
	merged, cancel := context.WithTimeout(ctx, timeout)

	classify := func() *RequestError {
		if merged.Err() == nil {
			return nil
		}
		// The caller's own context fired (cancel or an earlier
		// deadline it already carried): this is a caller abort, not
		// our internal timer.
		if ctx.Err() != nil {
			return New(KindTimeout, "REQUEST_ABORTED", "Request aborted", false)
		}
		return New(KindTimeout, "REQUEST_TIMEOUT", fmt.Sprintf("Request timeout after %dms", timeout.Milliseconds()), true)
	}
	return merged, cancel, classify
}
