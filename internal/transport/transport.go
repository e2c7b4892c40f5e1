// Package transport implements the Transport capability: the single
// request(descriptor) -> value operation the pipeline calls once
// routing decides a call goes to the network rather than a cache or
// serial queue.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reqsprint/reqsprint/internal/netx"
	"github.com/reqsprint/reqsprint/internal/reqerr"
	"go.uber.org/zap"
)

// ResponseForm selects how a response body is decoded.
type ResponseForm string

const (
	FormJSON   ResponseForm = "json"
	FormText   ResponseForm = "text"
	FormBytes  ResponseForm = "bytes"
	FormStream ResponseForm = "stream"
)

// Descriptor is the wire-level request the transport executes. The
// pipeline builds this from the caller's richer RequestDescriptor
// after validation, merge, and interceptor processing.
type Descriptor struct {
	URL          string
	Method       string
	Params       map[string]any
	Body         any
	Headers      map[string]string
	Timeout      time.Duration
	ResponseForm ResponseForm
	Tag          string
}

// Transport is the single capability a pipeline depends on to reach
// the network. Implementations must treat Timeout as a hint (the
// caller's merged context carries the authoritative deadline),
// respect ctx cancellation, and translate failures into RequestError
// via the four canonical factories.
type Transport interface {
	Request(ctx context.Context, desc Descriptor) (any, error)
}

// HTTPTransport implements Transport over net/http, with a
// custom-resolver dialer so lookups can be steered away from a
// flaky upstream DNS server without touching call sites.
type HTTPTransport struct {
	client *http.Client
	logger *zap.Logger
}

func NewHTTPTransport(logger *zap.Logger) *HTTPTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	tr := &http.Transport{
		DialContext:           netx.DialerWithResolver(),
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &HTTPTransport{client: &http.Client{Transport: tr}, logger: logger}
}

func (t *HTTPTransport) Request(ctx context.Context, desc Descriptor) (any, error) {
	reqURL, err := buildURL(desc.URL, desc.Params)
	if err != nil {
		return nil, reqerr.NewValidationError("INVALID_URL", err.Error())
	}

	body, contentType, err := encodeBody(desc.Body)
	if err != nil {
		return nil, reqerr.NewValidationError("INVALID_BODY", err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, desc.Method, reqURL, body)
	if err != nil {
		return nil, reqerr.NewNetworkError(err.Error(), ctxFrom(desc))
	}
	for k, v := range desc.Headers {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			// A caller/pipeline-level abort already classified this via
			// reqerr.MergeAbort; surface a plain network error here so
			// the pipeline's own classification (abort vs timeout) wins.
			return nil, reqerr.NewNetworkError(err.Error(), ctxFrom(desc))
		}
		return nil, reqerr.NewNetworkError(err.Error(), ctxFrom(desc))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, reqerr.NewHTTPError(resp.StatusCode, string(b), ctxFrom(desc))
	}

	return decodeBody(resp.Body, desc.ResponseForm, ctxFrom(desc))
}

func ctxFrom(desc Descriptor) reqerr.Context {
	return reqerr.Context{URL: desc.URL, Method: desc.Method, Tag: desc.Tag, Timestamp: time.Now()}
}

func buildURL(raw string, params map[string]any) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			if v == nil {
				continue // spec.md: filter null params at the wire
			}
			q.Set(k, fmt.Sprintf("%v", v))
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(b), "text/plain", nil
	case []byte:
		return bytes.NewReader(b), "application/octet-stream", nil
	case io.Reader:
		return b, "", nil
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(encoded), "application/json", nil
	}
}

func decodeBody(r io.Reader, form ResponseForm, ctx reqerr.Context) (any, error) {
	switch form {
	case FormBytes:
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, reqerr.NewNetworkError(err.Error(), ctx)
		}
		return b, nil
	case FormText, "":
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, reqerr.NewNetworkError(err.Error(), ctx)
		}
		return string(b), nil
	case FormStream:
		return r, nil
	default: // FormJSON falls here; unset is decoded as text above
		var v any
		if err := json.NewDecoder(r).Decode(&v); err != nil && err != io.EOF {
			return nil, reqerr.NewNetworkError(err.Error(), ctx)
		}
		return v, nil
	}
}
