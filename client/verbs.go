package client

import (
	"context"

	"github.com/reqsprint/reqsprint/internal/transport"
)

// verb is a pure reshaping helper over Execute: each HTTP verb
// wrapper differs only in Method and whether Body is meaningful.
func (c *Client) verb(ctx context.Context, method, url string, opts Descriptor) (any, error) {
	opts.URL = url
	opts.Method = method
	return c.Execute(ctx, opts)
}

// Get issues a GET request. opts may carry Params, Headers, Timeout,
// CacheConfig, etc.; URL and Method are overwritten.
func (c *Client) Get(ctx context.Context, url string, opts Descriptor) (any, error) {
	return c.verb(ctx, "GET", url, opts)
}

// Post issues a POST request with body as the payload; body replaces
// any opts.Body.
func (c *Client) Post(ctx context.Context, url string, body any, opts Descriptor) (any, error) {
	opts.Body = body
	return c.verb(ctx, "POST", url, opts)
}

// Put issues a PUT request with body as the payload; body replaces
// any opts.Body.
func (c *Client) Put(ctx context.Context, url string, body any, opts Descriptor) (any, error) {
	opts.Body = body
	return c.verb(ctx, "PUT", url, opts)
}

// Patch issues a PATCH request with body as the payload; body replaces
// any opts.Body.
func (c *Client) Patch(ctx context.Context, url string, body any, opts Descriptor) (any, error) {
	opts.Body = body
	return c.verb(ctx, "PATCH", url, opts)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, url string, opts Descriptor) (any, error) {
	return c.verb(ctx, "DELETE", url, opts)
}

// GetJSON is Get with ResponseForm pinned to JSON, for callers who
// know the endpoint returns a JSON body and want it decoded as such.
func (c *Client) GetJSON(ctx context.Context, url string, opts Descriptor) (any, error) {
	opts.ResponseForm = transport.FormJSON
	return c.Get(ctx, url, opts)
}
