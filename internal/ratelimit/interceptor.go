package ratelimit

import (
	"net/url"

	"github.com/reqsprint/reqsprint/internal/interceptor"
)

// KeyFunc extracts the rate-limit bucket key from a request
// descriptor. DefaultKeyFunc buckets by host.
type KeyFunc func(desc interceptor.Descriptor) string

// DefaultKeyFunc buckets requests by URL host, falling back to the
// raw URL string if it does not parse.
func DefaultKeyFunc(desc interceptor.Descriptor) string {
	raw, _ := desc["url"].(string)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}

// NewInterceptor builds the onRequest hook that consults l.Check
// before a request is allowed to proceed (spec.md §4.13).
func NewInterceptor(l *Limiter, keyFn KeyFunc) interceptor.Interceptor {
	if keyFn == nil {
		keyFn = DefaultKeyFunc
	}
	return interceptor.Interceptor{
		Name: "ratelimit",
		OnRequest: func(desc interceptor.Descriptor) (interceptor.Descriptor, error) {
			if err := l.Check(keyFn(desc)); err != nil {
				return nil, err
			}
			return desc, nil
		},
	}
}
