package throttle

import (
	"context"
	"net/url"

	"github.com/reqsprint/reqsprint/internal/reqerr"
	"github.com/reqsprint/reqsprint/internal/transport"
)

// Transport decorates another Transport with per-host health
// bookkeeping: a request to a host already in backoff or below the
// score floor fails fast without reaching the network, and every
// completed request updates that host's history.
type Transport struct {
	inner    transport.Transport
	throttle *Throttle
}

func WrapTransport(inner transport.Transport, t *Throttle) *Transport {
	return &Transport{inner: inner, throttle: t}
}

func (t *Transport) Request(ctx context.Context, desc transport.Descriptor) (any, error) {
	host := hostKey(desc.URL)
	if t.throttle.ShouldThrottle(host) {
		return nil, reqerr.New(reqerr.KindNetwork, "ENDPOINT_THROTTLED", "endpoint is in backoff", true)
	}

	v, err := t.inner.Request(ctx, desc)
	if err != nil {
		t.throttle.RecordFailure(host)
		return nil, err
	}
	t.throttle.RecordSuccess(host)
	return v, nil
}

func hostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
