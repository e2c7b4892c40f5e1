package retry

import (
	"context"

	"github.com/reqsprint/reqsprint/internal/transport"
)

// Transport wraps another Transport so every Request goes through the
// Retrier's backoff-and-circuit-breaker guard. This is how the retry
// extension point attaches to the pipeline's terminal call (spec.md
// §9): the pipeline is unaware retries are happening at all.
type Transport struct {
	inner   transport.Transport
	retrier *Retrier
}

func WrapTransport(inner transport.Transport, retrier *Retrier) *Transport {
	return &Transport{inner: inner, retrier: retrier}
}

func (t *Transport) Request(ctx context.Context, desc transport.Descriptor) (any, error) {
	return t.retrier.Do(ctx, func(ctx context.Context) (any, error) {
		return t.inner.Request(ctx, desc)
	})
}
