package retry

import (
	"context"
	"testing"

	"github.com/reqsprint/reqsprint/internal/reqerr"
	"github.com/reqsprint/reqsprint/internal/transport"
	"github.com/stretchr/testify/require"
)

type countingTransport struct {
	calls   int
	failN   int
	failErr error
}

func (c *countingTransport) Request(ctx context.Context, desc transport.Descriptor) (any, error) {
	c.calls++
	if c.calls <= c.failN {
		return nil, c.failErr
	}
	return "ok", nil
}

func TestWrapTransportRetriesThroughRetrier(t *testing.T) {
	inner := &countingTransport{failN: 2, failErr: reqerr.New(reqerr.KindNetwork, "CONN_RESET", "reset", true)}
	r := New(fastConfig(), nil)
	tr := WrapTransport(inner, r)

	v, err := tr.Request(context.Background(), transport.Descriptor{URL: "http://x"})
	require.NoError(t, err)
	require.Equal(t, "ok", v)
	require.Equal(t, 3, inner.calls)
}
