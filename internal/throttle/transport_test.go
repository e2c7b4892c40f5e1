package throttle

import (
	"context"
	"errors"
	"testing"

	"github.com/reqsprint/reqsprint/internal/transport"
	"github.com/stretchr/testify/require"
)

type stubTransport struct {
	err error
}

func (s *stubTransport) Request(ctx context.Context, desc transport.Descriptor) (any, error) {
	if s.err != nil {
		return nil, s.err
	}
	return "ok", nil
}

func TestWrapTransportRecordsSuccessAndFailure(t *testing.T) {
	th := New(DefaultConfig(), nil)
	failing := WrapTransport(&stubTransport{err: errors.New("boom")}, th)

	_, err := failing.Request(context.Background(), transport.Descriptor{URL: "http://x.test/path"})
	require.Error(t, err)

	status, err := th.GetStatus("x.test")
	require.NoError(t, err)
	require.Equal(t, int64(1), status.FailureCount)
}

func TestWrapTransportFailsFastWhenThrottled(t *testing.T) {
	th := New(DefaultConfig(), nil)
	calls := 0
	ok := WrapTransport(&countingStub{calls: &calls}, th)

	for i := 0; i < 20; i++ {
		th.RecordFailure("x.test")
	}
	require.True(t, th.ShouldThrottle("x.test"))

	_, err := ok.Request(context.Background(), transport.Descriptor{URL: "http://x.test/path"})
	require.Error(t, err)
	require.Equal(t, 0, calls)
}

type countingStub struct {
	calls *int
}

func (c *countingStub) Request(ctx context.Context, desc transport.Descriptor) (any, error) {
	*c.calls = *c.calls + 1
	return "ok", nil
}
