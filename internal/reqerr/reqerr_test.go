package reqerr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRequestErrorIsMatchesByKind(t *testing.T) {
	base := &RequestError{Kind: KindTimeout}
	err := NewTimeoutError("REQUEST_TIMEOUT", "slow upstream")
	require.True(t, errors.Is(err, base))
	require.False(t, errors.Is(err, &RequestError{Kind: KindValidation}))
}

func TestWrapDoesNotDoubleWrap(t *testing.T) {
	inner := NewValidationError("BAD_INPUT", "missing url")
	wrapped := Wrap(KindNetwork, "IGNORED", inner)
	require.Same(t, inner, wrapped)
}

func TestWrapForeignError(t *testing.T) {
	foreign := errors.New("dial tcp: connection refused")
	wrapped := Wrap(KindNetwork, "DIAL_FAILED", foreign)
	require.Equal(t, KindNetwork, wrapped.Kind)
	require.ErrorIs(t, wrapped, foreign)
	require.True(t, wrapped.Retryable)
}

func TestWrapAnyPreservesForeignCauseAsUnknown(t *testing.T) {
	foreign := errors.New("boom")
	wrapped := WrapAny(foreign, Context{URL: "https://x"})
	require.Equal(t, KindUnknown, wrapped.Kind)
	require.ErrorIs(t, wrapped, foreign)
}

func TestNewHTTPErrorCarriesStatus(t *testing.T) {
	err := NewHTTPError(503, "service unavailable", Context{URL: "https://x"})
	require.Equal(t, KindHTTP, err.Kind)
	require.Equal(t, 503, err.Status)
	require.True(t, err.Retryable)
}

func TestMergeAbortClassifiesTimeout(t *testing.T) {
	ctx, cancel, classify := MergeAbort(context.Background(), 10*time.Millisecond)
	defer cancel()
	<-ctx.Done()
	err := classify()
	require.NotNil(t, err)
	require.Equal(t, KindTimeout, err.Kind)
	require.Equal(t, "REQUEST_TIMEOUT", err.Code)
}

func TestMergeAbortClassifiesCallerCancel(t *testing.T) {
	outer, outerCancel := context.WithCancel(context.Background())
	ctx, cancel, classify := MergeAbort(outer, time.Second)
	defer cancel()
	outerCancel()
	<-ctx.Done()
	err := classify()
	require.NotNil(t, err)
	require.Equal(t, KindTimeout, err.Kind)
	require.Equal(t, "REQUEST_ABORTED", err.Code)
	require.Equal(t, "Request aborted", err.Message)
}
