package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordSuccessResetsBackoff(t *testing.T) {
	th := New(DefaultConfig(), nil)
	th.RecordFailure("http://a")
	th.RecordFailure("http://a")
	st, err := th.GetStatus("http://a")
	require.NoError(t, err)
	require.Greater(t, st.CurrentBackoff, time.Duration(0))

	th.RecordSuccess("http://a")
	st, err = th.GetStatus("http://a")
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().InitialBackoff, st.CurrentBackoff)
}

func TestShouldThrottleDuringBackoffWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialBackoff = time.Hour
	th := New(cfg, nil)
	th.RecordFailure("http://a")
	require.True(t, th.ShouldThrottle("http://a"))
}

func TestUnknownEndpointIsNotThrottled(t *testing.T) {
	th := New(DefaultConfig(), nil)
	require.False(t, th.ShouldThrottle("http://never-seen"))
}

func TestRepeatedFailuresDropScoreToFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialBackoff = 0
	cfg.MaxBackoff = 0
	th := New(cfg, nil)
	for i := 0; i < 50; i++ {
		th.RecordFailure("http://flaky")
	}
	st, err := th.GetStatus("http://flaky")
	require.NoError(t, err)
	require.LessOrEqual(t, st.Score, cfg.Floor+1e-9)
}

func TestGetStatusUnknownEndpointErrors(t *testing.T) {
	th := New(DefaultConfig(), nil)
	_, err := th.GetStatus("http://nope")
	require.Error(t, err)
}

func TestResetClearsHistory(t *testing.T) {
	th := New(DefaultConfig(), nil)
	th.RecordSuccess("http://a")
	th.Reset()
	require.Empty(t, th.GetAllStatuses())
}
