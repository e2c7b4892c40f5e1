package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetEnvSliceSupportsJSONAndCSV(t *testing.T) {
	t.Setenv("TEST_SLICE_JSON", `["a","b"]`)
	require.Equal(t, []string{"a", "b"}, getEnvSlice("TEST_SLICE_JSON", nil))

	t.Setenv("TEST_SLICE_CSV", "a, b ,c")
	require.Equal(t, []string{"a", "b", "c"}, getEnvSlice("TEST_SLICE_CSV", nil))

	require.Equal(t, []string{"default"}, getEnvSlice("TEST_SLICE_MISSING", []string{"default"}))
}

func TestEnterpriseTierRequiresBaseURL(t *testing.T) {
	cfg := Config{Tier: TierEnterprise}
	require.Error(t, cfg.Validate())

	cfg.BaseURL = "https://api.example.com"
	require.NoError(t, cfg.Validate())
}

func TestGetDurationParsesSecondsAndDurationStrings(t *testing.T) {
	cfg := Config{}
	t.Setenv("TEST_DURATION_SECONDS", "30")
	require.Equal(t, 30*time.Second, cfg.GetDuration("TEST_DURATION_SECONDS"))

	t.Setenv("TEST_DURATION_STRING", "1h30m")
	require.Equal(t, 90*time.Minute, cfg.GetDuration("TEST_DURATION_STRING"))
}

func TestDefaultRateLimitsScaleByTier(t *testing.T) {
	limits := getDefaultRateLimits()
	require.Less(t, limits[TierFree].RequestsPerSecond, limits[TierEnterprise].RequestsPerSecond)
}
