package fingerprint

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func panicTimeout() <-chan time.Time { return time.After(time.Second) }

func TestKeyIsOrderIndependent(t *testing.T) {
	cfg := DefaultConfig()
	a := Key(Request{
		Method: "get",
		URL:    "https://api.example.com/v1/items",
		Params: map[string]any{"b": 2, "a": 1},
	}, cfg)
	b := Key(Request{
		Method: "GET",
		URL:    "https://api.example.com/v1/items",
		Params: map[string]any{"a": 1, "b": 2},
	}, cfg)
	require.Equal(t, a, b)
}

func TestKeyDiffersOnBody(t *testing.T) {
	cfg := DefaultConfig()
	a := Key(Request{Method: "POST", URL: "/x", Body: map[string]any{"n": 1}}, cfg)
	b := Key(Request{Method: "POST", URL: "/x", Body: map[string]any{"n": 2}}, cfg)
	require.NotEqual(t, a, b)
}

func TestAuthorizationHeaderNeverIncluded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeadersWhitelist = []string{"Authorization", "X-Trace-Id"}

	a := Key(Request{
		Method:  "GET",
		URL:     "/x",
		Headers: map[string]string{"Authorization": "Bearer one", "X-Trace-Id": "t1"},
	}, cfg)
	b := Key(Request{
		Method:  "GET",
		URL:     "/x",
		Headers: map[string]string{"Authorization": "Bearer two", "X-Trace-Id": "t1"},
	}, cfg)
	require.Equal(t, a, b, "differing Authorization must not change the fingerprint")
}

func TestWhitelistedHeaderChangesKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeadersWhitelist = []string{"X-Trace-Id"}

	a := Key(Request{Method: "GET", URL: "/x", Headers: map[string]string{"X-Trace-Id": "t1"}}, cfg)
	b := Key(Request{Method: "GET", URL: "/x", Headers: map[string]string{"X-Trace-Id": "t2"}}, cfg)
	require.NotEqual(t, a, b)
}

func TestTrailingURLSeparatorDoesNotChangeKey(t *testing.T) {
	cfg := DefaultConfig()
	a := Key(Request{Method: "GET", URL: "https://api.example.com/v1/items"}, cfg)
	b := Key(Request{Method: "GET", URL: "https://api.example.com/v1/items/"}, cfg)
	require.Equal(t, a, b)
}

func TestQueryStringDoesNotChangeKey(t *testing.T) {
	cfg := DefaultConfig()
	a := Key(Request{Method: "GET", URL: "https://api.example.com/v1/items"}, cfg)
	b := Key(Request{Method: "GET", URL: "https://api.example.com/v1/items?sort=desc"}, cfg)
	require.Equal(t, a, b)
}

func TestNullParamValueDoesNotChangeKey(t *testing.T) {
	cfg := DefaultConfig()
	a := Key(Request{Method: "GET", URL: "/x", Params: map[string]any{"a": 1}}, cfg)
	b := Key(Request{Method: "GET", URL: "/x", Params: map[string]any{"a": 1, "b": nil}}, cfg)
	require.Equal(t, a, b)
}

func TestCyclicBodyDoesNotHang(t *testing.T) {
	cfg := DefaultConfig()
	m := map[string]any{}
	m["self"] = m

	done := make(chan string, 1)
	go func() { done <- Key(Request{Method: "POST", URL: "/x", Body: m}, cfg) }()
	select {
	case k := <-done:
		require.Contains(t, k, "<cycle>")
	case <-panicTimeout():
		t.Fatal("fingerprinting a cyclic body did not terminate")
	}
}

func TestLongKeyTruncatedWithHashSuffix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxKeyLength = 32
	longParams := map[string]any{"q": strings.Repeat("x", 200)}
	k := Key(Request{Method: "GET", URL: "/search", Params: longParams}, cfg)
	require.Contains(t, k, "#")
	require.LessOrEqual(t, len(strings.SplitN(k, "#", 2)[0]), cfg.MaxKeyLength)
}

func TestAlgorithmSwitchChangesSuffixButStaysDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxKeyLength = 16
	cfg.Algorithm = AlgoSHA256
	req := Request{Method: "GET", URL: "/search", Params: map[string]any{"q": strings.Repeat("y", 100)}}
	k1 := Key(req, cfg)
	k2 := Key(req, cfg)
	require.Equal(t, k1, k2)

	xcfg := cfg
	xcfg.Algorithm = AlgoXXHash
	require.NotEqual(t, k1, Key(req, xcfg))
}
