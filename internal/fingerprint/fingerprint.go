// Package fingerprint canonicalizes a request descriptor into a
// deterministic cache key, independent of map iteration order, cyclic
// structures in the body, and which fields a given caller happened to
// set. Two equivalent requests always fingerprint to the same key.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Algorithm selects the hash used once a canonical key exceeds
// MaxKeyLength.
type Algorithm string

const (
	AlgoXXHash Algorithm = "xxhash"
	AlgoSHA256 Algorithm = "sha256"
)

// deniedHeaders is never allowed into a fingerprint, even if a caller
// whitelists it: a cache entry keyed on a bearer token would leak one
// caller's authorized response to another caller holding a different
// token against the same URL.
var deniedHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
}

// Config controls fingerprinting behavior.
type Config struct {
	Algorithm       Algorithm
	MaxKeyLength    int
	HeadersWhitelist []string
}

func DefaultConfig() Config {
	return Config{
		Algorithm:    AlgoXXHash,
		MaxKeyLength: 512,
	}
}

// Request is the subset of a request descriptor that participates in
// fingerprinting.
type Request struct {
	Method  string
	URL     string
	Params  map[string]any
	Body    any
	Headers map[string]string
}

// Key computes the deterministic fingerprint for req under cfg.
func Key(req Request, cfg Config) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(req.Method))
	b.WriteByte('|')
	b.WriteString(canonicalizeURL(req.URL))
	b.WriteByte('|')
	writeCanonical(&b, dropNilParams(req.Params), newSeen())
	b.WriteByte('|')
	writeCanonical(&b, req.Body, newSeen())
	b.WriteByte('|')
	writeHeaders(&b, req.Headers, cfg.HeadersWhitelist)

	canonical := b.String()
	if cfg.MaxKeyLength <= 0 || len(canonical) <= cfg.MaxKeyLength {
		return canonical
	}

	h := hash(canonical, cfg.Algorithm)
	truncated := canonical[:cfg.MaxKeyLength]
	return fmt.Sprintf("%s#%s", truncated, h)
}

// canonicalizeURL strips the query string (params are tracked
// separately, see dropNilParams) and any trailing path separator, so
// "/a" and "/a/" and "/a?x=1" all canonicalize to the same key.
func canonicalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimRight(raw, "/")
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// dropNilParams removes keys whose value is nil, so a present-but-null
// param fingerprints identically to an absent one.
func dropNilParams(params map[string]any) map[string]any {
	if len(params) == 0 {
		return params
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

func hash(s string, algo Algorithm) string {
	switch algo {
	case AlgoSHA256:
		sum := sha256.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	default:
		return fmt.Sprintf("%016x", xxhash.Sum64String(s))
	}
}

func writeHeaders(b *strings.Builder, headers map[string]string, whitelist []string) {
	if len(headers) == 0 || len(whitelist) == 0 {
		return
	}
	allowed := make(map[string]string, len(whitelist))
	for _, name := range whitelist {
		lower := strings.ToLower(name)
		if deniedHeaders[lower] {
			continue
		}
		for hk, hv := range headers {
			if strings.ToLower(hk) == lower {
				allowed[lower] = hv
			}
		}
	}
	keys := make([]string, 0, len(allowed))
	for k := range allowed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(allowed[k])
		b.WriteByte(';')
	}
}

// seen tracks pointer identities already visited, to make
// canonicalization cycle-safe for arbitrary body values built from
// maps/slices/pointers.
type seen struct {
	ptrs map[uintptr]bool
}

func newSeen() *seen { return &seen{ptrs: make(map[uintptr]bool)} }

// writeCanonical serializes v deterministically: map keys are sorted,
// slices keep their order (order is meaningful there), and anything
// else falls back to fmt's default formatting. Cycles collapse to a
// fixed marker rather than recursing forever.
func writeCanonical(b *strings.Builder, v any, s *seen) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case map[string]any:
		ptr := reflect.ValueOf(val).Pointer()
		if s.ptrs[ptr] {
			b.WriteString("<cycle>")
			return
		}
		s.ptrs[ptr] = true
		defer delete(s.ptrs, ptr)

		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte(':')
			writeCanonical(b, val[k], s)
		}
		b.WriteByte('}')
	case []any:
		ptr := reflect.ValueOf(val).Pointer()
		if len(val) > 0 && s.ptrs[ptr] {
			b.WriteString("<cycle>")
			return
		}
		if len(val) > 0 {
			s.ptrs[ptr] = true
			defer delete(s.ptrs, ptr)
		}
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item, s)
		}
		b.WriteByte(']')
	default:
		fmt.Fprintf(b, "%v", val)
	}
}
