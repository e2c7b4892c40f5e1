// Package config loads the runtime's ambient configuration: server
// bind settings, per-tier rate limits, security/CORS toggles, and the
// client package's default Global/SerialManager/Cache/Concurrent
// settings, all overridable from the environment the same way the
// teacher's config layer works.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Tier names a pricing/capacity tier; rate limits and a few pipeline
// defaults scale with it.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierBusiness   Tier = "business"
	TierTurbo      Tier = "turbo"
	TierEnterprise Tier = "enterprise"
)

// TierRateLimit is the per-tier token-bucket shape handed to
// internal/ratelimit.
type TierRateLimit struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
	ConcurrentStreams int     `json:"concurrent_streams"`
}

// Config holds every ambient setting the runtime reads at startup.
type Config struct {
	Tier Tier

	// HTTP server bind (cmd/demo).
	APIHost         string
	APIPort         int
	APIReadTimeout  time.Duration
	APIWriteTimeout time.Duration
	APIIdleTimeout  time.Duration

	// Security and transport.
	EnableTLS             bool
	EnableCORS            bool
	CORSOrigins           []string
	TrustedProxies        []string
	EnableCompression     bool
	EnableSecurityHeaders bool

	// Observability.
	EnablePrometheus bool
	PrometheusPort   int
	Debug            bool

	RateLimits map[Tier]TierRateLimit

	// client.Global defaults (spec.md §2 Global config).
	BaseURL        string
	DefaultTimeout time.Duration
	DefaultHeaders map[string]string

	// SerialManagerConfig defaults.
	SerialMaxQueues       int
	SerialCleanupInterval time.Duration

	// CacheConfig defaults.
	CacheTTL        time.Duration
	CacheMaxEntries int

	// ConcurrentConfig defaults.
	ConcurrentMaxConcurrency int
	ConcurrentTimeout        time.Duration
}

// Load reads configuration from the environment, applying
// tier-specific defaults and .env overlays the same way the teacher's
// loader layers base/.env.networks/.env.<tier> files.
func Load() Config {
	loadEnvironmentConfig()

	tier := Tier(getEnv("TIER", "free"))

	cfg := Config{
		Tier:                     tier,
		APIHost:                  getEnv("API_HOST", "0.0.0.0"),
		APIPort:                  getEnvInt("API_PORT", 8080),
		APIReadTimeout:           time.Duration(getEnvInt("API_READ_TIMEOUT_SEC", 30)) * time.Second,
		APIWriteTimeout:          time.Duration(getEnvInt("API_WRITE_TIMEOUT_SEC", 30)) * time.Second,
		APIIdleTimeout:           time.Duration(getEnvInt("API_IDLE_TIMEOUT_SEC", 120)) * time.Second,
		EnableTLS:                getEnvBool("ENABLE_TLS", false),
		EnableCORS:               getEnvBool("ENABLE_CORS", true),
		CORSOrigins:              getEnvSlice("CORS_ORIGINS", []string{"*"}),
		TrustedProxies:           getEnvSlice("TRUSTED_PROXIES", []string{}),
		EnableCompression:        getEnvBool("ENABLE_COMPRESSION", true),
		EnableSecurityHeaders:    getEnvBool("ENABLE_SECURITY_HEADERS", true),
		EnablePrometheus:         getEnvBool("ENABLE_PROMETHEUS", true),
		PrometheusPort:           getEnvInt("PROMETHEUS_PORT", 9090),
		Debug:                    getEnvBool("DEBUG", false),
		BaseURL:                  getEnv("BASE_URL", ""),
		DefaultTimeout:           time.Duration(getEnvInt("DEFAULT_TIMEOUT_MS", 30000)) * time.Millisecond,
		SerialMaxQueues:          getEnvInt("SERIAL_MAX_QUEUES", 1000),
		SerialCleanupInterval:    time.Duration(getEnvInt("SERIAL_CLEANUP_INTERVAL_SEC", 60)) * time.Second,
		CacheTTL:                 time.Duration(getEnvInt("CACHE_TTL_SEC", 300)) * time.Second,
		CacheMaxEntries:          getEnvInt("CACHE_MAX_ENTRIES", 10000),
		ConcurrentMaxConcurrency: getEnvInt("CONCURRENT_MAX_CONCURRENCY", 0),
		ConcurrentTimeout:        time.Duration(getEnvInt("CONCURRENT_TIMEOUT_SEC", 30)) * time.Second,
	}

	cfg.RateLimits = getDefaultRateLimits()
	if tier == TierEnterprise {
		ent := cfg.RateLimits[TierEnterprise]
		if v := getEnvInt("RATE_LIMIT_REQUESTS_PER_SECOND", -1); v > 0 {
			ent.RequestsPerSecond = float64(v)
		}
		if v := getEnvInt("RATE_LIMIT_BURST", -1); v > 0 {
			ent.Burst = v
		}
		cfg.RateLimits[TierEnterprise] = ent
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation error: %v", err)
	}

	return cfg
}

func getDefaultRateLimits() map[Tier]TierRateLimit {
	return map[Tier]TierRateLimit{
		TierFree:       {RequestsPerSecond: 1, Burst: 5, ConcurrentStreams: 1},
		TierPro:        {RequestsPerSecond: 10, Burst: 50, ConcurrentStreams: 5},
		TierBusiness:   {RequestsPerSecond: 50, Burst: 250, ConcurrentStreams: 20},
		TierTurbo:      {RequestsPerSecond: 100, Burst: 500, ConcurrentStreams: 50},
		TierEnterprise: {RequestsPerSecond: 500, Burst: 2500, ConcurrentStreams: 100},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || v == "true"
	}
	return def
}

func getEnvSlice(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	tv := strings.TrimSpace(v)
	if strings.HasPrefix(tv, "[") && strings.HasSuffix(tv, "]") {
		var arr []string
		if err := json.Unmarshal([]byte(tv), &arr); err == nil {
			return arr
		}
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			result = append(result, p)
		}
	}
	return result
}

// loadEnvironmentConfig layers a default .env, an optional
// .env.networks override, and a tier-specific .env.<tier> file, each
// taking precedence over the last — matching the teacher's layered
// godotenv loading order.
func loadEnvironmentConfig() {
	if err := godotenv.Load(); err == nil {
		log.Printf("config: loaded .env")
	}
	if err := godotenv.Overload(".env.networks"); err == nil {
		log.Printf("config: loaded .env.networks override")
	}
	if tier := getEnv("TIER", ""); tier != "" {
		tierEnvFile := fmt.Sprintf(".env.%s", tier)
		if err := godotenv.Overload(tierEnvFile); err == nil {
			log.Printf("config: loaded tier-specific %s", tierEnvFile)
		}
	}
}

// Get retrieves a raw environment value with a default fallback.
func (c *Config) Get(key, def string) string { return getEnv(key, def) }

// GetDuration parses key as seconds (plain integer) or a Go duration
// string, falling back to zero.
func (c *Config) GetDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if i, err := strconv.Atoi(v); err == nil {
		return time.Duration(i) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return 0
}

// Validate ensures tier-dependent invariants hold before the runtime
// starts serving traffic.
func (c *Config) Validate() error {
	if c.Tier == TierEnterprise && c.BaseURL == "" {
		return fmt.Errorf("enterprise tier requires BASE_URL to be set")
	}
	return nil
}
