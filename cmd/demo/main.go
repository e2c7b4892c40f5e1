// Command demo runs an HTTP server that exposes the request
// orchestration client over a small JSON API: proxy a descriptor to
// an upstream URL, inspect aggregate stats, and serve Prometheus
// metrics.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/reqsprint/reqsprint/client"
	"github.com/reqsprint/reqsprint/internal/config"
	"github.com/reqsprint/reqsprint/internal/middleware"
	"github.com/reqsprint/reqsprint/internal/ratelimit"
	"github.com/reqsprint/reqsprint/internal/retry"
	"github.com/reqsprint/reqsprint/internal/throttle"
	"github.com/reqsprint/reqsprint/internal/transport"
)

type server struct {
	client *client.Client
	logger *zap.Logger
}

// proxyRequest is the wire shape callers POST to /proxy.
type proxyRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Params  map[string]any    `json:"params"`
	Body    any               `json:"body"`
	Timeout int               `json:"timeout_ms"`
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()

	tierLimits := cfg.RateLimits[cfg.Tier]
	retryCfg := retry.DefaultConfig()
	throttleCfg := throttle.DefaultConfig()
	rateLimitCfg := ratelimit.Config{
		RequestsPerSecond: tierLimits.RequestsPerSecond,
		Burst:             tierLimits.Burst,
		IdleEvictAfter:    10 * time.Minute,
	}

	c, err := client.New(client.Options{
		Transport: transport.NewHTTPTransport(logger),
		Global: client.GlobalConfig{
			BaseURL: cfg.BaseURL,
			Timeout: cfg.DefaultTimeout,
			Headers: cfg.DefaultHeaders,
		},
		Logger:          logger,
		RetryConfig:     &retryCfg,
		ThrottleConfig:  &throttleCfg,
		RateLimitConfig: &rateLimitCfg,
	})
	if err != nil {
		logger.Fatal("failed to build client", zap.Error(err))
	}
	defer c.Destroy()

	srv := &server{client: c, logger: logger}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", srv.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/proxy", srv.handleProxy).Methods(http.MethodPost)
	router.HandleFunc("/stats", srv.handleStats).Methods(http.MethodGet)
	if cfg.EnablePrometheus {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	mwConfig := middleware.FromConfig(cfg, logger)
	handler := middleware.Chain(
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.Logger(logger),
		middleware.Security(mwConfig),
		middleware.CORS(mwConfig),
		middleware.Timeout(cfg.APIReadTimeout),
	)(router)

	httpServer := &http.Server{
		Addr:         cfg.APIHost + ":" + strconv.Itoa(cfg.APIPort),
		Handler:      handler,
		ReadTimeout:  cfg.APIReadTimeout,
		WriteTimeout: cfg.APIWriteTimeout,
		IdleTimeout:  cfg.APIIdleTimeout,
	}

	go func() {
		logger.Info("demo server starting", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) handleProxy(w http.ResponseWriter, r *http.Request) {
	var req proxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	desc := client.Descriptor{
		URL:     req.URL,
		Method:  req.Method,
		Headers: req.Headers,
		Params:  req.Params,
		Body:    req.Body,
	}
	if req.Timeout > 0 {
		desc.Timeout = time.Duration(req.Timeout) * time.Millisecond
	}

	value, err := s.client.Execute(r.Context(), desc)
	if err != nil {
		s.logger.Warn("proxy request failed", zap.Error(err), zap.String("url", req.URL))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"result": value})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.client.GetAllStats())
}
