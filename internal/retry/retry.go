// Package retry implements the runtime's retry extension point: a
// Retrier, attached to the pipeline as a Transport decorator, that
// re-invokes a failed call with exponential backoff, gated by a
// circuit breaker so a
// persistently failing host fails fast instead of queueing more
// attempts.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/reqsprint/reqsprint/internal/reqerr"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config controls the backoff schedule and the circuit breaker
// wrapped around the guarded call.
type Config struct {
	MaxRetries          int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	BreakerName         string
	BreakerMaxFailures  uint32
	BreakerOpenTimeout  time.Duration
	BreakerHalfOpenReqs uint32
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:          3,
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         5 * time.Second,
		Multiplier:          2.0,
		BreakerName:         "reqsprint-retry",
		BreakerMaxFailures:  5,
		BreakerOpenTimeout:  30 * time.Second,
		BreakerHalfOpenReqs: 1,
	}
}

// Retrier wraps a terminal call with exponential backoff and a
// circuit breaker. It owns ErrorKind = RETRY for failures it reports
// after exhausting retries.
type Retrier struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: cfg.BreakerHalfOpenReqs,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("retry circuit breaker state change",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &Retrier{cfg: cfg, breaker: gobreaker.NewCircuitBreaker(settings), logger: logger}
}

// Do runs call, retrying on a Retryable RequestError up to
// cfg.MaxRetries times with exponential backoff, through the circuit
// breaker. If the breaker is open the call is not attempted at all.
func (r *Retrier) Do(ctx context.Context, call func(ctx context.Context) (any, error)) (any, error) {
	var lastErr error
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.InitialInterval
	bo.MaxInterval = r.cfg.MaxInterval
	bo.Multiplier = r.cfg.Multiplier
	bo.Reset()

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		result, err := r.breaker.Execute(func() (interface{}, error) {
			return call(ctx)
		})
		if err == nil {
			return result, nil
		}
		lastErr = err

		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, reqerr.New(reqerr.KindRetry, "CIRCUIT_OPEN", "circuit breaker is open, retry skipped", true)
		}
		if !isRetryable(err) || attempt == r.cfg.MaxRetries {
			break
		}

		wait := bo.NextBackOff()
		select {
		case <-ctx.Done():
			return nil, reqerr.Wrap(reqerr.KindTimeout, "RETRY_ABORTED", ctx.Err())
		case <-time.After(wait):
		}
	}

	exhausted := reqerr.New(reqerr.KindRetry, "RETRY_EXHAUSTED", "retries exhausted", false)
	exhausted.Cause = lastErr
	return nil, exhausted
}

func isRetryable(err error) bool {
	var re *reqerr.RequestError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return true
}
