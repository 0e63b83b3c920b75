// Package resilience wraps outbound calls, such as notification providers
// and the clinic API, in bounded retries and a circuit breaker per
// operation.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/vetcore/platform/internal/shared/metrics"
)

// ErrNilOperation is returned when Execute is given no callback.
var ErrNilOperation = errors.New("resilience: operation callback is nil")

// ErrorClassification tells the executor how to treat a failed attempt.
type ErrorClassification struct {
	// Retryable failures are attempted again after a backoff.
	Retryable bool
	// RecordFailure failures count toward tripping the breaker.
	RecordFailure bool
	// RetryAfter replaces the computed backoff when positive.
	RetryAfter time.Duration
}

type ErrorClassifier func(err error) ErrorClassification

// Permanent is the classifier used when none is given: no retry, and the
// failure counts against the breaker.
func Permanent(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}

// Executor runs calls with bounded retries behind one circuit breaker per
// operation name.
type Executor struct {
	cfg    Config
	logger *slog.Logger
	rnd    func() float64

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		cfg:      cfg.normalize(),
		logger:   logger,
		rnd:      defaultRand,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Execute calls fn until it succeeds, classify says stop, attempts run out
// or ctx ends. With the breaker enabled an open circuit fails fast with an
// error for which IsCircuitOpen is true.
func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classify ErrorClassifier) error {
	if fn == nil {
		return ErrNilOperation
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classify == nil {
		classify = Permanent
	}

	if !e.cfg.BreakerEnabled {
		return e.retry(ctx, op, fn, classify)
	}

	_, err := e.breaker(op, classify).Execute(func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, op, fn, classify)
	})
	if IsCircuitOpen(err) {
		metrics.RecordBreakerRejection(op)
	}
	return err
}

func (e *Executor) retry(ctx context.Context, op string, fn func(context.Context) error, classify ErrorClassifier) error {
	delay := e.cfg.RetryInitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		class := classify(err)
		if !class.Retryable || attempt >= e.cfg.RetryMaxAttempts {
			return err
		}

		wait := e.cfg.wait(delay, class.RetryAfter, e.rnd)
		metrics.RecordRetry(op)
		e.logger.Warn("retrying operation",
			"operation", op,
			"attempt", attempt,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"wait", wait,
			"error", err,
		)
		if !sleep(ctx, wait) {
			return err
		}
		delay = e.cfg.next(delay)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Executor) breaker(op string, classify ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[op]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, int(to))
			e.logger.Warn("circuit breaker state changed", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[op] = cb
	metrics.SetBreakerState(op, int(gobreaker.StateClosed))
	return cb
}

// States reports the breaker state of every operation seen so far.
func (e *Executor) States() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]string, len(e.breakers))
	for op, cb := range e.breakers {
		out[op] = cb.State().String()
	}
	return out
}

// IsCircuitOpen reports whether err came from a breaker refusing the call.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
