// Package retry runs remote calls with transient-failure classification and
// exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/iho/ledgersync/internal/infrastructure/metrics"
)

// Defaults for remote calls.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Executor retries an operation while it fails with a transient error. The
// delay before retry n is BaseDelay * 2^(n-1). Executor holds no per-call
// state and is safe for concurrent use.
type Executor struct {
	maxAttempts int
	baseDelay   time.Duration
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	newTimer    func() backoff.Timer
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the delay before the first retry.
func WithBaseDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.baseDelay = d
		}
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithMetrics counts retries.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// withTimer replaces the wall-clock timer; used by tests.
func withTimer(f func() backoff.Timer) Option {
	return func(e *Executor) { e.newTimer = f }
}

// NewExecutor creates an executor with DefaultMaxAttempts and DefaultBaseDelay
// unless overridden.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxAttempts returns the configured attempt limit.
func (e *Executor) MaxAttempts() int { return e.maxAttempts }

// Do runs op until it succeeds, fails with a non-transient error, or the
// attempt limit is reached. The last error is returned unchanged.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.baseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = e.baseDelay << uint(e.maxAttempts)
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.maxAttempts-1)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		if e.metrics != nil {
			e.metrics.Retries.Inc()
		}
		e.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", e.maxAttempts).
			Dur("next_delay", next).
			Msg("transient remote failure, retrying")
	}

	var timer backoff.Timer
	if e.newTimer != nil {
		timer = e.newTimer()
	}

	return backoff.RetryNotifyWithTimer(operation, policy, notify, timer)
}

// Execute is Do for operations that produce a value.
func Execute[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
