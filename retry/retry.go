// Package retry re-attempts failing operations under a bounded exponential
// backoff policy.
//
// An Executor holds only configuration; every Execute/Do call walks its own
// schedule:
//
//	Attempting(1) -> Done(ok)
//	              -> Waiting(delay) -> Attempting(2) -> ...
//	              -> Done(err)       (attempts exhausted or ShouldRetry == false)
//
// The last error is returned exactly as the operation produced it. The
// executor never times an operation out; wrap it with context.WithTimeout if
// an upper bound is needed.
package retry

import (
	"context"

	"github.com/rs/zerolog"
)

// Executor runs operations under a fixed Policy. It is safe for concurrent use.
type Executor struct {
	policy  Policy
	sleeper Sleeper
	metrics Metrics
	logger  zerolog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithSleeper replaces the timer used between attempts (tests).
func WithSleeper(s Sleeper) Option { return func(e *Executor) { e.sleeper = s } }

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option { return func(e *Executor) { e.metrics = m } }

// WithLogger sets the logger used for failed attempts.
func WithLogger(l zerolog.Logger) Option { return func(e *Executor) { e.logger = l } }

// NewExecutor builds an executor. It panics if p fails Validate.
func NewExecutor(p Policy, opts ...Option) *Executor {
	if err := p.Validate(); err != nil {
		panic(err.Error())
	}
	e := &Executor{
		policy:  p,
		sleeper: TimerSleeper,
		metrics: NoopMetrics{},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sleeper == nil {
		e.sleeper = TimerSleeper
	}
	if e.metrics == nil {
		e.metrics = NoopMetrics{}
	}
	return e
}

// Execute runs op until it succeeds, the policy is exhausted, or shouldRetry
// rejects the failure. A nil shouldRetry falls back to Policy.ShouldRetry.
// If ctx ends during a wait, ctx.Err() is returned.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error, shouldRetry func(error) bool) error {
	_, err := Do(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, shouldRetry)
	return err
}

// Do is Execute for operations that return a value.
func Do[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error), shouldRetry func(error) bool) (T, error) {
	if shouldRetry == nil {
		shouldRetry = e.policy.ShouldRetry
	}
	if shouldRetry == nil {
		shouldRetry = alwaysRetry
	}

	schedule := e.policy.schedule()
	maxAttempts := e.policy.MaxAttempts

	for attempt := 1; ; attempt++ {
		e.metrics.Attempt()
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		if attempt >= maxAttempts {
			e.metrics.Exhausted()
			e.logger.Warn().
				Err(err).
				Int("attempts", attempt).
				Msg("retry: attempts exhausted")
			return v, err
		}
		if !shouldRetry(err) {
			e.metrics.Exhausted()
			e.logger.Debug().
				Err(err).
				Int("attempt", attempt).
				Msg("retry: failure not retryable")
			return v, err
		}

		delay := schedule.NextBackOff()
		e.metrics.Retry(delay)
		e.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("maxAttempts", maxAttempts).
			Dur("delay", delay).
			Msg("retry: attempt failed, retrying")

		if serr := e.sleeper.Sleep(ctx, delay); serr != nil {
			var zero T
			return zero, serr
		}
	}
}

func alwaysRetry(error) bool { return true }
