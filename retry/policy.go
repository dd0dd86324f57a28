package retry

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrInvalidPolicy is wrapped by every Policy.Validate failure.
var ErrInvalidPolicy = errors.New("retry: invalid policy")

// uncapped stands in for a zero MaxDelay.
const uncapped = time.Duration(math.MaxInt64)

// Policy bounds how an operation is re-attempted.
//
// Zero values are normalised before use:
//   - BackoffMultiplier 0 => 1 (constant delay)
//   - MaxDelay 0          => no cap
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first (>= 1).
	MaxAttempts int
	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps every wait.
	MaxDelay time.Duration
	// BackoffMultiplier grows the wait after each failed attempt (>= 1).
	BackoffMultiplier float64
	// ShouldRetry decides whether a failure may be retried.
	// Nil retries every failure. A predicate passed to Execute/Do overrides it.
	ShouldRetry func(error) bool
}

// DefaultPolicy is three attempts with 200ms, 400ms waits, capped at 2s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialDelay:      200 * time.Millisecond,
		MaxDelay:          2 * time.Second,
		BackoffMultiplier: 2,
	}
}

func (p Policy) normalized() Policy {
	if p.BackoffMultiplier == 0 {
		p.BackoffMultiplier = 1
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = uncapped
	}
	return p
}

// Validate reports a policy that cannot produce a bounded, non-decreasing schedule.
func (p Policy) Validate() error {
	n := p.normalized()
	switch {
	case n.MaxAttempts < 1:
		return fmt.Errorf("%w: maxAttempts must be >= 1, got %d", ErrInvalidPolicy, n.MaxAttempts)
	case n.InitialDelay < 0:
		return fmt.Errorf("%w: initialDelay must not be negative", ErrInvalidPolicy)
	case n.MaxDelay < 0:
		return fmt.Errorf("%w: maxDelay must not be negative", ErrInvalidPolicy)
	case n.InitialDelay > n.MaxDelay:
		return fmt.Errorf("%w: initialDelay %v exceeds maxDelay %v", ErrInvalidPolicy, n.InitialDelay, n.MaxDelay)
	case math.IsNaN(n.BackoffMultiplier) || n.BackoffMultiplier < 1:
		return fmt.Errorf("%w: backoffMultiplier must be >= 1, got %v", ErrInvalidPolicy, n.BackoffMultiplier)
	}
	return nil
}

// schedule returns a fresh, jitter-free exponential schedule for one call.
func (p Policy) schedule() *backoff.ExponentialBackOff {
	n := p.normalized()
	b := &backoff.ExponentialBackOff{
		InitialInterval:     n.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          n.BackoffMultiplier,
		MaxInterval:         n.MaxDelay,
	}
	b.Reset()
	return b
}

// Delays returns the waits an always-failing operation would observe:
// MaxAttempts-1 values, the first equal to InitialDelay.
func (p Policy) Delays() []time.Duration {
	if p.MaxAttempts <= 1 {
		return nil
	}
	b := p.schedule()
	out := make([]time.Duration, p.MaxAttempts-1)
	for i := range out {
		out[i] = b.NextBackOff()
	}
	return out
}

// Permanent marks err as not worth retrying; see StopOnPermanent.
func Permanent(err error) error { return backoff.Permanent(err) }

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

// StopOnPermanent retries everything except errors marked with Permanent.
func StopOnPermanent(err error) bool { return !IsPermanent(err) }
