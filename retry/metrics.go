package retry

import "time"

// Metrics receives executor events.
type Metrics interface {
	// Attempt is called before every invocation of the operation.
	Attempt()
	// Retry is called when a failed attempt will be retried after delay.
	Retry(delay time.Duration)
	// Exhausted is called when the executor gives up with an error.
	Exhausted()
}

// NoopMetrics discards all events.
type NoopMetrics struct{}

func (NoopMetrics) Attempt()            {}
func (NoopMetrics) Retry(time.Duration) {}
func (NoopMetrics) Exhausted()          {}

var _ Metrics = NoopMetrics{}
