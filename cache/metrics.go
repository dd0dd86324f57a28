package cache

// NoopMetrics is the default Metrics implementation; it does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit()              {}
func (NoopMetrics) Miss()             {}
func (NoopMetrics) Shared()           {}
func (NoopMetrics) LoadError()        {}
func (NoopMetrics) Evict(EvictReason) {}
func (NoopMetrics) Size(int)          {}

var _ Metrics = NoopMetrics{}
