// Package progress defines the single-method capability the core calls
// with fractional progress. Cancellation is signalled by the sink
// returning Stop; the aggregator checks after each record and the
// synthesizer checks after each emitted record and after each
// consolidation iteration (spec.md §4.8, §5).
package progress

// Signal is the reporter's instruction back to the caller.
type Signal int

const (
	// Continue means the caller should keep going.
	Continue Signal = iota
	// Stop means the caller must abort cleanly: drop intermediate
	// state and return a Cancelled result, not a partial one.
	Stop
)

// Reporter receives fractional progress in [0, 100]. Implementations
// are not required to be thread-safe; parallel callers (the
// aggregator's chunk workers) serialize their calls internally.
type Reporter interface {
	Report(fraction float64) Signal
}

// Noop never reports cancellation. It is the default Reporter when the
// caller doesn't need progress feedback.
type Noop struct{}

// Report always returns Continue.
func (Noop) Report(float64) Signal { return Continue }

// Func adapts a plain function to the Reporter interface.
type Func func(fraction float64) Signal

// Report calls f.
func (f Func) Report(fraction float64) Signal { return f(fraction) }

// Serialized wraps a Reporter with a mutex so it may be called safely
// from multiple goroutines at once, e.g. the aggregator's chunk
// workers reporting per-record progress concurrently.
type Serialized struct {
	inner Reporter
	mu    chan struct{} // 1-buffered semaphore
}

// NewSerialized wraps inner for concurrent use.
func NewSerialized(inner Reporter) *Serialized {
	s := &Serialized{inner: inner, mu: make(chan struct{}, 1)}
	s.mu <- struct{}{}
	return s
}

// Report serializes calls into the wrapped Reporter.
func (s *Serialized) Report(fraction float64) Signal {
	<-s.mu
	defer func() { s.mu <- struct{}{} }()
	return s.inner.Report(fraction)
}
