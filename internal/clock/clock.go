// Package clock provides the time source shared by the collector and the
// scenario executor.
package clock

import (
	"sync"
	"time"
)

// Clock is an interface for obtaining monotonic time.
// This abstraction allows for deterministic testing of time-dependent code.
type Clock interface {
	// Now returns the current time. Implementations must return
	// monotonically increasing time values.
	Now() time.Time
}

// Monotonic is a Clock backed by time.Now, which carries a monotonic
// reading and is therefore safe for elapsed-time measurement.
type Monotonic struct{}

// Now returns the current system time with monotonic clock reading.
func (Monotonic) Now() time.Time {
	return time.Now()
}

// Mock is a manually advanced Clock for tests. Unlike a bare struct it is
// safe for concurrent use, since the sampling loop reads it from its own
// goroutine.
type Mock struct {
	mu      sync.Mutex
	current time.Time
}

// NewMock creates a Mock initialized to t.
// If t is zero, it starts at a fixed, non-zero instant.
func NewMock(t time.Time) *Mock {
	if t.IsZero() {
		t = time.Unix(1000000000, 0) // 2001-09-09
	}
	return &Mock{current: t}
}

// Now returns the mock clock's current time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Advance moves the clock forward by d.
// Panics if d is negative to maintain monotonicity.
func (m *Mock) Advance(d time.Duration) {
	if d < 0 {
		panic("clock.Mock.Advance: duration must be non-negative")
	}
	m.mu.Lock()
	m.current = m.current.Add(d)
	m.mu.Unlock()
}

// OrDefault returns c, or Monotonic when c is nil.
func OrDefault(c Clock) Clock {
	if c == nil {
		return Monotonic{}
	}
	return c
}
