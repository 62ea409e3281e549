// Package clock provides the time sources the execution engine runs on.
//
// The engine never calls time.Now directly. It reads an injected Clock, which
// lets tests drive execution deterministically with Manual and lets the
// orchestrator freeze one instant across a whole transition cascade with
// Snapshot.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// System returns the real wall clock.
func System() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SnapshotClock reports one frozen instant. The orchestrator installs one at
// the start of a pop-triggered cascade so every unmount, parent advance, and
// child mount in that cascade observes the same completion instant. Queries
// that must not be frozen go through Unwrap.
type SnapshotClock struct {
	inner Clock
	at    time.Time
}

// Snapshot returns a clock frozen at the given instant, layered over inner.
func Snapshot(inner Clock, at time.Time) *SnapshotClock {
	return &SnapshotClock{inner: inner, at: at}
}

// Now returns the frozen instant.
func (s *SnapshotClock) Now() time.Time {
	return s.at
}

// Unwrap returns the clock the snapshot was taken over.
func (s *SnapshotClock) Unwrap() Clock {
	return s.inner
}

var _ Clock = (*SnapshotClock)(nil)

// Manual is a test clock that only moves when told to. The zero value is not
// usable; construct with NewManual.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a manual clock positioned at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the clock's current position.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d and returns the new position.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// Set positions the clock at t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

var _ Clock = (*Manual)(nil)
