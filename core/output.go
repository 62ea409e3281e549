package core

import "time"

// OutputType classifies an output statement.
type OutputType string

const (
	// OutputSegment announces that a block has started and describes what
	// the athlete is looking at. Emitted once per mount.
	OutputSegment OutputType = "segment"

	// OutputCompletion is the consolidated result record for a finished
	// block. Exactly one is emitted per unmount.
	OutputCompletion OutputType = "completion"

	// OutputMilestone marks progress inside a running block, such as a
	// round boundary.
	OutputMilestone OutputType = "milestone"

	// OutputLabel carries standalone display text.
	OutputLabel OutputType = "label"

	// OutputMetric carries a measured value logged during execution.
	OutputMetric OutputType = "metric"
)

// String returns the string representation of the OutputType.
func (t OutputType) String() string {
	return string(t)
}

// OutputStatement is one entry in the append-only execution record. The
// statement log is the engine's only durable product: history, analytics,
// and replay are all derived from it downstream.
type OutputStatement struct {
	// Seq is the statement's position in the log, assigned on append,
	// strictly increasing.
	Seq uint64

	Type OutputType

	// Block is the emitting block instance; Statement is the compiled
	// statement it executed.
	Block     BlockKey
	Statement StatementID

	// Depth is the stack depth at emission.
	Depth int

	// Window is the stretch of time the statement covers. A completion
	// spans mount to completion; a segment opens at mount and stays open;
	// milestones, labels, and metrics carry a zero-width instant.
	Window TimeSpan

	Fragments []Fragment

	// Time is the emission instant on the effective clock.
	Time time.Time
}

// Clone returns a copy with its own fragment slice.
func (s OutputStatement) Clone() OutputStatement {
	out := s
	out.Fragments = CloneFragments(s.Fragments)
	return out
}
