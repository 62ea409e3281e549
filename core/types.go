// Package core provides the foundational types for wodflow execution.
//
// This package contains:
//   - Identity types: BlockKey, StatementID
//   - Time accounting: TimeSpan
//   - Display vocabulary: Fragment, FragmentType, FragmentOrigin
//   - Reactive memory shapes: TimerState, RoundState, FragmentState,
//     CompletionState, DisplayState, ControlsState
//   - Result records: OutputStatement
//
// Everything here is a plain value type. The execution machinery that moves
// these values around lives in the runtime package.
package core

import (
	"time"

	"github.com/google/uuid"
)

// BlockKey uniquely identifies one execution block instance. Keys are never
// reused: a statement executed three times by a round loop yields three
// distinct keys.
type BlockKey string

// NewBlockKey returns a fresh globally unique block key.
func NewBlockKey() BlockKey {
	return BlockKey(uuid.New().String())
}

// String returns the string representation of the BlockKey.
func (k BlockKey) String() string {
	return string(k)
}

// StatementID references a statement in the compiled program's statement
// table. Statement IDs are assigned by the compiler and are stable for the
// lifetime of a program.
type StatementID int

// TimeSpan is one contiguous stretch of tracked time. A span with a zero
// Stop is open: it is still accumulating. Closed spans are immutable; their
// width never changes after Stop is set.
type TimeSpan struct {
	Start time.Time
	Stop  time.Time
}

// Closed reports whether the span has ended.
func (s TimeSpan) Closed() bool {
	return !s.Stop.IsZero()
}

// Duration returns the width of the span. An open span is measured against
// now; a closed span is measured against its own Stop regardless of now, so
// a frozen or lagging clock never stretches history.
func (s TimeSpan) Duration(now time.Time) time.Duration {
	if s.Start.IsZero() {
		return 0
	}
	end := s.Stop
	if end.IsZero() {
		end = now
	}
	if end.Before(s.Start) {
		return 0
	}
	return end.Sub(s.Start)
}

// FragmentOrigin records which layer produced a fragment.
type FragmentOrigin string

const (
	// OriginParser marks fragments taken verbatim from the parsed script.
	OriginParser FragmentOrigin = "parser"

	// OriginCompiler marks fragments synthesized during compilation.
	OriginCompiler FragmentOrigin = "compiler"

	// OriginRuntime marks fragments computed during execution, such as
	// measured elapsed time or rounds achieved.
	OriginRuntime FragmentOrigin = "runtime"

	// OriginUser marks fragments entered interactively, such as a logged
	// weight or rep count.
	OriginUser FragmentOrigin = "user"
)

// FragmentType classifies a fragment's content. The set is open; the
// constants below cover the vocabulary the built-in behaviors produce.
type FragmentType string

const (
	FragmentEffort     FragmentType = "effort"
	FragmentRep        FragmentType = "rep"
	FragmentDistance   FragmentType = "distance"
	FragmentResistance FragmentType = "resistance"
	FragmentTime       FragmentType = "time"
	FragmentRounds     FragmentType = "rounds"
	FragmentAction     FragmentType = "action"
	FragmentIncrement  FragmentType = "increment"
	FragmentLap        FragmentType = "lap"
	FragmentText       FragmentType = "text"
)

// String returns the string representation of the FragmentType.
func (t FragmentType) String() string {
	return string(t)
}

// Fragment is one typed piece of display or result content, such as an
// effort name ("Thrusters"), a rep count ("21"), or a measured time.
type Fragment struct {
	Type   FragmentType
	Value  string
	Origin FragmentOrigin
}

// CloneFragments returns a copy of fs. Fragment values are flat, so a fresh
// backing slice is all that is needed to decouple the copy.
func CloneFragments(fs []Fragment) []Fragment {
	if fs == nil {
		return nil
	}
	out := make([]Fragment, len(fs))
	copy(out, fs)
	return out
}
