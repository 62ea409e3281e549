package core

import (
	"fmt"
	"time"
)

// MemoryKind names a block's memory slot. A block holds at most one cell
// per kind.
type MemoryKind string

const (
	MemoryTimer      MemoryKind = "timer"
	MemoryRounds     MemoryKind = "rounds"
	MemoryFragments  MemoryKind = "fragments"
	MemoryCompletion MemoryKind = "completion"
	MemoryDisplay    MemoryKind = "display"
	MemoryControls   MemoryKind = "controls"
)

// String returns the string representation of the MemoryKind.
func (k MemoryKind) String() string {
	return string(k)
}

// MemoryKinds lists every kind in a fixed order. Disposal and iteration use
// this order so runs are reproducible.
func MemoryKinds() []MemoryKind {
	return []MemoryKind{
		MemoryTimer,
		MemoryRounds,
		MemoryFragments,
		MemoryCompletion,
		MemoryDisplay,
		MemoryControls,
	}
}

// Value is the closed set of shapes a memory cell can hold. The six
// implementations below are the only ones; the unexported marker keeps the
// set closed so dispatch over shapes stays exhaustive.
type Value interface {
	// Clone returns a deep copy. Cells clone at every boundary so callers
	// can mutate their local copies freely.
	Clone() Value

	memoryValue()
}

// TimerDirection says which way a timer's display counts.
type TimerDirection string

const (
	// CountUp displays accumulated elapsed time (stopwatch).
	CountUp TimerDirection = "up"

	// CountDown displays time remaining toward the target (countdown).
	CountDown TimerDirection = "down"
)

// TimerState is the memory shape behind a running, paused, or finished
// timer. Time is tracked as spans: pausing closes the open span, resuming
// opens a new one. At most one span is open at a time, and it is always the
// last element of Spans.
type TimerState struct {
	Spans     []TimeSpan
	Direction TimerDirection
	Label     string

	// Target is the configured duration for countdowns. Nil means the
	// timer is open-ended. A non-nil zero is a valid target: such a timer
	// is complete the moment it starts.
	Target *time.Duration
}

// Open reports whether the timer currently has an open span.
func (t TimerState) Open() bool {
	n := len(t.Spans)
	return n > 0 && !t.Spans[n-1].Closed()
}

// StartSpan opens a new span at the given instant. It reports false without
// changing anything when a span is already open.
func (t *TimerState) StartSpan(at time.Time) bool {
	if t.Open() {
		return false
	}
	t.Spans = append(t.Spans, TimeSpan{Start: at})
	return true
}

// CloseSpan closes the open span at the given instant. It reports false
// when no span is open.
func (t *TimerState) CloseSpan(at time.Time) bool {
	if !t.Open() {
		return false
	}
	t.Spans[len(t.Spans)-1].Stop = at
	return true
}

// Elapsed returns total tracked time at the given instant: the sum of all
// closed span widths plus, when a span is open, the time from its start to
// now. Closed spans contribute their own width no matter what now is.
func (t TimerState) Elapsed(now time.Time) time.Duration {
	var total time.Duration
	for _, s := range t.Spans {
		total += s.Duration(now)
	}
	return total
}

// Remaining returns target minus elapsed, floored at zero. It returns false
// when the timer has no target.
func (t TimerState) Remaining(now time.Time) (time.Duration, bool) {
	if t.Target == nil {
		return 0, false
	}
	rem := *t.Target - t.Elapsed(now)
	if rem < 0 {
		rem = 0
	}
	return rem, true
}

// Deadline returns the instant at which elapsed time reaches the target,
// assuming the open span keeps running. It returns false when the timer has
// no target or no open span to project from.
func (t TimerState) Deadline() (time.Time, bool) {
	if t.Target == nil || !t.Open() {
		return time.Time{}, false
	}
	open := t.Spans[len(t.Spans)-1]
	var closed time.Duration
	for _, s := range t.Spans[:len(t.Spans)-1] {
		closed += s.Duration(open.Start)
	}
	return open.Start.Add(*t.Target - closed), true
}

// Clone implements Value.
func (t TimerState) Clone() Value {
	out := t
	if t.Spans != nil {
		out.Spans = make([]TimeSpan, len(t.Spans))
		copy(out.Spans, t.Spans)
	}
	if t.Target != nil {
		target := *t.Target
		out.Target = &target
	}
	return out
}

func (TimerState) memoryValue() {}

// RoundState is the memory shape behind round loops. Iteration is 1-based.
// Total of zero means unbounded (an AMRAP counts rounds until something
// else ends the block). Position is the 0-based cursor of the next child
// within the current round.
type RoundState struct {
	Iteration int
	Total     int
	Position  int
}

// Bounded reports whether the loop has a fixed number of rounds.
func (r RoundState) Bounded() bool {
	return r.Total > 0
}

// Format renders the round counter for display: "3/5" when bounded, "3"
// when not.
func (r RoundState) Format() string {
	if r.Bounded() {
		return fmt.Sprintf("%d/%d", r.Iteration, r.Total)
	}
	return fmt.Sprintf("%d", r.Iteration)
}

// Clone implements Value.
func (r RoundState) Clone() Value {
	return r
}

func (RoundState) memoryValue() {}

// FragmentState is the memory shape holding a block's display fragments:
// the parser-supplied content plus anything inherited from the parent at
// push time.
type FragmentState struct {
	Fragments []Fragment
}

// Clone implements Value.
func (f FragmentState) Clone() Value {
	return FragmentState{Fragments: CloneFragments(f.Fragments)}
}

func (FragmentState) memoryValue() {}

// CompletionReason explains why a block finished. The taxonomy is open;
// the constants below are the reasons the engine itself produces.
type CompletionReason string

const (
	// ReasonUserAdvance means the athlete advanced the block.
	ReasonUserAdvance CompletionReason = "user-advance"

	// ReasonTimerExpired means a countdown reached its target.
	ReasonTimerExpired CompletionReason = "timer-expired"

	// ReasonRoundsComplete means a bounded loop finished its last round.
	ReasonRoundsComplete CompletionReason = "rounds-complete"

	// ReasonForcedPop means the block was removed from outside, by a
	// cancelled run or a parent ending before its children.
	ReasonForcedPop CompletionReason = "forced-pop"
)

// CompletionState is the memory shape recording that a block finished,
// when, and why. The first writer wins: once Complete is set the state
// never changes again.
type CompletionState struct {
	Complete    bool
	Reason      CompletionReason
	CompletedAt time.Time
}

// Clone implements Value.
func (c CompletionState) Clone() Value {
	return c
}

func (CompletionState) memoryValue() {}

// DisplayState is the memory shape a UI reads to render the block: a label,
// an optional detail line, and the fragments to show.
type DisplayState struct {
	Label     string
	Detail    string
	Fragments []Fragment
}

// Clone implements Value.
func (d DisplayState) Clone() Value {
	return DisplayState{
		Label:     d.Label,
		Detail:    d.Detail,
		Fragments: CloneFragments(d.Fragments),
	}
}

func (DisplayState) memoryValue() {}

// ControlsState is the memory shape a UI reads to decide which controls to
// offer for the current block.
type ControlsState struct {
	Pausable    bool
	Resumable   bool
	Advanceable bool
	Stoppable   bool
}

// Clone implements Value.
func (c ControlsState) Clone() Value {
	return c
}

func (ControlsState) memoryValue() {}
