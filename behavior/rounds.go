package behavior

import (
	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/events"
	"github.com/pace-labs/wodflow/runtime"
)

// RoundsConfig configures a Rounds behavior.
type RoundsConfig struct {
	// Total is the number of rounds. Zero means unbounded: the loop keeps
	// counting until a timer or a forced pop ends the block.
	Total int

	// Children are the statements executed each round, in order. A loop
	// without children treats every advance as a completed round.
	Children []core.StatementID
}

// Rounds drives a round loop. The rounds cell tracks the 1-based iteration
// and the cursor of the next child; each wrap past the last child counts a
// round, announces it with a milestone output, and either starts the next
// round or completes the block.
type Rounds struct {
	total    int
	children []core.StatementID
}

var _ runtime.Behavior = (*Rounds)(nil)

// NewRounds builds a Rounds from cfg. Negative totals are treated as
// unbounded.
func NewRounds(cfg RoundsConfig) *Rounds {
	r := &Rounds{total: cfg.Total}
	if cfg.Total < 0 {
		r.total = 0
	}
	if len(cfg.Children) > 0 {
		r.children = append([]core.StatementID(nil), cfg.Children...)
	}
	return r
}

// Kind implements runtime.Behavior.
func (r *Rounds) Kind() runtime.BehaviorKind { return KindRounds }

// OnMount creates the rounds cell at iteration 1 and pushes the first
// child when the loop has children.
func (r *Rounds) OnMount(ctx *runtime.Context) []runtime.Action {
	state := core.RoundState{Iteration: 1, Total: r.total}
	if len(r.children) > 0 {
		state.Position = 1
	}
	if err := ctx.CreateMemory(core.MemoryRounds, state); err != nil {
		return nil
	}
	if len(r.children) == 0 {
		return nil
	}
	return []runtime.Action{runtime.PushStatement(r.children[0])}
}

// OnAdvance moves the cursor: the next child within the round, or across
// the round boundary.
func (r *Rounds) OnAdvance(ctx *runtime.Context) []runtime.Action {
	v, ok := ctx.Memory(core.MemoryRounds)
	if !ok {
		return nil
	}
	state, ok := v.(core.RoundState)
	if !ok {
		return nil
	}

	// More children left in the current round.
	if state.Position < len(r.children) {
		next := r.children[state.Position]
		state.Position++
		ctx.SetMemory(core.MemoryRounds, state)
		return []runtime.Action{runtime.PushStatement(next)}
	}

	// Round boundary.
	if state.Bounded() && state.Iteration >= state.Total {
		ctx.MarkComplete(core.ReasonRoundsComplete)
		return nil
	}
	state.Iteration++
	state.Position = 0
	ctx.Emit(events.New(events.RoundAdvance, events.ScopeGlobal).
		WithPayload("iteration", state.Iteration))
	ctx.EmitOutput(core.OutputMilestone, []core.Fragment{{
		Type:   core.FragmentLap,
		Value:  state.Format(),
		Origin: core.OriginRuntime,
	}}, core.TimeSpan{})

	if len(r.children) > 0 {
		state.Position = 1
		ctx.SetMemory(core.MemoryRounds, state)
		return []runtime.Action{runtime.PushStatement(r.children[0])}
	}
	ctx.SetMemory(core.MemoryRounds, state)
	return nil
}

// OnUnmount implements runtime.Behavior.
func (r *Rounds) OnUnmount(*runtime.Context) []runtime.Action { return nil }
