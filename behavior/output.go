package behavior

import (
	"time"

	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/memory"
	"github.com/pace-labs/wodflow/runtime"
)

// Output is the single pipeline writer among the built-ins: one segment
// statement when the block mounts, exactly one completion statement when
// it unmounts. Keeping all consolidation in one behavior is what
// guarantees a block never produces two completion statements.
type Output struct{}

var _ runtime.Behavior = (*Output)(nil)

// NewOutput builds an Output.
func NewOutput() *Output { return &Output{} }

// Kind implements runtime.Behavior.
func (o *Output) Kind() runtime.BehaviorKind { return KindOutput }

// OnMount announces the segment: the block's fragments plus the round
// counter when one is in scope.
func (o *Output) OnMount(ctx *runtime.Context) []runtime.Action {
	frags := blockFragments(ctx)
	if rs, ok := roundsInScope(ctx); ok {
		frags = append(frags, core.Fragment{
			Type:   core.FragmentLap,
			Value:  rs.Format(),
			Origin: core.OriginRuntime,
		})
	}
	ctx.EmitOutput(core.OutputSegment, frags, core.TimeSpan{Start: ctx.Now()})
	return nil
}

// OnAdvance implements runtime.Behavior.
func (o *Output) OnAdvance(*runtime.Context) []runtime.Action { return nil }

// OnUnmount emits the completion statement: the source fragments merged
// with what the run measured. Elapsed time comes from the timer cell when
// one ran; the window spans mount to completion, and under a pop cascade
// the clock here is the completion instant itself.
func (o *Output) OnUnmount(ctx *runtime.Context) []runtime.Action {
	now := ctx.Now()
	frags := blockFragments(ctx)

	if ts, ok := timerState(ctx); ok {
		frags = append(frags, core.Fragment{
			Type:   core.FragmentTime,
			Value:  formatElapsed(ts.Elapsed(now)),
			Origin: core.OriginRuntime,
		})
	}
	if v, ok := ctx.Memory(core.MemoryRounds); ok {
		if rs, ok := v.(core.RoundState); ok {
			frags = append(frags, core.Fragment{
				Type:   core.FragmentRounds,
				Value:  rs.Format(),
				Origin: core.OriginRuntime,
			})
		}
	}
	if cs, ok := ctx.Block().Completion(); ok && cs.Complete {
		frags = append(frags, core.Fragment{
			Type:   core.FragmentAction,
			Value:  string(cs.Reason),
			Origin: core.OriginRuntime,
		})
	}
	ctx.EmitOutput(core.OutputCompletion, frags, core.TimeSpan{
		Start: ctx.Block().StartedAt(),
		Stop:  now,
	})
	return nil
}

// blockFragments returns the fragments to print for the block: the
// fragments cell when inheritance built one, the parser fragments
// otherwise.
func blockFragments(ctx *runtime.Context) []core.Fragment {
	if v, ok := ctx.Memory(core.MemoryFragments); ok {
		if fs, ok := v.(core.FragmentState); ok {
			return core.CloneFragments(fs.Fragments)
		}
	}
	return ctx.Block().SourceFragments()
}

// roundsInScope finds the round counter governing this block: its own
// rounds cell, or the parent's when the block is a child of a loop.
func roundsInScope(ctx *runtime.Context) (core.RoundState, bool) {
	if v, ok := ctx.Memory(core.MemoryRounds); ok {
		if rs, ok := v.(core.RoundState); ok {
			return rs, true
		}
	}
	if p := ctx.Parent(); p != nil {
		if rs, ok := memory.Read[core.RoundState](p.Memory(), core.MemoryRounds); ok {
			return rs, true
		}
	}
	return core.RoundState{}, false
}

// formatElapsed renders a duration for a time fragment.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Round(time.Millisecond).String()
}
