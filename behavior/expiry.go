package behavior

import (
	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/events"
	"github.com/pace-labs/wodflow/runtime"
)

// Expiry watches ticks and completes the block the moment its countdown
// target is reached. Completion is recorded at the computed deadline, not
// at tick arrival, so tick cadence never skews the recorded time: the pop
// cascade runs at the deadline and whatever mounts next starts exactly
// there.
type Expiry struct{}

var _ runtime.Behavior = (*Expiry)(nil)

// NewExpiry builds an Expiry.
func NewExpiry() *Expiry { return &Expiry{} }

// Kind implements runtime.Behavior.
func (e *Expiry) Kind() runtime.BehaviorKind { return KindExpiry }

// OnMount subscribes to ticks.
func (e *Expiry) OnMount(ctx *runtime.Context) []runtime.Action {
	ctx.Subscribe(events.Tick, e.onTick)
	return nil
}

// OnAdvance implements runtime.Behavior.
func (e *Expiry) OnAdvance(*runtime.Context) []runtime.Action { return nil }

// OnUnmount implements runtime.Behavior.
func (e *Expiry) OnUnmount(*runtime.Context) []runtime.Action { return nil }

func (e *Expiry) onTick(ctx *runtime.Context, _ events.Event) []runtime.Action {
	state, ok := timerState(ctx)
	if !ok || state.Target == nil {
		return nil
	}
	now := ctx.Now()
	if state.Elapsed(now) < *state.Target {
		return nil
	}
	deadline, ok := state.Deadline()
	if !ok {
		// No open span to project from; the timer crossed its target while
		// paused. Settle for the tick instant.
		deadline = now
	}
	if ctx.MarkCompleteAt(core.ReasonTimerExpired, deadline) {
		ctx.Emit(events.New(events.TimerComplete, events.ScopeGlobal).At(deadline))
	}
	return nil
}
