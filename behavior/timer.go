package behavior

import (
	"time"

	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/events"
	"github.com/pace-labs/wodflow/runtime"
)

// TimerConfig configures a Timer.
type TimerConfig struct {
	// Direction picks stopwatch or countdown display semantics.
	Direction core.TimerDirection

	// Target is the countdown duration. Nil means open-ended.
	Target *time.Duration

	// Label names the timer for display.
	Label string
}

// Timer tracks a block's elapsed time as spans in the timer cell. Pause
// and resume presses close and reopen the span; the unmount hook closes
// whatever is open, so during a pop cascade the recorded total lands
// exactly on the completion instant. A timer whose target is zero is
// complete the moment it mounts.
//
// Timer never decides expiry of a running countdown; that is Expiry's job.
type Timer struct {
	direction core.TimerDirection
	target    *time.Duration
	label     string
}

var _ runtime.Behavior = (*Timer)(nil)

// NewTimer builds a Timer from cfg, defaulting the direction to counting
// up.
func NewTimer(cfg TimerConfig) *Timer {
	direction := cfg.Direction
	if direction == "" {
		direction = core.CountUp
	}
	t := &Timer{direction: direction, label: cfg.Label}
	if cfg.Target != nil {
		target := *cfg.Target
		t.target = &target
	}
	return t
}

// Kind implements runtime.Behavior.
func (t *Timer) Kind() runtime.BehaviorKind { return KindTimer }

// OnMount creates the timer cell with its first span open at the mount
// instant.
func (t *Timer) OnMount(ctx *runtime.Context) []runtime.Action {
	now := ctx.Now()
	state := core.TimerState{Direction: t.direction, Label: t.label}
	if t.target != nil {
		target := *t.target
		state.Target = &target
	}
	state.StartSpan(now)
	if err := ctx.CreateMemory(core.MemoryTimer, state); err != nil {
		return nil
	}
	ctx.Emit(events.New(events.TimerStarted, events.ScopeGlobal))

	// A zero target is legal and means the countdown is over as soon as it
	// starts. The test is on the duration's value; a nil target is the
	// open-ended case and never completes here.
	if t.target != nil && *t.target == 0 {
		ctx.MarkCompleteAt(core.ReasonTimerExpired, now)
		return nil
	}

	ctx.Subscribe(events.ControlPause, t.onPause)
	ctx.Subscribe(events.ControlResume, t.onResume)
	return nil
}

// OnAdvance implements runtime.Behavior. Advancing does not touch time.
func (t *Timer) OnAdvance(*runtime.Context) []runtime.Action { return nil }

// OnUnmount closes the open span at the lifecycle clock.
func (t *Timer) OnUnmount(ctx *runtime.Context) []runtime.Action {
	state, ok := timerState(ctx)
	if !ok {
		return nil
	}
	if state.CloseSpan(ctx.Now()) {
		ctx.SetMemory(core.MemoryTimer, state)
	}
	return nil
}

func (t *Timer) onPause(ctx *runtime.Context, _ events.Event) []runtime.Action {
	state, ok := timerState(ctx)
	if !ok || !state.CloseSpan(ctx.Now()) {
		return nil
	}
	ctx.SetMemory(core.MemoryTimer, state)
	setControls(ctx, func(cs *core.ControlsState) {
		cs.Pausable = false
		cs.Resumable = true
	})
	return nil
}

func (t *Timer) onResume(ctx *runtime.Context, _ events.Event) []runtime.Action {
	state, ok := timerState(ctx)
	if !ok || !state.StartSpan(ctx.Now()) {
		return nil
	}
	ctx.SetMemory(core.MemoryTimer, state)
	setControls(ctx, func(cs *core.ControlsState) {
		cs.Pausable = true
		cs.Resumable = false
	})
	return nil
}

// timerState reads the block's timer cell.
func timerState(ctx *runtime.Context) (core.TimerState, bool) {
	v, ok := ctx.Memory(core.MemoryTimer)
	if !ok {
		return core.TimerState{}, false
	}
	state, ok := v.(core.TimerState)
	return state, ok
}

// setControls applies a mutation to the controls cell when the block has
// one.
func setControls(ctx *runtime.Context, mutate func(*core.ControlsState)) {
	v, ok := ctx.Memory(core.MemoryControls)
	if !ok {
		return
	}
	state, ok := v.(core.ControlsState)
	if !ok {
		return
	}
	mutate(&state)
	ctx.SetMemory(core.MemoryControls, state)
}
