package behavior

import (
	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/events"
	"github.com/pace-labs/wodflow/runtime"
)

// AdvanceMode says what an advance press does to the block.
type AdvanceMode string

const (
	// AdvanceCompletes ends the block with reason user-advance. The right
	// mode for leaf segments: the pop hands control back to the parent.
	AdvanceCompletes AdvanceMode = "completes"

	// AdvanceSteps advances the block in place. The right mode for
	// childless round loops, where a press means "round done", not
	// "block done".
	AdvanceSteps AdvanceMode = "steps"
)

// ControlsConfig configures a Controls behavior.
type ControlsConfig struct {
	// State is the initial controls cell value. The zero value defaults to
	// pausable, advanceable, and stoppable.
	State core.ControlsState

	// Mode picks what an advance press does. Default AdvanceCompletes.
	Mode AdvanceMode
}

// Controls publishes which athlete controls apply to the block and wires
// the advance press. The press is an active-scope event, so only the top
// of the stack ever reacts to it.
type Controls struct {
	initial core.ControlsState
	mode    AdvanceMode
}

var _ runtime.Behavior = (*Controls)(nil)

// NewControls builds a Controls from cfg.
func NewControls(cfg ControlsConfig) *Controls {
	state := cfg.State
	if state == (core.ControlsState{}) {
		state = core.ControlsState{Pausable: true, Advanceable: true, Stoppable: true}
	}
	mode := cfg.Mode
	if mode == "" {
		mode = AdvanceCompletes
	}
	return &Controls{initial: state, mode: mode}
}

// Kind implements runtime.Behavior.
func (c *Controls) Kind() runtime.BehaviorKind { return KindControls }

// OnMount creates the controls cell and, for advanceable blocks, arms the
// advance press.
func (c *Controls) OnMount(ctx *runtime.Context) []runtime.Action {
	if err := ctx.CreateMemory(core.MemoryControls, c.initial); err != nil {
		return nil
	}
	if c.initial.Advanceable {
		ctx.Subscribe(events.ControlAdvance, c.onAdvancePress)
	}
	return nil
}

// OnAdvance implements runtime.Behavior.
func (c *Controls) OnAdvance(*runtime.Context) []runtime.Action { return nil }

// OnUnmount implements runtime.Behavior.
func (c *Controls) OnUnmount(*runtime.Context) []runtime.Action { return nil }

func (c *Controls) onAdvancePress(ctx *runtime.Context, _ events.Event) []runtime.Action {
	if c.mode == AdvanceSteps {
		return []runtime.Action{runtime.AdvanceBlock(ctx.Block())}
	}
	ctx.MarkComplete(core.ReasonUserAdvance)
	return nil
}
