package behavior

import (
	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/runtime"
)

// DisplayConfig configures a Display behavior.
type DisplayConfig struct {
	// Label overrides the block's own label. Empty keeps the block's.
	Label string

	// Detail is the initial detail line.
	Detail string
}

// Display maintains the display cell a UI renders from. The detail line
// tracks the round counter while a loop is running.
type Display struct {
	label  string
	detail string
}

var _ runtime.Behavior = (*Display)(nil)

// NewDisplay builds a Display from cfg.
func NewDisplay(cfg DisplayConfig) *Display {
	return &Display{label: cfg.Label, detail: cfg.Detail}
}

// Kind implements runtime.Behavior.
func (d *Display) Kind() runtime.BehaviorKind { return KindDisplay }

// OnMount creates the display cell.
func (d *Display) OnMount(ctx *runtime.Context) []runtime.Action {
	label := d.label
	if label == "" {
		label = ctx.Block().Label()
	}
	detail := d.detail
	if rs, ok := roundsInScope(ctx); ok {
		detail = roundDetail(rs)
	}
	ctx.CreateMemory(core.MemoryDisplay, core.DisplayState{
		Label:     label,
		Detail:    detail,
		Fragments: blockFragments(ctx),
	})
	return nil
}

// OnAdvance refreshes the round counter on the detail line.
func (d *Display) OnAdvance(ctx *runtime.Context) []runtime.Action {
	v, ok := ctx.Memory(core.MemoryDisplay)
	if !ok {
		return nil
	}
	state, ok := v.(core.DisplayState)
	if !ok {
		return nil
	}
	rs, ok := roundsInScope(ctx)
	if !ok {
		return nil
	}
	state.Detail = roundDetail(rs)
	ctx.SetMemory(core.MemoryDisplay, state)
	return nil
}

// OnUnmount implements runtime.Behavior.
func (d *Display) OnUnmount(*runtime.Context) []runtime.Action { return nil }

func roundDetail(rs core.RoundState) string {
	return "round " + rs.Format()
}
