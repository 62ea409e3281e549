package behavior

import (
	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/memory"
	"github.com/pace-labs/wodflow/runtime"
)

// Inherit builds the block's fragments cell at mount: the parent's
// fragments cell value first, the block's own parser fragments after,
// origins untouched. The copy happens once, on push; the parent is read
// and never written, and no reference to it is kept. Chained through a
// program this gives every leaf the full context of its ancestors.
type Inherit struct{}

var _ runtime.Behavior = (*Inherit)(nil)

// NewInherit builds an Inherit.
func NewInherit() *Inherit { return &Inherit{} }

// Kind implements runtime.Behavior.
func (i *Inherit) Kind() runtime.BehaviorKind { return KindInherit }

// OnMount creates the fragments cell from parent plus own content.
func (i *Inherit) OnMount(ctx *runtime.Context) []runtime.Action {
	var frags []core.Fragment
	if p := ctx.Parent(); p != nil {
		if fs, ok := memory.Read[core.FragmentState](p.Memory(), core.MemoryFragments); ok {
			frags = append(frags, fs.Fragments...)
		}
	}
	frags = append(frags, ctx.Block().SourceFragments()...)
	ctx.CreateMemory(core.MemoryFragments, core.FragmentState{Fragments: frags})
	return nil
}

// OnAdvance implements runtime.Behavior.
func (i *Inherit) OnAdvance(*runtime.Context) []runtime.Action { return nil }

// OnUnmount implements runtime.Behavior.
func (i *Inherit) OnUnmount(*runtime.Context) []runtime.Action { return nil }
