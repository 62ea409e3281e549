package runtime

import "github.com/pace-labs/wodflow/events"

// BehaviorKind identifies a behavior implementation. The closed set of
// kinds lives in the behavior package's registry; the engine itself treats
// kinds as opaque labels for logging and fault attribution.
type BehaviorKind string

// String returns the string representation of the BehaviorKind.
func (k BehaviorKind) String() string {
	return string(k)
}

// Behavior is one composable unit of block semantics: a timer, a round
// counter, an output emitter. Blocks hold an ordered list of behaviors and
// the engine invokes each hook in attachment order.
//
// Behaviors are stateless: configuration is frozen at compile time and all
// mutable state lives in the block's memory cells. A behavior must never
// retain the Context it is handed; each invocation gets a fresh one bound
// to the clock of the moment.
//
// Hooks return Actions describing follow-up work. Returned actions are
// enqueued on the engine's FIFO queue, never executed inline.
type Behavior interface {
	// Kind labels the behavior for registries and diagnostics.
	Kind() BehaviorKind

	// OnMount runs when the owning block is pushed. This is the only
	// place a behavior may create memory cells.
	OnMount(ctx *Context) []Action

	// OnAdvance runs when the owning block advances, usually because a
	// child finished or the athlete moved on.
	OnAdvance(ctx *Context) []Action

	// OnUnmount runs while the owning block is leaving the stack, before
	// its memory is disposed.
	OnUnmount(ctx *Context) []Action
}

// EventListener handles one dispatched event for the subscribing block.
// It runs with a fresh Context bound to the dispatch-time clock and may
// return follow-up Actions, which are enqueued like hook results.
type EventListener func(ctx *Context, e events.Event) []Action
