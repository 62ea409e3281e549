package runtime

import (
	"github.com/pace-labs/wodflow/clock"
	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/events"
)

// ActionKind identifies the type of a deferred command.
type ActionKind string

const (
	// ActionPush places a block on the stack and mounts it.
	ActionPush ActionKind = "push"

	// ActionPop completes, unmounts, pops, and disposes a block.
	ActionPop ActionKind = "pop"

	// ActionAdvance runs a mounted block's advance hooks.
	ActionAdvance ActionKind = "advance"

	// ActionEmit dispatches an event through the engine bus.
	ActionEmit ActionKind = "emit"
)

// Action is one deferred command on the engine's FIFO queue. Hooks and
// listeners describe follow-up work as Actions; the drain loop is the only
// thing that executes them.
type Action struct {
	Kind ActionKind

	// Block targets a concrete instance: the block to push, or the
	// pop/advance target. A nil target means the current top of stack.
	Block *Block

	// Statement references a block to build through the runtime's factory
	// when Block is nil. HasStatement distinguishes statement zero from an
	// unset reference.
	Statement    core.StatementID
	HasStatement bool

	// Clock optionally pins the instant the action executes at. When nil
	// the action runs on the engine's effective clock of the moment.
	Clock clock.Clock

	// Reason is the completion reason a pop applies when the target has
	// none on record.
	Reason core.CompletionReason

	// Event is the payload of an emit action.
	Event *events.Event
}

// PushBlock returns an action that pushes the given instance.
func PushBlock(b *Block) Action {
	return Action{Kind: ActionPush, Block: b}
}

// PushStatement returns an action that builds the statement through the
// runtime's factory and pushes the result.
func PushStatement(id core.StatementID) Action {
	return Action{Kind: ActionPush, Statement: id, HasStatement: true}
}

// Pop returns an action that pops the current top of stack.
func Pop(reason core.CompletionReason) Action {
	return Action{Kind: ActionPop, Reason: reason}
}

// PopBlock returns an action that pops the given block, force-completing
// anything stacked above it first.
func PopBlock(b *Block, reason core.CompletionReason) Action {
	return Action{Kind: ActionPop, Block: b, Reason: reason}
}

// Advance returns an action that advances the current top of stack.
func Advance() Action {
	return Action{Kind: ActionAdvance}
}

// AdvanceBlock returns an action that advances the given block.
func AdvanceBlock(b *Block) Action {
	return Action{Kind: ActionAdvance, Block: b}
}

// EmitEvent returns an action that dispatches e through the engine bus.
func EmitEvent(e events.Event) Action {
	return Action{Kind: ActionEmit, Event: &e}
}

// WithClock pins the action to the given clock.
func (a Action) WithClock(c clock.Clock) Action {
	a.Clock = c
	return a
}
