// Package events defines the coordination events that flow through the
// execution engine.
//
// Events are how blocks and the outside world talk to the engine without
// touching each other's state: ticks from a clock source, control presses
// from a UI, and announcements between behaviors all travel as the same
// value type through one dispatch pipeline.
package events

import (
	"time"

	"github.com/pace-labs/wodflow/core"
)

// Scope controls which subscriptions an event can reach.
type Scope string

const (
	// ScopeActive delivers only to subscriptions owned by the block
	// currently on top of the stack. Control presses are active: they
	// always mean the block the athlete is looking at.
	ScopeActive Scope = "active"

	// ScopeGlobal delivers to every current subscription regardless of
	// stack position. Ticks are global: a parent timer keeps counting
	// while its children execute.
	ScopeGlobal Scope = "global"
)

// Well-known event names. The set is open; behaviors may subscribe to and
// emit names of their own.
const (
	// Tick is the periodic pulse from the tick source.
	Tick = "tick"

	// ControlAdvance is the athlete advancing past the current block.
	ControlAdvance = "control:advance"

	// ControlPause is the athlete pausing the current block's timer.
	ControlPause = "control:pause"

	// ControlResume is the athlete resuming a paused timer.
	ControlResume = "control:resume"

	// TimerStarted announces that a block's timer opened its first span.
	TimerStarted = "timer:started"

	// TimerComplete announces that a countdown reached its target.
	TimerComplete = "timer:complete"

	// RoundAdvance announces that a round loop moved to its next round.
	RoundAdvance = "round:advance"

	// BlockComplete announces that a block finished and left the stack.
	// Emitted by the engine itself; the payload carries the completion
	// reason. Sound cues and other external reactions key off this.
	BlockComplete = "block:complete"
)

// Event is one named occurrence dispatched through the engine.
type Event struct {
	// Name identifies what happened.
	Name string

	// Scope controls delivery: active or global.
	Scope Scope

	// Time is when the event occurred on the emitting clock.
	Time time.Time

	// Block is the emitting block, empty for external events such as
	// ticks and control presses.
	Block core.BlockKey

	// Payload carries event-specific data. Keep it small.
	Payload map[string]any
}

// New creates an event with the given name and scope.
func New(name string, scope Scope) Event {
	return Event{Name: name, Scope: scope}
}

// NewTick creates a global tick event stamped at the given instant.
func NewTick(at time.Time) Event {
	return Event{Name: Tick, Scope: ScopeGlobal, Time: at}
}

// At sets the event's timestamp.
func (e Event) At(t time.Time) Event {
	e.Time = t
	return e
}

// WithBlock sets the emitting block on the event.
func (e Event) WithBlock(key core.BlockKey) Event {
	e.Block = key
	return e
}

// WithPayload adds a key-value pair to the event payload.
func (e Event) WithPayload(key string, value any) Event {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
	return e
}
