package runtime

import (
	"log/slog"
	"time"

	"github.com/pace-labs/wodflow/clock"
	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/events"
	"github.com/pace-labs/wodflow/memory"
)

// Context is the capability surface a behavior works through during one
// invocation: its block's memory, the event bus, output emission, and the
// clock of the moment. During a pop cascade that clock is a snapshot, so
// every behavior in the cascade observes the same completion instant.
//
// Contexts are single-use. The engine builds a fresh one for every hook or
// listener invocation and behaviors must not retain them.
type Context struct {
	rt    *Runtime
	block *Block
	clk   clock.Clock

	// behavior is the kind currently executing, for fault attribution.
	behavior BehaviorKind
}

func newContext(rt *Runtime, block *Block, clk clock.Clock) *Context {
	return &Context{rt: rt, block: block, clk: clk}
}

// Clock returns the invocation's effective clock.
func (c *Context) Clock() clock.Clock {
	return c.clk
}

// Now returns the current instant on the invocation's effective clock.
func (c *Context) Now() time.Time {
	return c.clk.Now()
}

// Block returns the owning block.
func (c *Context) Block() *Block {
	return c.block
}

// Depth returns the owning block's 1-based stack position at this moment,
// 0 when the block is no longer on the stack.
func (c *Context) Depth() int {
	return c.rt.stack.Position(c.block)
}

// Parent returns the block directly beneath the owning block, derived from
// the stack at call time. It is nil for the root and for blocks no longer
// on the stack. Parents are read-only neighbors: state crosses blocks via
// copy-on-push inheritance, never via writes.
func (c *Context) Parent() *Block {
	pos := c.rt.stack.Position(c.block)
	if pos <= 1 {
		return nil
	}
	return c.rt.stack.Blocks()[pos-2]
}

// Logger returns the engine's diagnostic logger.
func (c *Context) Logger() *slog.Logger {
	return c.rt.logger
}

// CreateMemory adds a cell of the given kind to the owning block. Creating
// a kind twice is a protocol misuse: it is logged and the duplicate is
// dropped.
func (c *Context) CreateMemory(kind core.MemoryKind, initial core.Value) error {
	_, err := c.block.mem.Create(kind, initial)
	if err != nil {
		c.rt.misuse("memory create rejected",
			slog.String("block", c.block.key.String()),
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()))
	}
	return err
}

// Memory returns a copy of the value stored under kind on the owning block.
func (c *Context) Memory(kind core.MemoryKind) (core.Value, bool) {
	return c.block.mem.Get(kind)
}

// SetMemory replaces the value stored under kind on the owning block.
// Writing a kind that was never created, or writing after dispose, is a
// protocol misuse: logged, dropped.
func (c *Context) SetMemory(kind core.MemoryKind, v core.Value) error {
	err := c.block.mem.Set(kind, v)
	if err != nil {
		c.rt.misuse("memory write rejected",
			slog.String("block", c.block.key.String()),
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()))
	}
	return err
}

// SubscribeMemory registers a listener on the owning block's cell for kind
// and returns its unsubscribe function.
func (c *Context) SubscribeMemory(kind core.MemoryKind, fn memory.Listener) func() {
	cancel, err := c.block.mem.Subscribe(kind, fn)
	if err != nil {
		c.rt.misuse("memory subscribe rejected",
			slog.String("block", c.block.key.String()),
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()))
		return func() {}
	}
	return cancel
}

// Subscribe registers an event listener on behalf of the owning block. The
// subscription is released automatically when the block is disposed; the
// returned function releases it earlier.
func (c *Context) Subscribe(name string, fn EventListener) func() {
	cancel := c.rt.bus.subscribe(c.block, name, c.behavior, fn)
	c.block.addCleanup(cancel)
	return cancel
}

// Emit dispatches an event through the engine. Delivery is deferred: the
// event is enqueued behind whatever the drain loop is working through, so
// listeners never run inside the emitting hook. An unset timestamp is
// stamped with the context clock.
func (c *Context) Emit(e events.Event) {
	if e.Time.IsZero() {
		e.Time = c.Now()
	}
	if e.Block == "" {
		e.Block = c.block.key
	}
	c.rt.enqueue(EmitEvent(e))
}

// EmitOutput appends a statement to the run's output log, stamped with the
// owning block, the current depth, and the context clock. A zero window is
// recorded as the emission instant.
func (c *Context) EmitOutput(typ core.OutputType, fragments []core.Fragment, window core.TimeSpan) core.OutputStatement {
	return c.rt.appendOutput(c.block, typ, fragments, window, c.clk)
}

// MarkComplete records the block's completion at the context clock's
// current instant. The first completion wins; repeats are logged at debug
// and dropped. The orchestrator observes completion and schedules the pop;
// behaviors never pop their own block.
func (c *Context) MarkComplete(reason core.CompletionReason) bool {
	return c.rt.completeBlock(c.block, reason, c.Now())
}

// MarkCompleteAt is MarkComplete with an explicit instant, for completions
// whose true moment precedes the observation. A countdown that expires
// between ticks completes at its deadline, not at the tick that noticed.
func (c *Context) MarkCompleteAt(reason core.CompletionReason, at time.Time) bool {
	return c.rt.completeBlock(c.block, reason, at)
}
