package runtime

import (
	"time"

	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/memory"
)

// BlockState is a block's lifecycle position. Transitions are strictly
// ordered: Unmounted → Mounted → Unmounting → Disposed. Advancing is not a
// stored state; it is a transient pass through the mounted block's hooks.
type BlockState string

const (
	StateUnmounted  BlockState = "unmounted"
	StateMounted    BlockState = "mounted"
	StateUnmounting BlockState = "unmounting"
	StateDisposed   BlockState = "disposed"
)

// String returns the string representation of the BlockState.
func (s BlockState) String() string {
	return string(s)
}

// BlockConfig configures a Block.
type BlockConfig struct {
	// Key identifies the instance. Generated when empty.
	Key core.BlockKey

	// Statement is the compiled statement this block executes.
	Statement core.StatementID

	// Label is a short human-readable name for logs and notifications.
	Label string

	// Fragments is the parser-supplied display content.
	Fragments []core.Fragment

	// Behaviors is the ordered behavior composition. Order matters: hooks
	// run in attachment order.
	Behaviors []Behavior
}

// Block is one live execution unit on the stack: a fully configured
// statement instance plus its private reactive memory. Blocks are created
// by the composition layer before entering the engine and are single-use;
// a loop that repeats a statement builds a fresh block each round.
type Block struct {
	key       core.BlockKey
	statement core.StatementID
	label     string
	fragments []core.Fragment
	behaviors []Behavior

	state     BlockState
	startedAt time.Time
	mem       *memory.Table

	// cleanups are the event-bus unsubscribe functions registered through
	// this block's contexts, released centrally at dispose.
	cleanups []func()

	// popQueued keeps the orchestrator from enqueuing a second pop for a
	// block whose completion has already been observed.
	popQueued bool
}

// NewBlock builds a block from cfg.
func NewBlock(cfg BlockConfig) *Block {
	key := cfg.Key
	if key == "" {
		key = core.NewBlockKey()
	}
	b := &Block{
		key:       key,
		statement: cfg.Statement,
		label:     cfg.Label,
		fragments: core.CloneFragments(cfg.Fragments),
		behaviors: make([]Behavior, len(cfg.Behaviors)),
		state:     StateUnmounted,
	}
	copy(b.behaviors, cfg.Behaviors)
	b.mem = memory.NewTable(key)
	return b
}

// Key returns the block's unique instance key.
func (b *Block) Key() core.BlockKey {
	return b.key
}

// Statement returns the compiled statement the block executes.
func (b *Block) Statement() core.StatementID {
	return b.statement
}

// Label returns the block's display name.
func (b *Block) Label() string {
	return b.label
}

// State returns the block's lifecycle state.
func (b *Block) State() BlockState {
	return b.state
}

// StartedAt returns the mount instant on the lifecycle clock, zero before
// mount.
func (b *Block) StartedAt() time.Time {
	return b.startedAt
}

// SourceFragments returns a copy of the parser-supplied fragments.
func (b *Block) SourceFragments() []core.Fragment {
	return core.CloneFragments(b.fragments)
}

// Memory returns the block's memory table. Other blocks must treat it as
// read-only; cross-block state flows through copy-on-push inheritance, not
// shared writes.
func (b *Block) Memory() *memory.Table {
	return b.mem
}

// Completion returns the block's completion state, reporting false when the
// completion cell does not exist yet.
func (b *Block) Completion() (core.CompletionState, bool) {
	return memory.Read[core.CompletionState](b.mem, core.MemoryCompletion)
}

// Completed reports whether the block has a completion on record.
func (b *Block) Completed() bool {
	cs, ok := b.Completion()
	return ok && cs.Complete
}

func (b *Block) markMounted(at time.Time) {
	b.state = StateMounted
	b.startedAt = at
}

func (b *Block) markUnmounting() {
	b.state = StateUnmounting
}

// addCleanup records an unsubscribe function for central release at
// dispose.
func (b *Block) addCleanup(fn func()) {
	if fn != nil {
		b.cleanups = append(b.cleanups, fn)
	}
}

// dispose releases the block's event subscriptions, then disposes its
// memory table (sending each cell's terminal notification), then marks the
// block disposed. It is idempotent.
func (b *Block) dispose() {
	if b.state == StateDisposed {
		return
	}
	for _, fn := range b.cleanups {
		fn()
	}
	b.cleanups = nil
	b.mem.Dispose()
	b.state = StateDisposed
}
