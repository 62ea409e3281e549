// Package runtime is the execution engine for compiled workout programs.
//
// The engine is a stack machine driven by a FIFO action queue. Blocks are
// pushed, advanced, and popped; behaviors attached to each block react to
// lifecycle hooks and dispatched events by returning further actions, which
// the drain loop executes to a fixed point. Time enters through an injected
// clock, and every pop-triggered cascade runs under one frozen snapshot of
// it so that a chain of unmounts, advances, and mounts shares a single
// completion instant.
//
// The engine is single-threaded and cooperative. All entry points must be
// called from one goroutine; tick sources and UIs funnel their input into
// that goroutine, typically through a channel. Within it, nothing blocks:
// long-running work belongs downstream of the notification stream.
package runtime

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pace-labs/wodflow/clock"
	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/events"
	"github.com/pace-labs/wodflow/memory"
)

// BlockFactory builds fresh block instances for statement references in
// push actions. Implementations return ErrStatementNotFound (possibly
// wrapped) for unknown statements; the engine logs the lookup failure and
// skips the push.
type BlockFactory interface {
	Build(id core.StatementID) (*Block, error)
}

// GracePolicy says what happens to blocks stacked above a pop target: a
// parent whose countdown expires while a child is still executing ends the
// child by policy.
type GracePolicy string

const (
	// GraceNone force-pops buried blocks immediately. The default, and
	// the same semantics as cancellation.
	GraceNone GracePolicy = "none"

	// GraceAdvance gives each buried block one synchronous advance under
	// the cascade clock before its forced pop, so a final rep or partial
	// round can be recorded. Actions returned by that advance are
	// discarded; a dying block does not get to schedule new work.
	GraceAdvance GracePolicy = "advance"
)

// Config configures a Runtime.
type Config struct {
	// RunID identifies the run in notifications and stores. Generated
	// when empty.
	RunID string

	// Clock is the engine's time source. Default: clock.System().
	Clock clock.Clock

	// Logger receives all engine diagnostics. Default: slog.Default().
	Logger *slog.Logger

	// Factory resolves statement references in push actions. Optional;
	// without it only concrete block pushes work.
	Factory BlockFactory

	// Grace picks the policy for blocks buried above a pop target.
	// Default: GraceNone.
	Grace GracePolicy

	// Handler receives the run's notification stream. Optional.
	Handler NotificationHandler
}

// Runtime orchestrates one run: one stack, one action queue, one output
// log. A Runtime executes exactly one run and is not reusable afterwards.
type Runtime struct {
	runID   string
	clk     clock.Clock
	logger  *slog.Logger
	factory BlockFactory
	grace   GracePolicy
	handler NotificationHandler

	stack *Stack
	bus   *eventBus
	log   *OutputLog

	queue    []Action
	draining bool
	// snapshot is non-nil while a pop cascade is in flight; it freezes the
	// cascade's completion instant until the queue fully drains.
	snapshot clock.Clock

	seq        *seqGen
	started    bool
	finished   bool
	cancelling bool
}

// New builds a Runtime from cfg, applying defaults.
func New(cfg Config) *Runtime {
	runID := cfg.RunID
	if runID == "" {
		runID = generateRunID()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	grace := cfg.Grace
	if grace == "" {
		grace = GraceNone
	}
	return &Runtime{
		runID:   runID,
		clk:     clk,
		logger:  logger,
		factory: cfg.Factory,
		grace:   grace,
		handler: cfg.Handler,
		stack:   NewStack(),
		bus:     newEventBus(),
		log:     NewOutputLog(),
		seq:     newSeqGen(),
	}
}

func generateRunID() string {
	return "run-" + uuid.New().String()
}

// RunID returns the run's identifier.
func (r *Runtime) RunID() string {
	return r.runID
}

// Stack returns the execution stack for observation.
func (r *Runtime) Stack() *Stack {
	return r.stack
}

// Outputs returns the run's output log.
func (r *Runtime) Outputs() *OutputLog {
	return r.log
}

// Finished reports whether the run has ended.
func (r *Runtime) Finished() bool {
	return r.finished
}

// Start begins the run by pushing the root block and draining the resulting
// cascade. A Runtime runs exactly once.
func (r *Runtime) Start(root *Block) error {
	if root == nil {
		return ErrNilBlock
	}
	if r.finished {
		return ErrRunFinished
	}
	if r.started {
		return ErrRunActive
	}
	r.started = true
	r.notify(NewNotification(NotificationRunStarted, r.runID).
		WithBlock(root).
		WithPayload("label", root.Label()))
	r.enqueue(PushBlock(root))
	r.drain()
	return nil
}

// Dispatch feeds an event into the engine: ticks, control presses, external
// coordination. If a cascade is draining the event queues behind it; events
// never preempt in-flight work.
func (r *Runtime) Dispatch(e events.Event) {
	if e.Time.IsZero() {
		e.Time = r.clk.Now()
	}
	r.enqueue(EmitEvent(e))
	r.drain()
}

// Tick dispatches a global tick stamped at the given instant.
func (r *Runtime) Tick(at time.Time) {
	r.Dispatch(events.NewTick(at))
}

// AdvanceCurrent advances the top block, as when the athlete taps past a
// non-timed segment.
func (r *Runtime) AdvanceCurrent() {
	r.enqueue(Advance())
	r.drain()
}

// PopCurrent completes and pops the top block with the given reason.
func (r *Runtime) PopCurrent(reason core.CompletionReason) {
	r.enqueue(Pop(reason))
	r.drain()
}

// Cancel force-pops every block, bottom of the stack last, with reason
// forced-pop. No parent advances run and no queued pushes survive; the run
// finishes immediately.
func (r *Runtime) Cancel() {
	blocks := r.stack.Blocks()
	if len(blocks) == 0 {
		if r.started && !r.finished {
			r.finishRun()
		}
		return
	}
	r.cancelling = true
	defer func() { r.cancelling = false }()
	// Popping the bottom block forces everything above it out first.
	r.enqueue(PopBlock(blocks[0], core.ReasonForcedPop))
	r.drain()
}

// enqueue appends an action to the FIFO queue. Nothing executes here; the
// drain loop is the only executor.
func (r *Runtime) enqueue(a Action) {
	r.queue = append(r.queue, a)
}

func (r *Runtime) enqueueAll(acts []Action) {
	for _, a := range acts {
		r.enqueue(a)
	}
}

// drain executes queued actions in order until none remain. Re-entrant
// calls return immediately: whatever enqueued during execution is picked up
// by the outer loop. The cascade snapshot, if one was installed, is
// released when the queue empties.
func (r *Runtime) drain() {
	if r.draining {
		return
	}
	r.draining = true
	defer func() {
		r.draining = false
		r.snapshot = nil
	}()

	for len(r.queue) > 0 {
		a := r.queue[0]
		r.queue = r.queue[1:]
		r.execute(a)
	}

	if r.started && !r.finished && r.stack.Depth() == 0 {
		r.finishRun()
	}
}

// effective returns the clock actions run on right now: the cascade
// snapshot when one is in flight, the real clock otherwise.
func (r *Runtime) effective() clock.Clock {
	if r.snapshot != nil {
		return r.snapshot
	}
	return r.clk
}

func (r *Runtime) execute(a Action) {
	switch a.Kind {
	case ActionPush:
		r.executePush(a)
	case ActionAdvance:
		r.executeAdvance(a)
	case ActionPop:
		r.executePop(a)
	case ActionEmit:
		if a.Event != nil {
			r.deliver(*a.Event)
		}
	default:
		r.misuse("unknown action kind", slog.String("kind", string(a.Kind)))
	}
}

func (r *Runtime) executePush(a Action) {
	if r.cancelling {
		r.logger.Debug("push dropped during cancel", slog.String("run_id", r.runID))
		return
	}
	b := a.Block
	if b == nil && a.HasStatement {
		if r.factory == nil {
			r.lookupFailure(a.Statement, fmt.Errorf("no block factory configured"))
			return
		}
		built, err := r.factory.Build(a.Statement)
		if err != nil {
			r.lookupFailure(a.Statement, err)
			return
		}
		b = built
	}
	if b == nil {
		r.misuse("push without block or statement")
		return
	}
	clk := a.Clock
	if clk == nil {
		clk = r.effective()
	}
	if b.State() != StateUnmounted {
		r.misuse("push of block not in unmounted state",
			slog.String("block", b.key.String()),
			slog.String("state", b.state.String()))
		return
	}
	if err := r.stack.Push(b); err != nil {
		r.misuse("push rejected",
			slog.String("block", b.key.String()),
			slog.String("error", err.Error()))
		return
	}
	r.notify(NewNotification(NotificationBlockPushed, r.runID).
		WithBlock(b).
		WithDepth(r.stack.Depth()).
		At(clk.Now()))

	b.markMounted(clk.Now())
	acts := r.runHooks(b, clk, hookMount)
	r.finishBundle(b, acts)
}

func (r *Runtime) executeAdvance(a Action) {
	b := a.Block
	if b == nil {
		b = r.stack.Current()
	}
	if b == nil {
		r.misuse("advance on empty stack")
		return
	}
	if !r.stack.Contains(b) {
		r.logger.Debug("advance target no longer on stack",
			slog.String("run_id", r.runID),
			slog.String("block", b.key.String()))
		return
	}
	clk := a.Clock
	if clk == nil {
		clk = r.effective()
	}
	r.advanceBlock(b, clk, false)
}

// advanceBlock runs b's advance hooks. With discard set the returned
// actions are dropped, which is how grace advances keep dying blocks from
// scheduling new work.
func (r *Runtime) advanceBlock(b *Block, clk clock.Clock, discard bool) {
	if b.State() != StateMounted {
		r.misuse("advance of block not in mounted state",
			slog.String("block", b.key.String()),
			slog.String("state", b.state.String()))
		return
	}
	r.notify(NewNotification(NotificationBlockAdvanced, r.runID).
		WithBlock(b).
		WithDepth(r.stack.Depth()).
		At(clk.Now()))
	acts := r.runHooks(b, clk, hookAdvance)
	if discard {
		if len(acts) > 0 {
			r.logger.Debug("grace advance actions discarded",
				slog.String("run_id", r.runID),
				slog.String("block", b.key.String()),
				slog.Int("count", len(acts)))
		}
		r.reapCompletion(b)
		return
	}
	r.finishBundle(b, acts)
}

func (r *Runtime) executePop(a Action) {
	b := a.Block
	if b == nil {
		b = r.stack.Current()
	}
	if b == nil {
		r.misuse("pop on empty stack")
		return
	}
	if !r.stack.Contains(b) {
		r.logger.Debug("pop target no longer on stack",
			slog.String("run_id", r.runID),
			slog.String("block", b.key.String()))
		return
	}

	// A pop starts a cascade: pin one completion instant for everything
	// that follows in this drain. A nested pop keeps the outer snapshot.
	if r.snapshot == nil {
		at := r.cascadeInstant(a, b)
		r.snapshot = clock.Snapshot(r.clk, at)
	}
	clk := r.effective()

	// Anything stacked above the target goes first, top down.
	for r.stack.Current() != b {
		top := r.stack.Current()
		if top == nil {
			return
		}
		if r.grace == GraceAdvance && !r.cancelling {
			r.advanceBlock(top, clk, true)
		}
		r.finishPop(top, clk, core.ReasonForcedPop)
	}

	reason := a.Reason
	if reason == "" {
		reason = core.ReasonForcedPop
	}
	r.finishPop(b, clk, reason)

	if r.cancelling {
		return
	}
	if parent := r.stack.Current(); parent != nil {
		r.enqueue(AdvanceBlock(parent))
	}
}

// cascadeInstant picks the single instant a pop cascade runs at: the
// target's recorded completion when it has one, the action's pinned clock
// when it carries one, the real clock otherwise.
func (r *Runtime) cascadeInstant(a Action, b *Block) time.Time {
	if cs, ok := b.Completion(); ok && cs.Complete && !cs.CompletedAt.IsZero() {
		return cs.CompletedAt
	}
	if a.Clock != nil {
		return a.Clock.Now()
	}
	return r.clk.Now()
}

// finishPop completes (when nothing completed the block earlier), unmounts,
// pops, and disposes b. The block must be the current top.
func (r *Runtime) finishPop(b *Block, clk clock.Clock, fallback core.CompletionReason) {
	if !b.Completed() {
		r.completeBlock(b, fallback, clk.Now())
	}

	if b.State() == StateMounted {
		b.markUnmounting()
		acts := r.runHooks(b, clk, hookUnmount)
		r.enqueueAll(acts)
	} else {
		r.misuse("unmount of block not in mounted state",
			slog.String("block", b.key.String()),
			slog.String("state", b.state.String()))
	}

	if _, err := r.stack.Pop(); err != nil {
		r.misuse("pop rejected", slog.String("error", err.Error()))
		return
	}
	cs, _ := b.Completion()
	r.notify(NewNotification(NotificationBlockPopped, r.runID).
		WithBlock(b).
		WithDepth(r.stack.Depth()).
		WithPayload("reason", string(cs.Reason)).
		At(clk.Now()))

	b.dispose()

	// Announce the completion on the bus for whoever coordinates on it:
	// sound cues, sibling timers. The block's own subscriptions are gone
	// by now, so it never hears its own obituary.
	r.enqueue(EmitEvent(events.New(events.BlockComplete, events.ScopeGlobal).
		WithBlock(b.key).
		WithPayload("reason", string(cs.Reason)).
		At(clk.Now())))
}

// completeBlock records b's completion, creating the completion cell on
// first use. The first writer wins: a second completion attempt is logged
// at debug and dropped.
func (r *Runtime) completeBlock(b *Block, reason core.CompletionReason, at time.Time) bool {
	cell, ok := b.mem.Cell(core.MemoryCompletion)
	if !ok {
		created, err := b.mem.Create(core.MemoryCompletion, core.CompletionState{})
		if err != nil {
			r.misuse("completion cell unavailable",
				slog.String("block", b.key.String()),
				slog.String("error", err.Error()))
			return false
		}
		cell = created
	}
	if cur, ok := memory.Read[core.CompletionState](b.mem, core.MemoryCompletion); ok && cur.Complete {
		r.logger.Debug("completion conflict ignored",
			slog.String("run_id", r.runID),
			slog.String("block", b.key.String()),
			slog.String("kept", string(cur.Reason)),
			slog.String("dropped", string(reason)))
		return false
	}
	if err := cell.Set(core.CompletionState{Complete: true, Reason: reason, CompletedAt: at}); err != nil {
		r.misuse("completion write rejected",
			slog.String("block", b.key.String()),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// deliver dispatches one event to its subscribers under scope rules:
// active events reach only the top block's subscriptions, global events
// reach everyone. Listener results go through the same bundle handling as
// lifecycle hooks.
func (r *Runtime) deliver(e events.Event) {
	clk := r.effective()
	top := r.stack.Current()

	if e.Name == events.Tick {
		r.tickProgress(top, e)
	} else {
		r.notify(NewNotification(NotificationEventEmitted, r.runID).
			WithPayload("event", e.Name).
			WithPayload("scope", string(e.Scope)).
			At(clk.Now()))
	}

	for _, s := range r.bus.matching(e.Name) {
		if e.Scope == events.ScopeActive && s.block != top {
			continue
		}
		if s.block.State() != StateMounted {
			continue
		}
		ctx := newContext(r, s.block, clk)
		acts := r.invokeListener(ctx, s, e)
		r.finishBundle(s.block, acts)
	}
}

// tickProgress reports timer progress for the top block, when it has a
// timer. This is the high-frequency notification; the engine itself does
// not throttle it.
func (r *Runtime) tickProgress(top *Block, e events.Event) {
	if top == nil {
		return
	}
	ts, ok := memory.Read[core.TimerState](top.mem, core.MemoryTimer)
	if !ok {
		return
	}
	n := NewNotification(NotificationTimerProgress, r.runID).
		WithBlock(top).
		WithDepth(r.stack.Depth()).
		WithPayload("elapsed_ms", ts.Elapsed(e.Time).Milliseconds()).
		At(e.Time)
	if rem, ok := ts.Remaining(e.Time); ok {
		n = n.WithPayload("remaining_ms", rem.Milliseconds())
	}
	r.notify(n)
}

type hookKind string

const (
	hookMount   hookKind = "mount"
	hookAdvance hookKind = "advance"
	hookUnmount hookKind = "unmount"
)

// runHooks invokes one lifecycle hook on every behavior of b in attachment
// order, aggregating the returned actions. Each invocation is isolated at
// this boundary: a panicking behavior is logged as a fault and the rest
// still run.
func (r *Runtime) runHooks(b *Block, clk clock.Clock, hook hookKind) []Action {
	ctx := newContext(r, b, clk)
	var acts []Action
	for _, bh := range b.behaviors {
		acts = append(acts, r.invokeHook(ctx, bh, hook)...)
	}
	return acts
}

func (r *Runtime) invokeHook(ctx *Context, bh Behavior, hook hookKind) (acts []Action) {
	defer func() {
		if rec := recover(); rec != nil {
			r.fault(ctx.block, bh.Kind(), string(hook), rec)
			acts = nil
		}
	}()
	ctx.behavior = bh.Kind()
	switch hook {
	case hookMount:
		return bh.OnMount(ctx)
	case hookAdvance:
		return bh.OnAdvance(ctx)
	case hookUnmount:
		return bh.OnUnmount(ctx)
	}
	return nil
}

func (r *Runtime) invokeListener(ctx *Context, s *busSub, e events.Event) (acts []Action) {
	defer func() {
		if rec := recover(); rec != nil {
			r.fault(ctx.block, s.owner, "listener:"+e.Name, rec)
			acts = nil
		}
	}()
	ctx.behavior = s.owner
	return s.fn(ctx, e)
}

// finishBundle closes out one invocation bundle on b: if the block came out
// of it completed, its returned actions are discarded (a finished block
// does not start new work) and its pop is scheduled exactly once.
func (r *Runtime) finishBundle(b *Block, acts []Action) {
	if b.Completed() {
		if len(acts) > 0 {
			r.logger.Debug("actions from completed block discarded",
				slog.String("run_id", r.runID),
				slog.String("block", b.key.String()),
				slog.Int("count", len(acts)))
		}
	} else {
		r.enqueueAll(acts)
	}
	r.reapCompletion(b)
}

// reapCompletion schedules the pop for a block whose completion is on
// record. Completion is observed here, centrally, so no behavior has to
// pop and no block pops twice.
func (r *Runtime) reapCompletion(b *Block) {
	if !b.Completed() || b.popQueued || !r.stack.Contains(b) {
		return
	}
	b.popQueued = true
	cs, _ := b.Completion()
	r.enqueue(PopBlock(b, cs.Reason))
}

// appendOutput stamps and stores one output statement and notifies the
// stream.
func (r *Runtime) appendOutput(b *Block, typ core.OutputType, fragments []core.Fragment, window core.TimeSpan, clk clock.Clock) core.OutputStatement {
	now := clk.Now()
	if window.Start.IsZero() {
		window.Start = now
	}
	stmt := core.OutputStatement{
		Type:      typ,
		Block:     b.key,
		Statement: b.statement,
		Depth:     r.stack.Position(b),
		Window:    window,
		Fragments: core.CloneFragments(fragments),
		Time:      now,
	}
	stored := r.log.Append(stmt)
	r.notify(NewNotification(NotificationOutputEmitted, r.runID).
		WithBlock(b).
		WithDepth(stored.Depth).
		WithPayload("type", string(stored.Type)).
		WithPayload("statement", stored).
		At(now))
	return stored
}

func (r *Runtime) finishRun() {
	r.finished = true
	r.notify(NewNotification(NotificationRunFinished, r.runID).
		WithPayload("outputs", r.log.Len()))
}

// notify stamps sequence and time and hands the notification to the
// configured handler.
func (r *Runtime) notify(n Notification) {
	if r.handler == nil {
		return
	}
	n.Seq = r.seq.Next()
	if n.Time.IsZero() {
		n.Time = r.effective().Now()
	}
	r.handler(n)
}

// misuse logs a protocol misuse: a lifecycle or memory operation out of
// order. The operation itself has already been dropped.
func (r *Runtime) misuse(msg string, attrs ...any) {
	args := append([]any{slog.String("run_id", r.runID)}, attrs...)
	r.logger.Error("protocol misuse: "+msg, args...)
}

// lookupFailure logs a push whose statement could not be resolved. The
// push is skipped and the cascade continues.
func (r *Runtime) lookupFailure(id core.StatementID, err error) {
	r.logger.Warn("statement lookup failed",
		slog.String("run_id", r.runID),
		slog.Int("statement", int(id)),
		slog.String("error", err.Error()))
}

// fault logs a recovered panic from a behavior hook or listener.
func (r *Runtime) fault(b *Block, kind BehaviorKind, where string, rec any) {
	r.logger.Error("behavior fault",
		slog.String("run_id", r.runID),
		slog.String("block", b.key.String()),
		slog.String("behavior", kind.String()),
		slog.String("hook", where),
		slog.Any("panic", rec))
}
