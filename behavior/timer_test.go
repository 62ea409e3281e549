package behavior

import (
	"testing"
	"time"

	"github.com/pace-labs/wodflow/clock"
	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/events"
	"github.com/pace-labs/wodflow/memory"
	"github.com/pace-labs/wodflow/runtime"
)

func countdownBlock(label string, target time.Duration, id core.StatementID) *runtime.Block {
	return runtime.NewBlock(runtime.BlockConfig{
		Label:     label,
		Statement: id,
		Behaviors: []runtime.Behavior{
			NewTimer(TimerConfig{Direction: core.CountDown, Target: &target, Label: label}),
			NewExpiry(),
			NewOutput(),
		},
	})
}

func TestTimerOpensSpanOnMount(t *testing.T) {
	manual := clock.NewManual(testBase)
	block := runtime.NewBlock(runtime.BlockConfig{Label: "stopwatch", Behaviors: []runtime.Behavior{
		NewTimer(TimerConfig{}),
	}})
	rt := runtime.New(runtime.Config{Clock: manual, Logger: discardLogger()})
	rt.Start(block)

	ts, ok := memory.Read[core.TimerState](block.Memory(), core.MemoryTimer)
	if !ok {
		t.Fatal("timer cell missing")
	}
	if ts.Direction != core.CountUp {
		t.Errorf("direction = %s, want the count-up default", ts.Direction)
	}
	if len(ts.Spans) != 1 || !ts.Spans[0].Start.Equal(testBase) || ts.Spans[0].Closed() {
		t.Errorf("spans = %+v, want one open span at mount", ts.Spans)
	}
}

func TestTimerZeroTargetCompletesOnMount(t *testing.T) {
	manual := clock.NewManual(testBase)
	block := countdownBlock("nothing", 0, 0)
	rt := runtime.New(runtime.Config{Clock: manual, Logger: discardLogger()})
	rt.Start(block)

	if !rt.Finished() {
		t.Fatal("zero-target countdown did not finish on mount")
	}
	completions := rt.Outputs().ByType(core.OutputCompletion)
	if len(completions) != 1 {
		t.Fatalf("completions = %d, want exactly 1", len(completions))
	}
	c := completions[0]
	if !c.Window.Start.Equal(testBase) || !c.Window.Stop.Equal(testBase) {
		t.Errorf("window = %+v, want zero width at mount", c.Window)
	}
	vals := fragmentValues(c.Fragments)
	if len(vals) != 2 || vals[0] != "0s" || vals[1] != string(core.ReasonTimerExpired) {
		t.Errorf("completion fragments = %v, want [0s timer-expired]", vals)
	}
}

func TestTimerNilTargetNeverSelfCompletes(t *testing.T) {
	block := runtime.NewBlock(runtime.BlockConfig{Label: "open", Behaviors: []runtime.Behavior{
		NewTimer(TimerConfig{}),
		NewExpiry(),
	}})
	rt := runtime.New(runtime.Config{Clock: clock.NewManual(testBase), Logger: discardLogger()})
	rt.Start(block)

	rt.Tick(testBase.Add(time.Hour))

	if rt.Finished() {
		t.Error("open-ended timer completed from a tick")
	}
}

func TestTimerPauseResumeSpans(t *testing.T) {
	manual := clock.NewManual(testBase)
	block := runtime.NewBlock(runtime.BlockConfig{Label: "row", Behaviors: []runtime.Behavior{
		NewTimer(TimerConfig{}),
		NewControls(ControlsConfig{}),
	}})
	rt := runtime.New(runtime.Config{Clock: manual, Logger: discardLogger()})
	rt.Start(block)

	manual.Set(testBase.Add(10 * time.Second))
	rt.Dispatch(events.New(events.ControlPause, events.ScopeActive))

	ts, _ := memory.Read[core.TimerState](block.Memory(), core.MemoryTimer)
	if len(ts.Spans) != 1 || !ts.Spans[0].Closed() {
		t.Fatalf("spans after pause = %+v, want one closed", ts.Spans)
	}
	cs, _ := memory.Read[core.ControlsState](block.Memory(), core.MemoryControls)
	if cs.Pausable || !cs.Resumable {
		t.Errorf("controls after pause = %+v, want resumable only", cs)
	}

	// A second pause is a no-op.
	rt.Dispatch(events.New(events.ControlPause, events.ScopeActive))
	ts, _ = memory.Read[core.TimerState](block.Memory(), core.MemoryTimer)
	if len(ts.Spans) != 1 {
		t.Fatalf("spans after double pause = %d, want 1", len(ts.Spans))
	}

	manual.Set(testBase.Add(25 * time.Second))
	rt.Dispatch(events.New(events.ControlResume, events.ScopeActive))

	ts, _ = memory.Read[core.TimerState](block.Memory(), core.MemoryTimer)
	if len(ts.Spans) != 2 || ts.Spans[1].Closed() {
		t.Fatalf("spans after resume = %+v, want a second open span", ts.Spans)
	}
	if got := ts.Elapsed(testBase.Add(40 * time.Second)); got != 25*time.Second {
		t.Errorf("elapsed at +40s = %v, want 25s (10 banked + 15 running)", got)
	}
	cs, _ = memory.Read[core.ControlsState](block.Memory(), core.MemoryControls)
	if !cs.Pausable || cs.Resumable {
		t.Errorf("controls after resume = %+v, want pausable again", cs)
	}
}

func TestExpiryCompletesAtDeadlineNotTickArrival(t *testing.T) {
	manual := clock.NewManual(testBase)
	factory := newTestFactory()
	factory.make[1] = func() *runtime.Block { return countdownBlock("work", 3*time.Second, 1) }
	factory.make[2] = func() *runtime.Block {
		return runtime.NewBlock(runtime.BlockConfig{Label: "next", Statement: 2, Behaviors: []runtime.Behavior{
			NewTimer(TimerConfig{}),
		}})
	}
	root := runtime.NewBlock(runtime.BlockConfig{Label: "sequence", Behaviors: []runtime.Behavior{
		NewRounds(RoundsConfig{Total: 1, Children: []core.StatementID{1, 2}}),
	}})
	rt := runtime.New(runtime.Config{Clock: manual, Logger: discardLogger(), Factory: factory})
	rt.Start(root)

	// The tick lands two seconds late; completion must still be recorded
	// at the three second deadline.
	deadline := testBase.Add(3 * time.Second)
	manual.Set(testBase.Add(5 * time.Second))
	rt.Tick(testBase.Add(5 * time.Second))

	completions := rt.Outputs().ByType(core.OutputCompletion)
	if len(completions) != 1 {
		t.Fatalf("completions = %d, want 1", len(completions))
	}
	c := completions[0]
	if !c.Window.Stop.Equal(deadline) {
		t.Errorf("completion window stop = %v, want the deadline %v", c.Window.Stop, deadline)
	}
	hasTime := false
	for _, f := range c.Fragments {
		if f.Type == core.FragmentTime {
			hasTime = true
			if f.Value != "3s" {
				t.Errorf("time fragment = %q, want exactly 3s", f.Value)
			}
		}
	}
	if !hasTime {
		t.Error("completion missing the time fragment")
	}

	// The sibling mounted in the same cascade: its first span starts at
	// the deadline, not at tick arrival.
	next := factory.built[2]
	if next == nil {
		t.Fatal("sibling never mounted")
	}
	ts, ok := memory.Read[core.TimerState](next.Memory(), core.MemoryTimer)
	if !ok {
		t.Fatal("sibling timer cell missing")
	}
	if len(ts.Spans) != 1 || !ts.Spans[0].Start.Equal(deadline) {
		t.Errorf("sibling first span = %+v, want start exactly at %v", ts.Spans, deadline)
	}
}

func TestExpiryAcrossPauseResume(t *testing.T) {
	manual := clock.NewManual(testBase)
	block := runtime.NewBlock(runtime.BlockConfig{Label: "emom", Behaviors: []runtime.Behavior{
		NewTimer(TimerConfig{Direction: core.CountDown, Target: durationPtr(3 * time.Second)}),
		NewExpiry(),
		NewControls(ControlsConfig{}),
		NewOutput(),
	}})
	rt := runtime.New(runtime.Config{Clock: manual, Logger: discardLogger()})
	rt.Start(block)

	// One second of work, then a pause.
	manual.Set(testBase.Add(1 * time.Second))
	rt.Dispatch(events.New(events.ControlPause, events.ScopeActive))

	// Ticks while paused do not expire anything.
	manual.Set(testBase.Add(5 * time.Second))
	rt.Tick(testBase.Add(5 * time.Second))
	if rt.Finished() {
		t.Fatal("paused countdown expired")
	}

	// Resume at +5s; the remaining two seconds put the deadline at +7s.
	rt.Dispatch(events.New(events.ControlResume, events.ScopeActive))
	manual.Set(testBase.Add(8 * time.Second))
	rt.Tick(testBase.Add(8 * time.Second))

	if !rt.Finished() {
		t.Fatal("resumed countdown never expired")
	}
	completions := rt.Outputs().ByType(core.OutputCompletion)
	if len(completions) != 1 {
		t.Fatalf("completions = %d, want 1", len(completions))
	}
	want := testBase.Add(7 * time.Second)
	if got := completions[0].Window.Stop; !got.Equal(want) {
		t.Errorf("completion at %v, want the projected deadline %v", got, want)
	}
}

func durationPtr(d time.Duration) *time.Duration { return &d }
