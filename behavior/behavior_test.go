package behavior

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pace-labs/wodflow/clock"
	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/events"
	"github.com/pace-labs/wodflow/memory"
	"github.com/pace-labs/wodflow/runtime"
)

var testBase = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testFactory builds fresh child blocks per statement and remembers the
// last instance of each so tests can inspect their memory.
type testFactory struct {
	make   map[core.StatementID]func() *runtime.Block
	built  map[core.StatementID]*runtime.Block
	builds int
}

func newTestFactory() *testFactory {
	return &testFactory{
		make:  map[core.StatementID]func() *runtime.Block{},
		built: map[core.StatementID]*runtime.Block{},
	}
}

func (f *testFactory) Build(id core.StatementID) (*runtime.Block, error) {
	fn, ok := f.make[id]
	if !ok {
		return nil, fmt.Errorf("statement %d: %w", id, runtime.ErrStatementNotFound)
	}
	f.builds++
	b := fn()
	f.built[id] = b
	return b, nil
}

type recorder struct {
	all []runtime.Notification
}

func (r *recorder) handler() runtime.NotificationHandler {
	return func(n runtime.Notification) { r.all = append(r.all, n) }
}

func (r *recorder) byKind(kind runtime.NotificationKind) []runtime.Notification {
	var out []runtime.Notification
	for _, n := range r.all {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func fragmentValues(frags []core.Fragment) []string {
	out := make([]string, len(frags))
	for i, f := range frags {
		out[i] = f.Value
	}
	return out
}

func TestGlobalRegistryCoversBuiltins(t *testing.T) {
	r := Global()
	want := []runtime.BehaviorKind{
		KindTimer, KindExpiry, KindRounds, KindOutput,
		KindDisplay, KindControls, KindInherit,
	}
	if r.Len() != len(want) {
		t.Fatalf("registry len = %d, want %d", r.Len(), len(want))
	}
	all := r.All()
	for i, kind := range want {
		if all[i].Kind != kind {
			t.Errorf("registry order[%d] = %s, want %s", i, all[i].Kind, kind)
		}
		if !r.Has(kind) {
			t.Errorf("Has(%s) = false", kind)
		}
	}
}

func TestRegistryBuild(t *testing.T) {
	b, err := Build(KindTimer, Config{Direction: core.CountDown})
	if err != nil {
		t.Fatalf("Build(timer): %v", err)
	}
	if got := b.Kind(); got != KindTimer {
		t.Errorf("built kind = %s, want timer", got)
	}

	if _, err := Build("bogus", Config{}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Build(bogus) = %v, want ErrUnknownKind", err)
	}
}

func TestControlsAdvancePressCompletes(t *testing.T) {
	rec := &recorder{}
	block := runtime.NewBlock(runtime.BlockConfig{Label: "effort", Behaviors: []runtime.Behavior{
		NewControls(ControlsConfig{}),
	}})
	rt := runtime.New(runtime.Config{Logger: discardLogger(), Handler: rec.handler()})
	if err := rt.Start(block); err != nil {
		t.Fatalf("Start: %v", err)
	}

	rt.Dispatch(events.New(events.ControlAdvance, events.ScopeActive))

	if !rt.Finished() {
		t.Fatal("run not finished after advance press")
	}
	popped := rec.byKind(runtime.NotificationBlockPopped)
	if len(popped) != 1 {
		t.Fatalf("block_popped = %d, want 1", len(popped))
	}
	if got := popped[0].Payload["reason"]; got != string(core.ReasonUserAdvance) {
		t.Errorf("reason = %v, want user-advance", got)
	}
}

func TestControlsNotAdvanceableIgnoresPress(t *testing.T) {
	block := runtime.NewBlock(runtime.BlockConfig{Label: "rest", Behaviors: []runtime.Behavior{
		NewControls(ControlsConfig{State: core.ControlsState{Pausable: true}}),
	}})
	rt := runtime.New(runtime.Config{Logger: discardLogger()})
	rt.Start(block)

	rt.Dispatch(events.New(events.ControlAdvance, events.ScopeActive))

	if rt.Finished() {
		t.Error("non-advanceable block completed from an advance press")
	}
	cs, ok := memory.Read[core.ControlsState](block.Memory(), core.MemoryControls)
	if !ok || !cs.Pausable || cs.Advanceable {
		t.Errorf("controls cell = %+v, want pausable only", cs)
	}
}

func TestControlsStepModeAdvancesInPlace(t *testing.T) {
	block := runtime.NewBlock(runtime.BlockConfig{Label: "amrap", Behaviors: []runtime.Behavior{
		NewRounds(RoundsConfig{Total: 0}),
		NewControls(ControlsConfig{Mode: AdvanceSteps}),
	}})
	rt := runtime.New(runtime.Config{Logger: discardLogger()})
	rt.Start(block)

	rt.Dispatch(events.New(events.ControlAdvance, events.ScopeActive))
	rt.Dispatch(events.New(events.ControlAdvance, events.ScopeActive))

	if rt.Finished() {
		t.Fatal("step-mode press completed the block")
	}
	rs, _ := memory.Read[core.RoundState](block.Memory(), core.MemoryRounds)
	if rs.Iteration != 3 {
		t.Errorf("iteration after two presses = %d, want 3", rs.Iteration)
	}
}

func TestDisplayCell(t *testing.T) {
	block := runtime.NewBlock(runtime.BlockConfig{
		Label:     "row",
		Fragments: []core.Fragment{{Type: core.FragmentDistance, Value: "500m", Origin: core.OriginParser}},
		Behaviors: []runtime.Behavior{NewDisplay(DisplayConfig{Detail: "steady pace"})},
	})
	rt := runtime.New(runtime.Config{Logger: discardLogger()})
	rt.Start(block)

	ds, ok := memory.Read[core.DisplayState](block.Memory(), core.MemoryDisplay)
	if !ok {
		t.Fatal("display cell missing")
	}
	if ds.Label != "row" {
		t.Errorf("label = %q, want the block's own", ds.Label)
	}
	if ds.Detail != "steady pace" {
		t.Errorf("detail = %q, want steady pace", ds.Detail)
	}
	if len(ds.Fragments) != 1 || ds.Fragments[0].Value != "500m" {
		t.Errorf("fragments = %v, want the source fragments", fragmentValues(ds.Fragments))
	}
}

func TestDisplayTracksRounds(t *testing.T) {
	block := runtime.NewBlock(runtime.BlockConfig{Label: "cindy", Behaviors: []runtime.Behavior{
		NewRounds(RoundsConfig{Total: 5}),
		NewDisplay(DisplayConfig{}),
	}})
	rt := runtime.New(runtime.Config{Logger: discardLogger()})
	rt.Start(block)

	ds, _ := memory.Read[core.DisplayState](block.Memory(), core.MemoryDisplay)
	if ds.Detail != "round 1/5" {
		t.Errorf("detail at mount = %q, want round 1/5", ds.Detail)
	}

	rt.AdvanceCurrent()
	ds, _ = memory.Read[core.DisplayState](block.Memory(), core.MemoryDisplay)
	if ds.Detail != "round 2/5" {
		t.Errorf("detail after advance = %q, want round 2/5", ds.Detail)
	}
}

func TestInheritChainsFragments(t *testing.T) {
	factory := newTestFactory()
	factory.make[1] = func() *runtime.Block {
		return runtime.NewBlock(runtime.BlockConfig{
			Label:     "burpees",
			Statement: 1,
			Fragments: []core.Fragment{{Type: core.FragmentEffort, Value: "burpees", Origin: core.OriginParser}},
			Behaviors: []runtime.Behavior{NewInherit(), NewOutput()},
		})
	}
	root := runtime.NewBlock(runtime.BlockConfig{
		Label:     "loop",
		Fragments: []core.Fragment{{Type: core.FragmentRounds, Value: "3", Origin: core.OriginParser}},
		Behaviors: []runtime.Behavior{NewInherit(), NewRounds(RoundsConfig{Total: 3, Children: []core.StatementID{1}})},
	})
	rt := runtime.New(runtime.Config{Logger: discardLogger(), Factory: factory})
	rt.Start(root)

	child := factory.built[1]
	if child == nil {
		t.Fatal("child never built")
	}
	fs, ok := memory.Read[core.FragmentState](child.Memory(), core.MemoryFragments)
	if !ok {
		t.Fatal("child fragments cell missing")
	}
	got := fragmentValues(fs.Fragments)
	if len(got) != 2 || got[0] != "3" || got[1] != "burpees" {
		t.Errorf("inherited fragments = %v, want [3 burpees]", got)
	}
	if fs.Fragments[0].Origin != core.OriginParser {
		t.Errorf("inherited origin = %s, want parser preserved", fs.Fragments[0].Origin)
	}

	// The child's segment prints the merged fragments plus the loop's
	// round counter.
	segments := rt.Outputs().ByType(core.OutputSegment)
	if len(segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(segments))
	}
	vals := fragmentValues(segments[0].Fragments)
	if len(vals) != 3 || vals[0] != "3" || vals[1] != "burpees" || vals[2] != "1/3" {
		t.Errorf("segment fragments = %v, want [3 burpees 1/3]", vals)
	}
}

func TestOutputCompletionWithoutTimer(t *testing.T) {
	manual := clock.NewManual(testBase)
	block := runtime.NewBlock(runtime.BlockConfig{
		Label:     "effort",
		Fragments: []core.Fragment{{Type: core.FragmentEffort, Value: "deadlift", Origin: core.OriginParser}},
		Behaviors: []runtime.Behavior{NewOutput()},
	})
	rt := runtime.New(runtime.Config{Clock: manual, Logger: discardLogger()})
	rt.Start(block)

	manual.Set(testBase.Add(42 * time.Second))
	rt.PopCurrent(core.ReasonUserAdvance)

	completions := rt.Outputs().ByType(core.OutputCompletion)
	if len(completions) != 1 {
		t.Fatalf("completions = %d, want exactly 1", len(completions))
	}
	c := completions[0]
	if !c.Window.Start.Equal(testBase) || !c.Window.Stop.Equal(testBase.Add(42*time.Second)) {
		t.Errorf("window = %+v, want mount to completion", c.Window)
	}
	vals := fragmentValues(c.Fragments)
	// No timer ran, so no time fragment; the window carries the duration.
	if len(vals) != 2 || vals[0] != "deadlift" || vals[1] != string(core.ReasonUserAdvance) {
		t.Errorf("completion fragments = %v, want [deadlift user-advance]", vals)
	}
}
